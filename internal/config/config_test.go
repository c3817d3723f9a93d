package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, logic.DefaultConfig(), cfg.ControllerConfig())
	assert.Equal(t, 0, cfg.Control.FailSafeAfter)
	assert.False(t, cfg.Control.HonorFanOverride)
	assert.False(t, cfg.Control.PublishHeatIndex)
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
interval: 10s
control:
  open_above_f: 85
  close_below_f: 75.5
  settle: 20ms
  fail_safe_after: 3
actuator:
  fan_pin: 17
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 85.0, cfg.Control.OpenAboveF)
	assert.Equal(t, 75.5, cfg.Control.CloseBelowF)
	assert.Equal(t, 20*time.Millisecond, cfg.Control.Settle)
	assert.Equal(t, 3, cfg.Control.FailSafeAfter)
	assert.Equal(t, 17, cfg.Actuator.FanPin)

	// Untouched keys keep defaults
	assert.Equal(t, 10, cfg.Control.RestPosition)
	assert.Equal(t, "GPIO18", cfg.Actuator.ServoPin)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("GH_TEST_AIO_USER", "alice")
	t.Setenv("GH_TEST_AIO_KEY", "secret")

	cfg, err := Parse([]byte("mqtt:\n  username: ${GH_TEST_AIO_USER}\n  password: ${GH_TEST_AIO_KEY}\n"))
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.MQTT.Username)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, "alice", cfg.TopicPrefix())
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("control: [unclosed"))
	assert.Error(t, err)
}

func TestTopicPrefix(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "greenhouse", cfg.TopicPrefix())

	cfg.MQTT.Username = "alice"
	assert.Equal(t, "alice", cfg.TopicPrefix())

	cfg.MQTT.Prefix = "farm"
	assert.Equal(t, "farm", cfg.TopicPrefix())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }},
		{"no broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"zero queue", func(c *Config) { c.MQTT.QueueSize = 0 }},
		{"negative fail safe", func(c *Config) { c.Control.FailSafeAfter = -1 }},
		{"adc channel", func(c *Config) { c.Sensor.ADCChannel = 4 }},
		{"servo pulses", func(c *Config) { c.Actuator.ServoMinPulse = 3 * time.Millisecond }},
		{"thresholds inverted", func(c *Config) { c.Control.CloseBelowF = 80 }},
		{"ramp step", func(c *Config) { c.Control.RampStep = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFindConfigExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: 5s\n"), 0600))

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = FindConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFindConfigSearchPath(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(orig)

	// Nothing in CWD: defaults apply (unless /etc has one on this host)
	got, err := FindConfig("")
	require.NoError(t, err)
	if got != "" {
		assert.Equal(t, "/etc/greenhouse/greenhouse.yaml", got)
	}

	require.NoError(t, os.WriteFile("greenhouse.yaml", []byte("interval: 5s\n"), 0600))
	got, err = FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "greenhouse.yaml", got)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \"\"\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.HTTP.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
