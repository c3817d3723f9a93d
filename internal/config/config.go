// Package config handles greenhouse controller configuration loading.
package config

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
func DefaultSearchPaths() []string {
	return []string{"greenhouse.yaml", "/etc/greenhouse/greenhouse.yaml"}
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// An empty path with a nil error means no file was found and defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all controller configuration.
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	Interval  time.Duration  `yaml:"interval"`
	Heartbeat time.Duration  `yaml:"heartbeat"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Control   ControlConfig  `yaml:"control"`
	Sensor    SensorConfig   `yaml:"sensor"`
	Actuator  ActuatorConfig `yaml:"actuator"`
	HTTP      HTTPConfig     `yaml:"http"`
}

// MQTTConfig configures the telemetry broker.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Prefix     string `yaml:"prefix"` // defaults to Username, then "greenhouse"
	BufferSize int    `yaml:"buffer_size"`
	QueueSize  int    `yaml:"queue_size"`
}

// ControlConfig configures the hysteresis controller.
type ControlConfig struct {
	OpenAboveF       float64       `yaml:"open_above_f"`
	CloseBelowF      float64       `yaml:"close_below_f"`
	RestPosition     int           `yaml:"rest_position"`
	OpenPosition     int           `yaml:"open_position"`
	RampStep         int           `yaml:"ramp_step"`
	Settle           time.Duration `yaml:"settle"`
	FailSafeAfter    int           `yaml:"fail_safe_after"` // 0 disables
	HonorFanOverride bool          `yaml:"honor_fan_override"`
	PublishHeatIndex bool          `yaml:"publish_heat_index"`
}

// SensorConfig selects the sensor hardware.
type SensorConfig struct {
	IIODevice  string `yaml:"iio_device"`
	Light      bool   `yaml:"light"`
	I2CBus     string `yaml:"i2c_bus"`
	ADCAddress uint16 `yaml:"adc_address"`
	ADCChannel int    `yaml:"adc_channel"`
}

// ActuatorConfig selects the actuator hardware.
type ActuatorConfig struct {
	GPIOChip      string        `yaml:"gpio_chip"`
	FanPin        int           `yaml:"fan_pin"`
	ServoPin      string        `yaml:"servo_pin"`
	ServoMinPulse time.Duration `yaml:"servo_min_pulse"`
	ServoMaxPulse time.Duration `yaml:"servo_max_pulse"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration matching the reference hardware: a DHT22
// on IIO device 0, an ADS1115 at 0x48, the fan on BCM 23 and the servo on
// GPIO18.
func Default() *Config {
	lc := logic.DefaultConfig()
	return &Config{
		LogLevel:  "info",
		Interval:  5 * time.Second,
		Heartbeat: 15 * time.Minute,
		MQTT: MQTTConfig{
			Broker:     "tcp://localhost:1883",
			ClientID:   "greenhouse",
			BufferSize: 1000,
			QueueSize:  64,
		},
		Control: ControlConfig{
			OpenAboveF:   lc.OpenAboveF,
			CloseBelowF:  lc.CloseBelowF,
			RestPosition: lc.RestPos,
			OpenPosition: lc.OpenPos,
			RampStep:     lc.RampStep,
			Settle:       lc.Settle,
		},
		Sensor: SensorConfig{
			IIODevice:  "/sys/bus/iio/devices/iio:device0",
			Light:      true,
			ADCAddress: 0x48,
		},
		Actuator: ActuatorConfig{
			GPIOChip:      "gpiochip0",
			FanPin:        23,
			ServoPin:      "GPIO18",
			ServoMinPulse: time.Millisecond,
			ServoMaxPulse: 2 * time.Millisecond,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads configuration from a YAML file on top of Default.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative, got %s", c.Heartbeat)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.QueueSize < 1 {
		return fmt.Errorf("mqtt.queue_size must be at least 1, got %d", c.MQTT.QueueSize)
	}
	if c.Control.FailSafeAfter < 0 {
		return fmt.Errorf("control.fail_safe_after must not be negative, got %d", c.Control.FailSafeAfter)
	}
	if c.Sensor.ADCChannel < 0 || c.Sensor.ADCChannel > 3 {
		return fmt.Errorf("sensor.adc_channel must be 0..3, got %d", c.Sensor.ADCChannel)
	}
	if c.Actuator.ServoMinPulse >= c.Actuator.ServoMaxPulse {
		return fmt.Errorf("actuator.servo_min_pulse (%s) must be below servo_max_pulse (%s)",
			c.Actuator.ServoMinPulse, c.Actuator.ServoMaxPulse)
	}
	if err := c.ControllerConfig().Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}

// ControllerConfig returns the pure controller settings.
func (c *Config) ControllerConfig() logic.Config {
	return logic.Config{
		OpenAboveF:       c.Control.OpenAboveF,
		CloseBelowF:      c.Control.CloseBelowF,
		RestPos:          c.Control.RestPosition,
		OpenPos:          c.Control.OpenPosition,
		RampStep:         c.Control.RampStep,
		Settle:           c.Control.Settle,
		PublishHeatIndex: c.Control.PublishHeatIndex,
	}
}

// TopicPrefix returns the feed topic prefix: the explicit prefix, else the
// username (Adafruit IO), else "greenhouse".
func (c *Config) TopicPrefix() string {
	if c.MQTT.Prefix != "" {
		return c.MQTT.Prefix
	}
	if c.MQTT.Username != "" {
		return c.MQTT.Username
	}
	return "greenhouse"
}
