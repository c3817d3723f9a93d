// Command greenhouse vents a greenhouse: it reads temperature, humidity and
// light, opens or closes the hatch and fan on temperature hysteresis, and
// reports to MQTT feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/config"
	"github.com/sweeney/greenhouse-controller/internal/gpio"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/metrics"
	"github.com/sweeney/greenhouse-controller/internal/mqtt"
	"github.com/sweeney/greenhouse-controller/internal/sensor"
	"github.com/sweeney/greenhouse-controller/internal/status"
	"github.com/sweeney/greenhouse-controller/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Config file (default: ./greenhouse.yaml, /etc/greenhouse/greenhouse.yaml)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	heartbeat := flag.Duration("heartbeat", -1, "Heartbeat interval (overrides config, 0 to disable)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	printState := flag.Bool("print-state", false, "Print one sensor reading and exit")

	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(cfg, *broker, *httpAddr, *heartbeat, *logLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		log.Info("no config file found, using defaults")
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	log.Infof("loaded config from %s", path)
	return cfg, nil
}

// applyFlags lets command-line flags override the file. Zero values mean
// "not given"; heartbeat uses -1 for that since 0 disables it.
func applyFlags(cfg *config.Config, broker, httpAddr string, heartbeat time.Duration, logLevel string) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if heartbeat >= 0 {
		cfg.Heartbeat = heartbeat
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func run(cfg *config.Config, printState bool) error {
	reader, err := sensor.NewRealReader(sensor.Options{
		IIODevice:  cfg.Sensor.IIODevice,
		I2CBus:     cfg.Sensor.I2CBus,
		ADCAddress: cfg.Sensor.ADCAddress,
		ADCChannel: cfg.Sensor.ADCChannel,
		Light:      cfg.Sensor.Light,
	})
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer reader.Close()

	ctrl := logic.NewController(cfg.ControllerConfig())

	// Print state mode
	if printState {
		printSample(os.Stdout, sensor.Acquire(reader), ctrl.Initial())
		return nil
	}

	act, err := gpio.NewRealActuator(gpio.Options{
		Chip:          cfg.Actuator.GPIOChip,
		FanPin:        cfg.Actuator.FanPin,
		ServoPin:      cfg.Actuator.ServoPin,
		ServoMinPulse: cfg.Actuator.ServoMinPulse,
		ServoMaxPulse: cfg.Actuator.ServoMaxPulse,
	})
	if err != nil {
		return fmt.Errorf("init actuator: %w", err)
	}
	defer act.Close()

	prefix := cfg.TopicPrefix()
	client := mqtt.NewRealClient(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		Prefix:     prefix,
		BufferSize: cfg.MQTT.BufferSize,
		QueueSize:  cfg.MQTT.QueueSize,
	})
	defer client.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	bootID := uuid.NewString()
	tracker := status.NewTracker(time.Now(), bootID, status.Config{
		IntervalMs:       cfg.Interval.Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		OpenAboveF:       cfg.Control.OpenAboveF,
		CloseBelowF:      cfg.Control.CloseBelowF,
		FailSafeAfter:    cfg.Control.FailSafeAfter,
		HonorFanOverride: cfg.Control.HonorFanOverride,
		Broker:           cfg.MQTT.Broker,
		Prefix:           prefix,
		HTTPAddr:         cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	rec := metrics.New()

	l := newLoop(ctrl, reader, act, client, tracker, rec, loopConfig{
		Heartbeat:        cfg.Heartbeat,
		FailSafeAfter:    cfg.Control.FailSafeAfter,
		HonorFanOverride: cfg.Control.HonorFanOverride,
	}, time.Now, time.Sleep)

	l.home()
	l.startup()

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, rec.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Infof("started: boot=%s interval=%v broker=%s feeds=%s/feeds/* open>%.1f close<%.1f heartbeat=%v",
		bootID, cfg.Interval, cfg.MQTT.Broker, prefix, cfg.Control.OpenAboveF, cfg.Control.CloseBelowF, cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(l, intervalWait(cfg.Interval), sigCh)
}

// intervalWait fires immediately the first time, then after interval.
func intervalWait(interval time.Duration) func() <-chan time.Time {
	first := true
	return func() <-chan time.Time {
		if first {
			first = false
			return time.After(0)
		}
		return time.After(interval)
	}
}

// printSample writes one acquisition in the serial-console layout.
func printSample(w io.Writer, s logic.Sample, st logic.State) {
	if !s.Valid() {
		fmt.Fprintln(w, "Failed to read from DHT sensor!")
		return
	}
	fmt.Fprintln(w, "........................................")
	fmt.Fprintf(w, "Humidity:    %.2f %%\n", s.Humidity)
	fmt.Fprintf(w, "Temperature: %.2f *C %.2f *F\n", s.TempC, s.TempF)
	fmt.Fprintf(w, "Heat index:  %.2f *C %.2f *F\n", s.HeatIndexC, s.HeatIndexF)
	fmt.Fprintf(w, "Light Level: %d\n", s.LightScaled())
	fmt.Fprintf(w, "Hatch Open?  %d\n", boolInt(st.HatchOpen))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
