package status

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Hatch         HatchJSON    `json:"hatch"`
	Fan           FanJSON      `json:"fan"`
	SensorOK      bool         `json:"sensor_ok"`
	Sample        *SampleJSON  `json:"sample,omitempty"`
	Counter       int          `json:"counter"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastCycle     string       `json:"last_cycle,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Override      OverrideJSON `json:"override"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// HatchJSON reports the hatch.
type HatchJSON struct {
	State    string `json:"state"`
	Position int    `json:"position"`
}

// FanJSON reports the commanded fan state and the actual output.
type FanJSON struct {
	Commanded bool `json:"commanded"`
	Output    bool `json:"output"`
}

// SampleJSON is the last valid sensor sample.
type SampleJSON struct {
	TemperatureF float64 `json:"temperature_f"`
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity"`
	HeatIndexF   float64 `json:"heat_index_f"`
	HeatIndexC   float64 `json:"heat_index_c"`
	LightLevel   int     `json:"light_level"`
	LightRaw     int     `json:"light_raw"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Prefix    string `json:"prefix"`
}

// CountsJSON is the JSON representation of control counts.
type CountsJSON struct {
	Opens          int `json:"opens"`
	Closes         int `json:"closes"`
	SensorFailures int `json:"sensor_failures"`
	Cycles         int `json:"cycles"`
}

// OverrideJSON holds latched remote commands; null until received.
type OverrideJSON struct {
	Fan   *bool `json:"fan"`
	Hatch *bool `json:"hatch"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	IntervalMs       int64   `json:"interval_ms"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	OpenAboveF       float64 `json:"open_above_f"`
	CloseBelowF      float64 `json:"close_below_f"`
	FailSafeAfter    int     `json:"fail_safe_after"`
	HonorFanOverride bool    `json:"honor_fan_override"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
}

func level(l logic.Level) *bool {
	if !l.Set {
		return nil
	}
	v := l.On
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		BootID:        snap.BootID,
		Hatch:         HatchJSON{State: string(snap.State.Mode()), Position: snap.State.HatchPosition},
		Fan:           FanJSON{Commanded: snap.State.FanOn, Output: snap.FanOn},
		SensorOK:      snap.SensorOK(),
		Counter:       snap.Counter,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Prefix:    snap.Config.Prefix,
		},
		Counts: CountsJSON{
			Opens:          snap.Counts.Opens,
			Closes:         snap.Counts.Closes,
			SensorFailures: snap.Counts.SensorFailures,
			Cycles:         snap.Counts.Cycles,
		},
		Override: OverrideJSON{
			Fan:   level(snap.Override.Fan),
			Hatch: level(snap.Override.Hatch),
		},
		Config: ConfigJSON{
			IntervalMs:       snap.Config.IntervalMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			OpenAboveF:       snap.Config.OpenAboveF,
			CloseBelowF:      snap.Config.CloseBelowF,
			FailSafeAfter:    snap.Config.FailSafeAfter,
			HonorFanOverride: snap.Config.HonorFanOverride,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}

	if !snap.LastCycle.IsZero() {
		inner.LastCycle = snap.LastCycle.UTC().Format(time.RFC3339)
	}

	if s := snap.LastSample; s != nil {
		inner.Sample = &SampleJSON{
			TemperatureF: s.TempF,
			TemperatureC: s.TempC,
			Humidity:     s.Humidity,
			HeatIndexF:   s.HeatIndexF,
			HeatIndexC:   s.HeatIndexC,
			LightLevel:   s.LightScaled(),
			LightRaw:     s.LightRaw,
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, err := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	if err != nil {
		log.Warnf("status: marshal: %v", err)
		return nil
	}
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, err := json.Marshal(StatusJSON{Status: inner})
	if err != nil {
		log.Warnf("status: marshal %s event: %v", event, err)
		return nil
	}
	return data
}
