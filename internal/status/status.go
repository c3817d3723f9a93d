// Package status provides a thread-safe status tracker for the greenhouse
// controller. It is read by HTTP handlers and by lifecycle event publishing.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains controller configuration for display.
type Config struct {
	IntervalMs       int64
	HeartbeatMs      int64
	OpenAboveF       float64
	CloseBelowF      float64
	FailSafeAfter    int
	HonorFanOverride bool
	Broker           string
	Prefix           string
	HTTPAddr         string
}

// Cycle is what the control loop reports after each cycle.
type Cycle struct {
	State    logic.State
	FanOn    bool // actual fan output, after any override
	Counter  int
	Counts   logic.Counts
	Sample   logic.Sample
	Marker   string // non-empty when the sample was invalid
	Override logic.Override
	At       time.Time
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	State         logic.State
	FanOn         bool
	Counter       int
	Counts        logic.Counts
	LastSample    *logic.Sample // last valid sample; nil before the first
	LastMarker    string
	LastCycle     time.Time
	Override      logic.Override
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// SensorOK reports whether the most recent cycle had a valid sample.
func (s Snapshot) SensorOK() bool {
	return s.LastMarker == "" && s.LastSample != nil
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	subs map[chan Snapshot]struct{}
}

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Record stores the outcome of a control cycle and notifies subscribers.
func (t *Tracker) Record(c Cycle) {
	t.mu.Lock()
	t.snap.State = c.State
	t.snap.FanOn = c.FanOn
	t.snap.Counter = c.Counter
	t.snap.Counts = c.Counts
	t.snap.Override = c.Override
	t.snap.LastMarker = c.Marker
	t.snap.LastCycle = c.At
	if c.Marker == "" {
		s := c.Sample
		t.snap.LastSample = &s
	}
	t.mu.Unlock()

	t.notify()
}

// SetState updates the control state outside a cycle (homing, fail-safe).
func (t *Tracker) SetState(st logic.State, fanOn bool) {
	t.mu.Lock()
	t.snap.State = st
	t.snap.FanOn = fanOn
	t.mu.Unlock()

	t.notify()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers only see the latest snapshot. Call cancel to unsubscribe.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			t.mu.Unlock()
		})
	}
	return ch, cancel
}

func (t *Tracker) notify() {
	snap := t.Snapshot()

	t.mu.RLock()
	defer t.mu.RUnlock()
	for ch := range t.subs {
		select {
		case <-ch: // drop the stale one
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
