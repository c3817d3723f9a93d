// Package logic contains the pure control logic for the greenhouse hatch and fan.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Physical effects are returned as data (Plan) for the caller to execute.
package logic

import (
	"math"
	"time"
)

// State is the persistent control state, owned by the control loop.
type State struct {
	// HatchOpen is true iff the hatch is fully extended.
	HatchOpen bool
	// HatchPosition is the logical servo position (0..100). It is the open
	// position when HatchOpen and the rest position otherwise.
	HatchPosition int
	// FanOn is the commanded fan state; mirrors HatchOpen under the default policy.
	FanOn bool
}

// Mode returns the state machine node for s.
func (s State) Mode() Mode {
	if s.HatchOpen {
		return ModeOpen
	}
	return ModeClosed
}

// Mode is one of the two control states.
type Mode string

const (
	ModeClosed Mode = "CLOSED"
	ModeOpen   Mode = "OPEN"
)

// Sample is a single sensor acquisition. Never stored across cycles.
type Sample struct {
	Humidity   float64 // %
	TempC      float64
	TempF      float64
	HeatIndexF float64
	HeatIndexC float64
	LightRaw   int
}

// Valid reports whether the sample can drive control. Heat index values are
// derived and inherit validity from their inputs.
func (s Sample) Valid() bool {
	return !math.IsNaN(s.Humidity) && !math.IsNaN(s.TempC) && !math.IsNaN(s.TempF)
}

// LightScaled is the light level as published (raw / 10).
func (s Sample) LightScaled() int {
	return s.LightRaw / 10
}

// Transition identifies the state change decided by a step.
type Transition string

const (
	TransitionNone  Transition = ""
	TransitionOpen  Transition = "OPEN"
	TransitionClose Transition = "CLOSE"
)

// ActionKind selects which actuator an Action drives.
type ActionKind int

const (
	ActionPosition ActionKind = iota
	ActionFan
)

// Action is one actuator call followed by a settle wait.
type Action struct {
	Kind     ActionKind
	Position int  // ActionPosition
	Fan      bool // ActionFan
	Settle   time.Duration
}

// Plan is the ordered list of actuator calls for one cycle.
type Plan struct {
	Transition Transition
	From, To   int // hatch positions at either end of a ramp
	Actions    []Action
}

// Empty reports whether the plan has nothing to execute.
func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Positions returns the hatch positions commanded by the plan, in order.
func (p Plan) Positions() []int {
	var out []int
	for _, a := range p.Actions {
		if a.Kind == ActionPosition {
			out = append(out, a.Position)
		}
	}
	return out
}

// WithFan returns a copy of p whose fan actions drive the fan to on.
func (p Plan) WithFan(on bool) Plan {
	actions := make([]Action, len(p.Actions))
	copy(actions, p.Actions)
	for i := range actions {
		if actions[i].Kind == ActionFan {
			actions[i].Fan = on
		}
	}
	p.Actions = actions
	return p
}

// Duration is the total settle time of the plan.
func (p Plan) Duration() time.Duration {
	var d time.Duration
	for _, a := range p.Actions {
		d += a.Settle
	}
	return d
}

// Point names used in telemetry batches. Published points map 1:1 onto feeds.
const (
	PointCounter     = "counter"
	PointTemperature = "temperature"
	PointHumidity    = "humidity"
	PointLightLevel  = "light_level"
	PointHeatIndex   = "heat_index"

	// Local-only points.
	PointTempC      = "temperature_c"
	PointHeatIndexC = "heat_index_c"
	PointLightRaw   = "light_raw"
)

// MarkerSensorFailure is set on a batch when the sample was invalid.
const MarkerSensorFailure = "SENSOR_READ_FAILED"

// Point is a single named telemetry value (int or float64).
type Point struct {
	Name  string
	Value any
}

// TelemetryBatch is what a step wants reported.
type TelemetryBatch struct {
	// Points are published to their feeds.
	Points []Point
	// Local points are logged and exported but not published.
	Local []Point
	// Marker is non-empty when the cycle was skipped.
	Marker string
}

// Level is a latched remote boolean; Set is false until the first command.
type Level struct {
	Set bool
	On  bool
}

// Override holds the last remote commands received.
type Override struct {
	Fan   Level
	Hatch Level
}

// Counts tracks control activity since startup.
type Counts struct {
	Opens          int
	Closes         int
	SensorFailures int
	Cycles         int
}

// Record adds a transition to the counts.
func (c *Counts) Record(t Transition) {
	switch t {
	case TransitionOpen:
		c.Opens++
	case TransitionClose:
		c.Closes++
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
