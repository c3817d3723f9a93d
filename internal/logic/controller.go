package logic

import (
	"fmt"
	"time"
)

// Config holds the hysteresis thresholds and ramp geometry.
type Config struct {
	OpenAboveF  float64       // open when temp_f is strictly above
	CloseBelowF float64       // close when temp_f is strictly below
	RestPos     int           // closed hatch position
	OpenPos     int           // open hatch position
	RampStep    int           // position increment per ramp action
	Settle      time.Duration // wait after each ramp action

	// PublishHeatIndex adds the heat index (°F) to the published points.
	PublishHeatIndex bool
}

// DefaultConfig returns the reference thresholds and ramp.
func DefaultConfig() Config {
	return Config{
		OpenAboveF:  80.0,
		CloseBelowF: 77.0,
		RestPos:     10,
		OpenPos:     100,
		RampStep:    1,
		Settle:      15 * time.Millisecond,
	}
}

// Validate checks the config for a usable dead band and ramp.
func (c Config) Validate() error {
	if c.CloseBelowF >= c.OpenAboveF {
		return fmt.Errorf("close threshold %.1f must be below open threshold %.1f", c.CloseBelowF, c.OpenAboveF)
	}
	if c.RestPos < 0 || c.OpenPos > 100 || c.RestPos >= c.OpenPos {
		return fmt.Errorf("positions must satisfy 0 <= rest (%d) < open (%d) <= 100", c.RestPos, c.OpenPos)
	}
	if c.RampStep <= 0 {
		return fmt.Errorf("ramp step must be positive, got %d", c.RampStep)
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle must not be negative, got %v", c.Settle)
	}
	return nil
}

// Controller decides hatch and fan actuation from temperature.
// It holds no mutable state; State is passed in and returned.
type Controller struct {
	cfg Config
}

// NewController creates a controller. The config must have been validated.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Initial returns the startup state: closed, at rest, fan off.
func (c *Controller) Initial() State {
	return State{HatchPosition: c.cfg.RestPos}
}

// HomePlan drives the actuators to match Initial() at startup.
func (c *Controller) HomePlan() Plan {
	return Plan{
		From: c.cfg.RestPos,
		To:   c.cfg.RestPos,
		Actions: []Action{
			{Kind: ActionPosition, Position: c.cfg.RestPos, Settle: c.cfg.Settle},
			{Kind: ActionFan, Fan: false},
		},
	}
}

// Step computes the next state, the actuation plan and the telemetry batch
// for one cycle. Invalid samples leave the state untouched and yield an empty
// plan; Step never fails.
func (c *Controller) Step(prev State, s Sample) (State, Plan, TelemetryBatch) {
	if !s.Valid() {
		return prev, Plan{}, TelemetryBatch{Marker: MarkerSensorFailure}
	}

	batch := c.batch(s)

	switch {
	case s.TempF > c.cfg.OpenAboveF && !prev.HatchOpen:
		return State{HatchOpen: true, HatchPosition: c.cfg.OpenPos, FanOn: true},
			c.rampPlan(TransitionOpen, prev.HatchPosition, c.cfg.OpenPos, true),
			batch
	case s.TempF < c.cfg.CloseBelowF && prev.HatchOpen:
		return State{HatchOpen: false, HatchPosition: c.cfg.RestPos, FanOn: false},
			c.rampPlan(TransitionClose, prev.HatchPosition, c.cfg.RestPos, false),
			batch
	}
	return prev, Plan{}, batch
}

// FailSafe closes an open hatch and stops the fan. Used by the driver after
// repeated sensor failures; a closed state yields an empty plan.
func (c *Controller) FailSafe(prev State) (State, Plan) {
	if !prev.HatchOpen {
		return prev, Plan{}
	}
	return State{HatchOpen: false, HatchPosition: c.cfg.RestPos, FanOn: false},
		c.rampPlan(TransitionClose, prev.HatchPosition, c.cfg.RestPos, false)
}

// rampPlan moves from..to inclusive in RampStep increments, then sets the fan.
// A state whose position is off the rest/open pair ramps from the nominal end.
func (c *Controller) rampPlan(t Transition, from, to int, fan bool) Plan {
	if t == TransitionOpen && from != c.cfg.RestPos {
		from = c.cfg.RestPos
	}
	if t == TransitionClose && from != c.cfg.OpenPos {
		from = c.cfg.OpenPos
	}

	step := c.cfg.RampStep
	if to < from {
		step = -step
	}

	p := Plan{Transition: t, From: from, To: to}
	pos := from
	for {
		p.Actions = append(p.Actions, Action{Kind: ActionPosition, Position: pos, Settle: c.cfg.Settle})
		if pos == to {
			break
		}
		pos += step
		if (step > 0 && pos > to) || (step < 0 && pos < to) {
			pos = to
		}
	}
	p.Actions = append(p.Actions, Action{Kind: ActionFan, Fan: fan})
	return p
}

func (c *Controller) batch(s Sample) TelemetryBatch {
	b := TelemetryBatch{
		Points: []Point{
			{Name: PointTemperature, Value: s.TempF},
			{Name: PointHumidity, Value: s.Humidity},
			{Name: PointLightLevel, Value: s.LightScaled()},
		},
		Local: []Point{
			{Name: PointTempC, Value: s.TempC},
			{Name: PointHeatIndex, Value: s.HeatIndexF},
			{Name: PointHeatIndexC, Value: s.HeatIndexC},
			{Name: PointLightRaw, Value: s.LightRaw},
		},
	}
	if c.cfg.PublishHeatIndex {
		b.Points = append(b.Points, Point{Name: PointHeatIndex, Value: s.HeatIndexF})
	}
	return b
}

// ResolveFan returns the fan output for the cycle. The hysteresis command
// wins unless honor is set and a remote fan command has been latched.
func ResolveFan(s State, ov Override, honor bool) bool {
	if honor && ov.Fan.Set {
		return ov.Fan.On
	}
	return s.FanOn
}
