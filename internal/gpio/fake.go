package gpio

import "fmt"

// FakeActuator is a test double that records actuator calls.
type FakeActuator struct {
	// Positions contains every hatch position commanded, in order.
	Positions []int

	// Fans contains every fan command, in order.
	Fans []bool

	// Calls is the interleaved call log, e.g. "pos 10", "fan on".
	Calls []string

	// PositionError, if set, will be returned by SetHatchPosition.
	PositionError error

	// FanError, if set, will be returned by SetFan.
	FanError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetHatchPosition records the position.
func (f *FakeActuator) SetHatchPosition(pos int) error {
	if f.PositionError != nil {
		return f.PositionError
	}
	f.Positions = append(f.Positions, pos)
	f.Calls = append(f.Calls, fmt.Sprintf("pos %d", pos))
	return nil
}

// SetFan records the fan command.
func (f *FakeActuator) SetFan(on bool) error {
	if f.FanError != nil {
		return f.FanError
	}
	f.Fans = append(f.Fans, on)
	if on {
		f.Calls = append(f.Calls, "fan on")
	} else {
		f.Calls = append(f.Calls, "fan off")
	}
	return nil
}

// Position returns the last commanded position, or -1 if none.
func (f *FakeActuator) Position() int {
	if len(f.Positions) == 0 {
		return -1
	}
	return f.Positions[len(f.Positions)-1]
}

// Fan returns the last fan command (false if none).
func (f *FakeActuator) Fan() bool {
	if len(f.Fans) == 0 {
		return false
	}
	return f.Fans[len(f.Fans)-1]
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded calls.
func (f *FakeActuator) Reset() {
	f.Positions = nil
	f.Fans = nil
	f.Calls = nil
	f.PositionError = nil
	f.FanError = nil
	f.Closed = false
}
