//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// Options selects the actuator hardware.
type Options struct {
	Chip          string
	FanPin        int
	ServoPin      string
	ServoMinPulse time.Duration
	ServoMaxPulse time.Duration
}

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(opts Options) (*RealActuator, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetHatchPosition is not implemented on non-Linux platforms.
func (r *RealActuator) SetHatchPosition(pos int) error {
	return errors.New("gpio: not supported")
}

// SetFan is not implemented on non-Linux platforms.
func (r *RealActuator) SetFan(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealActuator) Close() error {
	return nil
}
