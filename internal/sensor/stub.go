//go:build !linux

package sensor

import (
	"errors"
	"math"
)

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// Options selects the sensor hardware.
type Options struct {
	IIODevice  string
	I2CBus     string
	ADCAddress uint16
	ADCChannel int
	Light      bool
}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(opts Options) (*RealReader, error) {
	return nil, errors.New("sensor: not supported on this platform (requires Linux)")
}

// ReadHumidity always fails on non-Linux platforms.
func (r *RealReader) ReadHumidity() float64 {
	return math.NaN()
}

// ReadTemperature always fails on non-Linux platforms.
func (r *RealReader) ReadTemperature(fahrenheit bool) float64 {
	return math.NaN()
}

// ReadLight is not implemented on non-Linux platforms.
func (r *RealReader) ReadLight() (int, error) {
	return 0, errors.New("sensor: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
