package sensor

import (
	"errors"
	"math"
)

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	// Readings contains scripted values. Each call to ReadHumidity starts a
	// new acquisition and consumes the next reading; the temperature and
	// light reads that follow use the same reading. Once exhausted, the last
	// reading repeats.
	Readings []Reading

	index   int
	current Reading

	// LightError, if set, will be returned by ReadLight.
	LightError error

	// Closed tracks if Close was called.
	Closed bool
}

// Reading is a single scripted sensor reading. NaN marks a failed read.
type Reading struct {
	Humidity float64
	TempC    float64
	TempF    float64
	Light    int
}

// Failed is a reading where every DHT read fails.
var Failed = Reading{Humidity: math.NaN(), TempC: math.NaN(), TempF: math.NaN()}

// NewFakeReader creates a FakeReader with the given readings.
func NewFakeReader(readings []Reading) *FakeReader {
	return &FakeReader{Readings: readings}
}

// FakeF builds a reading at the given °F with fixed humidity and light.
func FakeF(f float64) Reading {
	return Reading{Humidity: 50, TempC: FToC(f), TempF: f, Light: 512}
}

// ReadHumidity advances to the next scripted reading and returns its humidity.
func (f *FakeReader) ReadHumidity() float64 {
	if len(f.Readings) == 0 {
		f.current = Failed
		return math.NaN()
	}
	f.current = f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return f.current.Humidity
}

// ReadTemperature returns the current reading's temperature.
func (f *FakeReader) ReadTemperature(fahrenheit bool) float64 {
	if fahrenheit {
		return f.current.TempF
	}
	return f.current.TempC
}

// ReadLight returns the current reading's light level.
func (f *FakeReader) ReadLight() (int, error) {
	if f.LightError != nil {
		return 0, f.LightError
	}
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	return f.current.Light, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the reader to the first reading.
func (f *FakeReader) Reset() {
	f.index = 0
	f.current = Reading{}
	f.Closed = false
}
