// Package sensor acquires humidity, temperature and light readings.
// The real implementation reads a DHT22 through the Linux IIO subsystem and
// light through an ADS1115 ADC. The fake implementation allows testing
// without hardware.
package sensor

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// Reader reads the greenhouse sensors.
type Reader interface {
	// ReadHumidity returns relative humidity in percent, NaN on failure.
	ReadHumidity() float64

	// ReadTemperature returns the temperature in °F if fahrenheit is set,
	// °C otherwise. NaN on failure.
	ReadTemperature(fahrenheit bool) float64

	// ReadLight returns the raw light level on a 10-bit scale (0..1023).
	ReadLight() (int, error)

	// Close releases sensor resources.
	Close() error
}

// Acquire takes one full sample from r. Failed reads surface as NaN fields;
// validity is judged by the control logic, not here. A light read failure
// is logged and reported as 0.
func Acquire(r Reader) logic.Sample {
	h := r.ReadHumidity()
	t := r.ReadTemperature(false)
	f := r.ReadTemperature(true)

	light, err := r.ReadLight()
	if err != nil {
		log.Warnf("light read error: %v", err)
		light = 0
	}

	return logic.Sample{
		Humidity:   h,
		TempC:      t,
		TempF:      f,
		HeatIndexF: HeatIndex(f, h, true),
		HeatIndexC: HeatIndex(t, h, false),
		LightRaw:   light,
	}
}

// CToF converts Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*1.8 + 32
}

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32) / 1.8
}

// HeatIndex computes the apparent temperature using the Rothfusz regression
// with the Steadman approximation below 79°F. The result is in the same unit
// as temperature. NaN inputs yield NaN.
func HeatIndex(temperature, humidity float64, isFahrenheit bool) float64 {
	if !isFahrenheit {
		temperature = CToF(temperature)
	}

	hi := 0.5 * (temperature + 61.0 + ((temperature - 68.0) * 1.2) + (humidity * 0.094))

	if hi > 79 {
		t, rh := temperature, humidity
		hi = -42.379 +
			2.04901523*t +
			10.14333127*rh +
			-0.22475541*t*rh +
			-0.00683783*t*t +
			-0.05481717*rh*rh +
			0.00122874*t*t*rh +
			0.00085282*t*rh*rh +
			-0.00000199*t*t*rh*rh

		switch {
		case rh < 13 && t >= 80 && t <= 112:
			hi -= ((13 - rh) * 0.25) * math.Sqrt((17-math.Abs(t-95))*0.05882)
		case rh > 85 && t >= 80 && t <= 87:
			hi += ((rh - 85) * 0.1) * ((87 - t) * 0.2)
		}
	}

	if isFahrenheit {
		return hi
	}
	return FToC(hi)
}
