//go:build linux

package sensor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// IIO attribute files exposed by the dht11 kernel driver (which also
// handles the DHT22). Values are in milli-degrees and milli-percent.
const (
	iioTemperature = "in_temp_input"
	iioHumidity    = "in_humidityrelative_input"
)

// adcFullScale maps the ADS1115 positive range onto a 10-bit light scale.
const adcFullScale = 32767

// RealReader reads the DHT22 via IIO sysfs and light via an ADS1115.
type RealReader struct {
	iioDir string
	bus    i2c.BusCloser
	light  ads1x15.PinADC
}

// Options selects the sensor hardware.
type Options struct {
	IIODevice  string // e.g. /sys/bus/iio/devices/iio:device0
	I2CBus     string // "" opens the first available bus
	ADCAddress uint16
	ADCChannel int  // 0..3, single-ended
	Light      bool // false disables the ADC; ReadLight returns 0
}

// NewRealReader opens the sensors described by opts.
func NewRealReader(opts Options) (*RealReader, error) {
	if _, err := os.Stat(filepath.Join(opts.IIODevice, iioTemperature)); err != nil {
		return nil, fmt.Errorf("open iio device %s: %w", opts.IIODevice, err)
	}

	r := &RealReader{iioDir: opts.IIODevice}
	if !opts.Light {
		return r, nil
	}

	channels := []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}
	if opts.ADCChannel < 0 || opts.ADCChannel >= len(channels) {
		return nil, fmt.Errorf("adc channel %d out of range 0..3", opts.ADCChannel)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(opts.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", opts.I2CBus, err)
	}

	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: opts.ADCAddress})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init ads1115 at 0x%02x: %w", opts.ADCAddress, err)
	}

	pin, err := adc.PinForChannel(channels[opts.ADCChannel], 3300*physic.MilliVolt, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("configure adc channel %d: %w", opts.ADCChannel, err)
	}

	r.bus = bus
	r.light = pin
	return r, nil
}

// ReadHumidity returns relative humidity in percent, NaN on failure.
func (r *RealReader) ReadHumidity() float64 {
	return r.readMilli(iioHumidity)
}

// ReadTemperature returns the temperature, NaN on failure.
func (r *RealReader) ReadTemperature(fahrenheit bool) float64 {
	c := r.readMilli(iioTemperature)
	if fahrenheit {
		return CToF(c)
	}
	return c
}

// readMilli reads an IIO attribute scaled by 1/1000. The dht11 driver
// returns EIO when the bus handshake fails; that is a normal failed read.
func (r *RealReader) readMilli(name string) float64 {
	data, err := os.ReadFile(filepath.Join(r.iioDir, name))
	if err != nil {
		log.Debugf("iio read %s: %v", name, err)
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		log.Debugf("iio parse %s: %v", name, err)
		return math.NaN()
	}
	if math.IsInf(v, 0) {
		log.Debugf("iio parse %s: infinite value %q", name, strings.TrimSpace(string(data)))
		return math.NaN()
	}
	return v / 1000
}

// ReadLight returns the light level scaled to 0..1023.
func (r *RealReader) ReadLight() (int, error) {
	if r.light == nil {
		return 0, nil
	}
	s, err := r.light.Read()
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	return scaleADC(s.Raw), nil
}

func scaleADC(raw int32) int {
	if raw <= 0 {
		return 0
	}
	if raw >= adcFullScale {
		return 1023
	}
	return int(int64(raw) * 1023 / adcFullScale)
}

// Close releases the ADC and I²C bus.
func (r *RealReader) Close() error {
	var errs []error
	if r.light != nil {
		if err := r.light.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt adc: %w", err))
		}
	}
	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
