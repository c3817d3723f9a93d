//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Options selects the actuator hardware.
type Options struct {
	Chip          string // GPIO character device, e.g. gpiochip0
	FanPin        int    // BCM offset of the fan transistor/relay
	ServoPin      string // periph pin name with PWM, e.g. GPIO18
	ServoMinPulse time.Duration
	ServoMaxPulse time.Duration
}

// RealActuator drives actual hardware.
type RealActuator struct {
	chip     *gpiocdev.Chip
	fan      *gpiocdev.Line
	servo    pgpio.PinIO
	minPulse time.Duration
	maxPulse time.Duration
}

// NewRealActuator opens the fan line (driven low) and the servo pin.
func NewRealActuator(opts Options) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip(opts.Chip, gpiocdev.WithConsumer("greenhouse"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	fan, err := chip.RequestLine(opts.FanPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request fan pin %d: %w", opts.FanPin, err)
	}

	if _, err := host.Init(); err != nil {
		fan.Close()
		chip.Close()
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	servo := gpioreg.ByName(opts.ServoPin)
	if servo == nil {
		fan.Close()
		chip.Close()
		return nil, fmt.Errorf("servo pin %q not found", opts.ServoPin)
	}

	return &RealActuator{
		chip:     chip,
		fan:      fan,
		servo:    servo,
		minPulse: opts.ServoMinPulse,
		maxPulse: opts.ServoMaxPulse,
	}, nil
}

// SetHatchPosition sets the servo pulse for pos.
func (r *RealActuator) SetHatchPosition(pos int) error {
	pulse, err := ServoPulse(pos, r.minPulse, r.maxPulse)
	if err != nil {
		return err
	}
	duty := pgpio.Duty(int64(pgpio.DutyMax) * int64(pulse) / int64(ServoPeriod))
	if err := r.servo.PWM(duty, 50*physic.Hertz); err != nil {
		return fmt.Errorf("set servo pwm: %w", err)
	}
	return nil
}

// SetFan drives the fan line high (on) or low (off).
func (r *RealActuator) SetFan(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.fan.SetValue(v); err != nil {
		return fmt.Errorf("set fan pin: %w", err)
	}
	return nil
}

// Close stops the servo pulse train and returns the fan pin to input with
// pull-down (matching Pi boot defaults), which leaves the fan off.
func (r *RealActuator) Close() error {
	var errs []error

	if r.servo != nil {
		if err := r.servo.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt servo: %w", err))
		}
	}
	if r.fan != nil {
		if err := r.fan.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("fan off: %w", err))
		}
		if err := r.fan.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure fan pin: %w", err))
		}
		if err := r.fan.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fan pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
