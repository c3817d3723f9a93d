// Package gpio drives the greenhouse actuators with hardware abstraction.
// The real implementation drives the fan switch through the Linux GPIO
// character device and the hatch servo through a PWM-capable header pin.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// Actuator drives the hatch and the fan.
type Actuator interface {
	// SetHatchPosition moves the hatch servo to a logical position (0..100).
	// It does not wait for the servo to arrive.
	SetHatchPosition(pos int) error

	// SetFan switches the fan output.
	SetFan(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Pin defaults (BCM numbering). GPIO18 carries hardware PWM0.
const (
	DefaultPinFan   = 23
	DefaultPinServo = "GPIO18"
)

// Servo timing for a standard hobby servo.
const (
	ServoPeriod          = 20 * time.Millisecond
	DefaultServoMinPulse = 1000 * time.Microsecond
	DefaultServoMaxPulse = 2000 * time.Microsecond
)

// ServoPulse maps a logical position onto a pulse width between min (0) and max (100).
func ServoPulse(pos int, min, max time.Duration) (time.Duration, error) {
	if pos < 0 || pos > 100 {
		return 0, fmt.Errorf("hatch position %d out of range 0..100", pos)
	}
	return min + (max-min)*time.Duration(pos)/100, nil
}

// Outcome reports what Execute actually drove.
type Outcome struct {
	FanSet bool // a fan action succeeded
	Fan    bool // level of the last successful fan action
}

// Execute performs the plan's actions in order, waiting each action's settle
// time with sleep. The wait is not cancellable. Actuator errors are logged
// and execution continues; the count of failed actions is returned as an error.
func Execute(a Actuator, plan logic.Plan, sleep func(time.Duration)) (Outcome, error) {
	if plan.Transition != logic.TransitionNone {
		log.Infof("Going from %d to %d", plan.From, plan.To)
	}

	var out Outcome
	failed := 0
	var first error
	for _, act := range plan.Actions {
		var err error
		switch act.Kind {
		case logic.ActionPosition:
			err = a.SetHatchPosition(act.Position)
		case logic.ActionFan:
			if act.Fan {
				log.Info("Turning on fan")
			} else {
				log.Info("Turning off fan")
			}
			err = a.SetFan(act.Fan)
			if err == nil {
				out.FanSet, out.Fan = true, act.Fan
			}
		}
		if err != nil {
			failed++
			if first == nil {
				first = err
			}
			log.Warnf("actuator error: %v", err)
		}
		if act.Settle > 0 {
			sleep(act.Settle)
		}
	}

	if failed > 0 {
		return out, fmt.Errorf("%d of %d actions failed, first: %w", failed, len(plan.Actions), first)
	}
	return out, nil
}
