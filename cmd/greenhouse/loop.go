package main

import (
	"os"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/gpio"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/metrics"
	"github.com/sweeney/greenhouse-controller/internal/mqtt"
	"github.com/sweeney/greenhouse-controller/internal/sensor"
	"github.com/sweeney/greenhouse-controller/internal/status"
)

// loopConfig holds the driver policy that sits outside the pure controller.
type loopConfig struct {
	Heartbeat        time.Duration
	FailSafeAfter    int // consecutive invalid samples; 0 disables
	HonorFanOverride bool
}

// loop owns the control state and drives one cycle at a time. Everything
// here runs on the control goroutine.
type loop struct {
	ctrl    *logic.Controller
	reader  sensor.Reader
	act     gpio.Actuator
	client  mqtt.Client
	conn    mqtt.ConnectionStatus // optional
	latch   *mqtt.CommandLatch
	tracker *status.Tracker   // optional
	metrics *metrics.Recorder // optional
	cfg     loopConfig

	now   func() time.Time
	sleep func(time.Duration)

	heartbeat  *logic.Heartbeat
	state      logic.State
	fanOut     bool // actual fan line level
	counter    int
	counts     logic.Counts
	failStreak int
}

func newLoop(ctrl *logic.Controller, reader sensor.Reader, act gpio.Actuator, client mqtt.Client,
	tracker *status.Tracker, rec *metrics.Recorder, cfg loopConfig, now func() time.Time, sleep func(time.Duration)) *loop {

	l := &loop{
		ctrl:      ctrl,
		reader:    reader,
		act:       act,
		client:    client,
		latch:     mqtt.NewCommandLatch(),
		tracker:   tracker,
		metrics:   rec,
		cfg:       cfg,
		now:       now,
		sleep:     sleep,
		heartbeat: logic.NewHeartbeat(cfg.Heartbeat, now()),
		state:     ctrl.Initial(),
	}
	if cs, ok := client.(mqtt.ConnectionStatus); ok {
		l.conn = cs
	}

	l.latch.Attach(client)
	if rec != nil {
		count := func(m mqtt.Message) { rec.Command(m.Feed) }
		mqtt.NewFeed(client, mqtt.FeedFan).OnMessage(count)
		mqtt.NewFeed(client, mqtt.FeedHatch).OnMessage(count)
	}
	return l
}

// home drives the actuators to the initial state before the first cycle.
func (l *loop) home() {
	log.Infof("homing hatch to %d", l.state.HatchPosition)
	out, err := gpio.Execute(l.act, l.ctrl.HomePlan(), l.sleep)
	if err != nil {
		log.Warnf("homing: %v", err)
	}
	if out.FanSet {
		l.fanOut = out.Fan
	}
	if l.tracker != nil {
		l.tracker.SetState(l.state, l.fanOut)
	}
}

// cycle runs pump → acquire → step → execute → publish once.
func (l *loop) cycle() {
	start := l.now()

	l.client.Pump()
	ov := l.latch.Snapshot()

	sample := sensor.Acquire(l.reader)
	next, plan, batch := l.ctrl.Step(l.state, sample)

	failed := batch.Marker != ""
	if failed {
		log.Warn("Failed to read from DHT sensor!")
		l.counts.SensorFailures++
		l.failStreak++
		if l.cfg.FailSafeAfter > 0 && l.failStreak >= l.cfg.FailSafeAfter && l.state.HatchOpen {
			log.Warnf("fail-safe: %d consecutive sensor failures, closing hatch", l.failStreak)
			next, plan = l.ctrl.FailSafe(l.state)
		}
	} else {
		l.failStreak = 0
		logSample(sample, l.state)
	}

	// Resolved before the ramp; the plan's fan action follows it.
	fan := logic.ResolveFan(next, ov, l.cfg.HonorFanOverride)
	if !plan.Empty() {
		out, err := gpio.Execute(l.act, plan.WithFan(fan), l.sleep)
		if err != nil {
			log.Warnf("actuator: %v", err)
		}
		if out.FanSet {
			l.fanOut = out.Fan
		}
		l.counts.Record(plan.Transition)
	}
	l.state = next

	if fan != l.fanOut {
		log.Infof("fan: driving %v", fan)
		if err := l.act.SetFan(fan); err != nil {
			log.Warnf("actuator: set fan: %v", err)
		} else {
			l.fanOut = fan
		}
	}

	log.Infof("sending -> %d", l.counter)
	l.publish(logic.PointCounter, l.counter)
	l.counter++
	for _, p := range batch.Points {
		l.publish(p.Name, p.Value)
	}
	for _, p := range batch.Local {
		log.Debugf("local %s = %v", p.Name, p.Value)
	}

	l.counts.Cycles++
	l.report(sample, batch.Marker, plan, ov, start)
	l.checkHeartbeat()
}

func (l *loop) publish(feed string, value any) {
	if err := l.client.Publish(feed, value); err != nil {
		log.Warnf("publish %s: %v", feed, err)
		if l.metrics != nil {
			l.metrics.PublishError()
		}
	}
}

func (l *loop) report(sample logic.Sample, marker string, plan logic.Plan, ov logic.Override, start time.Time) {
	connected := l.conn != nil && l.conn.IsConnected()

	if l.metrics != nil {
		if marker == "" {
			l.metrics.ObserveSample(sample)
		}
		l.metrics.ObserveCycle(l.state, l.fanOut, plan, marker != "", l.now().Sub(start))
		l.metrics.SetConnected(connected)
	}

	if l.tracker != nil {
		l.tracker.SetMQTTConnected(connected)
		l.tracker.Record(status.Cycle{
			State:    l.state,
			FanOn:    l.fanOut,
			Counter:  l.counter - 1,
			Counts:   l.counts,
			Sample:   sample,
			Marker:   marker,
			Override: ov,
			At:       start,
		})
	}
}

func (l *loop) checkHeartbeat() {
	hb := l.heartbeat.Check(l.now(), l.counts)
	if hb == nil {
		return
	}
	log.Infof("heartbeat: uptime=%v opens=%d closes=%d sensor_failures=%d cycles=%d",
		hb.Uptime, hb.Counts.Opens, hb.Counts.Closes, hb.Counts.SensorFailures, hb.Counts.Cycles)

	event := mqtt.SystemEvent{
		Timestamp: hb.Timestamp,
		Event:     "HEARTBEAT",
	}
	if l.tracker != nil {
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			l.tracker.SetNetwork(net)
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.client.PublishSystem(event); err != nil {
		log.Warnf("heartbeat publish error: %v", err)
	}
}

// startup publishes the retained STARTUP event.
func (l *loop) startup() {
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "STARTUP",
		Retained:  true,
	}
	if l.tracker != nil {
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "STARTUP", "")
	}
	if err := l.client.PublishSystem(event); err != nil {
		log.Warnf("failed to publish startup event: %v", err)
	} else {
		log.Info("published startup event")
	}
}

// shutdown publishes the retained SHUTDOWN event. The hatch is left where it is.
func (l *loop) shutdown(s os.Signal) {
	log.Infof("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if l.tracker != nil {
		if l.conn != nil {
			l.tracker.SetMQTTConnected(l.conn.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", signalName)
	}
	if err := l.client.PublishSystem(event); err != nil {
		log.Warnf("failed to publish shutdown event: %v", err)
	} else {
		log.Info("published shutdown event")
	}
}

// runLoop runs a cycle each time wait fires until a signal arrives. Signals
// are only observed between cycles, so a ramp is never interrupted.
func runLoop(l *loop, wait func() <-chan time.Time, sig <-chan os.Signal) error {
	next := wait()
	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil
		case <-next:
			l.cycle()
			next = wait()
		}
	}
}

func logSample(s logic.Sample, st logic.State) {
	log.WithFields(log.Fields{
		"humidity":      s.Humidity,
		"temperature_c": s.TempC,
		"temperature_f": s.TempF,
		"heat_index_c":  s.HeatIndexC,
		"heat_index_f":  s.HeatIndexF,
		"light":         s.LightScaled(),
		"hatch_open":    st.HatchOpen,
	}).Info("sample")
}
