// Package metrics exports controller state and activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

const namespace = "greenhouse"

// Recorder owns a private registry so tests and multiple instances never
// collide on the global one.
type Recorder struct {
	reg *prometheus.Registry

	temperature *prometheus.GaugeVec
	humidity    prometheus.Gauge
	light       prometheus.Gauge
	heatIndexF  prometheus.Gauge
	hatchPos    prometheus.Gauge
	hatchOpen   prometheus.Gauge
	fanOn       prometheus.Gauge
	mqttUp      prometheus.Gauge

	cycles         prometheus.Counter
	sensorFailures prometheus.Counter
	transitions    *prometheus.CounterVec
	publishErrors  prometheus.Counter
	commands       *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		temperature: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature",
			Help:      "Last valid air temperature reading",
		}, []string{"unit"}),
		humidity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last valid relative humidity reading",
		}),
		light: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "light_level",
			Help:      "Last scaled light level",
		}),
		heatIndexF: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heat_index_fahrenheit",
			Help:      "Last computed heat index",
		}),
		hatchPos: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hatch",
			Name:      "position",
			Help:      "Commanded hatch position (0-100)",
		}),
		hatchOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hatch",
			Name:      "open",
			Help:      "1 when the hatch is open",
		}),
		fanOn: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fan",
			Name:      "on",
			Help:      "1 when the fan output is driven on",
		}),
		mqttUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 when the broker connection is open",
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control cycles run",
		}),
		sensorFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_failures_total",
			Help:      "Cycles skipped because of an invalid sample",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hatch",
			Name:      "transitions_total",
			Help:      "Hatch transitions by direction",
		}, []string{"direction"}),
		publishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publish_errors_total",
			Help:      "Failed telemetry publishes",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "commands_total",
			Help:      "Remote commands dispatched, by feed",
		}, []string{"feed"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time from acquisition to the end of publishing, ramps included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 2.5, 5},
		}),
	}
}

// ObserveSample records a valid sample's values.
func (r *Recorder) ObserveSample(s logic.Sample) {
	r.temperature.WithLabelValues("fahrenheit").Set(s.TempF)
	r.temperature.WithLabelValues("celsius").Set(s.TempC)
	r.humidity.Set(s.Humidity)
	r.light.Set(float64(s.LightScaled()))
	r.heatIndexF.Set(s.HeatIndexF)
}

// ObserveCycle records one completed cycle.
func (r *Recorder) ObserveCycle(st logic.State, fanOn bool, plan logic.Plan, failed bool, d time.Duration) {
	r.cycles.Inc()
	if failed {
		r.sensorFailures.Inc()
	}
	if plan.Transition != logic.TransitionNone {
		r.transitions.WithLabelValues(string(plan.Transition)).Inc()
	}
	r.hatchPos.Set(float64(st.HatchPosition))
	r.hatchOpen.Set(boolFloat(st.HatchOpen))
	r.fanOn.Set(boolFloat(fanOn))
	r.cycleDuration.Observe(d.Seconds())
}

// PublishError counts a failed publish.
func (r *Recorder) PublishError() {
	r.publishErrors.Inc()
}

// Command counts a dispatched remote command.
func (r *Recorder) Command(feed string) {
	r.commands.WithLabelValues(feed).Inc()
}

// SetConnected records the broker connection state.
func (r *Recorder) SetConnected(up bool) {
	r.mqttUp.Set(boolFloat(up))
}

// Registry exposes the private registry (for tests and extra collectors).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
