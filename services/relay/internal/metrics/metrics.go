package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/scheduler"
)

// Collector bundles the relay's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles          *prometheus.CounterVec
	AircraftSeen    prometheus.Counter
	AircraftSkipped prometheus.Counter
	MessagesSent    *prometheus.CounterVec
	BytesSent       *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	CycleDuration   prometheus.Histogram
	LastCycle       prometheus.Gauge
	TracksInCycle   prometheus.Gauge
}

// NewCollector registers the relay metrics against reg, defaulting to the
// global registry when nil. Registering twice returns the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_cycles_total",
		Help: "Poll cycles run, labeled by outcome (ok, fetch_error, send_error).",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.AircraftSeen, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_aircraft_received_total",
		Help: "Aircraft records received from the feed.",
	})); err != nil {
		return nil, err
	}
	if c.AircraftSkipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_aircraft_skipped_total",
		Help: "Aircraft records dropped for lack of an emitter category.",
	})); err != nil {
		return nil, err
	}
	if c.MessagesSent, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_sent_total",
		Help: "CoT events written to the transport, labeled by mode.",
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	if c.BytesSent, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bytes_sent_total",
		Help: "CoT bytes written to the transport, labeled by mode.",
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	if c.FetchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_fetch_duration_seconds",
		Help:    "Feed request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})); err != nil {
		return nil, err
	}
	if c.CycleDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_cycle_duration_seconds",
		Help:    "Full fetch, build and send cycle latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})); err != nil {
		return nil, err
	}
	if c.LastCycle, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_last_cycle_timestamp_seconds",
		Help: "Unix time the last cycle finished.",
	})); err != nil {
		return nil, err
	}
	if c.TracksInCycle, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_cycle_tracks",
		Help: "Events sent in the last completed cycle.",
	})); err != nil {
		return nil, err
	}

	return c, nil
}

// ObserveCycle records one scheduler cycle.
func (c *Collector) ObserveCycle(r scheduler.CycleResult) {
	if c == nil {
		return
	}

	c.Cycles.WithLabelValues(r.Outcome()).Inc()
	c.AircraftSeen.Add(float64(r.Received))
	c.AircraftSkipped.Add(float64(r.Skipped))
	if r.Sent > 0 {
		c.MessagesSent.WithLabelValues(r.Mode).Add(float64(r.Sent))
		c.BytesSent.WithLabelValues(r.Mode).Add(float64(r.Bytes))
	}
	if r.FetchDuration > 0 {
		c.FetchDuration.Observe(r.FetchDuration.Seconds())
	}
	c.CycleDuration.Observe(r.Duration.Seconds())
	c.LastCycle.Set(float64(r.Started.Add(r.Duration).Unix()))
	if r.Err == nil {
		c.TracksInCycle.Set(float64(r.Sent))
	}
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var zero T
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return zero, err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return existing, nil
	}
	return col, nil
}
