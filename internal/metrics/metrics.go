// Package metrics exposes Prometheus collectors for the refresh loop.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unklstewy/adsb-closest/pkg/closest"
)

const namespace = "adsb_closest"

// Collector holds the loop and enrichment metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles             *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	ClosestDistance    prometheus.Gauge
	TrackedAircraft    prometheus.Gauge
	PositionedAircraft prometheus.Gauge
	Enrichments        *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a private registry.
// Registering twice against the same registry reuses the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Refresh cycles by outcome and error kind.",
	}, []string{"outcome", "kind"}), "cycles_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Time spent fetching and selecting in one refresh cycle.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}), "cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	distance, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "distance_km",
		Help:      "Distance to the closest aircraft from the last successful cycle.",
	}), "distance_km")
	if err != nil {
		return nil, err
	}

	tracked, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "aircraft_tracked",
		Help:      "Aircraft in the last snapshot.",
	}), "aircraft_tracked")
	if err != nil {
		return nil, err
	}

	positioned, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "aircraft_positioned",
		Help:      "Aircraft in the last snapshot with usable coordinates.",
	}), "aircraft_positioned")
	if err != nil {
		return nil, err
	}

	enrichments, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_total",
		Help:      "Route annotations attached to the selected aircraft, by source.",
	}, []string{"source"}), "enrichment_total")
	if err != nil {
		return nil, err
	}

	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	return &Collector{
		gatherer:           gatherer,
		Cycles:             cycles,
		CycleDuration:      duration,
		ClosestDistance:    distance,
		TrackedAircraft:    tracked,
		PositionedAircraft: positioned,
		Enrichments:        enrichments,
	}, nil
}

// ObserveCycle records one completed refresh cycle.
func (c *Collector) ObserveCycle(res closest.Result, elapsed time.Duration) {
	if c == nil {
		return
	}

	kind := ""
	if res.Failure != nil {
		kind = string(res.Failure.Kind)
	}
	c.Cycles.WithLabelValues(res.Outcome.String(), kind).Inc()
	c.CycleDuration.Observe(elapsed.Seconds())

	switch res.Outcome {
	case closest.OutcomeFound:
		if res.Aircraft != nil && res.Aircraft.DistanceKm != nil {
			c.ClosestDistance.Set(*res.Aircraft.DistanceKm)
		}
		fallthrough
	case closest.OutcomeNone:
		c.TrackedAircraft.Set(float64(res.Tracked))
		c.PositionedAircraft.Set(float64(res.Positioned))
	}
}

// ObserveEnrichment counts an annotation from source.
func (c *Collector) ObserveEnrichment(source string) {
	if c == nil || source == "" {
		return
	}
	c.Enrichments.WithLabelValues(source).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
