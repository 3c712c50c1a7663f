package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	errs "invoicescraper/pkg/errors"
	"invoicescraper/pkg/logger"
)

// Outcome labels for amounts and shipments
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeScraped  = "scraped"
	OutcomeSkipped  = "skipped"
)

// Collector records extraction metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	amountsTotal     *prometheus.CounterVec
	shipmentsTotal   *prometheus.CounterVec
	strategyMatches  *prometheus.CounterVec
	agentCallSeconds *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec

	logger logger.Logger
}

// NewCollector creates a collector. A nil registry gets a fresh one.
func NewCollector(namespace string, reg *prometheus.Registry, log logger.Logger) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   log.WithField("component", "metrics"),
	}

	c.amountsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amounts_total",
			Help:      "Processed amounts by outcome",
		},
		[]string{"outcome"},
	)

	c.shipmentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipments_total",
			Help:      "Shipment cycles by outcome",
		},
		[]string{"outcome"},
	)

	c.strategyMatches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_matches_total",
			Help:      "Winning cascade strategies",
		},
		[]string{"operation", "strategy"},
	)

	c.agentCallSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_call_duration_seconds",
			Help:      "Agent request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"action", "status"},
	)

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Driver state transitions",
		},
		[]string{"from", "to"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by terminal state",
		},
		[]string{"state"},
	)

	return c
}

// Registry returns the registry the collector writes to
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAmount counts a finalized amount
func (c *Collector) RecordAmount(outcome string) {
	c.amountsTotal.WithLabelValues(outcome).Inc()
}

// RecordShipment counts a shipment cycle
func (c *Collector) RecordShipment(outcome string) {
	c.shipmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordStateTransition counts a driver state change
func (c *Collector) RecordStateTransition(from, to string) {
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordRun counts a finished run
func (c *Collector) RecordRun(state string) {
	c.runsTotal.WithLabelValues(state).Inc()
}

// ObserveStrategy counts the strategy that won a cascade
func (c *Collector) ObserveStrategy(operation, strategy string) {
	c.strategyMatches.WithLabelValues(operation, strategy).Inc()
}

// ObserveAgentCall records one agent request
func (c *Collector) ObserveAgentCall(action string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = string(errs.TypeOf(err))
	}
	c.agentCallSeconds.WithLabelValues(action, status).Observe(d.Seconds())
}

// Serve exposes the metrics endpoint until the server is shut down
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.WithError(err).Error("Metrics endpoint stopped")
		}
	}()
	c.logger.InfoWithFields("Metrics endpoint listening", map[string]interface{}{"addr": addr})
	return srv
}
