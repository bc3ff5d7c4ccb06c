package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "launchpad",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// SaleMetrics captures fundraising activity across deployed sales.
type SaleMetrics struct {
	salesCreated  *prometheus.CounterVec
	contributions *prometheus.CounterVec
	withdrawals   *prometheus.CounterVec
	finalized     prometheus.Counter
	raised        *prometheus.GaugeVec
}

// Sales returns the lazily-initialised sale metrics registry.
func Sales() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			salesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "sale",
				Name:      "created_total",
				Help:      "Count of deployed sale instances by variant.",
			}, []string{"variant"}),
			contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "sale",
				Name:      "contributions_total",
				Help:      "Count of accepted contributions by token.",
			}, []string{"token"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "sale",
				Name:      "withdrawals_total",
				Help:      "Count of token withdrawals by kind (full or vested).",
			}, []string{"kind"}),
			finalized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "sale",
				Name:      "finalized_total",
				Help:      "Count of finalized sales.",
			}),
			raised: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "launchpad",
				Subsystem: "sale",
				Name:      "raised",
				Help:      "Base currency raised per sale address.",
			}, []string{"sale"}),
		}
		prometheus.MustRegister(
			saleRegistry.salesCreated,
			saleRegistry.contributions,
			saleRegistry.withdrawals,
			saleRegistry.finalized,
			saleRegistry.raised,
		)
	})
	return saleRegistry
}

// ObserveSaleCreated increments the deployment counter for the sale variant.
func (m *SaleMetrics) ObserveSaleCreated(vesting bool) {
	if m == nil {
		return
	}
	variant := "regular"
	if vesting {
		variant = "vesting"
	}
	m.salesCreated.WithLabelValues(variant).Inc()
}

// ObserveContribution records an accepted contribution and the sale's updated
// raised total.
func (m *SaleMetrics) ObserveContribution(token, saleAddr string, raised float64) {
	if m == nil {
		return
	}
	if token == "" {
		token = "unknown"
	}
	m.contributions.WithLabelValues(token).Inc()
	if saleAddr != "" {
		m.raised.WithLabelValues(saleAddr).Set(raised)
	}
}

// ObserveWithdrawal records a completed withdrawal of the given kind.
func (m *SaleMetrics) ObserveWithdrawal(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.withdrawals.WithLabelValues(kind).Inc()
}

// ObserveFinalized increments the finalization counter.
func (m *SaleMetrics) ObserveFinalized() {
	if m == nil {
		return
	}
	m.finalized.Inc()
}
