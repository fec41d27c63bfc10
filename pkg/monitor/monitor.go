package monitor

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Registry holds every metric of this module. A private registry keeps
	// Push from shipping Go runtime collectors to the gateway.
	Registry = prometheus.NewRegistry()

	// LedgerQueriesTotal counts ledger requests by method and outcome.
	LedgerQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nonce_ledger_queries_total",
			Help: "Total number of ledger queries.",
		},
		[]string{"method", "status"},
	)

	// LedgerQueryDuration records round-trip latency of ledger requests.
	LedgerQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nonce_ledger_query_duration_seconds",
			Help:    "Ledger query latency distributions.",
			Buckets: []float64{0.05, 0.1, 0.3, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method"},
	)

	// ProvisionTotal counts nonce account provisioning attempts.
	// status: cached, created, adopted, failed
	ProvisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nonce_provision_total",
			Help: "Total number of nonce account provisioning calls.",
		},
		[]string{"status"},
	)

	// DurableTxTotal counts durable-nonce transactions by outcome.
	// status: confirmed, stale, failed, missing_nonce, query_failed
	DurableTxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nonce_durable_tx_total",
			Help: "Total number of durable-nonce transactions.",
		},
		[]string{"status"},
	)

	// ConfirmDuration records submit-to-confirmation latency.
	ConfirmDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nonce_confirm_duration_seconds",
			Help:    "Time from submission to confirmation.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

func init() {
	Registry.MustRegister(
		LedgerQueriesTotal,
		LedgerQueryDuration,
		ProvisionTotal,
		DurableTxTotal,
		ConfirmDuration,
	)
}

// ObserveQuery records one ledger request.
func ObserveQuery(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LedgerQueriesTotal.WithLabelValues(method, status).Inc()
	LedgerQueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Push sends the current metric values to a Prometheus Pushgateway.
// The CLI is short-lived, so there is nothing for Prometheus to scrape.
func Push(gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(Registry).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
