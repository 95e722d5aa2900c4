// Package monitoring exposes Prometheus metrics for the ticketing core.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_cart_operations_total",
			Help: "Cart creations by outcome",
		},
		[]string{"status"},
	)

	checkoutSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_checkout_sessions_total",
			Help: "Payment sessions created",
		},
	)

	webhookResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_webhook_resolutions_total",
			Help: "Checkout session resolutions by outcome (created, replay, error)",
		},
		[]string{"status"},
	)

	refunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_refunds_total",
			Help: "Refund attempts by outcome",
		},
		[]string{"status"},
	)

	transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_transfers_total",
			Help: "Ticket transfer operations by stage",
		},
		[]string{"stage"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boxoffice_reconcile_duration_seconds",
			Help:    "Duration of checkout session reconciliation",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)
)

func TrackCartOperation(status string) {
	cartOperations.WithLabelValues(status).Inc()
}

func TrackCheckoutSession() {
	checkoutSessions.Inc()
}

func TrackWebhookResolution(status string) {
	webhookResolutions.WithLabelValues(status).Inc()
}

func TrackRefund(status string) {
	refunds.WithLabelValues(status).Inc()
}

func TrackTransfer(stage string) {
	transfers.WithLabelValues(stage).Inc()
}

func TrackReconcileDuration(d time.Duration) {
	reconcileDuration.Observe(d.Seconds())
}
