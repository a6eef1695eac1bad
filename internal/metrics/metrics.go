package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pushesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painelzap_pushes_sent_total",
			Help: "Push messages accepted by a push service",
		},
	)

	pushesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painelzap_pushes_failed_total",
			Help: "Push deliveries that failed transiently",
		},
	)

	pushesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painelzap_pushes_pruned_total",
			Help: "Subscriptions deleted after a 404/410 from the push service",
		},
	)

	scansRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painelzap_scans_total",
			Help: "Expiration scans executed by scanner name",
		},
		[]string{"scanner"},
	)

	notificationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painelzap_notifications_fired_total",
			Help: "Notifications dispatched by scanner and tier class",
		},
		[]string{"scanner", "tier"},
	)

	outboxSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painelzap_outbox_synced_total",
			Help: "Outbox items synced by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordPushSent()   { pushesSent.Inc() }
func RecordPushFailed() { pushesFailed.Inc() }
func RecordPushPruned() { pushesPruned.Inc() }

func RecordScan(scanner string) {
	scansRun.WithLabelValues(scanner).Inc()
}

func RecordNotification(scanner, tier string) {
	notificationsFired.WithLabelValues(scanner, tier).Inc()
}

func RecordOutboxItem(queue, outcome string) {
	outboxSynced.WithLabelValues(queue, outcome).Inc()
}
