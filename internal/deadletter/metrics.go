package deadletter

import "github.com/prometheus/client_golang/prometheus"

var (
	retriedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Subsystem: "deadletter",
		Name:      "retries_total",
		Help:      "Number of dead-letter retry attempts by outcome.",
	}, []string{"event_type", "outcome"})

	quarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Subsystem: "deadletter",
		Name:      "quarantined_total",
		Help:      "Number of entries quarantined after exhausting retries.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(retriedCounter, quarantinedCounter)
}

func recordRetried(eventType, outcome string) {
	retriedCounter.WithLabelValues(eventType, outcome).Inc()
}

func recordQuarantined(eventType string) {
	quarantinedCounter.WithLabelValues(eventType).Inc()
}
