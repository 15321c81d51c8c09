package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fanoutRecordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Subsystem: "fanout",
		Name:      "records_written_total",
		Help:      "Number of activity records written by fan-out, per activity type.",
	}, []string{"activity_type"})

	fanoutFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Subsystem: "fanout",
		Name:      "failures_total",
		Help:      "Number of fan-out attempts that failed and were parked for retry.",
	}, []string{"event_type"})

	softDeletedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_service",
		Subsystem: "fanout",
		Name:      "records_soft_deleted_total",
		Help:      "Number of activity records soft-deleted, per activity type.",
	}, []string{"activity_type"})

	lastFanoutGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "feed_service",
		Subsystem: "fanout",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful fan-out write.",
	})

	feedReadCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feed_service",
		Subsystem: "reader",
		Name:      "feed_reads_total",
		Help:      "Number of feed read queries served.",
	})
)

func init() {
	prometheus.MustRegister(fanoutRecordsCounter, fanoutFailureCounter, softDeletedCounter, lastFanoutGauge, feedReadCounter)
}

// RecordFanout counts records written for one distributed event.
func RecordFanout(activityType string, written int) {
	if written <= 0 {
		return
	}
	fanoutRecordsCounter.WithLabelValues(activityType).Add(float64(written))
	lastFanoutGauge.Set(float64(time.Now().Unix()))
}

// RecordFanoutFailure counts a failed distribution attempt.
func RecordFanoutFailure(eventType string) {
	fanoutFailureCounter.WithLabelValues(eventType).Inc()
}

// RecordSoftDeleted counts records flipped to deleted for one target.
func RecordSoftDeleted(activityType string, n int64) {
	softDeletedCounter.WithLabelValues(activityType).Add(float64(n))
}

// RecordFeedRead counts one served feed query.
func RecordFeedRead() {
	feedReadCounter.Inc()
}
