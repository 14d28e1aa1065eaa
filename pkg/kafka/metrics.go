package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_published_total",
			Help: "Kafka messages written, by topic and event type",
		},
		[]string{"topic", "event_type"},
	)

	publishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_publish_errors_total",
			Help: "Kafka writes that failed, by topic and event type",
		},
		[]string{"topic", "event_type"},
	)

	// Per topic only; event types on one topic share a latency profile.
	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Time spent in WriteMessages",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"topic"},
	)
)

func recordPublish(topic, eventType string, elapsed time.Duration, err error) {
	publishDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
	if err != nil {
		publishErrors.WithLabelValues(topic, eventType).Inc()
		return
	}
	publishedTotal.WithLabelValues(topic, eventType).Inc()
}
