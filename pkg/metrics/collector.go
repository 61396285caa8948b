package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsCollected tracks outbox rows turned into broker messages
	// status: sent, rejected, ghost, error
	EventsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_collector_events_total",
		Help: "Total number of outbox rows processed by the collector",
	}, []string{"status", "table"})

	// FieldsDecoded counts text values run through the mixed decoder
	// result: unchanged (already clean UTF-8/ASCII), repaired, invalid, binary (skipped)
	FieldsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_fields_decoded_total",
		Help: "Text values decoded from mixed Windows-1252/UTF-8",
	}, []string{"result", "table"})

	// InvalidLegacyValues counts text values holding a byte undefined in Windows-1252,
	// by the policy that handled them
	InvalidLegacyValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_invalid_legacy_values_total",
		Help: "Text values containing bytes that are neither valid UTF-8 nor defined in Windows-1252",
	}, []string{"policy"})

	// DecodedBytes observes the size of each decoded value
	DecodedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "textmend_decoded_value_bytes",
		Help:    "Size in bytes of text values passed to the decoder",
		Buckets: prometheus.ExponentialBuckets(8, 4, 8),
	})

	// BatchDuration measures how long it takes to process an entire outbox batch
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "textmend_collector_batch_duration_seconds",
		Help:    "Duration of collector batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// HealthStatus is 1 while the broker link is up, 0 otherwise
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "textmend_broker_healthy",
		Help: "Current broker link health (1 for healthy, 0 for unhealthy)",
	})

	// BrokerReconnections counts how many times a service had to restore the broker link
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textmend_broker_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})
)
