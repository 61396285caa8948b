package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SinkDuration tracks the latency of applying one message to Postgres
	SinkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "textmend_sink_processing_duration_seconds",
		Help:    "Time taken to process a message from reception to Postgres commit",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"status", "kind"}) // status: success, fatal, transient

	// SinkMessages tracks the throughput and result of message consumption
	SinkMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_sink_messages_total",
		Help: "Total number of messages processed by the sink",
	}, []string{"status", "kind"})

	// SinkRetries tracks internal retries triggered by serialization failures or deadlocks
	SinkRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textmend_sink_retries_total",
		Help: "Number of internal retries triggered by Postgres serialization failures",
	})
)
