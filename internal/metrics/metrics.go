package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beliefnet_queries_enqueued_total",
		Help: "Total number of inference queries placed on the processing queue.",
	})

	QueriesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beliefnet_queries_processed_total",
		Help: "Total number of inference queries completed, labelled by algorithm and status.",
	}, []string{"algorithm", "status"})

	QueriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beliefnet_queries_dropped_total",
		Help: "Total number of queries rejected due to a full queue.",
	})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beliefnet_inference_duration_ms",
		Help:    "End-to-end inference latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	NetworkReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beliefnet_network_reloads_total",
		Help: "Total number of network definition hot reloads applied.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beliefnet_queue_utilization_ratio",
		Help: "Current query queue utilization (0–1).",
	})
)
