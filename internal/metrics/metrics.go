package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTracked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinetrace_events_tracked_total",
		Help: "Total number of events accepted onto the queue, labelled by event name.",
	}, []string{"event_name"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinetrace_events_dropped_total",
		Help: "Total number of events discarded, labelled by reason.",
	}, []string{"reason"})

	EventsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinetrace_events_sent_total",
		Help: "Total number of events acknowledged by the ingestion endpoint.",
	})

	BatchesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinetrace_batches_sent_total",
		Help: "Total number of transport calls, labelled by outcome.",
	}, []string{"outcome"})

	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinetrace_retries_scheduled_total",
		Help: "Total number of backoff retries scheduled after retryable failures.",
	})

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dinetrace_send_duration_ms",
		Help:    "Transport call latency in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dinetrace_queue_depth",
		Help: "Current number of events waiting in the durable queue.",
	})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinetrace_storage_errors_total",
		Help: "Total number of durable store failures, labelled by operation.",
	}, []string{"op"})

	CollectorEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinetrace_collector_events_total",
		Help: "Total number of events received by the collector, labelled by status.",
	}, []string{"status"})

	CollectorRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dinetrace_collector_request_duration_ms",
		Help:    "Collector ingestion request latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
