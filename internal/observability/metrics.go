// Package observability exposes the scheduler's Prometheus metrics as
// promauto-registered package vars, covering queue depth, batch
// composition, coalescing, and store latency.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of pending tasks per index.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "searchcore_scheduler_queue_depth",
		Help: "Number of pending tasks currently queued, by index",
	}, []string{"index_uid"})

	// BatchSize tracks how many tasks land in each assembled batch.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "searchcore_scheduler_batch_size",
		Help:    "Number of tasks coalesced into each batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// BatchDocuments tracks the summed document count per batch.
	BatchDocuments = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "searchcore_scheduler_batch_documents",
		Help:    "Summed document count of document-addition/update batches",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})

	// BatchesTotal counts assembled batches by the task variant they
	// coalesced (document_addition, documents_update, other).
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchcore_scheduler_batches_total",
		Help: "Total batches assembled, by coalesced task variant",
	}, []string{"variant"})

	// JobsTotal counts jobs handed to the performer.
	JobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchcore_scheduler_jobs_total",
		Help: "Total jobs dispatched to the performer",
	})

	// PrepareDuration tracks the wall time of one Prepare() call,
	// including any store I/O it performs.
	PrepareDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "searchcore_scheduler_prepare_duration_seconds",
		Help:    "Duration of one Scheduler.Prepare call",
		Buckets: prometheus.DefBuckets,
	})

	// StoreLatency tracks the duration of calls into the durable task
	// store, by backend and operation.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "searchcore_store_latency_seconds",
		Help:    "Latency of task store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})

	// CorruptInvariants counts invariant violations captured by the
	// incident package.
	CorruptInvariants = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchcore_scheduler_corrupt_invariants_total",
		Help: "Total CorruptInvariant occurrences captured",
	})

	// LeaderStatus is 1 while this process holds the scheduler lease,
	// 0 otherwise.
	LeaderStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "searchcore_scheduler_leader",
		Help: "1 if this process currently owns the scheduler lease",
	})

	// LeadershipTransitions counts leadership acquisition/loss events.
	LeadershipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchcore_scheduler_leader_transitions_total",
		Help: "Total leadership transitions",
	}, []string{"node_id", "event"})
)
