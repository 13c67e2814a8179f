package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// SpikesTotal counts spike events entered on edges, labeled by side
	// (pre or post).
	SpikesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spikegrid_spikes_total",
			Help: "Total number of spike events entered on synapses",
		},
		[]string{"side"},
	)

	// QueueOverrunsTotal counts rejected spike entries whose target delay slot
	// was already occupied. A nonzero rate means the firing rate exceeds what
	// one in-flight event per delay window can carry.
	QueueOverrunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spikegrid_queue_overruns_total",
			Help: "Total number of spike entries rejected because the delay slot was occupied",
		},
	)

	// StepDuration measures wall time per simulation step, labeled by the
	// execution path that ran it.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "spikegrid_step_duration_seconds",
			Help: "Duration of simulation steps in seconds",
			// Buckets from microseconds (small sequential nets) to seconds (large parallel ones)
			Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"path"},
	)

	// LiveSynapses tracks the number of live edges in the store.
	LiveSynapses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spikegrid_live_synapses",
			Help: "Current number of live synapses",
		},
	)

	// CheckpointsTotal counts completed checkpoints, labeled by trigger
	// (manual or auto).
	CheckpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spikegrid_checkpoints_total",
			Help: "Total number of checkpoints written",
		},
		[]string{"trigger"},
	)
)
