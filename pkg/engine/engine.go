// Package engine provides the high-level, embedded interface for SpikeGrid.
//
// It orchestrates the in-memory synapse state (Core) and the on-disk
// persistence layer (checkpoint/spike log), providing a thread-safe
// simulation instance that can be used directly within Go applications.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	sim, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sanonone/spikegrid/pkg/core"
	"github.com/sanonone/spikegrid/pkg/core/kernel"
	"github.com/sanonone/spikegrid/pkg/metrics"
	"github.com/sanonone/spikegrid/pkg/persistence"
)

// Options configures the behavior of the Engine, including network dimensions,
// persistence paths and automatic checkpoint policies.
type Options struct {
	// DataDir is the directory where checkpoint and spike-log files are
	// stored. It is created automatically if it does not exist.
	DataDir string

	// CheckpointFilename is the name of the checkpoint file
	// (default: "spikegrid.ckpt").
	CheckpointFilename string

	// SpikeLogFilename is the name of the spike event log
	// (default: "spikegrid.spk").
	SpikeLogFilename string

	// AutoCheckpointInterval defines how much time must pass since the last
	// checkpoint before a new one is triggered (if AutoCheckpointThreshold is
	// also met). Set to 0 to disable time-based auto-checkpointing.
	AutoCheckpointInterval time.Duration

	// AutoCheckpointThreshold defines how many simulation steps must run
	// before a new checkpoint is triggered (if AutoCheckpointInterval is also
	// met). Set to 0 to disable step-based auto-checkpointing.
	AutoCheckpointThreshold int64

	// Model selects the synapse behavior set resolved at Open time.
	Model core.Model

	// Workers is the number of shards the per-step update runs across.
	// 0 or 1 selects the sequential path.
	Workers int

	// NumNeurons is the node count of the network.
	NumNeurons int

	// MaxSynapsesPerNeuron caps outgoing edges per node and fixes the
	// flat-array geometry of the store.
	MaxSynapsesPerNeuron int

	// QueueLength is the delay-queue ring length in steps (max 32).
	QueueLength int

	// DeltaT is the simulation time step in seconds.
	DeltaT float64
}

// DefaultOptions returns a standard configuration suitable for most use cases.
//
// Defaults:
//   - DataDir: provided path
//   - CheckpointFilename: "spikegrid.ckpt"
//   - AutoCheckpoint: every 60s if at least 1000 steps ran
//   - Model: spiking, sequential execution
//   - DeltaT: 0.1ms, queue length 32
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:                 dataDir,
		CheckpointFilename:      "spikegrid.ckpt",
		SpikeLogFilename:        "spikegrid.spk",
		AutoCheckpointInterval:  60 * time.Second,
		AutoCheckpointThreshold: 1000,
		Model:                   core.ModelSpiking,
		Workers:                 1,
		NumNeurons:              100,
		MaxSynapsesPerNeuron:    100,
		QueueLength:             core.MaxQueueLength,
		DeltaT:                  1e-4,
	}
}

// Engine is the main entry point for SpikeGrid.
// It coordinates the in-memory synapse store and the on-disk persistence.
//
// Use Open() to initialize an Engine and Close() to shut it down gracefully.
type Engine struct {
	// Syn is the underlying flat-array synapse store. While exported, it is
	// recommended to use Engine methods (e.g., AddSynapse, FireNeuron) so
	// that operations are correctly logged and counted.
	Syn *core.Synapses

	// SpikeLog records spike events using lazy batching: events are buffered
	// and flushed periodically (every 100ms or 4096 events) with a forced
	// fsync every second, so a crash loses at most ~1 second of events.
	SpikeLog *persistence.LazySpikeLogWriter

	opts     Options
	kern     kernel.Kernel
	ckptPath string
	runID    string

	step       uint64
	stepsSince int64
	lastSave   time.Time

	// mu serializes simulation steps and structural changes against each
	// other. FireNeuron takes it too: spike entry mutates queue words the
	// steppers read.
	mu sync.Mutex

	// adminMu serializes administrative tasks (checkpointing).
	adminMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes a new Engine instance using the provided options.
//
// It performs the following actions:
// 1. Creates DataDir if missing.
// 2. Sets up the synapse store and resolves the model's kernel.
// 3. Restores the latest checkpoint (.ckpt) if available.
// 4. Opens the spike log and starts the auto-checkpoint goroutine.
//
// This method blocks until the simulation is fully loaded and ready.
func Open(opts Options) (*Engine, error) {
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if opts.DeltaT <= 0 {
		return nil, fmt.Errorf("engine: deltaT must be positive, got %g", opts.DeltaT)
	}

	syn, err := core.Setup(core.Config{
		NumNeurons:           opts.NumNeurons,
		MaxSynapsesPerNeuron: opts.MaxSynapsesPerNeuron,
		QueueLength:          opts.QueueLength,
	})
	if err != nil {
		return nil, err
	}

	// An unresolvable model is a configuration error; failing here keeps the
	// steppers free of per-call checks.
	kern, err := kernel.Resolve(opts.Model)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Syn:      syn,
		opts:     opts,
		kern:     kern,
		ckptPath: filepath.Join(opts.DataDir, opts.CheckpointFilename),
		runID:    uuid.NewString(),
		lastSave: time.Now(),
		closed:   make(chan struct{}),
	}

	// 1. Restore checkpoint if one exists
	if persistence.CheckpointExists(e.ckptPath) {
		if err := e.restoreCheckpoint(); err != nil {
			return nil, err
		}
	}

	// 2. Open the spike log with lazy batching
	spikePath := filepath.Join(opts.DataDir, opts.SpikeLogFilename)
	slw, err := persistence.NewSpikeLogWriter(spikePath)
	if err != nil {
		return nil, err
	}
	e.SpikeLog = persistence.NewLazySpikeLogWriter(slw)

	metrics.LiveSynapses.Set(float64(syn.LiveCount()))

	// 3. Start background tasks
	e.wg.Add(1)
	go e.backgroundTasks()

	slog.Info("Engine opened",
		"run_id", e.runID,
		"model", opts.Model.String(),
		"neurons", opts.NumNeurons,
		"capacity", syn.Capacity(),
		"live", syn.LiveCount(),
		"step", e.Step(),
		"workers", e.workers(),
	)
	return e, nil
}

// Close performs a clean shutdown of the Engine.
//
// It stops the background tasks, writes a final checkpoint so state survives
// the restart, and closes the spike log.
func (e *Engine) Close() error {
	var err error

	// Executes the block only once, even if called repeatedly
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()

		if ckErr := e.SaveCheckpoint(); ckErr != nil {
			err = ckErr
		}
		if e.SpikeLog != nil {
			if clErr := e.SpikeLog.Close(); err == nil {
				err = clErr
			}
		}
	})

	return err
}

// RunID returns the identifier of this simulation run. A run restored from a
// checkpoint keeps the identifier of the run that wrote it.
func (e *Engine) RunID() string { return e.runID }

// Step returns the current simulation step counter.
func (e *Engine) Step() uint64 { return atomic.LoadUint64(&e.step) }

// DeltaT returns the simulation time step in seconds.
func (e *Engine) DeltaT() float64 { return e.opts.DeltaT }

// Model returns the synapse model the engine was opened with.
func (e *Engine) Model() core.Model { return e.opts.Model }

// Summation returns the destination accumulator map. The caller owns the
// neuron side of the simulation and is expected to consume and clear it
// between steps.
func (e *Engine) Summation() []float64 { return e.Syn.Summation() }

// ResetSummation zeroes the destination accumulator map.
func (e *Engine) ResetSummation() {
	sum := e.Syn.Summation()
	for i := range sum {
		sum[i] = 0
	}
}

// AddSynapse creates an edge from src to dst with the type's default
// parameters and returns its slot index.
func (e *Engine) AddSynapse(src, dst int, typ core.SynapseType) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	iSyn, err := e.Syn.AddSynapse(src, dst, e.Syn.Summation(), e.opts.DeltaT, typ)
	if err != nil {
		return 0, err
	}
	metrics.LiveSynapses.Set(float64(e.Syn.LiveCount()))
	return iSyn, nil
}

// EraseSynapse removes a live edge.
func (e *Engine) EraseSynapse(iSyn int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.Syn.EraseSynapse(iSyn); err != nil {
		return err
	}
	metrics.LiveSynapses.Set(float64(e.Syn.LiveCount()))
	return nil
}

// FireNeuron enters a pre-side spike on every live outgoing edge of src and
// records the events in the spike log. Edges whose delay slot is already
// occupied are reported together after all others were entered; a partial
// failure does not withhold the spike from the remaining edges.
func (e *Engine) FireNeuron(src int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if src < 0 || src >= e.Syn.NumNeurons() {
		return fmt.Errorf("engine: neuron %d out of range [0,%d)", src, e.Syn.NumNeurons())
	}

	step := e.Step()
	var firstErr error
	for slot := 0; slot < e.Syn.MaxSynapsesPerNeuron(); slot++ {
		iSyn := e.Syn.Index(src, slot)
		if !e.Syn.InUse[iSyn] {
			continue
		}
		if err := e.kern.PreSpike(e.Syn, iSyn); err != nil {
			metrics.QueueOverrunsTotal.Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.SpikesTotal.WithLabelValues("pre").Inc()
		if err := e.SpikeLog.Append(persistence.SpikeEvent{
			Step: step,
			Syn:  uint32(iSyn),
			Op:   persistence.OpCodePreSpike,
		}); err != nil {
			slog.Error("Spike log append failed", "error", err)
		}
	}
	return firstErr
}

// FireNeuronPost enters a post-side spike on every live edge terminating at
// dst. Only meaningful for models with back-propagation capability; other
// models reject the call.
func (e *Engine) FireNeuronPost(dst int) error {
	if !e.kern.AllowBackPropagation() {
		return fmt.Errorf("engine: model %s does not allow back propagation", e.opts.Model)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if dst < 0 || dst >= e.Syn.NumNeurons() {
		return fmt.Errorf("engine: neuron %d out of range [0,%d)", dst, e.Syn.NumNeurons())
	}

	step := e.Step()
	var firstErr error
	for iSyn := 0; iSyn < e.Syn.Capacity(); iSyn++ {
		if !e.Syn.InUse[iSyn] || int(e.Syn.DestNeuron[iSyn]) != dst {
			continue
		}
		if err := e.kern.PostSpike(e.Syn, iSyn); err != nil {
			metrics.QueueOverrunsTotal.Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.SpikesTotal.WithLabelValues("post").Inc()
		if err := e.SpikeLog.Append(persistence.SpikeEvent{
			Step: step,
			Syn:  uint32(iSyn),
			Op:   persistence.OpCodePostSpike,
		}); err != nil {
			slog.Error("Spike log append failed", "error", err)
		}
	}
	return firstErr
}

// SaveCheckpoint writes the full synapse state to disk and truncates the
// spike log, which the checkpoint supersedes.
func (e *Engine) SaveCheckpoint() error {
	return e.saveCheckpoint("manual")
}

func (e *Engine) saveCheckpoint(trigger string) error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	// Hold the step lock for the duration of the write: the checkpoint must
	// capture a between-steps state.
	e.mu.Lock()
	defer e.mu.Unlock()

	meta := persistence.CheckpointMeta{
		RunID:  e.runID,
		Step:   e.Step(),
		DeltaT: e.opts.DeltaT,
	}
	if err := e.SpikeLog.Flush(); err != nil {
		return err
	}
	if err := persistence.WriteCheckpoint(e.ckptPath, meta, e.Syn); err != nil {
		return err
	}
	if err := e.SpikeLog.Truncate(); err != nil {
		return err
	}

	atomic.StoreInt64(&e.stepsSince, 0)
	e.lastSave = time.Now()
	metrics.CheckpointsTotal.WithLabelValues(trigger).Inc()
	slog.Info("Checkpoint saved", "path", e.ckptPath, "step", meta.Step, "live", e.Syn.LiveCount())
	return nil
}

// backgroundTasks handles automatic checkpointing and spike-log flushing.
// (Unexported: internal use only)
func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		}
	}
}

// checkMaintenance evaluates if an automatic checkpoint is due.
// (Unexported: internal use only)
func (e *Engine) checkMaintenance() {
	// Lightweight atomic check
	steps := atomic.LoadInt64(&e.stepsSince)

	if e.opts.AutoCheckpointThreshold > 0 && e.opts.AutoCheckpointInterval > 0 {
		if steps >= e.opts.AutoCheckpointThreshold && time.Since(e.lastSave) >= e.opts.AutoCheckpointInterval {
			if err := e.saveCheckpoint("auto"); err != nil {
				// Log error but continue (background task)
				slog.Error("Background checkpoint failed", "error", err)
			}
		}
	}

	if err := e.SpikeLog.Flush(); err != nil {
		slog.Error("Background spike log flush failed", "error", err)
	}
}
