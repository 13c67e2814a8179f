// Package runner wires a full simulation run from a YAML configuration:
// engine, static connectivity, neuron layer, recorder and the metrics
// endpoint.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/spikegrid/pkg/connectivity"
	"github.com/sanonone/spikegrid/pkg/core"
	"github.com/sanonone/spikegrid/pkg/engine"
	"github.com/sanonone/spikegrid/pkg/recorder"
)

// Run executes the simulation described by cfg until the step budget is
// exhausted or ctx is canceled. State is checkpointed on shutdown.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	model, err := core.ParseModel(cfg.Simulation.Model)
	if err != nil {
		return err
	}

	sim, err := engine.Open(engine.Options{
		DataDir:                 cfg.DataDir,
		CheckpointFilename:      "spikegrid.ckpt",
		SpikeLogFilename:        "spikegrid.spk",
		AutoCheckpointInterval:  cfg.Simulation.CheckpointInterval,
		AutoCheckpointThreshold: cfg.Simulation.CheckpointThreshold,
		Model:                   model,
		Workers:                 cfg.Simulation.Workers,
		NumNeurons:              cfg.Network.GridWidth * cfg.Network.GridHeight,
		MaxSynapsesPerNeuron:    cfg.Simulation.MaxSynapsesPerNeuron,
		QueueLength:             cfg.Simulation.QueueLength,
		DeltaT:                  cfg.Simulation.DeltaT,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sim.Close(); err != nil {
			slog.Error("Engine close failed", "error", err)
		}
	}()

	// A restored checkpoint already carries the wiring; only a fresh run
	// builds it.
	if sim.Syn.LiveCount() == 0 {
		if _, _, err := connectivity.BuildStatic(sim, cfg.Network); err != nil {
			return err
		}
		if err := applyTauOverride(sim, cfg.Simulation.TauOverride); err != nil {
			return err
		}
	} else {
		slog.Info("Wiring restored from checkpoint", "live", sim.Syn.LiveCount())
	}

	rec := recorder.New(sim)
	for _, iSyn := range cfg.Recorder.Probes {
		if err := rec.Probe(iSyn); err != nil {
			return err
		}
	}

	stopMetrics, err := serveMetrics(cfg.HTTPAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	pool := newNeuronPool(sim, cfg.Neurons)

	slog.Info("Run starting",
		"run_id", sim.RunID(),
		"steps", cfg.Simulation.Steps,
		"start_step", sim.Step(),
	)
	start := time.Now()
	totalFired := 0

loop:
	for step := 0; cfg.Simulation.Steps == 0 || step < cfg.Simulation.Steps; step++ {
		select {
		case <-ctx.Done():
			slog.Info("Run interrupted", "step", sim.Step())
			break loop
		default:
		}

		sim.Advance()
		if n := cfg.Recorder.SampleEvery; n > 0 && step%n == 0 {
			// Sampled between the edge update and the neuron tick, while the
			// accumulator still holds this step's deposits.
			rec.Sample()
		}
		totalFired += pool.tick()
	}

	slog.Info("Run finished",
		"final_step", sim.Step(),
		"neuron_spikes", totalFired,
		"elapsed", time.Since(start),
	)

	if cfg.Recorder.CSVPath != "" && rec.Len() > 0 {
		if err := writeCSV(rec, cfg.Recorder.CSVPath); err != nil {
			return err
		}
		slog.Info("Samples written", "path", cfg.Recorder.CSVPath, "samples", rec.Len())
	}
	return nil
}

// applyTauOverride replaces every live edge's time constant and rederives its
// decay factor.
func applyTauOverride(sim *engine.Engine, tau float64) error {
	if tau == 0 {
		return nil
	}
	for iSyn := 0; iSyn < sim.Syn.Capacity(); iSyn++ {
		if !sim.Syn.InUse[iSyn] {
			continue
		}
		sim.Syn.Tau[iSyn] = tau
		if err := sim.Syn.UpdateDecay(iSyn, sim.DeltaT()); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(rec *recorder.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample file: %w", err)
	}
	if err := rec.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// serveMetrics exposes /metrics on addr and returns a shutdown function.
// An empty addr disables the endpoint.
func serveMetrics(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics endpoint up", "addr", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server shutdown failed", "error", err)
		}
	}, nil
}
