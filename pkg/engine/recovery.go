package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sanonone/spikegrid/pkg/persistence"
)

// restoreCheckpoint loads the on-disk checkpoint into the store and resumes
// the run identity and step counter it recorded. Called from Open before the
// spike log is opened.
func (e *Engine) restoreCheckpoint() error {
	meta, err := persistence.ReadCheckpoint(e.ckptPath, e.Syn, e.Syn.Summation())
	if err != nil {
		return fmt.Errorf("failed to restore checkpoint: %w", err)
	}
	if meta.DeltaT != e.opts.DeltaT {
		return fmt.Errorf("checkpoint deltaT %g does not match configured %g", meta.DeltaT, e.opts.DeltaT)
	}

	e.runID = meta.RunID
	atomic.StoreUint64(&e.step, meta.Step)

	slog.Info("Checkpoint restored",
		"path", e.ckptPath,
		"run_id", meta.RunID,
		"step", meta.Step,
		"live", e.Syn.LiveCount(),
	)
	return nil
}

// ReplaySpikes iterates the retained spike log in order. The log holds the
// events since the last checkpoint; it serves inspection and analysis, not
// state reconstruction, which the checkpoint covers on its own.
func (e *Engine) ReplaySpikes(fn func(persistence.SpikeEvent) error) error {
	if err := e.SpikeLog.Flush(); err != nil {
		return err
	}
	return persistence.ReplaySpikeLog(e.SpikeLog.Path(), fn)
}
