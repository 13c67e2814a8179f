package persistence

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/sanonone/spikegrid/pkg/core"
)

// Checkpoint file layout (text, whitespace-separated):
//
//	spikegrid-checkpoint v1 <run-id> <step> <deltaT> <neurons> <maxPerNeuron> <queueLen> <live>
//	<iSyn> <src> <dst> <type> <psr> <W> <decay> <tau> <totalDelay> <queueWord> <queueIdx> <queueLen>
//	... one line per live edge ...
//
// Floats are printed with %.17g so a write/read cycle reproduces the exact
// float64 bit patterns and a restored run is step-for-step identical.

const (
	checkpointMagic   = "spikegrid-checkpoint"
	checkpointVersion = 1
)

// CheckpointMeta is the header of a checkpoint file.
type CheckpointMeta struct {
	RunID  string
	Step   uint64
	DeltaT float64

	NumNeurons           int
	MaxSynapsesPerNeuron int
	QueueLength          int
	Live                 int
}

// WriteCheckpoint serializes the full synapse state to path. The file is
// written to a temporary sibling and renamed into place, so readers never see
// a partially written checkpoint.
func WriteCheckpoint(path string, meta CheckpointMeta, s *core.Synapses) error {
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := writeCheckpointBody(w, meta, s); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

func writeCheckpointBody(w io.Writer, meta CheckpointMeta, s *core.Synapses) error {
	_, err := fmt.Fprintf(w, "%s v%d %s %d %.17g %d %d %d %d\n",
		checkpointMagic, checkpointVersion,
		meta.RunID, meta.Step, meta.DeltaT,
		s.NumNeurons(), s.MaxSynapsesPerNeuron(), s.QueueLength(), s.LiveCount())
	if err != nil {
		return err
	}

	for iSyn := 0; iSyn < s.Capacity(); iSyn++ {
		if !s.InUse[iSyn] {
			continue
		}
		_, err := fmt.Fprintf(w, "%d %d %d %d ",
			iSyn, s.SourceNeuron[iSyn], s.DestNeuron[iSyn], uint8(s.Type[iSyn]))
		if err != nil {
			return err
		}
		if err := s.WriteSynapse(w, iSyn); err != nil {
			return err
		}
	}
	return nil
}

// ReadCheckpoint restores synapse state from the checkpoint at path into s,
// which must be a freshly set-up store with matching dimensions. sum is the
// summation map restored edges deposit into.
func ReadCheckpoint(path string, s *core.Synapses, sum []float64) (CheckpointMeta, error) {
	file, err := os.Open(path)
	if err != nil {
		return CheckpointMeta{}, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var (
		magic   string
		version int
		meta    CheckpointMeta
	)
	_, err = fmt.Fscanf(r, "%s v%d %s %d %g %d %d %d %d\n",
		&magic, &version,
		&meta.RunID, &meta.Step, &meta.DeltaT,
		&meta.NumNeurons, &meta.MaxSynapsesPerNeuron, &meta.QueueLength, &meta.Live)
	if err != nil {
		return CheckpointMeta{}, fmt.Errorf("failed to parse checkpoint header: %w", err)
	}
	if magic != checkpointMagic {
		return CheckpointMeta{}, fmt.Errorf("not a checkpoint file (magic %q)", magic)
	}
	if version != checkpointVersion {
		return CheckpointMeta{}, fmt.Errorf("unsupported checkpoint version %d", version)
	}
	if meta.NumNeurons != s.NumNeurons() ||
		meta.MaxSynapsesPerNeuron != s.MaxSynapsesPerNeuron() ||
		meta.QueueLength != s.QueueLength() {
		return CheckpointMeta{}, fmt.Errorf(
			"checkpoint dimensions (%d neurons, %d per-neuron, queue %d) do not match store (%d, %d, %d)",
			meta.NumNeurons, meta.MaxSynapsesPerNeuron, meta.QueueLength,
			s.NumNeurons(), s.MaxSynapsesPerNeuron(), s.QueueLength())
	}

	for i := 0; i < meta.Live; i++ {
		var (
			iSyn, src, dst int
			typ            uint8
		)
		if _, err := fmt.Fscan(r, &iSyn, &src, &dst, &typ); err != nil {
			return CheckpointMeta{}, fmt.Errorf("checkpoint edge %d/%d: %w", i, meta.Live, err)
		}
		if err := s.RestoreSynapse(iSyn, src, dst, sum, core.SynapseType(typ)); err != nil {
			return CheckpointMeta{}, fmt.Errorf("checkpoint edge %d: %w", i, err)
		}
		if err := s.ReadSynapse(r, iSyn); err != nil {
			return CheckpointMeta{}, fmt.Errorf("checkpoint edge %d state: %w", i, err)
		}
	}
	return meta, nil
}

// CheckpointExists reports whether a checkpoint file is present at path.
func CheckpointExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
