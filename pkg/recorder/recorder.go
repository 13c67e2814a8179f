// Package recorder samples simulation state over time: per-step aggregates of
// the destination accumulator and optional per-edge response traces.
package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/stat"

	"github.com/sanonone/spikegrid/pkg/core"
	"github.com/sanonone/spikegrid/pkg/engine"
)

// Recorder accumulates one sample per call to Sample. Probe traces are stored
// as float16: a response trace is read for plotting, not for arithmetic, and
// half precision halves the footprint of long runs. Raw responses sit around
// the default weight (1e-8), below the float16 subnormal range, so traces are
// stored in weight-relative units and widened back on read.
type Recorder struct {
	mu  sync.Mutex
	sim *engine.Engine

	steps []uint64
	mean  []float64
	std   []float64

	probes map[int][]float16.Float16
}

// New creates a Recorder bound to a simulation.
func New(sim *engine.Engine) *Recorder {
	return &Recorder{
		sim:    sim,
		probes: make(map[int][]float16.Float16),
	}
}

// Probe registers an edge whose response value is captured on every sample.
// Must be called before the first Sample for the trace to align with the
// aggregate series.
func (r *Recorder) Probe(iSyn int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if iSyn < 0 || iSyn >= r.sim.Syn.Capacity() {
		return fmt.Errorf("recorder: synapse %d out of range [0,%d)", iSyn, r.sim.Syn.Capacity())
	}
	if _, ok := r.probes[iSyn]; !ok {
		r.probes[iSyn] = nil
	}
	return nil
}

// Sample records the current step: mean and standard deviation of the
// accumulator map, plus the response of every probed edge.
func (r *Recorder) Sample() {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := r.sim.Summation()
	mean, std := stat.MeanStdDev(sum, nil)

	r.steps = append(r.steps, r.sim.Step())
	r.mean = append(r.mean, mean)
	r.std = append(r.std, std)

	for iSyn := range r.probes {
		v := float16.Fromfloat32(float32(r.sim.Syn.PSR[iSyn] / core.DefaultWeight))
		r.probes[iSyn] = append(r.probes[iSyn], v)
	}
}

// Len returns the number of samples taken.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Trace returns the recorded response series of a probed edge, widened back
// to float64.
func (r *Recorder) Trace(iSyn int) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.probes[iSyn]
	if !ok {
		return nil, fmt.Errorf("recorder: synapse %d was not probed", iSyn)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v.Float32()) * core.DefaultWeight
	}
	return out, nil
}

// WriteCSV emits the sample series: one row per sample with step, accumulator
// mean and standard deviation, and one column per probed edge in ascending
// slot order.
func (r *Recorder) WriteCSV(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	probed := make([]int, 0, len(r.probes))
	for iSyn := range r.probes {
		probed = append(probed, iSyn)
	}
	sort.Ints(probed)

	cw := csv.NewWriter(w)
	header := []string{"step", "sum_mean", "sum_std"}
	for _, iSyn := range probed {
		header = append(header, "psr_"+strconv.Itoa(iSyn))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range r.steps {
		row := make([]string, 0, len(header))
		row = append(row,
			strconv.FormatUint(r.steps[i], 10),
			strconv.FormatFloat(r.mean[i], 'g', -1, 64),
			strconv.FormatFloat(r.std[i], 'g', -1, 64),
		)
		for _, iSyn := range probed {
			trace := r.probes[iSyn]
			if i < len(trace) {
				v := float64(trace[i].Float32()) * core.DefaultWeight
				row = append(row, strconv.FormatFloat(v, 'g', -1, 32))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
