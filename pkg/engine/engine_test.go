package engine

import (
	"math"
	"testing"

	"github.com/sanonone/spikegrid/pkg/core"
)

func testOptions(t *testing.T, workers int) Options {
	t.Helper()
	opts := DefaultOptions(t.TempDir())
	opts.NumNeurons = 16
	opts.MaxSynapsesPerNeuron = 8
	opts.Workers = workers
	return opts
}

func mustOpen(t *testing.T, opts Options) *Engine {
	t.Helper()
	sim, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return sim
}

// wireRing connects each neuron to its two clockwise neighbors.
func wireRing(t *testing.T, sim *Engine) {
	t.Helper()
	n := sim.Syn.NumNeurons()
	for src := 0; src < n; src++ {
		for hop := 1; hop <= 2; hop++ {
			typ := core.TypeBetween(src%4 != 0, (src+hop)%2 == 0)
			if _, err := sim.AddSynapse(src, (src+hop)%n, typ); err != nil {
				t.Fatalf("AddSynapse failed: %v", err)
			}
		}
	}
}

func TestOpenAndFire(t *testing.T) {
	sim := mustOpen(t, testOptions(t, 1))
	defer sim.Close()
	wireRing(t, sim)

	if sim.Syn.LiveCount() != 32 {
		t.Fatalf("live count: got %d, want 32", sim.Syn.LiveCount())
	}

	if err := sim.FireNeuron(0); err != nil {
		t.Fatalf("FireNeuron failed: %v", err)
	}
	if err := sim.FireNeuron(99); err == nil {
		t.Error("expected range error for neuron 99")
	}

	// Run past the longest type delay; the spike must land in the accumulator.
	sim.AdvanceN(20)
	sum := sim.Summation()
	total := 0.0
	for _, v := range sum {
		total += math.Abs(v)
	}
	if total == 0 {
		t.Error("no deposits after firing and advancing past the delay")
	}
	if sim.Step() != 20 {
		t.Errorf("step counter: got %d, want 20", sim.Step())
	}
}

func TestPostFireRequiresCapability(t *testing.T) {
	opts := testOptions(t, 1)
	sim := mustOpen(t, opts)
	defer sim.Close()
	wireRing(t, sim)

	if err := sim.FireNeuronPost(1); err == nil {
		t.Error("spiking model accepted a post-side fire")
	}

	plastic := testOptions(t, 1)
	plastic.Model = core.ModelPlastic
	sim2 := mustOpen(t, plastic)
	defer sim2.Close()
	wireRing(t, sim2)

	if err := sim2.FireNeuronPost(1); err != nil {
		t.Errorf("plastic model rejected post-side fire: %v", err)
	}
}

func TestSequentialParallelEquivalence(t *testing.T) {
	seq := mustOpen(t, testOptions(t, 1))
	defer seq.Close()
	par := mustOpen(t, testOptions(t, 4))
	defer par.Close()

	wireRing(t, seq)
	wireRing(t, par)

	for step := 0; step < 100; step++ {
		for src := 0; src < seq.Syn.NumNeurons(); src++ {
			if (step+src)%7 == 0 {
				_ = seq.FireNeuron(src)
				_ = par.FireNeuron(src)
			}
		}
		seq.Advance()
		par.Advance()
	}

	for iSyn := 0; iSyn < seq.Syn.Capacity(); iSyn++ {
		if seq.Syn.PSR[iSyn] != par.Syn.PSR[iSyn] {
			t.Fatalf("synapse %d: psr diverged %.17g vs %.17g",
				iSyn, seq.Syn.PSR[iSyn], par.Syn.PSR[iSyn])
		}
		if seq.Syn.DelayQueue[iSyn] != par.Syn.DelayQueue[iSyn] ||
			seq.Syn.DelayIdx[iSyn] != par.Syn.DelayIdx[iSyn] {
			t.Fatalf("synapse %d: queue diverged", iSyn)
		}
	}
	// Deposit order differs across shards, so the accumulator matches only up
	// to float addition reordering.
	for i := range seq.Summation() {
		if math.Abs(seq.Summation()[i]-par.Summation()[i]) > 1e-20 {
			t.Fatalf("neuron %d: summation diverged %.17g vs %.17g",
				i, seq.Summation()[i], par.Summation()[i])
		}
	}
}

func TestCheckpointRestart(t *testing.T) {
	opts := testOptions(t, 1)

	sim := mustOpen(t, opts)
	wireRing(t, sim)
	for step := 0; step < 30; step++ {
		if step%5 == 0 {
			_ = sim.FireNeuron(step % sim.Syn.NumNeurons())
		}
		sim.Advance()
	}

	runID := sim.RunID()
	live := sim.Syn.LiveCount()
	step := sim.Step()
	psr := append([]float64{}, sim.Syn.PSR...)
	queues := append([]uint32{}, sim.Syn.DelayQueue...)

	if err := sim.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored := mustOpen(t, opts)
	defer restored.Close()

	if restored.RunID() != runID {
		t.Errorf("run id: got %s, want %s", restored.RunID(), runID)
	}
	if restored.Step() != step {
		t.Errorf("step: got %d, want %d", restored.Step(), step)
	}
	if restored.Syn.LiveCount() != live {
		t.Errorf("live count: got %d, want %d", restored.Syn.LiveCount(), live)
	}
	for iSyn := range psr {
		if restored.Syn.PSR[iSyn] != psr[iSyn] {
			t.Fatalf("synapse %d: psr not restored bit-exact", iSyn)
		}
		if restored.Syn.DelayQueue[iSyn] != queues[iSyn] {
			t.Fatalf("synapse %d: queue word not restored", iSyn)
		}
	}
}

func TestProbeSynapse(t *testing.T) {
	sim := mustOpen(t, testOptions(t, 1))
	defer sim.Close()
	wireRing(t, sim)

	iSyn := sim.Syn.Index(2, 0)
	state, err := sim.ProbeSynapse(iSyn)
	if err != nil {
		t.Fatalf("ProbeSynapse failed: %v", err)
	}
	if state.Source != 2 || state.ISyn != iSyn {
		t.Errorf("probe: got %+v", state)
	}
	if state.Tau <= 0 || state.Decay <= 0 || state.Decay >= 1 {
		t.Errorf("probe returned implausible dynamics: %+v", state)
	}

	free := sim.Syn.Index(2, 7)
	if _, err := sim.ProbeSynapse(free); err == nil {
		t.Error("expected error probing a dead slot")
	}
}

func TestEraseSynapse(t *testing.T) {
	sim := mustOpen(t, testOptions(t, 1))
	defer sim.Close()

	iSyn, err := sim.AddSynapse(1, 2, core.TypeEE)
	if err != nil {
		t.Fatal(err)
	}
	if err := sim.EraseSynapse(iSyn); err != nil {
		t.Fatalf("EraseSynapse failed: %v", err)
	}
	if sim.Syn.LiveCount() != 0 {
		t.Errorf("live count after erase: %d", sim.Syn.LiveCount())
	}
}
