package kernel

import (
	"math"
	"testing"

	"github.com/sanonone/spikegrid/pkg/core"
)

func floatsAreEqual(a, b float64) bool {
	const tolerance = 1e-15
	return math.Abs(a-b) < tolerance
}

func newStore(t *testing.T, neurons, perNeuron int) *core.Synapses {
	t.Helper()
	s, err := core.Setup(core.Config{
		NumNeurons:           neurons,
		MaxSynapsesPerNeuron: perNeuron,
		QueueLength:          32,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return s
}

func TestResolve(t *testing.T) {
	t.Run("Spiking", func(t *testing.T) {
		k, err := Resolve(core.ModelSpiking)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if k.ChangePSR == nil || k.PreSpike == nil || k.PostSpike == nil {
			t.Fatal("resolved kernel has nil handles")
		}
		if k.AllowBackPropagation() {
			t.Error("spiking model must not report back propagation")
		}
		// The plain model's post handle rejects instead of being nil.
		s := newStore(t, 2, 1)
		if err := k.PostSpike(s, 0); err == nil {
			t.Error("post-spike on spiking model did not reject")
		}
	})

	t.Run("Plastic", func(t *testing.T) {
		k, err := Resolve(core.ModelPlastic)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !k.AllowBackPropagation() {
			t.Error("plastic model must report back propagation")
		}
	})

	t.Run("UnknownModel", func(t *testing.T) {
		if _, err := Resolve(core.NumModels); err == nil {
			t.Error("expected error for unknown model")
		}
	})
}

func TestAdvanceSynapseResponse(t *testing.T) {
	s := newStore(t, 2, 1)
	deltaT := 1e-4
	iSyn, err := s.AddSynapse(0, 1, s.Summation(), deltaT, core.TypeEE)
	if err != nil {
		t.Fatal(err)
	}
	k, err := Resolve(core.ModelSpiking)
	if err != nil {
		t.Fatal(err)
	}

	if err := k.PreSpike(s, iSyn); err != nil {
		t.Fatal(err)
	}

	delay := int(s.TotalDelay[iSyn])
	w := s.W[iSyn]
	decay := s.Decay[iSyn]

	// Until the delay elapses the response stays zero.
	for step := 0; step < delay; step++ {
		AdvanceSynapse(s, iSyn, deltaT, k)
	}
	if !floatsAreEqual(s.PSR[iSyn], w) {
		t.Fatalf("psr after first event: got %.17g, want %.17g", s.PSR[iSyn], w)
	}
	if !floatsAreEqual(s.Summation()[1], w) {
		t.Fatalf("deposit after first event: got %.17g, want %.17g", s.Summation()[1], w)
	}

	// A second spike two periods later decays the response in between.
	if err := k.PreSpike(s, iSyn); err != nil {
		t.Fatal(err)
	}
	for step := 0; step < delay; step++ {
		AdvanceSynapse(s, iSyn, deltaT, k)
	}
	want := w*decay + w
	if !floatsAreEqual(s.PSR[iSyn], want) {
		t.Fatalf("psr after second event: got %.17g, want %.17g", s.PSR[iSyn], want)
	}
}

func TestAdvanceRangeMatchesPerEdge(t *testing.T) {
	deltaT := 1e-4
	build := func(t *testing.T) *core.Synapses {
		s := newStore(t, 8, 4)
		for src := 0; src < 8; src++ {
			for n := 0; n < 3; n++ {
				dst := (src + n + 1) % 8
				typ := core.TypeBetween(src%3 != 0, dst%2 == 0)
				if _, err := s.AddSynapse(src, dst, s.Summation(), deltaT, typ); err != nil {
					t.Fatal(err)
				}
			}
		}
		return s
	}

	k, err := Resolve(core.ModelSpiking)
	if err != nil {
		t.Fatal(err)
	}

	a := build(t)
	b := build(t)

	fire := func(s *core.Synapses, step int) {
		// A deterministic, uneven firing pattern.
		for src := 0; src < 8; src++ {
			if (step+src)%5 == 0 {
				for slot := 0; slot < 4; slot++ {
					iSyn := s.Index(src, slot)
					if s.InUse[iSyn] {
						_ = k.PreSpike(s, iSyn)
					}
				}
			}
		}
	}

	for step := 0; step < 200; step++ {
		fire(a, step)
		fire(b, step)

		for iSyn := 0; iSyn < a.Capacity(); iSyn++ {
			if a.InUse[iSyn] {
				AdvanceSynapse(a, iSyn, deltaT, k)
			}
		}
		AdvanceRange(b, 0, b.Capacity(), deltaT, k)
	}

	for iSyn := 0; iSyn < a.Capacity(); iSyn++ {
		if a.PSR[iSyn] != b.PSR[iSyn] {
			t.Fatalf("synapse %d: psr diverged %.17g vs %.17g", iSyn, a.PSR[iSyn], b.PSR[iSyn])
		}
		if a.DelayQueue[iSyn] != b.DelayQueue[iSyn] || a.DelayIdx[iSyn] != b.DelayIdx[iSyn] {
			t.Fatalf("synapse %d: queue diverged", iSyn)
		}
	}
	for i := 0; i < a.NumNeurons(); i++ {
		if !floatsAreEqual(a.Summation()[i], b.Summation()[i]) {
			t.Fatalf("neuron %d: summation diverged %.17g vs %.17g", i, a.Summation()[i], b.Summation()[i])
		}
	}
}

func TestPlasticPostQueueAdvances(t *testing.T) {
	s := newStore(t, 2, 1)
	deltaT := 1e-4
	iSyn, err := s.AddSynapse(0, 1, s.Summation(), deltaT, core.TypeEE)
	if err != nil {
		t.Fatal(err)
	}
	k, err := Resolve(core.ModelPlastic)
	if err != nil {
		t.Fatal(err)
	}

	if err := k.PostSpike(s, iSyn); err != nil {
		t.Fatalf("post-spike failed: %v", err)
	}

	// The post event must be consumed within one ring period.
	for step := 0; step < int(s.LdelayQueue[iSyn]); step++ {
		AdvanceSynapse(s, iSyn, deltaT, k)
	}
	if s.DelayQueuePost[iSyn] != 0 {
		t.Errorf("post queue not drained: %#b", s.DelayQueuePost[iSyn])
	}
}

