package runner

import (
	"math/rand"

	"github.com/sanonone/spikegrid/pkg/engine"
)

// neuronPool is a minimal leaky threshold neuron layer. It exists to drive
// the edges: each step it integrates the accumulator deposits, fires neurons
// that cross threshold, and injects Poisson background spikes. It is not a
// biophysically serious neuron model.
type neuronPool struct {
	sim *engine.Engine
	cfg NeuronConfig
	rng *rand.Rand

	potential  []float64
	refractory []int

	// pFire is the per-step probability of a background spike,
	// rate (Hz) * deltaT (s).
	pFire float64
}

func newNeuronPool(sim *engine.Engine, cfg NeuronConfig) *neuronPool {
	n := sim.Syn.NumNeurons()
	return &neuronPool{
		sim:        sim,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		potential:  make([]float64, n),
		refractory: make([]int, n),
		pFire:      cfg.InputRateHz * sim.DeltaT(),
	}
}

// tick integrates the current accumulator values, fires due neurons, and
// clears the accumulator for the next step. Returns the number of neurons
// that fired.
func (p *neuronPool) tick() int {
	sum := p.sim.Summation()
	fired := 0

	for i := range p.potential {
		if p.refractory[i] > 0 {
			p.refractory[i]--
			continue
		}

		p.potential[i] = p.potential[i]*(1-p.cfg.Leak) + sum[i]

		fire := p.potential[i] >= p.cfg.Threshold
		if !fire && p.pFire > 0 && p.rng.Float64() < p.pFire {
			fire = true
		}
		if fire {
			// Overruns surface as a metric; a dropped event on a saturated
			// edge is the modeled behavior, not a runner failure.
			_ = p.sim.FireNeuron(i)
			p.potential[i] = 0
			p.refractory[i] = p.cfg.RefractorySteps
			fired++
		}
	}

	p.sim.ResetSummation()
	return fired
}
