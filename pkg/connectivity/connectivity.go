// Package connectivity builds the static wiring of a network: neurons are
// placed on a grid and each one connects to its nearest neighbors within a
// radius, up to a per-neuron cap.
package connectivity

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/tidwall/btree"

	"github.com/sanonone/spikegrid/pkg/core"
	"github.com/sanonone/spikegrid/pkg/engine"
)

// Params configures the static wiring pass.
type Params struct {
	// GridWidth and GridHeight define the neuron lattice. Their product must
	// equal the engine's neuron count.
	GridWidth  int `yaml:"grid_width"`
	GridHeight int `yaml:"grid_height"`

	// Radius is the maximum connection distance in grid units.
	Radius float64 `yaml:"radius"`

	// ConnsPerNeuron caps outgoing edges per source; the nearest candidates
	// within the radius win.
	ConnsPerNeuron int `yaml:"conns_per_neuron"`

	// ExcitatoryFraction is the probability that a neuron is excitatory.
	ExcitatoryFraction float64 `yaml:"excitatory_fraction"`

	// RewireProb is the fraction of established edges eligible for random
	// rewiring. The count is computed and reported but rewiring itself is
	// not applied; see the package-level note on BuildStatic.
	RewireProb float64 `yaml:"rewire_prob"`

	// Seed makes the excitatory assignment reproducible.
	Seed int64 `yaml:"seed"`
}

// Validate checks the parameter ranges before any wiring happens.
func (p Params) Validate() error {
	if p.GridWidth <= 0 || p.GridHeight <= 0 {
		return fmt.Errorf("connectivity: grid %dx%d must be positive", p.GridWidth, p.GridHeight)
	}
	if p.Radius <= 0 {
		return fmt.Errorf("connectivity: radius must be positive, got %g", p.Radius)
	}
	if p.ConnsPerNeuron <= 0 {
		return fmt.Errorf("connectivity: conns_per_neuron must be positive, got %d", p.ConnsPerNeuron)
	}
	if p.ExcitatoryFraction < 0 || p.ExcitatoryFraction > 1 {
		return fmt.Errorf("connectivity: excitatory_fraction %g outside [0,1]", p.ExcitatoryFraction)
	}
	if p.RewireProb < 0 || p.RewireProb > 1 {
		return fmt.Errorf("connectivity: rewire_prob %g outside [0,1]", p.RewireProb)
	}
	return nil
}

// Layout is the spatial placement and excitatory assignment of the neurons.
type Layout struct {
	X, Y       []float64
	Excitatory []bool
}

// NewGridLayout places n = width*height neurons on the lattice row-major and
// draws each neuron's excitatory flag from the configured fraction.
func NewGridLayout(p Params) Layout {
	n := p.GridWidth * p.GridHeight
	l := Layout{
		X:          make([]float64, n),
		Y:          make([]float64, n),
		Excitatory: make([]bool, n),
	}
	rng := rand.New(rand.NewSource(p.Seed))
	for i := 0; i < n; i++ {
		l.X[i] = float64(i % p.GridWidth)
		l.Y[i] = float64(i / p.GridWidth)
		l.Excitatory[i] = rng.Float64() < p.ExcitatoryFraction
	}
	return l
}

// Distance returns the Euclidean distance between two neurons of the layout.
func (l Layout) Distance(a, b int) float64 {
	dx := l.X[a] - l.X[b]
	dy := l.Y[a] - l.Y[b]
	return math.Sqrt(dx*dx + dy*dy)
}

// candidate is a potential edge, ordered by distance with the destination
// index as tie-breaker so iteration order is deterministic.
type candidate struct {
	dist float64
	dst  int
}

func candidateLess(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.dst < b.dst
}

// BuildStatic wires the network: for every source neuron it collects all
// destinations within the radius, sorted nearest-first, and creates edges for
// the closest ConnsPerNeuron of them with the type derived from the
// excitatory flags of the endpoints.
//
// The rewiring candidate count (edges * RewireProb) is computed and logged
// but no rewiring is performed; the reference model computes this number
// without ever consuming it, and the behavior is kept as observed.
func BuildStatic(sim *engine.Engine, p Params) (Layout, int, error) {
	if err := p.Validate(); err != nil {
		return Layout{}, 0, err
	}
	n := p.GridWidth * p.GridHeight
	if n != sim.Syn.NumNeurons() {
		return Layout{}, 0, fmt.Errorf("connectivity: grid %dx%d has %d cells but engine has %d neurons",
			p.GridWidth, p.GridHeight, n, sim.Syn.NumNeurons())
	}

	layout := NewGridLayout(p)

	added := 0
	for src := 0; src < n; src++ {
		tree := btree.NewBTreeG[candidate](candidateLess)
		for dst := 0; dst < n; dst++ {
			if dst == src {
				continue
			}
			if d := layout.Distance(src, dst); d <= p.Radius {
				tree.Set(candidate{dist: d, dst: dst})
			}
		}

		taken := 0
		var wireErr error
		tree.Ascend(candidate{}, func(c candidate) bool {
			if taken >= p.ConnsPerNeuron {
				return false
			}
			typ := core.TypeBetween(layout.Excitatory[src], layout.Excitatory[c.dst])
			if _, err := sim.AddSynapse(src, c.dst, typ); err != nil {
				wireErr = fmt.Errorf("connectivity: neuron %d -> %d: %w", src, c.dst, err)
				return false
			}
			taken++
			added++
			return true
		})
		if wireErr != nil {
			return Layout{}, added, wireErr
		}
	}

	rewireCandidates := int(float64(added) * p.RewireProb)
	slog.Info("Static wiring complete",
		"neurons", n,
		"edges", added,
		"radius", p.Radius,
		"rewire_candidates", rewireCandidates,
	)
	return layout, added, nil
}
