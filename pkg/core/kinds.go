package core

import "fmt"

// SynapseType classifies an edge by the excitatory/inhibitory character of its
// endpoints. The first letter is the source side, the second the destination
// (IE = inhibitory source onto excitatory destination).
type SynapseType uint8

const (
	// TypeNone marks a slot whose type has not been assigned.
	TypeNone SynapseType = iota
	TypeII
	TypeIE
	TypeEI
	TypeEE

	numSynapseTypes
)

func (t SynapseType) String() string {
	switch t {
	case TypeII:
		return "II"
	case TypeIE:
		return "IE"
	case TypeEI:
		return "EI"
	case TypeEE:
		return "EE"
	default:
		return "none"
	}
}

// TypeBetween derives the synapse type from the excitatory flags of the
// source and destination neurons.
func TypeBetween(srcExcitatory, dstExcitatory bool) SynapseType {
	switch {
	case !srcExcitatory && !dstExcitatory:
		return TypeII
	case !srcExcitatory && dstExcitatory:
		return TypeIE
	case srcExcitatory && !dstExcitatory:
		return TypeEI
	default:
		return TypeEE
	}
}

// Sign returns the contribution sign of the synapse type: -1 for an
// inhibitory source, +1 for an excitatory one.
func (t SynapseType) Sign() float64 {
	switch t {
	case TypeII, TypeIE:
		return -1
	case TypeEI, TypeEE:
		return +1
	default:
		return 0
	}
}

// Creation defaults per synapse type, in seconds. These reproduce the
// reference constants of the original model: inhibitory sources relax more
// slowly (tau 6ms vs 3ms) and EE connections carry the longest transmission
// delay (1.5ms).
var (
	typeTau   = [numSynapseTypes]float64{0, 6e-3, 6e-3, 3e-3, 3e-3}
	typeDelay = [numSynapseTypes]float64{0, 0.8e-3, 0.8e-3, 0.8e-3, 1.5e-3}
)

// DefaultTau returns the default synaptic time constant for the type.
func (t SynapseType) DefaultTau() float64 { return typeTau[t] }

// DefaultDelay returns the default transmission delay (seconds) for the type.
func (t SynapseType) DefaultDelay() float64 { return typeDelay[t] }

// Model selects the per-edge behavior set the kernel resolver binds at setup.
// The set is closed: adding a model means adding catalog entries in
// pkg/core/kernel, not subclassing.
type Model uint8

const (
	// ModelSpiking is the plain decay-and-accumulate synapse.
	ModelSpiking Model = iota
	// ModelPlastic adds post-side (back-propagated) event bookkeeping, the
	// attachment point for plasticity rules.
	ModelPlastic

	NumModels
)

func (m Model) String() string {
	switch m {
	case ModelSpiking:
		return "spiking"
	case ModelPlastic:
		return "plastic"
	default:
		return fmt.Sprintf("model(%d)", uint8(m))
	}
}

// ParseModel maps a configuration string to a Model.
func ParseModel(s string) (Model, error) {
	switch s {
	case "", "spiking":
		return ModelSpiking, nil
	case "plastic":
		return ModelPlastic, nil
	default:
		return 0, fmt.Errorf("unknown synapse model %q", s)
	}
}
