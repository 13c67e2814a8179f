// Package kernel resolves the per-edge operations of each synapse model into
// directly-invocable handles.
//
// The per-step update loop must call one of several model-specific behaviors
// (response change, pre-side event entry, post-side event entry). On the
// shard-parallel path a per-call dynamic dispatch is off the table, so the
// package keeps catalogs of named function types keyed by model and resolves
// them once at setup time; the steppers then invoke the same handles for
// every edge of the model with no further lookup. Unresolvable handles fail
// at setup, never at step time.
package kernel

import (
	"fmt"
	"log"

	"github.com/sanonone/spikegrid/pkg/core"
)

func init() {
	log.Println("SpikeGrid synapse kernel: using pure Go implementations.")
	log.Printf("  - changePSR (spiking/plastic): scalar")
	log.Printf("  - queue advance:               %s", advanceBlockName)
}

// --- Handle types ---

// ChangePSRFunc applies the response change of a due event: the edge's
// response decays and picks up its contribution, and the result is deposited
// into the destination accumulator.
type ChangePSRFunc func(s *core.Synapses, iSyn int, deltaT float64)

// SpikeHitFunc enters a spike event on one side of an edge.
type SpikeHitFunc func(s *core.Synapses, iSyn int) error

// AdvanceBlockFunc advances the delay-queue cursors of a contiguous slot
// range. Batched separately from the event pass because the cursor update is
// independent of the response change and vectorizes over the packed words.
type AdvanceBlockFunc func(s *core.Synapses, lo, hi int)

// Kernel is the resolved handle set for one synapse model. The steppers hold
// a Kernel by value and call through it uniformly for every edge.
type Kernel struct {
	Model     core.Model
	ChangePSR ChangePSRFunc
	PreSpike  SpikeHitFunc
	PostSpike SpikeHitFunc

	backPropagation bool
}

// AllowBackPropagation reports, as a static per-model capability, whether
// post-side event entry is meaningful for this model. Callers must skip
// post-side processing when it returns false.
func (k Kernel) AllowBackPropagation() bool { return k.backPropagation }

// --- Catalogs ---
// Default entries are pure Go; build-tagged variants may override them from
// their own init functions before Resolve is ever called.

var changePSRFuncs = map[core.Model]ChangePSRFunc{
	core.ModelSpiking: changePSRSpiking,
	core.ModelPlastic: changePSRPlastic,
}

var preSpikeFuncs = map[core.Model]SpikeHitFunc{
	core.ModelSpiking: preSpikeHit,
	core.ModelPlastic: preSpikeHit,
}

// postSpikeFuncs has no spiking entry on purpose: the plain model reports no
// back-propagation capability, which is a legitimate state, not an error.
var postSpikeFuncs = map[core.Model]SpikeHitFunc{
	core.ModelPlastic: postSpikeHit,
}

var backPropagation = map[core.Model]bool{
	core.ModelSpiking: false,
	core.ModelPlastic: true,
}

// advanceBlock is the batched queue advance used by AdvanceRange.
var (
	advanceBlock     AdvanceBlockFunc = advanceQueueBlockGo
	advanceBlockName                  = "scalar"
)

// Resolve binds the operation handles for one model. A model that claims
// back-propagation capability but has no post-side handle is a resolution
// error; a model without the capability legitimately resolves a nil-free
// kernel whose PostSpike rejects calls.
func Resolve(model core.Model) (Kernel, error) {
	change, ok := changePSRFuncs[model]
	if !ok {
		return Kernel{}, fmt.Errorf("kernel: no changePSR handle for model %s", model)
	}
	pre, ok := preSpikeFuncs[model]
	if !ok {
		return Kernel{}, fmt.Errorf("kernel: no pre-spike handle for model %s", model)
	}
	k := Kernel{
		Model:           model,
		ChangePSR:       change,
		PreSpike:        pre,
		backPropagation: backPropagation[model],
	}
	post, ok := postSpikeFuncs[model]
	if k.backPropagation && !ok {
		return Kernel{}, fmt.Errorf("kernel: model %s allows back propagation but has no post-spike handle", model)
	}
	if ok {
		k.PostSpike = post
	} else {
		k.PostSpike = rejectPostSpike
	}
	return k, nil
}

// --- Per-edge update ---

// AdvanceSynapse performs one simulation step for one live edge: apply the
// response change if an event is due, then advance the delay queue
// unconditionally. Models with back-propagation capability also consume their
// post-side queue here; the due post event is the attachment point for a
// plasticity rule.
func AdvanceSynapse(s *core.Synapses, iSyn int, deltaT float64, k Kernel) {
	if s.IsEventDue(iSyn) {
		k.ChangePSR(s, iSyn, deltaT)
	}
	s.AdvanceQueue(iSyn)
	if k.backPropagation {
		if s.IsPostEventDue(iSyn) {
			// plasticity bookkeeping attaches here (non-goal for the core)
		}
		s.AdvancePostQueue(iSyn)
	}
}

// AdvanceRange steps every live edge in [lo, hi). The event pass is scalar;
// the queue advance runs as a second, batched pass over the same range, which
// is equivalent because the cursor update is independent of the response
// change and the due-check reads the queue before either pass mutates it.
func AdvanceRange(s *core.Synapses, lo, hi int, deltaT float64, k Kernel) {
	for iSyn := lo; iSyn < hi; iSyn++ {
		if !s.InUse[iSyn] {
			continue
		}
		if s.IsEventDue(iSyn) {
			k.ChangePSR(s, iSyn, deltaT)
		}
		if k.backPropagation {
			if s.IsPostEventDue(iSyn) {
				// plasticity bookkeeping attaches here
			}
			s.AdvancePostQueue(iSyn)
		}
	}
	advanceBlock(s, lo, hi)
}

// --- Reference implementations (pure Go) ---

// changePSRSpiking applies psr = psr*decay + W and deposits the result into
// the destination accumulator. The deposit is atomic, so the identical handle
// serves the sequential and the parallel stepper.
func changePSRSpiking(s *core.Synapses, iSyn int, _ float64) {
	psr := s.PSR[iSyn]*s.Decay[iSyn] + s.W[iSyn]
	s.PSR[iSyn] = psr
	s.Deposit(s.DestNeuron[iSyn], psr)
}

// changePSRPlastic is the response change of the back-propagating model. The
// arithmetic is identical to the plain model; the model differs in its
// post-side queue processing, not in the response itself.
func changePSRPlastic(s *core.Synapses, iSyn int, deltaT float64) {
	changePSRSpiking(s, iSyn, deltaT)
}

// preSpikeHit is invoked by the source neuron's spike-emission logic and
// schedules the arrival TotalDelay steps ahead.
func preSpikeHit(s *core.Synapses, iSyn int) error {
	return s.ScheduleArrival(iSyn)
}

// postSpikeHit is invoked when the destination neuron spikes, for models that
// allow back propagation.
func postSpikeHit(s *core.Synapses, iSyn int) error {
	return s.SchedulePostArrival(iSyn)
}

func rejectPostSpike(_ *core.Synapses, iSyn int) error {
	return fmt.Errorf("kernel: synapse %d: model does not allow back propagation", iSyn)
}

// advanceQueueBlockGo is the scalar queue advance over a slot range.
func advanceQueueBlockGo(s *core.Synapses, lo, hi int) {
	for iSyn := lo; iSyn < hi; iSyn++ {
		if s.InUse[iSyn] {
			s.AdvanceQueue(iSyn)
		}
	}
}
