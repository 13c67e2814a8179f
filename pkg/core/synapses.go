// Package core provides the fundamental per-edge data structures of the
// SpikeGrid engine.
//
// This file defines the Synapses store: every synapse parameter lives in a
// flat array indexed by iSyn = source*maxSynapsesPerNeuron + slot. The layout
// is deliberately one-dimensional so that the sequential stepper and the
// shard-parallel stepper walk the identical memory and produce bit-identical
// per-edge state. There is no per-edge allocation: the store is sized once at
// Setup and released as a whole by Cleanup; an individual slot only becomes
// live through CreateSynapse.
package core

import (
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"unsafe"
)

const (
	// MaxQueueLength is the width in bits of the delay-queue word. One bit
	// per schedulable future step, packed into a single uint32 per edge.
	MaxQueueLength = 32

	// DefaultWeight is the magnitude of the synaptic weight assigned at
	// creation; the sign comes from the synapse type.
	DefaultWeight = 10.0e-9
)

// Config sizes the synapse store.
type Config struct {
	// NumNeurons is the number of nodes in the network.
	NumNeurons int

	// MaxSynapsesPerNeuron caps the outgoing edges of any single source
	// neuron. Store capacity is NumNeurons * MaxSynapsesPerNeuron.
	MaxSynapsesPerNeuron int

	// QueueLength is the number of future-step slots in each delay queue.
	// 0 selects MaxQueueLength. Must not exceed MaxQueueLength.
	QueueLength int
}

// Synapses holds the state of every edge in flat arrays. Exported fields are
// readable by steppers and recorders; mutate them only through the store
// operations so the decay/queue invariants hold.
type Synapses struct {
	// Decay is the cached per-step response attenuation, always consistent
	// with the current (Tau, deltaT) pair.
	Decay []float64

	// Tau is the synaptic time constant in seconds, range (0, 100).
	Tau []float64

	// W is the signed synaptic weight (the contribution deposited per event).
	W []float64

	// PSR is the post-synaptic response each edge accumulates into its
	// destination.
	PSR []float64

	// TotalDelay is the transmission delay in discrete steps, fixed at
	// creation and strictly less than the queue length.
	TotalDelay []int32

	// DelayQueue packs the pending-arrival schedule of one edge into one
	// word: bit k set means an event arrives k slots after the epoch the
	// cursor marks.
	DelayQueue []uint32

	// DelayIdx is the cursor marking the current time slot in DelayQueue.
	DelayIdx []int32

	// LdelayQueue is the queue length of each edge, fixed at creation.
	LdelayQueue []int32

	// Post-side event queue, used only by models whose kernel reports
	// back-propagation capability.
	DelayQueuePost []uint32
	DelayIdxPost   []int32
	TotalDelayPost []int32

	// Type is the categorical edge kind, immutable after creation.
	Type []SynapseType

	SourceNeuron []int32
	DestNeuron   []int32

	// InUse marks live slots. Slots are never deallocated individually.
	InUse []bool

	summation []float64
	counts    []int32

	numNeurons   int
	maxPerNeuron int
	queueLen     int
	live         int
}

// Setup allocates all per-edge arrays for nodeCount * maxEdges slots and
// returns the store. It fails on non-positive dimensions or a queue length
// that does not fit the packed word.
func Setup(cfg Config) (*Synapses, error) {
	if cfg.NumNeurons <= 0 {
		return nil, fmt.Errorf("setup: number of neurons must be positive, got %d", cfg.NumNeurons)
	}
	if cfg.MaxSynapsesPerNeuron <= 0 {
		return nil, fmt.Errorf("setup: max synapses per neuron must be positive, got %d", cfg.MaxSynapsesPerNeuron)
	}
	qLen := cfg.QueueLength
	if qLen == 0 {
		qLen = MaxQueueLength
	}
	if qLen < 1 || qLen > MaxQueueLength {
		return nil, fmt.Errorf("setup: queue length %d outside [1,%d]", qLen, MaxQueueLength)
	}

	n := cfg.NumNeurons * cfg.MaxSynapsesPerNeuron
	s := &Synapses{
		Decay:          make([]float64, n),
		Tau:            make([]float64, n),
		W:              make([]float64, n),
		PSR:            make([]float64, n),
		TotalDelay:     make([]int32, n),
		DelayQueue:     make([]uint32, n),
		DelayIdx:       make([]int32, n),
		LdelayQueue:    make([]int32, n),
		DelayQueuePost: make([]uint32, n),
		DelayIdxPost:   make([]int32, n),
		TotalDelayPost: make([]int32, n),
		Type:           make([]SynapseType, n),
		SourceNeuron:   make([]int32, n),
		DestNeuron:     make([]int32, n),
		InUse:          make([]bool, n),
		summation:      make([]float64, cfg.NumNeurons),
		counts:         make([]int32, cfg.NumNeurons),
		numNeurons:     cfg.NumNeurons,
		maxPerNeuron:   cfg.MaxSynapsesPerNeuron,
		queueLen:       qLen,
	}
	return s, nil
}

// Cleanup releases all arrays. Safe to call on a never-initialized or already
// cleaned store.
func (s *Synapses) Cleanup() {
	if s == nil {
		return
	}
	s.Decay, s.Tau, s.W, s.PSR = nil, nil, nil, nil
	s.TotalDelay, s.DelayIdx, s.LdelayQueue = nil, nil, nil
	s.DelayQueue, s.DelayQueuePost = nil, nil
	s.DelayIdxPost, s.TotalDelayPost = nil, nil
	s.Type, s.SourceNeuron, s.DestNeuron = nil, nil, nil
	s.InUse, s.counts, s.summation = nil, nil, nil
	s.numNeurons, s.maxPerNeuron, s.live = 0, 0, 0
}

// Capacity returns the total number of slots.
func (s *Synapses) Capacity() int { return s.numNeurons * s.maxPerNeuron }

// LiveCount returns the number of live synapses.
func (s *Synapses) LiveCount() int { return s.live }

// NumNeurons returns the node count the store was sized for.
func (s *Synapses) NumNeurons() int { return s.numNeurons }

// MaxSynapsesPerNeuron returns the per-source slot cap.
func (s *Synapses) MaxSynapsesPerNeuron() int { return s.maxPerNeuron }

// QueueLength returns the configured delay-queue length.
func (s *Synapses) QueueLength() int { return s.queueLen }

// SynapseCount returns the number of live outgoing synapses of one neuron.
func (s *Synapses) SynapseCount(src int) int { return int(s.counts[src]) }

// Summation returns the destination accumulation array. The store allocates
// one per-neuron map at Setup; creation calls may rebind it to an external
// array shared with the neuron layer.
func (s *Synapses) Summation() []float64 { return s.summation }

// Index maps (source neuron, per-neuron slot) to the flat synapse index.
func (s *Synapses) Index(src, slot int) int { return src*s.maxPerNeuron + slot }

// CreateSynapse initializes slot iSyn as a live edge from src to dst.
// sum is the destination input-accumulation array; the edge contributes to
// sum[dst] but does not own it. The slot's type-dependent defaults (tau,
// transmission delay, signed weight) are assigned and the time-varying state
// is reset. Fails fast on an occupied slot, a nil accumulator, or a delay
// that does not fit the queue.
func (s *Synapses) CreateSynapse(iSyn, src, dst int, sum []float64, deltaT float64, typ SynapseType) error {
	if s.InUse == nil {
		return ErrNotSetup
	}
	if iSyn < 0 || iSyn >= s.Capacity() {
		return fmt.Errorf("create synapse %d: index out of range [0,%d)", iSyn, s.Capacity())
	}
	if s.InUse[iSyn] {
		return fmt.Errorf("create synapse %d: %w", iSyn, ErrSlotInUse)
	}
	if iSyn/s.maxPerNeuron != src {
		return fmt.Errorf("create synapse %d: slot does not belong to source neuron %d", iSyn, src)
	}
	if sum == nil {
		return fmt.Errorf("create synapse %d: %w", iSyn, ErrNilSummation)
	}
	if dst < 0 || dst >= len(sum) || dst >= s.numNeurons {
		return fmt.Errorf("create synapse %d: destination %d out of range", iSyn, dst)
	}
	if typ == TypeNone || typ >= numSynapseTypes {
		return fmt.Errorf("create synapse %d: invalid type %d", iSyn, typ)
	}

	totalDelay := int32(typ.DefaultDelay()/deltaT) + 1
	if int(totalDelay) >= s.queueLen {
		return fmt.Errorf("create synapse %d: delay %d steps, queue %d: %w",
			iSyn, totalDelay, s.queueLen, ErrDelayTooLong)
	}

	s.summation = sum
	s.SourceNeuron[iSyn] = int32(src)
	s.DestNeuron[iSyn] = int32(dst)
	s.Type[iSyn] = typ
	s.Tau[iSyn] = typ.DefaultTau()
	s.W[iSyn] = typ.Sign() * DefaultWeight
	s.TotalDelay[iSyn] = totalDelay
	s.TotalDelayPost[iSyn] = totalDelay

	if err := s.ResetSynapse(iSyn, deltaT); err != nil {
		return err
	}

	s.InUse[iSyn] = true
	s.counts[src]++
	s.live++
	return nil
}

// AddSynapse creates an edge in the first free slot of the source neuron.
// It enforces the per-neuron maximum and returns the assigned flat index.
func (s *Synapses) AddSynapse(src, dst int, sum []float64, deltaT float64, typ SynapseType) (int, error) {
	if s.InUse == nil {
		return 0, ErrNotSetup
	}
	if src < 0 || src >= s.numNeurons {
		return 0, fmt.Errorf("add synapse: source %d out of range", src)
	}
	if int(s.counts[src]) >= s.maxPerNeuron {
		return 0, fmt.Errorf("add synapse: neuron %d: %w (max %d)", src, ErrSynapseLimit, s.maxPerNeuron)
	}
	for slot := 0; slot < s.maxPerNeuron; slot++ {
		iSyn := s.Index(src, slot)
		if !s.InUse[iSyn] {
			if err := s.CreateSynapse(iSyn, src, dst, sum, deltaT, typ); err != nil {
				return 0, err
			}
			return iSyn, nil
		}
	}
	// counts said a slot was free; reaching here means the bookkeeping broke
	return 0, fmt.Errorf("add synapse: neuron %d: %w", src, ErrSynapseLimit)
}

// RestoreSynapse marks slot iSyn live with the given static fields without
// touching its time-varying state. Checkpoint readers use it before
// ReadSynapse, whose persisted fields are authoritative.
func (s *Synapses) RestoreSynapse(iSyn, src, dst int, sum []float64, typ SynapseType) error {
	if s.InUse == nil {
		return ErrNotSetup
	}
	if iSyn < 0 || iSyn >= s.Capacity() {
		return fmt.Errorf("restore synapse %d: index out of range [0,%d)", iSyn, s.Capacity())
	}
	if s.InUse[iSyn] {
		return fmt.Errorf("restore synapse %d: %w", iSyn, ErrSlotInUse)
	}
	if sum == nil {
		return fmt.Errorf("restore synapse %d: %w", iSyn, ErrNilSummation)
	}
	if dst < 0 || dst >= len(sum) || dst >= s.numNeurons {
		return fmt.Errorf("restore synapse %d: destination %d out of range", iSyn, dst)
	}
	s.summation = sum
	s.SourceNeuron[iSyn] = int32(src)
	s.DestNeuron[iSyn] = int32(dst)
	s.Type[iSyn] = typ
	s.InUse[iSyn] = true
	s.counts[src]++
	s.live++
	return nil
}

// EraseSynapse marks a live slot as unused so it can be reassigned. The
// arrays themselves are never shrunk.
func (s *Synapses) EraseSynapse(iSyn int) error {
	if s.InUse == nil {
		return ErrNotSetup
	}
	if iSyn < 0 || iSyn >= s.Capacity() || !s.InUse[iSyn] {
		return fmt.Errorf("erase synapse %d: %w", iSyn, ErrSlotNotLive)
	}
	s.InUse[iSyn] = false
	s.counts[s.SourceNeuron[iSyn]]--
	s.live--
	s.PSR[iSyn] = 0
	s.W[iSyn] = 0
	s.Type[iSyn] = TypeNone
	return nil
}

// ResetSynapse resets the time-varying state of one slot: the response is
// zeroed, decay is recomputed from the current tau and deltaT, and both delay
// queues are cleared. Used at creation and to re-synchronize an edge after a
// time-constant or step-size change. Calling it twice in a row is idempotent.
func (s *Synapses) ResetSynapse(iSyn int, deltaT float64) error {
	if err := s.UpdateDecay(iSyn, deltaT); err != nil {
		return err
	}
	s.PSR[iSyn] = 0
	s.initSpikeQueue(iSyn)
	return nil
}

// UpdateDecay recomputes the cached decay coefficient from the edge's time
// constant and the step size: decay = exp(-deltaT/tau). Any code path that
// changes tau or deltaT must call this before the edge is next advanced.
func (s *Synapses) UpdateDecay(iSyn int, deltaT float64) error {
	tau := s.Tau[iSyn]
	if tau <= 0 {
		return fmt.Errorf("update decay: synapse %d: %w (tau=%g)", iSyn, ErrNonPositiveTau, tau)
	}
	s.Decay[iSyn] = math.Exp(-deltaT / tau)
	return nil
}

// initSpikeQueue clears both delay queues and rewinds their cursors.
func (s *Synapses) initSpikeQueue(iSyn int) {
	s.DelayQueue[iSyn] = 0
	s.DelayIdx[iSyn] = 0
	s.LdelayQueue[iSyn] = int32(s.queueLen)
	s.DelayQueuePost[iSyn] = 0
	s.DelayIdxPost[iSyn] = 0
}

// Deposit accumulates v into the destination slot of the summation map.
// The add is atomic so the same code path is safe under the shard-parallel
// stepper, where edges from different sources may target one destination in
// the same step; on the sequential path the CAS is uncontended.
func (s *Synapses) Deposit(dst int32, v float64) {
	addr := &s.summation[dst]
	for {
		old := atomic.LoadUint64((*uint64)(unsafe.Pointer(addr)))
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(addr)), old, next) {
			return
		}
	}
}

// WriteSynapse writes the time-varying state of one edge as whitespace-
// delimited scalars in fixed order: the base fields (psr, W) followed by the
// spiking group (decay, tau, total delay, delay-queue word, delay index,
// queue length). The reader consumes exactly this layout, so a round trip
// reproduces step-by-step behavior bit for bit.
func (s *Synapses) WriteSynapse(w io.Writer, iSyn int) error {
	_, err := fmt.Fprintf(w, "%.17g %.17g %.17g %.17g %d %d %d %d\n",
		s.PSR[iSyn], s.W[iSyn],
		s.Decay[iSyn], s.Tau[iSyn], s.TotalDelay[iSyn],
		s.DelayQueue[iSyn], s.DelayIdx[iSyn], s.LdelayQueue[iSyn])
	return err
}

// ReadSynapse restores one edge's time-varying state from the layout written
// by WriteSynapse. All persisted fields are authoritative; nothing is
// recomputed.
func (s *Synapses) ReadSynapse(r io.Reader, iSyn int) error {
	_, err := fmt.Fscan(r,
		&s.PSR[iSyn], &s.W[iSyn],
		&s.Decay[iSyn], &s.Tau[iSyn], &s.TotalDelay[iSyn],
		&s.DelayQueue[iSyn], &s.DelayIdx[iSyn], &s.LdelayQueue[iSyn])
	if err != nil {
		return fmt.Errorf("read synapse %d: %w", iSyn, err)
	}
	return nil
}
