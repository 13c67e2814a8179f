package core

import "errors"

// Sentinel errors for invariant violations. All of these are fail-fast
// conditions: silently producing wrong spike timing is worse than a hard stop.
var (
	// ErrQueueOverrun reports a second arrival scheduled into an occupied
	// delay-queue slot.
	ErrQueueOverrun = errors.New("delay queue overrun: slot already holds a pending arrival")

	// ErrDelayTooLong reports a transmission delay that does not fit the
	// delay queue; the modular arithmetic would alias across wraparound.
	ErrDelayTooLong = errors.New("transmission delay must be shorter than the delay queue")

	// ErrNonPositiveTau reports a decay recomputation with tau <= 0.
	ErrNonPositiveTau = errors.New("synaptic time constant must be positive")

	// ErrSlotInUse reports creation into a slot that is already live.
	ErrSlotInUse = errors.New("synapse slot already in use")

	// ErrSlotNotLive reports an operation on a slot that was never created.
	ErrSlotNotLive = errors.New("synapse slot not live")

	// ErrSynapseLimit reports that a source neuron reached its configured
	// maximum number of outgoing synapses.
	ErrSynapseLimit = errors.New("per-neuron synapse limit reached")

	// ErrNilSummation reports a creation call without a destination
	// accumulation array.
	ErrNilSummation = errors.New("summation map must not be nil")

	// ErrNotSetup reports use of a store before Setup or after Cleanup.
	ErrNotSetup = errors.New("synapse store not set up")
)
