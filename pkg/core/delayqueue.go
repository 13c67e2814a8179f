package core

import "fmt"

// Bit-packed delay queue operations. Each edge's pending-arrival schedule is
// one uint32 word; bit positions are step slots on a ring of LdelayQueue
// entries and DelayIdx is the cursor for the current step. A slot holds at
// most one arrival, so one bit per slot is a complete encoding and the whole
// schedule of an edge stays in a single value on both execution paths.

// ScheduleArrival marks an event arriving TotalDelay steps from now. If that
// slot already holds a pending arrival the call reports an overrun instead of
// overwriting: the model permits at most one in-flight event per edge per
// delay window, and losing one silently would corrupt spike timing.
func (s *Synapses) ScheduleArrival(iSyn int) error {
	idx := s.DelayIdx[iSyn] + s.TotalDelay[iSyn]
	if idx >= s.LdelayQueue[iSyn] {
		idx -= s.LdelayQueue[iSyn]
	}
	mask := uint32(1) << uint(idx)
	if s.DelayQueue[iSyn]&mask != 0 {
		return fmt.Errorf("synapse %d slot %d: %w", iSyn, idx, ErrQueueOverrun)
	}
	s.DelayQueue[iSyn] |= mask
	return nil
}

// IsEventDue reports whether an arrival is scheduled for the current step.
// Read-only; the bit is consumed by AdvanceQueue.
func (s *Synapses) IsEventDue(iSyn int) bool {
	return s.DelayQueue[iSyn]&(uint32(1)<<uint(s.DelayIdx[iSyn])) != 0
}

// AdvanceQueue clears the current slot and moves the cursor one step forward
// on the ring. Called exactly once per edge per simulation step, after the
// due-check and any resulting response update.
func (s *Synapses) AdvanceQueue(iSyn int) {
	s.DelayQueue[iSyn] &^= uint32(1) << uint(s.DelayIdx[iSyn])
	s.DelayIdx[iSyn]++
	if s.DelayIdx[iSyn] >= s.LdelayQueue[iSyn] {
		s.DelayIdx[iSyn] = 0
	}
}

// Post-side mirror of the queue, used by back-propagating models to delay the
// notification of a destination spike back to the edge's bookkeeping.

// SchedulePostArrival marks a post-side event arriving TotalDelayPost steps
// from now, with the same overrun rule as ScheduleArrival.
func (s *Synapses) SchedulePostArrival(iSyn int) error {
	idx := s.DelayIdxPost[iSyn] + s.TotalDelayPost[iSyn]
	if idx >= s.LdelayQueue[iSyn] {
		idx -= s.LdelayQueue[iSyn]
	}
	mask := uint32(1) << uint(idx)
	if s.DelayQueuePost[iSyn]&mask != 0 {
		return fmt.Errorf("synapse %d post slot %d: %w", iSyn, idx, ErrQueueOverrun)
	}
	s.DelayQueuePost[iSyn] |= mask
	return nil
}

// IsPostEventDue reports whether a post-side event is due at the current step.
func (s *Synapses) IsPostEventDue(iSyn int) bool {
	return s.DelayQueuePost[iSyn]&(uint32(1)<<uint(s.DelayIdxPost[iSyn])) != 0
}

// AdvancePostQueue clears the current post-side slot and advances its cursor.
func (s *Synapses) AdvancePostQueue(iSyn int) {
	s.DelayQueuePost[iSyn] &^= uint32(1) << uint(s.DelayIdxPost[iSyn])
	s.DelayIdxPost[iSyn]++
	if s.DelayIdxPost[iSyn] >= s.LdelayQueue[iSyn] {
		s.DelayIdxPost[iSyn] = 0
	}
}
