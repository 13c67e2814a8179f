package core

import (
	"errors"
	"testing"
)

// shortQueueSynapse builds a 4-slot queue edge with a 2-step delay and a
// 10-second time constant at deltaT=1, small enough to walk by hand.
func shortQueueSynapse(t *testing.T) (*Synapses, int) {
	t.Helper()
	s := mustSetup(t, Config{NumNeurons: 2, MaxSynapsesPerNeuron: 1, QueueLength: 4})
	iSyn, err := s.AddSynapse(0, 1, s.Summation(), 1.0, TypeII)
	if err != nil {
		t.Fatalf("AddSynapse failed: %v", err)
	}
	s.TotalDelay[iSyn] = 2
	s.Tau[iSyn] = 10.0
	if err := s.ResetSynapse(iSyn, 1.0); err != nil {
		t.Fatalf("ResetSynapse failed: %v", err)
	}
	return s, iSyn
}

func TestScheduleArrivalDueAtDelay(t *testing.T) {
	s, iSyn := shortQueueSynapse(t)

	if err := s.ScheduleArrival(iSyn); err != nil {
		t.Fatalf("ScheduleArrival failed: %v", err)
	}

	// With a 2-step delay the event must be due exactly at step 2.
	for step := 0; step < 4; step++ {
		due := s.IsEventDue(iSyn)
		want := step == 2
		if due != want {
			t.Errorf("step %d: due=%v, want %v", step, due, want)
		}
		s.AdvanceQueue(iSyn)
	}

	if s.DelayQueue[iSyn] != 0 {
		t.Errorf("queue word not empty after full period: %#b", s.DelayQueue[iSyn])
	}
	if s.DelayIdx[iSyn] != 0 {
		t.Errorf("cursor did not wrap to 0: %d", s.DelayIdx[iSyn])
	}
}

func TestScheduleArrivalWrapsRing(t *testing.T) {
	s, iSyn := shortQueueSynapse(t)

	// Advance the cursor to 3 so the target slot (3+2) wraps to 1.
	for i := 0; i < 3; i++ {
		s.AdvanceQueue(iSyn)
	}
	if err := s.ScheduleArrival(iSyn); err != nil {
		t.Fatal(err)
	}
	if s.DelayQueue[iSyn] != 1<<1 {
		t.Errorf("queue word %#b, want bit 1 set", s.DelayQueue[iSyn])
	}

	s.AdvanceQueue(iSyn) // cursor 3 -> 0
	s.AdvanceQueue(iSyn) // cursor 0 -> 1
	if !s.IsEventDue(iSyn) {
		t.Error("event not due after wrapping two steps")
	}
}

func TestScheduleArrivalOverrun(t *testing.T) {
	s, iSyn := shortQueueSynapse(t)

	if err := s.ScheduleArrival(iSyn); err != nil {
		t.Fatal(err)
	}
	err := s.ScheduleArrival(iSyn)
	if !errors.Is(err, ErrQueueOverrun) {
		t.Errorf("got %v, want ErrQueueOverrun", err)
	}

	// The original event survives the rejected entry.
	s.AdvanceQueue(iSyn)
	s.AdvanceQueue(iSyn)
	if !s.IsEventDue(iSyn) {
		t.Error("original event lost after overrun rejection")
	}
}

func TestAdvanceQueueConsumesEvent(t *testing.T) {
	s, iSyn := shortQueueSynapse(t)

	if err := s.ScheduleArrival(iSyn); err != nil {
		t.Fatal(err)
	}
	s.AdvanceQueue(iSyn)
	s.AdvanceQueue(iSyn)
	if !s.IsEventDue(iSyn) {
		t.Fatal("event not due at its slot")
	}
	s.AdvanceQueue(iSyn)

	// One scheduled event produces exactly one due step per ring period.
	for step := 0; step < 8; step++ {
		if s.IsEventDue(iSyn) {
			t.Errorf("step %d after consumption: spurious due event", step)
		}
		s.AdvanceQueue(iSyn)
	}
}

func TestPostQueueMirrorsPreQueue(t *testing.T) {
	s, iSyn := shortQueueSynapse(t)
	s.TotalDelayPost[iSyn] = 2

	if err := s.SchedulePostArrival(iSyn); err != nil {
		t.Fatal(err)
	}
	if err := s.SchedulePostArrival(iSyn); !errors.Is(err, ErrQueueOverrun) {
		t.Errorf("post overrun: got %v, want ErrQueueOverrun", err)
	}

	for step := 0; step < 4; step++ {
		due := s.IsPostEventDue(iSyn)
		want := step == 2
		if due != want {
			t.Errorf("post step %d: due=%v, want %v", step, due, want)
		}
		s.AdvancePostQueue(iSyn)
	}
}
