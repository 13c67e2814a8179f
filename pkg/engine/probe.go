package engine

import (
	"fmt"

	"github.com/sanonone/spikegrid/pkg/core"
)

// SynapseState is a point-in-time copy of one edge's full state, for
// inspection tooling.
type SynapseState struct {
	ISyn   int     `json:"i_syn"`
	Source int     `json:"source"`
	Dest   int     `json:"dest"`
	Type   string  `json:"type"`
	PSR    float64 `json:"psr"`
	W      float64 `json:"w"`
	Decay  float64 `json:"decay"`
	Tau    float64 `json:"tau"`

	TotalDelay  int32  `json:"total_delay"`
	QueueWord   uint32 `json:"queue_word"`
	QueueCursor int32  `json:"queue_cursor"`
	QueueLength int32  `json:"queue_length"`

	EventDue bool `json:"event_due"`
}

// ProbeSynapse copies the state of one live edge.
func (e *Engine) ProbeSynapse(iSyn int) (SynapseState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if iSyn < 0 || iSyn >= e.Syn.Capacity() {
		return SynapseState{}, fmt.Errorf("engine: synapse %d out of range [0,%d)", iSyn, e.Syn.Capacity())
	}
	if !e.Syn.InUse[iSyn] {
		return SynapseState{}, fmt.Errorf("engine: synapse %d: %w", iSyn, core.ErrSlotNotLive)
	}

	return SynapseState{
		ISyn:        iSyn,
		Source:      int(e.Syn.SourceNeuron[iSyn]),
		Dest:        int(e.Syn.DestNeuron[iSyn]),
		Type:        e.Syn.Type[iSyn].String(),
		PSR:         e.Syn.PSR[iSyn],
		W:           e.Syn.W[iSyn],
		Decay:       e.Syn.Decay[iSyn],
		Tau:         e.Syn.Tau[iSyn],
		TotalDelay:  e.Syn.TotalDelay[iSyn],
		QueueWord:   e.Syn.DelayQueue[iSyn],
		QueueCursor: e.Syn.DelayIdx[iSyn],
		QueueLength: e.Syn.LdelayQueue[iSyn],
		EventDue:    e.Syn.IsEventDue(iSyn),
	}, nil
}
