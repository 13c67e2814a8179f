package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/spikegrid/pkg/engine"
	"github.com/sanonone/spikegrid/pkg/persistence"
)

type Service struct {
	sim *engine.Engine
}

func NewService(sim *engine.Engine) *Service {
	return &Service{sim: sim}
}

// --- Tool Handlers ---

func (s *Service) Status(ctx context.Context, req *mcp.CallToolRequest, args StatusArgs) (*mcp.CallToolResult, StatusResult, error) {
	return nil, StatusResult{
		RunID:        s.sim.RunID(),
		Model:        s.sim.Model().String(),
		Step:         s.sim.Step(),
		DeltaT:       s.sim.DeltaT(),
		Neurons:      s.sim.Syn.NumNeurons(),
		LiveSynapses: s.sim.Syn.LiveCount(),
		Capacity:     s.sim.Syn.Capacity(),
	}, nil
}

func (s *Service) StepN(ctx context.Context, req *mcp.CallToolRequest, args StepArgs) (*mcp.CallToolResult, StepResult, error) {
	n := args.Steps
	if n <= 0 {
		n = 1
	}
	s.sim.AdvanceN(n)
	return nil, StepResult{Step: s.sim.Step()}, nil
}

func (s *Service) Fire(ctx context.Context, req *mcp.CallToolRequest, args FireArgs) (*mcp.CallToolResult, FireResult, error) {
	var err error
	if args.Post {
		err = s.sim.FireNeuronPost(args.Neuron)
	} else {
		err = s.sim.FireNeuron(args.Neuron)
	}
	if err != nil {
		return nil, FireResult{}, err
	}
	return nil, FireResult{Status: "fired"}, nil
}

func (s *Service) Probe(ctx context.Context, req *mcp.CallToolRequest, args ProbeArgs) (*mcp.CallToolResult, engine.SynapseState, error) {
	state, err := s.sim.ProbeSynapse(args.Synapse)
	if err != nil {
		return nil, engine.SynapseState{}, err
	}
	return nil, state, nil
}

func (s *Service) Checkpoint(ctx context.Context, req *mcp.CallToolRequest, args CheckpointArgs) (*mcp.CallToolResult, CheckpointResult, error) {
	if err := s.sim.SaveCheckpoint(); err != nil {
		return nil, CheckpointResult{}, fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil, CheckpointResult{Step: s.sim.Step(), Status: "saved"}, nil
}

func (s *Service) RecentSpikes(ctx context.Context, req *mcp.CallToolRequest, args RecentSpikesArgs) (*mcp.CallToolResult, RecentSpikesResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}

	// The log holds events since the last checkpoint; keep the most recent
	// `limit` of them.
	var events []SpikeEventInfo
	err := s.sim.ReplaySpikes(func(ev persistence.SpikeEvent) error {
		side := "pre"
		if ev.Op == persistence.OpCodePostSpike {
			side = "post"
		}
		events = append(events, SpikeEventInfo{Step: ev.Step, Synapse: ev.Syn, Side: side})
		if len(events) > limit {
			events = events[1:]
		}
		return nil
	})
	if err != nil {
		return nil, RecentSpikesResult{}, err
	}
	return nil, RecentSpikesResult{Events: events}, nil
}
