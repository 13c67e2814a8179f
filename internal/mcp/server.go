package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/spikegrid/pkg/engine"
)

func NewMCPServer(sim *engine.Engine) *mcp.Server {
	service := NewService(sim)

	// Create Server instance
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "SpikeGrid Simulation",
		Version: "0.1.0",
	}, nil) // Options can be nil for default

	// Register Tools using the Generic AddTool which inspects structs!

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sim_status",
		Description: "Report the current simulation state: run id, model, step counter and synapse counts.",
	}, service.Status)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sim_step",
		Description: "Advance the simulation by a number of steps.",
	}, service.StepN)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sim_fire_neuron",
		Description: "Enter a spike on all outgoing edges of a neuron (or incoming edges with post=true).",
	}, service.Fire)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sim_probe_synapse",
		Description: "Inspect the full state of one synapse: response, weight, decay and delay queue.",
	}, service.Probe)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sim_checkpoint",
		Description: "Write a checkpoint of the full synapse state to disk.",
	}, service.Checkpoint)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sim_recent_spikes",
		Description: "List the most recent spike events recorded since the last checkpoint.",
	}, service.RecentSpikes)

	return s
}
