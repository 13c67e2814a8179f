package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/spikegrid/internal/mcp"
	"github.com/sanonone/spikegrid/internal/runner"
	"github.com/sanonone/spikegrid/pkg/core"
	"github.com/sanonone/spikegrid/pkg/engine"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML run configuration (defaults apply when empty)")
	dataDir := flag.String("data-dir", "", "Override the data directory from the configuration")
	httpAddr := flag.String("http-addr", "", "Override the metrics endpoint address (e.g. :9091)")
	mcpMode := flag.Bool("mcp", false, "Serve the simulation as an MCP server over stdio instead of running the step loop")

	flag.Parse()

	cfg, err := runner.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	// Cancel the run context on Ctrl+C; the runner checkpoints on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *mcpMode {
		if err := runMCP(ctx, cfg); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}
		return
	}

	if err := runner.Run(ctx, cfg); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}

// runMCP opens the engine without the step loop and hands control to an MCP
// client on stdio, which drives stepping, probing and checkpointing itself.
func runMCP(ctx context.Context, cfg runner.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	model, err := core.ParseModel(cfg.Simulation.Model)
	if err != nil {
		return err
	}

	sim, err := engine.Open(engine.Options{
		DataDir:                 cfg.DataDir,
		CheckpointFilename:      "spikegrid.ckpt",
		SpikeLogFilename:        "spikegrid.spk",
		AutoCheckpointInterval:  cfg.Simulation.CheckpointInterval,
		AutoCheckpointThreshold: cfg.Simulation.CheckpointThreshold,
		Model:                   model,
		Workers:                 cfg.Simulation.Workers,
		NumNeurons:              cfg.Network.GridWidth * cfg.Network.GridHeight,
		MaxSynapsesPerNeuron:    cfg.Simulation.MaxSynapsesPerNeuron,
		QueueLength:             cfg.Simulation.QueueLength,
		DeltaT:                  cfg.Simulation.DeltaT,
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	server := mcp.NewMCPServer(sim)
	return server.Run(ctx, &sdk.StdioTransport{})
}
