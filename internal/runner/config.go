package runner

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/spikegrid/pkg/connectivity"
	"github.com/sanonone/spikegrid/pkg/core"
)

// Config is the full YAML configuration of a simulation run.
type Config struct {
	// DataDir holds the checkpoint and spike-log files.
	DataDir string `yaml:"data_dir"`

	// HTTPAddr is the address of the metrics endpoint (e.g. ":9091").
	// Empty disables the HTTP server.
	HTTPAddr string `yaml:"http_addr"`

	Simulation SimulationConfig    `yaml:"simulation"`
	Network    connectivity.Params `yaml:"network"`
	Neurons    NeuronConfig        `yaml:"neurons"`
	Recorder   RecorderConfig      `yaml:"recorder"`
}

// SimulationConfig selects the model and the stepping parameters.
type SimulationConfig struct {
	Model  string  `yaml:"model"`   // "spiking" or "plastic"
	DeltaT float64 `yaml:"delta_t"` // seconds per step
	Steps  int     `yaml:"steps"`   // 0 = run until interrupted

	Workers     int `yaml:"workers"`
	QueueLength int `yaml:"queue_length"`

	MaxSynapsesPerNeuron int `yaml:"max_synapses_per_neuron"`

	// TauOverride replaces the per-type default time constant when nonzero.
	TauOverride float64 `yaml:"tau_override"`

	CheckpointInterval  time.Duration `yaml:"checkpoint_interval"`
	CheckpointThreshold int64         `yaml:"checkpoint_threshold"`
}

// NeuronConfig parameterizes the leaky threshold neurons driving the edges.
type NeuronConfig struct {
	// Threshold is the membrane potential at which a neuron fires.
	Threshold float64 `yaml:"threshold"`

	// Leak is the per-step decay fraction of the membrane potential.
	Leak float64 `yaml:"leak"`

	// InputRateHz is the rate of the Poisson background input per neuron.
	InputRateHz float64 `yaml:"input_rate_hz"`

	// RefractorySteps is the number of steps a neuron stays silent after
	// firing.
	RefractorySteps int `yaml:"refractory_steps"`

	// Seed makes the Poisson input reproducible.
	Seed int64 `yaml:"seed"`
}

// RecorderConfig controls state sampling during the run.
type RecorderConfig struct {
	// SampleEvery samples the accumulator aggregates every N steps.
	// 0 disables recording.
	SampleEvery int `yaml:"sample_every"`

	// Probes lists edge slots whose response trace is captured.
	Probes []int `yaml:"probes"`

	// CSVPath receives the sample series at the end of the run.
	CSVPath string `yaml:"csv_path"`
}

// DefaultConfig returns a small self-contained run: a 10x10 grid, spiking
// model, 10k steps at 0.1ms.
func DefaultConfig() Config {
	return Config{
		DataDir:  "./data",
		HTTPAddr: ":9091",
		Simulation: SimulationConfig{
			Model:                "spiking",
			DeltaT:               1e-4,
			Steps:                10000,
			Workers:              1,
			QueueLength:          core.MaxQueueLength,
			MaxSynapsesPerNeuron: 16,
			CheckpointInterval:   60 * time.Second,
			CheckpointThreshold:  1000,
		},
		Network: connectivity.Params{
			GridWidth:          10,
			GridHeight:         10,
			Radius:             2.5,
			ConnsPerNeuron:     8,
			ExcitatoryFraction: 0.8,
			RewireProb:         0.0,
			Seed:               42,
		},
		Neurons: NeuronConfig{
			Threshold:       5e-8,
			Leak:            0.05,
			InputRateHz:     20,
			RefractorySteps: 20,
			Seed:            42,
		},
		Recorder: RecorderConfig{
			SampleEvery: 10,
		},
	}
}

// LoadConfig reads the YAML configuration file using strict parsing.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig() // Start with defaults

	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}

	return cfg, nil
}

// Validate checks all parameter ranges before a run starts.
func (c Config) Validate() error {
	if _, err := core.ParseModel(c.Simulation.Model); err != nil {
		return err
	}
	if c.Simulation.DeltaT <= 0 {
		return fmt.Errorf("config: delta_t must be positive, got %g", c.Simulation.DeltaT)
	}
	if c.Simulation.Steps < 0 {
		return fmt.Errorf("config: steps must be non-negative, got %d", c.Simulation.Steps)
	}
	if c.Simulation.QueueLength < 1 || c.Simulation.QueueLength > core.MaxQueueLength {
		return fmt.Errorf("config: queue_length %d outside [1,%d]", c.Simulation.QueueLength, core.MaxQueueLength)
	}
	if c.Simulation.MaxSynapsesPerNeuron <= 0 {
		return fmt.Errorf("config: max_synapses_per_neuron must be positive, got %d", c.Simulation.MaxSynapsesPerNeuron)
	}
	if t := c.Simulation.TauOverride; t != 0 && (t <= 0 || t >= 100) {
		return fmt.Errorf("config: tau_override %g outside (0,100) seconds", t)
	}
	if c.Network.ConnsPerNeuron > c.Simulation.MaxSynapsesPerNeuron {
		return fmt.Errorf("config: conns_per_neuron %d exceeds max_synapses_per_neuron %d",
			c.Network.ConnsPerNeuron, c.Simulation.MaxSynapsesPerNeuron)
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if c.Neurons.Threshold <= 0 {
		return fmt.Errorf("config: neuron threshold must be positive, got %g", c.Neurons.Threshold)
	}
	if c.Neurons.Leak < 0 || c.Neurons.Leak > 1 {
		return fmt.Errorf("config: neuron leak %g outside [0,1]", c.Neurons.Leak)
	}
	if c.Neurons.InputRateHz < 0 {
		return fmt.Errorf("config: input_rate_hz must be non-negative, got %g", c.Neurons.InputRateHz)
	}
	if c.Neurons.RefractorySteps < 0 {
		return fmt.Errorf("config: refractory_steps must be non-negative, got %d", c.Neurons.RefractorySteps)
	}
	if c.Recorder.SampleEvery < 0 {
		return fmt.Errorf("config: sample_every must be non-negative, got %d", c.Recorder.SampleEvery)
	}
	return nil
}
