package runner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"UnknownModel", func(c *Config) { c.Simulation.Model = "quantum" }},
		{"ZeroDeltaT", func(c *Config) { c.Simulation.DeltaT = 0 }},
		{"NegativeSteps", func(c *Config) { c.Simulation.Steps = -1 }},
		{"QueueTooLong", func(c *Config) { c.Simulation.QueueLength = 64 }},
		{"TauOverrideTooLarge", func(c *Config) { c.Simulation.TauOverride = 100 }},
		{"TauOverrideNegative", func(c *Config) { c.Simulation.TauOverride = -1 }},
		{"ConnsOverMax", func(c *Config) {
			c.Network.ConnsPerNeuron = 99
			c.Simulation.MaxSynapsesPerNeuron = 4
		}},
		{"BadExcitatoryFraction", func(c *Config) { c.Network.ExcitatoryFraction = 2 }},
		{"BadRewireProb", func(c *Config) { c.Network.RewireProb = 1.5 }},
		{"ZeroThreshold", func(c *Config) { c.Neurons.Threshold = 0 }},
		{"LeakOverOne", func(c *Config) { c.Neurons.Leak = 1.1 }},
		{"NegativeRate", func(c *Config) { c.Neurons.InputRateHz = -5 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("EmptyPathUsesDefaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Simulation.Model != "spiking" {
			t.Errorf("model: got %q", cfg.Simulation.Model)
		}
	})

	t.Run("OverridesDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.yaml")
		doc := `
data_dir: /tmp/spikes
simulation:
  model: plastic
  delta_t: 0.001
  workers: 4
network:
  grid_width: 4
  grid_height: 4
  radius: 2.0
  conns_per_neuron: 3
  excitatory_fraction: 0.5
`
		if err := os.WriteFile(path, []byte(doc), 0666); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Simulation.Model != "plastic" || cfg.Simulation.Workers != 4 {
			t.Errorf("simulation section not applied: %+v", cfg.Simulation)
		}
		if cfg.Network.GridWidth != 4 || cfg.Network.Radius != 2.0 {
			t.Errorf("network section not applied: %+v", cfg.Network)
		}
		// Untouched sections keep their defaults.
		if cfg.Neurons.Threshold != DefaultConfig().Neurons.Threshold {
			t.Errorf("neuron defaults lost: %+v", cfg.Neurons)
		}
	})

	t.Run("RejectsUnknownFields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.yaml")
		if err := os.WriteFile(path, []byte("no_such_field: 1\n"), 0666); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected strict-parsing error for unknown field")
		}
	})
}
