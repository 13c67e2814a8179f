package mcp

// --- Tool Arguments ---

type StatusArgs struct{}

type StatusResult struct {
	RunID        string  `json:"run_id"`
	Model        string  `json:"model"`
	Step         uint64  `json:"step"`
	DeltaT       float64 `json:"delta_t"`
	Neurons      int     `json:"neurons"`
	LiveSynapses int     `json:"live_synapses"`
	Capacity     int     `json:"capacity"`
}

type StepArgs struct {
	Steps int `json:"steps,omitempty" jsonschema:"Number of simulation steps to run (default 1)"`
}

type StepResult struct {
	Step uint64 `json:"step"`
}

type FireArgs struct {
	Neuron int  `json:"neuron" jsonschema:"Index of the neuron to fire,required"`
	Post   bool `json:"post,omitempty" jsonschema:"description=If true, enter the spike on the post side of the neuron's incoming edges instead (only for models with back propagation)."`
}

type FireResult struct {
	Status string `json:"status"`
}

type ProbeArgs struct {
	Synapse int `json:"synapse" jsonschema:"Slot index of the synapse to inspect,required"`
}

type CheckpointArgs struct{}

type CheckpointResult struct {
	Step   uint64 `json:"step"`
	Status string `json:"status"`
}

type RecentSpikesArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max number of events to return (default 50)"`
}

type SpikeEventInfo struct {
	Step    uint64 `json:"step"`
	Synapse uint32 `json:"synapse"`
	Side    string `json:"side"`
}

type RecentSpikesResult struct {
	Events []SpikeEventInfo `json:"events"`
}
