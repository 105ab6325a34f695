package config

// Config is the top-level YAML structure: engine tuning plus the network
// definition the server builds at startup and on hot reload.
type Config struct {
	Version string      `yaml:"version"`
	Engine  EngineConf  `yaml:"engine"`
	Network NetworkConf `yaml:"network"`
}

// EngineConf holds tunable concurrency and persistence settings.
type EngineConf struct {
	QueryWorkers   int    `yaml:"query_workers"`
	QueueDepth     int    `yaml:"queue_depth"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms"`
	HistoryPath    string `yaml:"history_path"` // empty = history disabled
}

// NetworkConf declares the Bayesian network: variables, edges, and
// conditional probability tensors.
type NetworkConf struct {
	Variables []VariableDef `yaml:"variables"`
	Edges     []EdgeDef     `yaml:"edges"`
	Tensors   []TensorDef   `yaml:"tensors"`
}

// VariableDef declares one discrete variable and its ordered states.
type VariableDef struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	States []string `yaml:"states"`
}

// EdgeDef declares a parent → child edge.
type EdgeDef struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// TensorDef declares the conditional distribution of one variable.
// Dimensions list the sorted-parent state counts followed by the
// variable's own state count; values are row-major with the own-state
// dimension fastest-varying.
type TensorDef struct {
	Variable   string    `yaml:"variable"`
	Dimensions []int     `yaml:"dimensions"`
	Values     []float64 `yaml:"values"`
	Normalize  bool      `yaml:"normalize"`
}
