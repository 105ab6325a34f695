package bn

import (
	"fmt"

	"github.com/probkit/beliefnet/internal/config"
)

// Build constructs a Network from a validated NetworkConf. Variables are
// added first, then edges (cycles are rejected with rollback), then
// tensors (shape-checked against the final topology).
func Build(cfg *config.NetworkConf) (*Network, error) {
	n := NewNetwork()
	for _, v := range cfg.Variables {
		if err := n.AddVariable(v.ID, v.Name, v.States); err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.ID, err)
		}
	}
	for _, e := range cfg.Edges {
		if err := n.AddEdge(e.Parent, e.Child); err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.Parent, e.Child, err)
		}
	}
	for _, td := range cfg.Tensors {
		t, err := NewTensor(td.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", td.Variable, err)
		}
		if err := t.SetValues(td.Values); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", td.Variable, err)
		}
		if td.Normalize {
			t.Normalize()
		}
		if err := n.SetTensor(td.Variable, t); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", td.Variable, err)
		}
	}
	return n, nil
}
