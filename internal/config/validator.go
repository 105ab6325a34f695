package config

import (
	"fmt"
	"strings"
)

// Validate checks the config for:
//   - Duplicate variable ids and duplicate states within a variable
//   - Edges referencing unknown variables or forming self-loops
//   - Tensor definitions referencing unknown variables or whose value
//     count disagrees with the declared dimensions
//
// Cycle detection is left to the network build, which rejects and rolls
// back offending edges.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string
	vars := make(map[string]VariableDef)

	for i, v := range cfg.Network.Variables {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("variables[%d]: id is required", i))
			continue
		}
		if _, ok := vars[v.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate variable id %q", v.ID))
			continue
		}
		vars[v.ID] = v
		if len(v.States) == 0 {
			errs = append(errs, fmt.Sprintf("variable %s: states must not be empty", v.ID))
		}
		seen := make(map[string]struct{}, len(v.States))
		for _, s := range v.States {
			if _, ok := seen[s]; ok {
				errs = append(errs, fmt.Sprintf("variable %s: duplicate state %q", v.ID, s))
			}
			seen[s] = struct{}{}
		}
	}

	for i, e := range cfg.Network.Edges {
		if _, ok := vars[e.Parent]; !ok {
			errs = append(errs, fmt.Sprintf("edges[%d]: unknown parent %q", i, e.Parent))
		}
		if _, ok := vars[e.Child]; !ok {
			errs = append(errs, fmt.Sprintf("edges[%d]: unknown child %q", i, e.Child))
		}
		if e.Parent == e.Child {
			errs = append(errs, fmt.Sprintf("edges[%d]: self-loop on %q", i, e.Parent))
		}
	}

	seenTensor := make(map[string]struct{})
	for i, t := range cfg.Network.Tensors {
		if _, ok := vars[t.Variable]; !ok {
			errs = append(errs, fmt.Sprintf("tensors[%d]: unknown variable %q", i, t.Variable))
			continue
		}
		if _, ok := seenTensor[t.Variable]; ok {
			errs = append(errs, fmt.Sprintf("tensors[%d]: duplicate tensor for %q", i, t.Variable))
		}
		seenTensor[t.Variable] = struct{}{}
		if len(t.Dimensions) == 0 {
			errs = append(errs, fmt.Sprintf("tensor %s: dimensions must not be empty", t.Variable))
			continue
		}
		size := 1
		for _, d := range t.Dimensions {
			size *= d
		}
		if len(t.Values) != size {
			errs = append(errs, fmt.Sprintf("tensor %s: %d values for %d cells", t.Variable, len(t.Values), size))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
