package bn

import "sort"

// Variable is a discrete random variable: a fixed, ordered set of named
// states plus the ids of its parent variables. State order is frozen at
// construction; the state→index map is never mutated afterwards.
type Variable struct {
	ID     string
	Name   string
	States []string

	stateIndex map[string]int
	parents    map[string]struct{}
}

// NewVariable builds a variable and its state index map.
func NewVariable(id, name string, states []string) *Variable {
	idx := make(map[string]int, len(states))
	for i, s := range states {
		idx[s] = i
	}
	return &Variable{
		ID:         id,
		Name:       name,
		States:     states,
		stateIndex: idx,
		parents:    make(map[string]struct{}),
	}
}

// StateIndex returns the index of a state, or -1 if the state is unknown.
func (v *Variable) StateIndex(state string) int {
	if i, ok := v.stateIndex[state]; ok {
		return i
	}
	return -1
}

// HasState reports whether the named state exists.
func (v *Variable) HasState(state string) bool {
	_, ok := v.stateIndex[state]
	return ok
}

// NumStates returns the number of states.
func (v *Variable) NumStates() int { return len(v.States) }

// AddParent records a parent id (idempotent).
func (v *Variable) AddParent(id string) { v.parents[id] = struct{}{} }

// RemoveParent drops a parent id (idempotent).
func (v *Variable) RemoveParent(id string) { delete(v.parents, id) }

// HasParent reports whether id is a parent of v.
func (v *Variable) HasParent(id string) bool {
	_, ok := v.parents[id]
	return ok
}

// NumParents returns the number of parents.
func (v *Variable) NumParents() int { return len(v.parents) }

// ParentIDs returns the parent ids in ascending order. This ordering is
// the canonical tensor dimension order: dimension i of an attached tensor
// corresponds to ParentIDs()[i], independent of edge insertion order.
func (v *Variable) ParentIDs() []string {
	ids := make([]string, 0, len(v.parents))
	for id := range v.parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clone returns a deep copy sharing no mutable state with v.
func (v *Variable) clone() *Variable {
	c := NewVariable(v.ID, v.Name, append([]string(nil), v.States...))
	for id := range v.parents {
		c.parents[id] = struct{}{}
	}
	return c
}
