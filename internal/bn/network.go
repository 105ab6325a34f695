package bn

import (
	"fmt"
	"sort"
)

// Network owns all variables and their probability tensors, maintains DAG
// validity and a cached topological order, and answers joint and
// conditional probability queries.
//
// Mutations are not safe for concurrent callers; inference reads are pure.
// Callers needing concurrent access should mutate a Clone and swap it in.
type Network struct {
	vars    map[string]*Variable
	tensors map[string]*Tensor
	order   []string // cached topological order, valid at all times
}

// NewNetwork allocates an empty network.
func NewNetwork() *Network {
	return &Network{
		vars:    make(map[string]*Variable),
		tensors: make(map[string]*Tensor),
	}
}

// AddVariable inserts a new isolated variable and refreshes the
// topological order.
func (n *Network) AddVariable(id, name string, states []string) error {
	if _, ok := n.vars[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	n.vars[id] = NewVariable(id, name, states)
	// A new isolated node is always orderable.
	n.order, _ = n.topologicalSort()
	return nil
}

// AddEdge records parentID as a parent of childID. The full topological
// sort is recomputed; if the edge closes a cycle it is rolled back and
// ErrCycle is returned, leaving the network in its pre-call state.
func (n *Network) AddEdge(parentID, childID string) error {
	if _, ok := n.vars[parentID]; !ok {
		return fmt.Errorf("%w: parent %q", ErrUnknownID, parentID)
	}
	child, ok := n.vars[childID]
	if !ok {
		return fmt.Errorf("%w: child %q", ErrUnknownID, childID)
	}
	if parentID == childID {
		return fmt.Errorf("%w: %q", ErrSelfLoop, parentID)
	}
	child.AddParent(parentID)
	order, err := n.topologicalSort()
	if err != nil {
		child.RemoveParent(parentID)
		return fmt.Errorf("%w: %q -> %q", ErrCycle, parentID, childID)
	}
	n.order = order
	return nil
}

// SetTensor attaches a conditional probability tensor to a variable.
// The tensor's dimensions must match the variable's sorted parent state
// counts followed by its own state count.
func (n *Network) SetTensor(id string, t *Tensor) error {
	v, ok := n.vars[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownID, id)
	}
	want := make([]int, 0, v.NumParents()+1)
	for _, pid := range v.ParentIDs() {
		want = append(want, n.vars[pid].NumStates())
	}
	want = append(want, v.NumStates())
	got := t.Dims()
	if len(got) != len(want) {
		return fmt.Errorf("%w: variable %q needs %d dimensions, tensor has %d",
			ErrShapeMismatch, id, len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: variable %q dimension %d should be %d, tensor has %d",
				ErrShapeMismatch, id, i, want[i], got[i])
		}
	}
	n.tensors[id] = t
	return nil
}

// SetProbability writes one tensor cell addressed by state names instead
// of raw indices. The parent assignment must cover every parent of id.
func (n *Network) SetProbability(id string, parentStates map[string]string, ownState string, value float64) error {
	v, ok := n.vars[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownID, id)
	}
	t, ok := n.tensors[id]
	if !ok {
		return fmt.Errorf("%w: variable %q", ErrMissingTable, id)
	}
	parentIdx, err := n.parentIndexVector(v, parentStates)
	if err != nil {
		return err
	}
	ownIdx := v.StateIndex(ownState)
	if ownIdx < 0 {
		return fmt.Errorf("%w: %q has no state %q", ErrUnknownState, id, ownState)
	}
	return t.Set(parentIdx, ownIdx, value)
}

// Normalize rescales every parent-configuration slice of id's tensor to
// sum to 1.
func (n *Network) Normalize(id string) error {
	if _, ok := n.vars[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownID, id)
	}
	t, ok := n.tensors[id]
	if !ok {
		return fmt.Errorf("%w: variable %q", ErrMissingTable, id)
	}
	t.Normalize()
	return nil
}

// Variable returns the variable with the given id.
func (n *Network) Variable(id string) (*Variable, bool) {
	v, ok := n.vars[id]
	return v, ok
}

// Tensor returns the tensor attached to id, if any.
func (n *Network) Tensor(id string) (*Tensor, bool) {
	t, ok := n.tensors[id]
	return t, ok
}

// HasTensor reports whether a tensor is attached to id.
func (n *Network) HasTensor(id string) bool {
	_, ok := n.tensors[id]
	return ok
}

// NumVariables returns the number of variables.
func (n *Network) NumVariables() int { return len(n.vars) }

// VariableIDs returns all variable ids in ascending order.
func (n *Network) VariableIDs() []string {
	ids := make([]string, 0, len(n.vars))
	for id := range n.vars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TopologicalOrder returns a copy of the cached topological order.
func (n *Network) TopologicalOrder() []string {
	return append([]string(nil), n.order...)
}

// Children returns the ids of the direct children of id, in ascending order.
func (n *Network) Children(id string) []string {
	var out []string
	for cid, v := range n.vars {
		if v.HasParent(id) {
			out = append(out, cid)
		}
	}
	sort.Strings(out)
	return out
}

// topologicalSort runs Kahn's algorithm over the current structure.
// It fails if residual nodes remain, which means the graph has a cycle.
func (n *Network) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(n.vars))
	for id, v := range n.vars {
		inDegree[id] = v.NumParents()
	}

	// Seed with zero in-degree nodes, sorted for deterministic output.
	var queue []string
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(n.vars))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var ready []string
		for id, v := range n.vars {
			if v.HasParent(current) {
				inDegree[id]--
				if inDegree[id] == 0 {
					ready = append(ready, id)
				}
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(n.vars) {
		return nil, fmt.Errorf("%w: %d of %d variables orderable", ErrCycle, len(result), len(n.vars))
	}
	return result, nil
}

// ConditionalProbability resolves P(id=ownState | parentStates). The
// parent index vector is built in ascending-sorted parent-id order to
// match the tensor's dimension order.
func (n *Network) ConditionalProbability(id, ownState string, parentStates map[string]string) (float64, error) {
	v, ok := n.vars[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownID, id)
	}
	t, ok := n.tensors[id]
	if !ok {
		return 0, fmt.Errorf("%w: variable %q", ErrMissingTable, id)
	}

	parentIdx, err := n.parentIndexVector(v, parentStates)
	if err != nil {
		return 0, err
	}

	ownIdx := v.StateIndex(ownState)
	if ownIdx < 0 {
		return 0, fmt.Errorf("%w: %q has no state %q", ErrUnknownState, id, ownState)
	}
	return t.At(parentIdx, ownIdx)
}

// parentIndexVector resolves a parent state assignment into the index
// vector the tensor expects, in ascending-sorted parent-id order.
func (n *Network) parentIndexVector(v *Variable, parentStates map[string]string) ([]int, error) {
	parentIdx := make([]int, 0, v.NumParents())
	for _, pid := range v.ParentIDs() {
		state, ok := parentStates[pid]
		if !ok {
			return nil, fmt.Errorf("%w: parent %q of %q", ErrMissingParentState, pid, v.ID)
		}
		idx := n.vars[pid].StateIndex(state)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q has no state %q", ErrUnknownState, pid, state)
		}
		parentIdx = append(parentIdx, idx)
	}
	return parentIdx, nil
}

// JointProbability evaluates P(assignment) for a complete world: every
// variable must be assigned. Variables are visited in topological order
// and their conditional probabilities multiplied.
func (n *Network) JointProbability(assignment map[string]string) (float64, error) {
	joint := 1.0
	for _, id := range n.order {
		state, ok := assignment[id]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingAssignment, id)
		}
		v := n.vars[id]
		parentStates := make(map[string]string, v.NumParents())
		for _, pid := range v.ParentIDs() {
			ps, ok := assignment[pid]
			if !ok {
				return 0, fmt.Errorf("%w: parent %q", ErrMissingAssignment, pid)
			}
			parentStates[pid] = ps
		}
		p, err := n.ConditionalProbability(id, state, parentStates)
		if err != nil {
			return 0, err
		}
		joint *= p
	}
	return joint, nil
}

// Clone returns a deep copy of the network. Inference over the copy is
// unaffected by later mutations of the original.
func (n *Network) Clone() *Network {
	c := NewNetwork()
	for id, v := range n.vars {
		c.vars[id] = v.clone()
	}
	for id, t := range n.tensors {
		c.tensors[id] = t.clone()
	}
	c.order = append([]string(nil), n.order...)
	return c
}
