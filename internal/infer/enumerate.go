// Package infer provides the inference algorithms over an immutable
// network snapshot: brute-force marginal enumeration, forward belief
// propagation, and reverse (diagnostic) belief propagation. All functions
// are pure reads; they never mutate the network.
package infer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/probkit/beliefnet/internal/bn"
)

// normEpsilon guards the final normalization of a posterior.
const normEpsilon = 1e-10

// Cell is one scored assignment of the query variables.
type Cell struct {
	Assignment  map[string]string `json:"assignment"`
	Probability float64           `json:"probability"`
}

// Key renders the assignment canonically as "id=state,id=state" with ids
// in ascending order.
func (c Cell) Key() string {
	ids := make([]string, 0, len(c.Assignment))
	for id := range c.Assignment {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id + "=" + c.Assignment[id]
	}
	return strings.Join(parts, ",")
}

// EnumerationResult is the normalized posterior over all query
// assignments. Skipped counts sum combinations whose joint evaluation
// failed (typically a missing tensor); their mass is silently dropped,
// so a nonzero Skipped means the posterior is conditioned on less than
// the full assignment space.
type EnumerationResult struct {
	Cells   []Cell `json:"cells"`
	Skipped int    `json:"skipped"`
}

// Enumerate computes the exact posterior over the query variables given
// evidence by scoring every full assignment of the query set against the
// sum over every assignment of the remaining unobserved variables. The
// work is exponential in the number of non-evidence variables.
func Enumerate(net *bn.Network, query []string, evidence map[string]string) (*EnumerationResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("enumerate: query set is empty")
	}
	for _, id := range query {
		if _, ok := net.Variable(id); !ok {
			return nil, fmt.Errorf("enumerate: %w: %q", bn.ErrUnknownID, id)
		}
		if _, observed := evidence[id]; observed {
			return nil, fmt.Errorf("enumerate: query variable %q is also evidence", id)
		}
	}
	for id, state := range evidence {
		v, ok := net.Variable(id)
		if !ok {
			return nil, fmt.Errorf("enumerate: %w: evidence %q", bn.ErrUnknownID, id)
		}
		if !v.HasState(state) {
			return nil, fmt.Errorf("enumerate: %w: %q has no state %q", bn.ErrUnknownState, id, state)
		}
	}

	// Variables that are neither evidence nor query are summed out.
	var sumVars []string
	querySet := make(map[string]struct{}, len(query))
	for _, id := range query {
		querySet[id] = struct{}{}
	}
	for _, id := range net.VariableIDs() {
		if _, observed := evidence[id]; observed {
			continue
		}
		if _, queried := querySet[id]; queried {
			continue
		}
		sumVars = append(sumVars, id)
	}

	res := &EnumerationResult{}
	full := make(map[string]string, net.NumVariables())
	for id, state := range evidence {
		full[id] = state
	}

	qo := newOdometer(net, query)
	for qo.next() {
		qo.apply(full)

		mass := 0.0
		so := newOdometer(net, sumVars)
		for so.next() {
			so.apply(full)
			p, err := net.JointProbability(full)
			if err != nil {
				res.Skipped++
				continue
			}
			mass += p
		}

		res.Cells = append(res.Cells, Cell{Assignment: qo.snapshot(), Probability: mass})
	}

	total := 0.0
	for _, c := range res.Cells {
		total += c.Probability
	}
	if total > normEpsilon {
		for i := range res.Cells {
			res.Cells[i].Probability /= total
		}
	}
	return res, nil
}

// odometer iterates the Cartesian product of the state lists of a set of
// variables using an explicit index vector, least-significant digit last.
// An empty variable set yields exactly one (empty) assignment.
type odometer struct {
	ids     []string
	states  [][]string
	digits  []int
	started bool
	done    bool
}

func newOdometer(net *bn.Network, ids []string) *odometer {
	o := &odometer{
		ids:    ids,
		states: make([][]string, len(ids)),
		digits: make([]int, len(ids)),
	}
	for i, id := range ids {
		v, _ := net.Variable(id)
		o.states[i] = v.States
	}
	return o
}

// next advances to the following combination; it returns false once the
// product space is exhausted.
func (o *odometer) next() bool {
	if o.done {
		return false
	}
	if !o.started {
		o.started = true
		if len(o.ids) == 0 {
			o.done = true // one empty assignment, then stop
		}
		return true
	}
	for i := len(o.digits) - 1; i >= 0; i-- {
		o.digits[i]++
		if o.digits[i] < len(o.states[i]) {
			return true
		}
		o.digits[i] = 0
	}
	o.done = true
	return false
}

// apply writes the current combination into dst.
func (o *odometer) apply(dst map[string]string) {
	for i, id := range o.ids {
		dst[id] = o.states[i][o.digits[i]]
	}
}

// snapshot returns the current combination as a fresh map.
func (o *odometer) snapshot() map[string]string {
	m := make(map[string]string, len(o.ids))
	o.apply(m)
	return m
}
