package infer

import (
	"fmt"

	"github.com/probkit/beliefnet/internal/bn"
)

// Diagnose answers diagnostic (effect → cause) queries: a posterior
// belief over upstream query variables given evidence observed on their
// downstream effects. Rather than reusing the heuristic message-passing
// sweeps in reverse, each query variable's belief is re-derived exactly
// from joint-probability marginalization, so the result honors the
// network's full semantics and always sums to 1 per variable. The cost is
// one brute-force enumeration per query variable.
//
// Influence traces are labeled source = effect (evidence) and target =
// cause (query), with the path rendered from the effect back to the
// cause.
func Diagnose(net *bn.Network, query []string, evidence map[string]string, trace bool) (Beliefs, []InfluenceTrace, error) {
	if err := checkQueryAndEvidence(net, query, evidence); err != nil {
		return nil, nil, err
	}

	beliefs := initBeliefs(net, evidence)
	for _, id := range query {
		if _, observed := evidence[id]; observed {
			continue // evidence beliefs stay one-hot
		}
		res, err := Enumerate(net, []string{id}, evidence)
		if err != nil {
			return nil, nil, fmt.Errorf("diagnose %q: %w", id, err)
		}
		b := beliefs[id]
		for _, cell := range res.Cells {
			b[cell.Assignment[id]] = cell.Probability
		}
	}

	var traces []InfluenceTrace
	if trace {
		traces = traceInfluence(net, beliefs, query, evidence, true)
	}
	return beliefs, traces, nil
}
