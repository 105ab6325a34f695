package infer

import (
	"sort"
	"strings"

	"github.com/probkit/beliefnet/internal/bn"
)

// InfluenceTrace attributes a posterior shift in a target variable to one
// directed evidence-to-query path. Strength is the arithmetic mean of the
// target's final belief vector and PerState is that vector verbatim, so
// the value is identical across all paths between the same pair: it
// characterizes the target's posterior, not the path-specific
// contribution.
type InfluenceTrace struct {
	Source   string             `json:"source"`
	Target   string             `json:"target"`
	Path     string             `json:"path"`
	Strength float64            `json:"strength"`
	PerState map[string]float64 `json:"per_state"`
}

// traceInfluence enumerates, for every (evidence, query) pair, all simple
// directed paths between them and records one trace per path. With
// reversed=false paths run evidence → query along child edges; with
// reversed=true (diagnostic queries) they run along the same edges from
// the evidence's ancestry toward the query, and source stays the
// evidence (effect) while target stays the query (cause).
func traceInfluence(net *bn.Network, beliefs Beliefs, query []string, evidence map[string]string, reversed bool) []InfluenceTrace {
	traces := []InfluenceTrace{}

	evidenceIDs := make([]string, 0, len(evidence))
	for id := range evidence {
		evidenceIDs = append(evidenceIDs, id)
	}
	sort.Strings(evidenceIDs)

	for _, evidenceID := range evidenceIDs {
		for _, queryID := range query {
			if evidenceID == queryID {
				continue
			}
			var paths [][]string
			if reversed {
				// Effect → cause: walk the DAG edges from the cause down
				// to the effect, then flip each path.
				for _, p := range findPaths(net, queryID, evidenceID) {
					paths = append(paths, reversePath(p))
				}
			} else {
				paths = findPaths(net, evidenceID, queryID)
			}

			for _, path := range paths {
				trace := InfluenceTrace{
					Source: evidenceID,
					Target: queryID,
					Path:   strings.Join(path, "->"),
				}
				if b, ok := beliefs[queryID]; ok {
					sum := 0.0
					per := make(map[string]float64, len(b))
					for s, p := range b {
						sum += p
						per[s] = p
					}
					trace.Strength = sum / float64(len(b))
					trace.PerState = per
				}
				traces = append(traces, trace)
			}
		}
	}
	return traces
}

// findPaths enumerates every simple directed path from source to target
// along parent → child edges, using an explicit stack instead of
// recursion. The graph is acyclic, so termination needs no visited set
// beyond the current path.
func findPaths(net *bn.Network, source, target string) [][]string {
	type frame struct {
		id       string
		children []string
		next     int
	}

	var paths [][]string
	stack := []frame{{id: source, children: net.Children(source)}}
	path := []string{source}

	if source == target {
		return [][]string{{source}}
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			continue
		}
		child := top.children[top.next]
		top.next++

		if onPath(path, child) {
			continue
		}
		if child == target {
			found := make([]string, len(path)+1)
			copy(found, path)
			found[len(path)] = child
			paths = append(paths, found)
			continue
		}
		stack = append(stack, frame{id: child, children: net.Children(child)})
		path = append(path, child)
	}
	return paths
}

func onPath(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func reversePath(p []string) []string {
	out := make([]string, len(p))
	for i, id := range p {
		out[len(p)-1-i] = id
	}
	return out
}
