package infer

import (
	"fmt"

	"github.com/probkit/beliefnet/internal/bn"
)

// Beliefs maps variable id → state → posterior probability.
type Beliefs map[string]map[string]float64

// edgeKey identifies a directed message channel.
type edgeKey struct {
	from, to string
}

// messageSet holds all per-edge messages. Every message is keyed by the
// states of the receiving variable.
type messageSet map[edgeKey]map[string]float64

// Propagate runs the two-pass heuristic message-passing scheme over the
// network. It is not textbook sum-product: during the upward pass,
// unobserved parents other than the one being messaged are pinned to
// their first declared state, and during the downward pass unobserved
// co-parents are pinned to the mode of their incoming message. Exactness
// is traded for a single sweep in each direction; callers needing exact
// posteriors should use Enumerate.
func Propagate(net *bn.Network, query []string, evidence map[string]string, trace bool) (Beliefs, []InfluenceTrace, error) {
	if err := checkQueryAndEvidence(net, query, evidence); err != nil {
		return nil, nil, err
	}

	beliefs := initBeliefs(net, evidence)
	messages := make(messageSet)

	seedRootMessages(net, evidence, messages)
	upwardPass(net, evidence, messages)
	downwardPass(net, evidence, messages)
	computeBeliefs(net, evidence, messages, beliefs)

	var traces []InfluenceTrace
	if trace {
		traces = traceInfluence(net, beliefs, query, evidence, false)
	}
	return beliefs, traces, nil
}

func checkQueryAndEvidence(net *bn.Network, query []string, evidence map[string]string) error {
	for _, id := range query {
		if _, ok := net.Variable(id); !ok {
			return fmt.Errorf("propagate: %w: %q", bn.ErrUnknownID, id)
		}
	}
	for id, state := range evidence {
		v, ok := net.Variable(id)
		if !ok {
			return fmt.Errorf("propagate: %w: evidence %q", bn.ErrUnknownID, id)
		}
		if !v.HasState(state) {
			return fmt.Errorf("propagate: %w: %q has no state %q", bn.ErrUnknownState, id, state)
		}
	}
	return nil
}

// initBeliefs assigns evidence variables a one-hot belief and everything
// else a uniform one.
func initBeliefs(net *bn.Network, evidence map[string]string) Beliefs {
	beliefs := make(Beliefs, net.NumVariables())
	for _, id := range net.VariableIDs() {
		v, _ := net.Variable(id)
		b := make(map[string]float64, v.NumStates())
		if observed, ok := evidence[id]; ok {
			for _, s := range v.States {
				if s == observed {
					b[s] = 1.0
				} else {
					b[s] = 0.0
				}
			}
		} else {
			u := 1.0 / float64(v.NumStates())
			for _, s := range v.States {
				b[s] = u
			}
		}
		beliefs[id] = b
	}
	return beliefs
}

// seedRootMessages emits each unobserved root's prior to its direct
// children. Seeds are keyed by the child's states via the child's tensor
// so the downward pass can overwrite them uniformly.
func seedRootMessages(net *bn.Network, evidence map[string]string, messages messageSet) {
	for _, id := range net.TopologicalOrder() {
		v, _ := net.Variable(id)
		if v.NumParents() > 0 {
			continue
		}
		if _, observed := evidence[id]; observed {
			continue
		}
		t, ok := net.Tensor(id)
		if !ok {
			continue
		}
		prior := make(map[string]float64, v.NumStates())
		for i, s := range v.States {
			p, err := t.At(nil, i)
			if err != nil {
				continue
			}
			prior[s] = p
		}
		for _, childID := range net.Children(id) {
			if _, observed := evidence[childID]; observed {
				continue
			}
			if !net.HasTensor(childID) {
				continue
			}
			messages[edgeKey{id, childID}] = projectThroughChild(net, evidence, messages, id, childID, prior)
		}
	}
}

// upwardPass walks the reverse topological order (leaves first). Each
// unobserved variable with a tensor sends one message per unobserved
// parent: for each parent state, the variable's own states are summed
// over, weighting its conditional probability by the product of incoming
// child messages. Other unobserved parents are pinned to their first
// declared state.
func upwardPass(net *bn.Network, evidence map[string]string, messages messageSet) {
	order := net.TopologicalOrder()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if _, observed := evidence[id]; observed {
			continue
		}
		v, _ := net.Variable(id)
		if !net.HasTensor(id) {
			continue
		}

		childMsgs := incomingFromChildren(net, messages, id)

		for _, parentID := range v.ParentIDs() {
			if _, observed := evidence[parentID]; observed {
				continue
			}
			parent, _ := net.Variable(parentID)
			msg := make(map[string]float64, parent.NumStates())

			for _, parentState := range parent.States {
				val := 0.0
				for _, ownState := range v.States {
					parentStates := map[string]string{parentID: parentState}
					for _, otherID := range v.ParentIDs() {
						if otherID == parentID {
							continue
						}
						if obs, ok := evidence[otherID]; ok {
							parentStates[otherID] = obs
						} else {
							other, _ := net.Variable(otherID)
							parentStates[otherID] = other.States[0]
						}
					}
					cond, err := net.ConditionalProbability(id, ownState, parentStates)
					if err != nil {
						continue
					}
					childProduct := 1.0
					for _, cm := range childMsgs {
						if p, ok := cm[ownState]; ok {
							childProduct *= p
						}
					}
					val += cond * childProduct
				}
				msg[parentState] = val
			}

			normalizeInPlace(msg)
			messages[edgeKey{id, parentID}] = msg
		}
	}
}

// downwardPass walks the topological order (roots first). Each variable
// sends one message per unobserved child with a tensor, projecting its
// local state estimate through the child's conditional distribution.
// Unobserved co-parents of the child are pinned to the mode of their own
// incoming message when one exists, else to their first declared state.
func downwardPass(net *bn.Network, evidence map[string]string, messages messageSet) {
	for _, id := range net.TopologicalOrder() {
		local := localEstimate(net, evidence, messages, id)
		for _, childID := range net.Children(id) {
			if _, observed := evidence[childID]; observed {
				continue
			}
			if !net.HasTensor(childID) {
				continue
			}
			messages[edgeKey{id, childID}] = projectThroughChild(net, evidence, messages, id, childID, local)
		}
	}
}

// projectThroughChild computes the message sender → child keyed by the
// child's states: for each child state, the sender's states are summed
// over, weighting the child's conditional probability by the sender's
// local estimate.
func projectThroughChild(net *bn.Network, evidence map[string]string, messages messageSet, senderID, childID string, senderEstimate map[string]float64) map[string]float64 {
	sender, _ := net.Variable(senderID)
	child, _ := net.Variable(childID)

	msg := make(map[string]float64, child.NumStates())
	for _, childState := range child.States {
		val := 0.0
		for _, senderState := range sender.States {
			parentStates := map[string]string{senderID: senderState}
			for _, otherID := range child.ParentIDs() {
				if otherID == senderID {
					continue
				}
				if obs, ok := evidence[otherID]; ok {
					parentStates[otherID] = obs
					continue
				}
				parentStates[otherID] = modeState(net, messages, otherID)
			}
			cond, err := net.ConditionalProbability(childID, childState, parentStates)
			if err != nil {
				continue
			}
			val += cond * senderEstimate[senderState]
		}
		msg[childState] = val
	}
	normalizeInPlace(msg)
	return msg
}

// localEstimate summarizes what the variable currently believes about
// itself: one-hot for evidence, the product of incoming messages when any
// exist, the prior for a root with a tensor, uniform otherwise.
func localEstimate(net *bn.Network, evidence map[string]string, messages messageSet, id string) map[string]float64 {
	v, _ := net.Variable(id)
	est := make(map[string]float64, v.NumStates())

	if observed, ok := evidence[id]; ok {
		for _, s := range v.States {
			if s == observed {
				est[s] = 1.0
			}
		}
		return est
	}

	if t, ok := net.Tensor(id); ok && v.NumParents() == 0 {
		for i, s := range v.States {
			p, err := t.At(nil, i)
			if err == nil {
				est[s] = p
			}
		}
	} else {
		u := 1.0 / float64(v.NumStates())
		for _, s := range v.States {
			est[s] = u
		}
	}

	for key, msg := range messages {
		if key.to != id {
			continue
		}
		for _, s := range v.States {
			if p, ok := msg[s]; ok {
				est[s] *= p
			}
		}
	}
	normalizeInPlace(est)
	return est
}

// modeState returns the highest-probability state of the variable's
// incoming messages, falling back to the first declared state.
func modeState(net *bn.Network, messages messageSet, id string) string {
	v, _ := net.Variable(id)
	best := v.States[0]
	bestP := -1.0
	for key, msg := range messages {
		if key.to != id {
			continue
		}
		for _, s := range v.States {
			if p, ok := msg[s]; ok && p > bestP {
				bestP = p
				best = s
			}
		}
	}
	return best
}

// incomingFromChildren collects the messages the variable's children have
// sent to it (keyed by the variable's own states).
func incomingFromChildren(net *bn.Network, messages messageSet, id string) []map[string]float64 {
	var msgs []map[string]float64
	for _, childID := range net.Children(id) {
		if m, ok := messages[edgeKey{childID, id}]; ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// computeBeliefs multiplies, state by state, every incoming message into
// each unobserved variable's base distribution (the prior for parentless
// variables with a tensor, uniform otherwise) and normalizes.
func computeBeliefs(net *bn.Network, evidence map[string]string, messages messageSet, beliefs Beliefs) {
	for _, id := range net.VariableIDs() {
		if _, observed := evidence[id]; observed {
			continue
		}
		v, _ := net.Variable(id)
		b := beliefs[id]

		if t, ok := net.Tensor(id); ok && v.NumParents() == 0 {
			for i, s := range v.States {
				if p, err := t.At(nil, i); err == nil {
					b[s] = p
				}
			}
		}

		for key, msg := range messages {
			if key.to != id {
				continue
			}
			for _, s := range v.States {
				if p, ok := msg[s]; ok {
					b[s] *= p
				}
			}
		}
		normalizeInPlace(b)
	}
}

func normalizeInPlace(m map[string]float64) {
	sum := 0.0
	for _, p := range m {
		sum += p
	}
	if sum <= normEpsilon {
		return
	}
	for s := range m {
		m[s] /= sum
	}
}
