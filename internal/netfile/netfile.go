// Package netfile reads and writes the plain-text network interchange
// format:
//
//	# comment
//	NODES
//	<id> <name> <stateCount> <state1> <state2> ...
//	EDGES
//	<parentId> -> <childId>
//	CPTS
//	<id>
//	<dimCount> <dim1> <dim2> ...
//	<value1> <value2> ...          (product(dims) floats, row-major)
//
// Tensor values round-trip completely: a decoded network answers every
// query identically to the one that was encoded.
package netfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/probkit/beliefnet/internal/bn"
)

type section int

const (
	sectionNone section = iota
	sectionNodes
	sectionEdges
	sectionCPTs
)

// Encode writes the network in the text format. Output is deterministic:
// nodes, edges, and tensors are emitted in ascending id order.
func Encode(w io.Writer, net *bn.Network) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# beliefnet network")

	fmt.Fprintln(bw, "NODES")
	for _, id := range net.VariableIDs() {
		v, _ := net.Variable(id)
		fmt.Fprintf(bw, "%s %s %d", id, v.Name, v.NumStates())
		for _, s := range v.States {
			fmt.Fprintf(bw, " %s", s)
		}
		fmt.Fprintln(bw)
	}

	fmt.Fprintln(bw, "\nEDGES")
	for _, id := range net.VariableIDs() {
		v, _ := net.Variable(id)
		for _, pid := range v.ParentIDs() {
			fmt.Fprintf(bw, "%s -> %s\n", pid, id)
		}
	}

	fmt.Fprintln(bw, "\nCPTS")
	for _, id := range net.VariableIDs() {
		t, ok := net.Tensor(id)
		if !ok {
			continue
		}
		fmt.Fprintln(bw, id)
		dims := t.Dims()
		fmt.Fprintf(bw, "%d", len(dims))
		for _, d := range dims {
			fmt.Fprintf(bw, " %d", d)
		}
		fmt.Fprintln(bw)
		for i, v := range t.Values() {
			if i > 0 {
				fmt.Fprint(bw, " ")
			}
			fmt.Fprintf(bw, "%g", v)
		}
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

// Decode parses the text format and rebuilds the network through the
// same structural operations the API uses, so DAG and shape invariants
// are enforced during the load.
func Decode(r io.Reader) (*bn.Network, error) {
	net := bn.NewNetwork()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	cur := sectionNone
	lineNo := 0

	// CPT entries span three lines; track the in-progress one.
	var cptID string
	var cptDims []int

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch line {
		case "NODES":
			cur = sectionNodes
			continue
		case "EDGES":
			cur = sectionEdges
			continue
		case "CPTS":
			cur = sectionCPTs
			continue
		}

		switch cur {
		case sectionNodes:
			if err := parseNode(net, line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case sectionEdges:
			if err := parseEdge(net, line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case sectionCPTs:
			switch {
			case cptID == "":
				cptID = line
			case cptDims == nil:
				dims, err := parseDims(line)
				if err != nil {
					return nil, fmt.Errorf("line %d: tensor %s: %w", lineNo, cptID, err)
				}
				cptDims = dims
			default:
				if err := parseValues(net, cptID, cptDims, line); err != nil {
					return nil, fmt.Errorf("line %d: tensor %s: %w", lineNo, cptID, err)
				}
				cptID, cptDims = "", nil
			}
		default:
			return nil, fmt.Errorf("line %d: content before any section header", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cptID != "" {
		return nil, fmt.Errorf("truncated tensor entry for %s", cptID)
	}
	return net, nil
}

func parseNode(net *bn.Network, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return fmt.Errorf("node line needs at least id, name, and state count")
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("state count %q: %w", fields[2], err)
	}
	states := fields[3:]
	if len(states) != count {
		return fmt.Errorf("declared %d states, found %d", count, len(states))
	}
	return net.AddVariable(fields[0], fields[1], states)
}

func parseEdge(net *bn.Network, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[1] != "->" {
		return fmt.Errorf("edge line must be %q", "<parent> -> <child>")
	}
	return net.AddEdge(fields[0], fields[2])
}

func parseDims(line string) ([]int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("dimension line needs a count and sizes")
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("dimension count %q: %w", fields[0], err)
	}
	if len(fields)-1 != count {
		return nil, fmt.Errorf("declared %d dimensions, found %d", count, len(fields)-1)
	}
	dims := make([]int, count)
	for i, f := range fields[1:] {
		d, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", f, err)
		}
		dims[i] = d
	}
	return dims, nil
}

func parseValues(net *bn.Network, id string, dims []int, line string) error {
	fields := strings.Fields(line)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("value %q: %w", f, err)
		}
		vals[i] = v
	}
	t, err := bn.NewTensor(dims)
	if err != nil {
		return err
	}
	if err := t.SetValues(vals); err != nil {
		return err
	}
	return net.SetTensor(id, t)
}

// Save writes the network to a file.
func Save(path string, net *bn.Network) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save network %s: %w", path, err)
	}
	defer f.Close()
	if err := Encode(f, net); err != nil {
		return fmt.Errorf("save network %s: %w", path, err)
	}
	return nil
}

// Load reads a network from a file.
func Load(path string) (*bn.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load network %s: %w", path, err)
	}
	defer f.Close()
	net, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load network %s: %w", path, err)
	}
	return net, nil
}
