package taskgraph

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Write writes a text representation of the graph, one node per line in topological order.
//
// Each line looks like:
//
//	%slice_3 = "stablehlo.slice"(%source_0) {view = "[0:2, 0:6]"} @cuda@0:1 : (tensor<4x6xf32>) -> tensor<2x6xf32>
func (g *Graph) Write(writer io.Writer) error {
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}
	w("// graph %q (%s): %d nodes\n", g.Name, g.ID, len(order))
	for _, node := range order {
		if err != nil {
			break
		}
		err = node.Write(writer)
		w("\n")
	}
	return err
}

// Write writes the text representation of one node, without a trailing new line.
func (n *TaskNode) Write(writer io.Writer) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}

	w("  %%%s = %q(", n.Name, n.OpType.ToStableHLO())
	for i, input := range n.Inputs {
		if i > 0 {
			w(", ")
		}
		w("%%%s", input.Name)
	}
	w(")")

	// Attributes are written sorted by key, so the dump is deterministic.
	if len(n.Attributes) > 0 {
		w(" {")
		for i, key := range slices.Sorted(maps.Keys(n.Attributes)) {
			if i > 0 {
				w(", ")
			}
			w("%s = %s", key, literalToString(n.Attributes[key]))
		}
		w("}")
	}
	if len(n.CtrlInputs) > 0 {
		names := make([]string, len(n.CtrlInputs))
		for i, ctrl := range n.CtrlInputs {
			names[i] = "%" + ctrl.Name
		}
		w(" ctrl(%s)", strings.Join(names, ", "))
	}
	w(" @%s", n.Device)

	// Signature:
	w(" : (")
	for i, input := range n.Inputs {
		if i > 0 {
			w(", ")
		}
		w("%s", input.Shape.ToStableHLO())
	}
	w(") -> %s", n.Shape.ToStableHLO())
	return err
}

type hasToStableHLO interface {
	ToStableHLO() string
}

// literalToString converts an attribute value to its text representation.
func literalToString(attr any) string {
	switch v := attr.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case hasToStableHLO:
		// For types that implement their own conversion to stablehlo, use that.
		return v.ToStableHLO()
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	default:
		return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
	}
}
