// Package dot renders a protocol-builder graph.Snapshot as a Graphviz DOT
// document (spec §6). Rendering the document to an image is the caller's
// concern; this package only ever produces text.
package dot

import (
	"fmt"
	"strings"

	"github.com/bitvmx-labs/protocol-builder/internal/graph"
	"github.com/bitvmx-labs/protocol-builder/pkg/helpers"
)

// Mode selects how much detail an edge's label carries.
type Mode int

const (
	// Default labels each node with its outputs/inputs and their values.
	Default Mode = iota
	// EdgeArrows additionally labels each edge with the exact output port
	// that feeds the consuming input.
	EdgeArrows
)

// Render emits a DOT document for snap in the given mode.
func Render(snap graph.Snapshot, mode Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", snap.Name)
	b.WriteString("  rankdir=LR;\n  node [shape=record];\n\n")

	for _, tx := range snap.Transactions {
		fmt.Fprintf(&b, "  %q [label=%q];\n", tx.Name, nodeLabel(tx))
	}
	b.WriteString("\n")

	for _, conn := range snap.Connections {
		from := conn.From
		if from == "" {
			from = externalNodeName(conn)
			fmt.Fprintf(&b, "  %q [shape=plaintext,label=\"external\"];\n", from)
		}
		label := ""
		if mode == EdgeArrows {
			text := fmt.Sprintf("out[%d] -> in[%d]", conn.Out, conn.In)
			if conn.SequenceOverride != nil {
				text += fmt.Sprintf("\\nsequence=%d", *conn.SequenceOverride)
			}
			if conn.ValueOverride != nil {
				text += fmt.Sprintf("\\nvalue=%d sat", *conn.ValueOverride)
			}
			label = fmt.Sprintf(" [label=%q]", text)
		}
		fmt.Fprintf(&b, "  %q -> %q%s;\n", from, conn.To, label)
	}

	b.WriteString("}\n")
	return b.String()
}

func externalNodeName(conn graph.ConnSnapshot) string {
	return "external_" + conn.Name
}

func nodeLabel(tx graph.TxSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", tx.Name)
	if tx.Txid != "" {
		fmt.Fprintf(&b, "\\ntxid=%s", tx.Txid)
	}
	for _, in := range tx.Inputs {
		src := in.PrevTx
		if in.External {
			src = "external"
		}
		fmt.Fprintf(&b, "\\nin[%d]: %s:%d (%s)", in.Index, src, in.PrevVout, in.SpendModeName)
	}
	for _, out := range tx.Outputs {
		if out.Value < 0 {
			fmt.Fprintf(&b, "\\nout[%d]: %s (unresolved)", out.Index, out.TypeName)
			continue
		}
		fmt.Fprintf(&b, "\\nout[%d]: %s %d sat (%s BTC)", out.Index, out.TypeName, out.Value, helpers.SatoshisToBTC(uint64(out.Value)))
	}
	return b.String()
}
