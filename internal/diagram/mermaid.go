// Package diagram renders a run graph as a Mermaid flowchart, with node
// shapes per kind and edge styling taken from the live edge classifier.
// Used by the render tool surface for quick run inspection.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rvergara/docflow/internal/graph"
	"github.com/rvergara/docflow/pkg/schema"
)

// RenderMermaid renders the run graph. Title goes in as a comment; edge
// colors and animation mirror what the UI shows.
func RenderMermaid(g *schema.Graph, title string) string {
	r := graph.Compute(g, nil)
	states := graph.ClassifyAll(g, r)

	var b strings.Builder
	b.WriteString("graph TD\n")
	if title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", title))
	}

	for _, n := range g.Nodes {
		b.WriteString("    " + nodeDef(n) + "\n")
	}

	for _, e := range g.Edges {
		state := states[graph.EdgeKey(e)]
		arrow := "-->"
		if state.Animated {
			arrow = "==>"
		}
		label := ""
		if e.SourceHandle != "" {
			label = fmt.Sprintf("|%s|", e.SourceHandle)
		}
		b.WriteString(fmt.Sprintf("    %s %s%s %s\n",
			safeID(e.Source), arrow, label, safeID(e.Target)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef executed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef pending fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef idle fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")

	for _, n := range g.Nodes {
		b.WriteString(fmt.Sprintf("    class %s %s\n", safeID(n.ID), nodeClass(g, r, n.ID)))
	}

	// Edge line styling by classification, in declaration order.
	for i, e := range g.Edges {
		state := states[graph.EdgeKey(e)]
		if color := lineColor(state.Color); color != "" {
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:%s\n", i, color))
		}
	}

	return b.String()
}

// PendingSummary lists pending node ids in stable order, for tool output.
func PendingSummary(g *schema.Graph) []string {
	r := graph.Compute(g, nil)
	ids := make([]string, 0, len(r.Pending))
	for id := range r.Pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func nodeDef(n schema.Node) string {
	id := safeID(n.ID)
	label := n.Data.Label
	if label == "" {
		label = n.ID
	}
	label = quote(label)

	switch n.Kind {
	case schema.NodeKindStart, schema.NodeKindEnd:
		return fmt.Sprintf("%s((%s))", id, label)
	case schema.NodeKindSwitch:
		return fmt.Sprintf("%s{%s}", id, label)
	case schema.NodeKindIntegration:
		return fmt.Sprintf("%s[[%s]]", id, label)
	case schema.NodeKindDocument:
		return fmt.Sprintf("%s([%s])", id, label)
	default: // action
		return fmt.Sprintf("%s[%s]", id, label)
	}
}

func nodeClass(g *schema.Graph, r graph.Reachability, id string) string {
	switch graph.StateOf(g, r, id) {
	case schema.StateExecuted:
		return "executed"
	case schema.StatePendingConnected:
		return "pending"
	default:
		return "idle"
	}
}

func lineColor(c graph.EdgeColor) string {
	switch c {
	case graph.ColorExecuted:
		return "#2d6a2d"
	case graph.ColorPending:
		return "#1a5276"
	case graph.ColorBranchTrue:
		return "#2d6a2d"
	case graph.ColorBranchFalse:
		return "#8b1a1a"
	default:
		return ""
	}
}

func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
