package diagram

import (
	"strings"
	"testing"

	"github.com/rvergara/docflow/pkg/schema"
)

func runGraph() schema.Graph {
	return schema.Graph{
		Nodes: []schema.Node{
			{ID: "start", Kind: schema.NodeKindStart, Data: schema.NodeData{Executed: true, Label: "Início"}},
			{ID: "sw", Kind: schema.NodeKindSwitch, Data: schema.NodeData{
				Executed: true, LeftValue: "TRUE", RightValue: "FALSE", CurrentInput: "TRUE",
			}},
			{ID: "yes", Kind: schema.NodeKindAction, Data: schema.NodeData{Label: "Aprovar"}},
			{ID: "no", Kind: schema.NodeKindAction},
			{ID: "end", Kind: schema.NodeKindEnd},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "start", Target: "sw"},
			{ID: "e2", Source: "sw", Target: "yes", SourceHandle: schema.HandleLeft},
			{ID: "e3", Source: "sw", Target: "no", SourceHandle: schema.HandleRight},
			{ID: "e4", Source: "yes", Target: "end"},
		},
	}
}

func TestRenderMermaidShapesAndClasses(t *testing.T) {
	g := runGraph()
	out := RenderMermaid(&g, "Compras / doc-1")

	if !strings.HasPrefix(out, "graph TD\n") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "%% Compras / doc-1") {
		t.Error("missing title comment")
	}
	// Shapes per kind.
	if !strings.Contains(out, `start(("Início"))`) {
		t.Error("start node shape missing")
	}
	if !strings.Contains(out, `sw{"sw"}`) {
		t.Error("switch node shape missing")
	}
	if !strings.Contains(out, `yes["Aprovar"]`) {
		t.Error("action node shape missing")
	}
	// Executed nodes get the executed class, pending frontier the pending one.
	if !strings.Contains(out, "class start executed") {
		t.Error("start should be classed executed")
	}
	if !strings.Contains(out, "class yes pending") {
		t.Error("yes should be classed pending")
	}
	if !strings.Contains(out, "class no idle") {
		t.Error("no should be classed idle")
	}
}

func TestRenderMermaidAnimatesFrontier(t *testing.T) {
	g := runGraph()
	out := RenderMermaid(&g, "")

	// The selected-branch edge into a pending node animates; the dead
	// branch stays a plain arrow.
	if !strings.Contains(out, "sw ==>|left| yes") {
		t.Errorf("expected animated left branch:\n%s", out)
	}
	if !strings.Contains(out, "sw -->|right| no") {
		t.Errorf("expected plain right branch:\n%s", out)
	}
}

func TestPendingSummary(t *testing.T) {
	g := runGraph()
	pending := PendingSummary(&g)
	if len(pending) != 1 || pending[0] != "yes" {
		t.Errorf("pending = %v, want [yes]", pending)
	}
}
