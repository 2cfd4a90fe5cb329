package graph

import (
	"testing"

	"github.com/rvergara/docflow/pkg/schema"
)

// --- helpers ---

func node(id string, kind schema.NodeKind, executed bool) schema.Node {
	return schema.Node{ID: id, Kind: kind, Data: schema.NodeData{Executed: executed}}
}

func switchNode(id, left, right, input string, executed bool) schema.Node {
	return schema.Node{ID: id, Kind: schema.NodeKindSwitch, Data: schema.NodeData{
		Executed:   executed,
		LeftValue:  left,
		RightValue: right,
		CurrentInput: input,
	}}
}

func edge(source, target string) schema.Edge {
	return schema.Edge{Source: source, Target: target}
}

func branchEdge(source, target, handle string) schema.Edge {
	return schema.Edge{Source: source, Target: target, SourceHandle: handle}
}

func makeGraph(nodes []schema.Node, edges []schema.Edge) *schema.Graph {
	return &schema.Graph{Nodes: nodes, Edges: edges}
}

func wantPending(t *testing.T, r Reachability, ids ...string) {
	t.Helper()
	if len(r.Pending) != len(ids) {
		t.Fatalf("pending = %v, want %v", r.Pending, ids)
	}
	for _, id := range ids {
		if !r.Pending[id] {
			t.Fatalf("node %s not pending; pending set = %v", id, r.Pending)
		}
	}
}

// --- tests ---

func TestComputeLinearPropagation(t *testing.T) {
	g := makeGraph(
		[]schema.Node{
			node("start", schema.NodeKindStart, true),
			node("a", schema.NodeKindAction, false),
			node("end", schema.NodeKindEnd, false),
		},
		[]schema.Edge{edge("start", "a"), edge("a", "end")},
	)

	r := Compute(g, nil)
	wantPending(t, r, "a")
}

func TestComputeOneHopPerCommit(t *testing.T) {
	// b is two hops from the executed frontier; it only becomes pending
	// after a is committed and reachability is recomputed.
	g := makeGraph(
		[]schema.Node{
			node("start", schema.NodeKindStart, true),
			node("a", schema.NodeKindAction, false),
			node("b", schema.NodeKindAction, false),
		},
		[]schema.Edge{edge("start", "a"), edge("a", "b")},
	)

	wantPending(t, Compute(g, nil), "a")

	next := WithNodeData(g, "a", func(d *schema.NodeData) { d.Executed = true })
	wantPending(t, Compute(&next, nil), "b")
}

func TestComputeEndNodesAreSinks(t *testing.T) {
	// Legacy templates sometimes wire edges out of end nodes; those edges
	// are dead and must never propagate.
	g := makeGraph(
		[]schema.Node{
			node("end", schema.NodeKindEnd, true),
			node("orphan", schema.NodeKindAction, false),
		},
		[]schema.Edge{edge("end", "orphan")},
	)

	wantPending(t, Compute(g, nil))
}

func TestComputeSwitchGatesByHandle(t *testing.T) {
	g := makeGraph(
		[]schema.Node{
			switchNode("sw", "TRUE", "FALSE", "TRUE", true),
			node("approved", schema.NodeKindAction, false),
			node("rejected", schema.NodeKindAction, false),
		},
		[]schema.Edge{
			branchEdge("sw", "approved", schema.HandleLeft),
			branchEdge("sw", "rejected", schema.HandleRight),
		},
	)

	r := Compute(g, nil)
	wantPending(t, r, "approved")
	if r.ActiveHandles["sw"] != schema.HandleLeft {
		t.Fatalf("active handle = %q, want left", r.ActiveHandles["sw"])
	}
}

func TestComputeSwitchUnresolvedInput(t *testing.T) {
	g := makeGraph(
		[]schema.Node{
			switchNode("sw", "TRUE", "FALSE", "", true),
			node("a", schema.NodeKindAction, false),
		},
		[]schema.Edge{branchEdge("sw", "a", schema.HandleLeft)},
	)

	wantPending(t, Compute(g, nil))
}

func TestComputeAnyQualifyingEdgeSuffices(t *testing.T) {
	// Two executed predecessors, one of which is a sink: the OR rule
	// makes the target pending from the surviving edge.
	g := makeGraph(
		[]schema.Node{
			node("a", schema.NodeKindAction, true),
			node("end", schema.NodeKindEnd, true),
			node("t", schema.NodeKindAction, false),
		},
		[]schema.Edge{edge("a", "t"), edge("end", "t")},
	)

	wantPending(t, Compute(g, nil), "t")
}

func TestComputeExecutedTargetsStayExecuted(t *testing.T) {
	g := makeGraph(
		[]schema.Node{
			node("a", schema.NodeKindAction, true),
			node("b", schema.NodeKindAction, true),
		},
		[]schema.Edge{edge("a", "b")},
	)

	wantPending(t, Compute(g, nil))
}

func TestComputeGuardBlocksEdge(t *testing.T) {
	g := makeGraph(
		[]schema.Node{
			node("a", schema.NodeKindAction, true),
			node("b", schema.NodeKindAction, false),
			node("c", schema.NodeKindAction, false),
		},
		[]schema.Edge{
			{Source: "a", Target: "b", Condition: "blocked"},
			edge("a", "c"),
		},
	)

	r := Compute(g, func(e schema.Edge) bool { return e.Condition == "" })
	wantPending(t, r, "c")
}

func TestResolveSwitchHandle(t *testing.T) {
	cases := []struct {
		name  string
		data  schema.NodeData
		want  string
	}{
		{"left", schema.NodeData{LeftValue: "TRUE", RightValue: "FALSE", CurrentInput: "TRUE"}, schema.HandleLeft},
		{"right", schema.NodeData{LeftValue: "TRUE", RightValue: "FALSE", CurrentInput: "FALSE"}, schema.HandleRight},
		{"no input", schema.NodeData{LeftValue: "TRUE", RightValue: "FALSE"}, ""},
		{"no match", schema.NodeData{LeftValue: "TRUE", RightValue: "FALSE", CurrentInput: "MAYBE"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveSwitchHandle(tc.data); got != tc.want {
				t.Fatalf("ResolveSwitchHandle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStateOf(t *testing.T) {
	g := makeGraph(
		[]schema.Node{
			node("start", schema.NodeKindStart, true),
			node("a", schema.NodeKindAction, false),
			node("b", schema.NodeKindAction, false),
		},
		[]schema.Edge{edge("start", "a"), edge("a", "b")},
	)
	r := Compute(g, nil)

	if got := StateOf(g, r, "start"); got != schema.StateExecuted {
		t.Fatalf("start state = %v", got)
	}
	if got := StateOf(g, r, "a"); got != schema.StatePendingConnected {
		t.Fatalf("a state = %v", got)
	}
	if got := StateOf(g, r, "b"); got != schema.StateNotExecuted {
		t.Fatalf("b state = %v", got)
	}
	if got := StateOf(g, r, "missing"); got != schema.StateNotExecuted {
		t.Fatalf("missing node state = %v", got)
	}
}

func TestWithNodeDataDoesNotMutateOriginal(t *testing.T) {
	g := makeGraph([]schema.Node{node("a", schema.NodeKindAction, false)}, nil)

	out := WithNodeData(g, "a", func(d *schema.NodeData) { d.Executed = true })

	if g.Nodes[0].Data.Executed {
		t.Fatal("original graph mutated")
	}
	if !out.Nodes[0].Data.Executed {
		t.Fatal("copy not mutated")
	}
}
