package graph

import "github.com/rvergara/docflow/pkg/schema"

// EdgeGuard decides whether an edge may propagate pending state. A nil
// guard lets every edge through; the orchestrator plugs in an
// expression-backed guard for templates that attach conditions to edges.
type EdgeGuard func(edge schema.Edge) bool

// Reachability is the derived run-progress state: which not-yet-executed
// nodes are reachable from an executed node over a qualifying edge, and
// which branch each switch node has resolved to.
type Reachability struct {
	// Pending holds the ids of pending-connected nodes, the only legal
	// commit targets.
	Pending map[string]bool
	// ActiveHandles maps each switch node id to its resolved source
	// handle, or "" while the switch input matches neither branch value.
	ActiveHandles map[string]string
}

// Compute derives reachability from the current graph. Propagation is one
// hop from each executed node: the orchestrator recomputes after every
// commit, so multi-hop progress emerges commit by commit rather than from
// a transitive closure pass.
//
// Edge rules, in order:
//   - edges out of executed switch nodes fire only on the resolved handle;
//   - edges out of end nodes never fire (end nodes are sinks, and some
//     legacy templates wire dead edges out of them);
//   - every other edge from an executed source fires unconditionally,
//     subject to the optional guard.
//
// A node with several executed predecessors becomes pending if any one
// qualifying edge fires.
func Compute(g *schema.Graph, guard EdgeGuard) Reachability {
	executed := ExecutedSet(g)

	r := Reachability{
		Pending:       make(map[string]bool),
		ActiveHandles: make(map[string]string),
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind == schema.NodeKindSwitch {
			r.ActiveHandles[n.ID] = ResolveSwitchHandle(n.Data)
		}
	}

	for _, e := range g.Edges {
		if !executed[e.Source] || executed[e.Target] {
			continue
		}
		src := NodeByID(g, e.Source)
		if src == nil || NodeByID(g, e.Target) == nil {
			continue
		}
		switch src.Kind {
		case schema.NodeKindEnd:
			continue
		case schema.NodeKindSwitch:
			active := r.ActiveHandles[src.ID]
			if active == "" || e.SourceHandle != active {
				continue
			}
		}
		if guard != nil && !guard(e) {
			continue
		}
		r.Pending[e.Target] = true
	}
	return r
}

// ResolveSwitchHandle compares a switch node's current input against its
// configured branch values and returns the active handle, or "" when the
// input matches neither.
func ResolveSwitchHandle(d schema.NodeData) string {
	if d.CurrentInput == "" {
		return ""
	}
	switch d.CurrentInput {
	case d.LeftValue:
		return schema.HandleLeft
	case d.RightValue:
		return schema.HandleRight
	}
	return ""
}

// StateOf derives the execution state of one node from the executed flag
// and a previously computed reachability.
func StateOf(g *schema.Graph, r Reachability, id string) schema.ExecutionState {
	n := NodeByID(g, id)
	if n == nil {
		return schema.StateNotExecuted
	}
	if n.Data.Executed {
		return schema.StateExecuted
	}
	if r.Pending[id] {
		return schema.StatePendingConnected
	}
	return schema.StateNotExecuted
}
