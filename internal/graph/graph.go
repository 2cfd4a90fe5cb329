package graph

import "github.com/rvergara/docflow/pkg/schema"

// Lookup and mutation helpers over a run graph. The graph value is treated
// as immutable: every mutation goes through Clone/WithNodeData so the
// orchestrator can diff snapshots and the derived state never drifts from
// the nodes it was computed over.

// NodeByID returns the node with the given id, or nil.
func NodeByID(g *schema.Graph, id string) *schema.Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// EdgesFrom returns all edges leaving the given node.
func EdgesFrom(g *schema.Graph, id string) []schema.Edge {
	var out []schema.Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns all edges entering the given node.
func EdgesTo(g *schema.Graph, id string) []schema.Edge {
	var out []schema.Edge
	for _, e := range g.Edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// ExecutedSet returns the ids of all executed nodes.
func ExecutedSet(g *schema.Graph) map[string]bool {
	out := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		if g.Nodes[i].Data.Executed {
			out[g.Nodes[i].ID] = true
		}
	}
	return out
}

// Clone returns a deep-enough copy of g: the node and edge slices are
// fresh so callers can mutate the copy without touching the original.
func Clone(g *schema.Graph) schema.Graph {
	out := schema.Graph{
		Nodes:    make([]schema.Node, len(g.Nodes)),
		Edges:    make([]schema.Edge, len(g.Edges)),
		Viewport: g.Viewport,
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	return out
}

// WithNodeData returns a copy of g with mutate applied to the data of the
// node with the given id. The original graph is left untouched. When the
// id is unknown the copy is returned unchanged.
func WithNodeData(g *schema.Graph, id string, mutate func(*schema.NodeData)) schema.Graph {
	out := Clone(g)
	for i := range out.Nodes {
		if out.Nodes[i].ID == id {
			mutate(&out.Nodes[i].Data)
			break
		}
	}
	return out
}
