package validation

import (
	"fmt"

	"github.com/rvergara/docflow/pkg/schema"
)

// CheckGraph runs the structural rules: unique ids, edges wired to real
// nodes, exactly one start node, switch branch conventions and transfer
// targets. Edges leaving an end node are tolerated as dead edges (the
// engine ignores them) but flagged as warnings.
func CheckGraph(g *schema.Graph) *Result {
	result := &Result{}

	nodes := make(map[string]schema.Node, len(g.Nodes))
	starts := 0
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			result.AddError("nodes", CodeDuplicateID, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodes[n.ID] = n
		if n.Kind == schema.NodeKindStart {
			starts++
		}
	}
	if starts == 0 {
		result.AddError("nodes", CodeMissingStart, "graph has no start node")
	}
	if starts > 1 {
		result.AddError("nodes", CodeMultipleStart, fmt.Sprintf("graph has %d start nodes, want 1", starts))
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID != "" {
			if edgeIDs[e.ID] {
				result.AddError("edges", CodeDuplicateID, fmt.Sprintf("duplicate edge id %q", e.ID))
			}
			edgeIDs[e.ID] = true
		}

		source, sourceOK := nodes[e.Source]
		if !sourceOK {
			result.AddError("edges", CodeUnknownEndpoint, fmt.Sprintf("edge %q leaves unknown node %q", e.ID, e.Source))
		}
		if _, ok := nodes[e.Target]; !ok {
			result.AddError("edges", CodeUnknownEndpoint, fmt.Sprintf("edge %q enters unknown node %q", e.ID, e.Target))
		}
		if !sourceOK {
			continue
		}

		switch source.Kind {
		case schema.NodeKindSwitch:
			if e.SourceHandle != schema.HandleLeft && e.SourceHandle != schema.HandleRight {
				result.AddError("edges", CodeBadHandle,
					fmt.Sprintf("edge %q leaves switch %q with handle %q, want %q or %q",
						e.ID, e.Source, e.SourceHandle, schema.HandleLeft, schema.HandleRight))
			}
		case schema.NodeKindEnd:
			result.AddWarning("edges", CodeDeadEdge,
				fmt.Sprintf("edge %q leaves end node %q and will never fire", e.ID, e.Source))
		}
	}

	for _, n := range g.Nodes {
		if n.Kind == schema.NodeKindEnd && n.Data.TerminalKind == schema.TerminalFlowTransfer && n.Data.TargetFlowID == "" {
			result.AddError("nodes", CodeMissingTarget,
				fmt.Sprintf("flow transfer node %q has no target flow", n.ID))
		}
	}
	return result
}
