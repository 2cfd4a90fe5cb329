package graph

import "github.com/rvergara/docflow/pkg/schema"

// EdgeColor is the visual color key of an edge in the run diagram.
type EdgeColor string

const (
	ColorExecuted    EdgeColor = "executed"     // both endpoints executed
	ColorPending     EdgeColor = "pending"      // run frontier
	ColorBranchTrue  EdgeColor = "branch_true"  // unexecuted switch, TRUE branch preview
	ColorBranchFalse EdgeColor = "branch_false" // unexecuted switch, FALSE branch preview
	ColorDefault     EdgeColor = "default"
)

// Switch branch values treated as boolean sentinels for the static
// branch preview coloring.
const (
	branchTrueSentinel  = "TRUE"
	branchFalseSentinel = "FALSE"
)

// EdgeState is the derived visual state of one edge.
type EdgeState struct {
	Color    EdgeColor
	Animated bool
}

// Classify projects one edge onto its visual state. Pure: it reads the
// graph and a precomputed reachability and has no side effects, so the
// viewer can re-derive every edge after each commit.
//
// Priority order, first match wins:
//  1. executed switch source: the selected-path edge takes the pending or
//     executed color from its target, any other handle goes inactive;
//  2. frontier edges (executed source with pending target, or the reverse
//     wiring) animate as pending;
//  3. edges between two executed nodes animate as executed;
//  4. unexecuted switch source: static preview color from the branch
//     value configured on the edge's handle;
//  5. anything else is inactive.
func Classify(g *schema.Graph, r Reachability, e schema.Edge) EdgeState {
	src := NodeByID(g, e.Source)
	tgt := NodeByID(g, e.Target)
	if src == nil || tgt == nil {
		return EdgeState{Color: ColorDefault}
	}

	srcExecuted := src.Data.Executed
	tgtExecuted := tgt.Data.Executed
	srcPending := r.Pending[e.Source]
	tgtPending := r.Pending[e.Target]

	if src.Kind == schema.NodeKindSwitch && srcExecuted {
		if e.SourceHandle == r.ActiveHandles[src.ID] && e.SourceHandle != "" {
			if tgtPending {
				return EdgeState{Color: ColorPending, Animated: true}
			}
			if tgtExecuted {
				return EdgeState{Color: ColorExecuted, Animated: true}
			}
		}
		return EdgeState{Color: ColorDefault}
	}

	if (srcExecuted && tgtPending) || (srcPending && tgtExecuted) {
		return EdgeState{Color: ColorPending, Animated: true}
	}

	if srcExecuted && tgtExecuted {
		return EdgeState{Color: ColorExecuted, Animated: true}
	}

	if src.Kind == schema.NodeKindSwitch {
		switch branchValue(src.Data, e.SourceHandle) {
		case branchTrueSentinel:
			return EdgeState{Color: ColorBranchTrue}
		case branchFalseSentinel:
			return EdgeState{Color: ColorBranchFalse}
		}
		return EdgeState{Color: ColorDefault}
	}

	return EdgeState{Color: ColorDefault}
}

// ClassifyAll classifies every edge, keyed by edge id when present and by
// "source->target" otherwise.
func ClassifyAll(g *schema.Graph, r Reachability) map[string]EdgeState {
	out := make(map[string]EdgeState, len(g.Edges))
	for _, e := range g.Edges {
		out[EdgeKey(e)] = Classify(g, r, e)
	}
	return out
}

// EdgeKey returns a stable map key for an edge.
func EdgeKey(e schema.Edge) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Source + "->" + e.Target
}

func branchValue(d schema.NodeData, handle string) string {
	switch handle {
	case schema.HandleLeft:
		return d.LeftValue
	case schema.HandleRight:
		return d.RightValue
	}
	return ""
}
