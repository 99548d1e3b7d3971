// Package graph builds the validated, immutable DAG view of a flow
// definition. Execution order is event-driven, not a precomputed
// schedule; the topological rank computed here is diagnostics only.
package graph

import (
	"fmt"
	"sort"

	"github.com/petrijr/arbor/pkg/api"
)

// Graph is the validated representation of one flow definition.
type Graph struct {
	def     api.FlowDefinition
	nodes   map[string]api.NodeSpec
	out     map[string][]api.EdgeSpec
	in      map[string][]api.EdgeSpec
	entries []string
	rank    map[string]int

	// Warnings holds non-fatal findings, currently only unreachable
	// node ids.
	Warnings []string
}

// Validate checks the structural invariants of a flow definition and
// returns its graph view. It rejects duplicate node ids, edges naming
// undeclared nodes, cycles (naming a node on the cycle), flows without
// an entry node, and branch nodes whose outgoing guards are missing or
// duplicated. Unreachable nodes are reported as warnings, not errors.
func Validate(def api.FlowDefinition) (*Graph, error) {
	if def.Name == "" {
		return nil, &api.ValidationError{Code: api.CodeInvalidDefinition, Message: "flow name is required"}
	}
	if len(def.Nodes) == 0 {
		return nil, &api.ValidationError{Code: api.CodeInvalidDefinition, Message: "flow must declare at least one node"}
	}

	g := &Graph{
		def:   def,
		nodes: make(map[string]api.NodeSpec, len(def.Nodes)),
		out:   make(map[string][]api.EdgeSpec),
		in:    make(map[string][]api.EdgeSpec),
		rank:  make(map[string]int, len(def.Nodes)),
	}

	for _, n := range def.Nodes {
		if n.ID == "" {
			return nil, &api.ValidationError{Code: api.CodeInvalidDefinition, Message: "node id must not be empty"}
		}
		if n.Kind == "" {
			return nil, &api.ValidationError{Code: api.CodeInvalidDefinition, NodeID: n.ID, Message: "node kind must not be empty"}
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, &api.ValidationError{Code: api.CodeDuplicateNode, NodeID: n.ID, Message: "node id declared twice"}
		}
		g.nodes[n.ID] = n
	}

	for _, e := range def.Edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, &api.ValidationError{Code: api.CodeUnknownEdgeNode, NodeID: e.From, Message: fmt.Sprintf("edge %s->%s references undeclared node", e.From, e.To)}
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, &api.ValidationError{Code: api.CodeUnknownEdgeNode, NodeID: e.To, Message: fmt.Sprintf("edge %s->%s references undeclared node", e.From, e.To)}
		}
		g.out[e.From] = append(g.out[e.From], e)
		g.in[e.To] = append(g.in[e.To], e)
	}

	if err := g.checkGuards(); err != nil {
		return nil, err
	}

	for _, n := range def.Nodes {
		if len(g.in[n.ID]) == 0 {
			g.entries = append(g.entries, n.ID)
		}
	}
	sort.Strings(g.entries)
	if len(g.entries) == 0 {
		return nil, &api.ValidationError{Code: api.CodeNoEntryNode, Message: "flow has no entry node (every node has incoming edges)"}
	}

	if err := g.toposort(); err != nil {
		return nil, err
	}
	g.findUnreachable()

	return g, nil
}

// checkGuards enforces routing rules: every edge leaving a branch node
// carries a distinct, non-empty guard; edges leaving other kinds carry
// none.
func (g *Graph) checkGuards() error {
	for id, spec := range g.nodes {
		edges := g.out[id]
		if spec.Kind != api.KindBranch {
			for _, e := range edges {
				if e.Guard != "" {
					return &api.ValidationError{
						Code:    api.CodeInvalidDefinition,
						NodeID:  id,
						Message: fmt.Sprintf("guard %q on edge from non-branch node", e.Guard),
					}
				}
			}
			continue
		}

		seen := make(map[string]bool, len(edges))
		for _, e := range edges {
			if e.Guard == "" {
				return &api.ValidationError{
					Code:    api.CodeAmbiguousRouting,
					NodeID:  id,
					Message: fmt.Sprintf("edge %s->%s from branch node has no guard", e.From, e.To),
				}
			}
			if seen[e.Guard] {
				return &api.ValidationError{
					Code:    api.CodeAmbiguousRouting,
					NodeID:  id,
					Message: fmt.Sprintf("duplicate guard %q on outgoing edges", e.Guard),
				}
			}
			seen[e.Guard] = true
		}
	}
	return nil
}

// toposort runs Kahn's algorithm to detect cycles and assign diagnostic
// ranks. If nodes remain after the sort, at least one cycle exists; the
// error names a node that is provably on a cycle.
func (g *Graph) toposort() error {
	indeg := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = len(g.in[id])
	}

	queue := append([]string(nil), g.entries...)
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, e := range g.out[id] {
			r := g.rank[id] + 1
			if r > g.rank[e.To] {
				g.rank[e.To] = r
			}
			indeg[e.To]--
			if indeg[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}

	if visited == len(g.nodes) {
		return nil
	}

	// Walk backwards through the residual graph until a node repeats;
	// that node is on a cycle (all residual nodes keep indegree > 0).
	var start string
	for id, d := range indeg {
		if d > 0 && (start == "" || id < start) {
			start = id
		}
	}
	seen := map[string]bool{}
	cur := start
	for !seen[cur] {
		seen[cur] = true
		for _, e := range g.in[cur] {
			if indeg[e.From] > 0 {
				cur = e.From
				break
			}
		}
	}
	return &api.ValidationError{
		Code:    api.CodeCycleDetected,
		NodeID:  cur,
		Message: fmt.Sprintf("dependency cycle through node %s", cur),
	}
}

func (g *Graph) findUnreachable() {
	reached := make(map[string]bool, len(g.nodes))
	queue := append([]string(nil), g.entries...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] {
			continue
		}
		reached[id] = true
		for _, e := range g.out[id] {
			queue = append(queue, e.To)
		}
	}
	for id := range g.nodes {
		if !reached[id] {
			g.Warnings = append(g.Warnings, id)
		}
	}
	sort.Strings(g.Warnings)
}

// Definition returns the underlying flow definition.
func (g *Graph) Definition() api.FlowDefinition { return g.def }

// Node returns the spec for a node id.
func (g *Graph) Node(id string) (api.NodeSpec, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of declared nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Entries returns the ids of nodes with no incoming edges.
func (g *Graph) Entries() []string { return g.entries }

// Successors returns the outgoing edges of a node.
func (g *Graph) Successors(id string) []api.EdgeSpec { return g.out[id] }

// Predecessors returns the incoming edges of a node.
func (g *Graph) Predecessors(id string) []api.EdgeSpec { return g.in[id] }

// Rank returns the topological rank of a node. Diagnostics only.
func (g *Graph) Rank(id string) int { return g.rank[id] }

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
