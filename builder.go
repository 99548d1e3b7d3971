package arbor

import (
	"context"
	"fmt"

	"github.com/petrijr/arbor/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows:
//
//	flow := arbor.NewFlow("score-lead").
//	    Node("intake", arbor.KindTrigger, nil).
//	    Node("score", arbor.KindAgent, map[string]any{
//	        "prompt": "Score this lead: {{intake.company}}",
//	    }).
//	    Node("route", arbor.KindBranch, map[string]any{
//	        "hot": "{{score.content}}",
//	    }).
//	    Node("notify", arbor.KindDataSink, map[string]any{
//	        "routing_key": "leads.hot",
//	        "payload":     "{{score.content}}",
//	    }).
//	    Edge("intake", "score").
//	    Edge("score", "route").
//	    EdgeWhen("route", "notify", `route.hot == "yes"`)
//
//	if err := flow.Register(ctx, engine); err != nil {
//	    log.Fatal(err)
//	}
type FlowBuilder struct {
	def api.FlowDefinition
}

// NewFlow creates a new flow builder with the given name.
func NewFlow(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.FlowDefinition{
			Name:  name,
			Nodes: make([]api.NodeSpec, 0),
			Edges: make([]api.EdgeSpec, 0),
		},
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying FlowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *FlowBuilder) Definition() FlowDefinition {
	return b.def
}

// Describe sets the flow description.
func (b *FlowBuilder) Describe(desc string) *FlowBuilder {
	b.def.Description = desc
	return b
}

// Variable declares a flow-level variable, available to every node's
// configuration (node config values win on key collisions).
func (b *FlowBuilder) Variable(key string, value any) *FlowBuilder {
	if b.def.Variables == nil {
		b.def.Variables = make(map[string]any)
	}
	b.def.Variables[key] = value
	return b
}

// Node appends a node to the flow.
func (b *FlowBuilder) Node(id string, kind NodeKind, config map[string]any) *FlowBuilder {
	if id == "" {
		panic("arbor: node id must not be empty")
	}
	if kind == "" {
		panic(fmt.Sprintf("arbor: node %q has empty kind", id))
	}
	b.def.Nodes = append(b.def.Nodes, api.NodeSpec{
		ID:     id,
		Kind:   kind,
		Config: config,
	})
	return b
}

// NodeWithRetry appends a node with an explicit retry policy.
func (b *FlowBuilder) NodeWithRetry(id string, kind NodeKind, config map[string]any, retry RetryBuilder) *FlowBuilder {
	b.Node(id, kind, config)
	p := retry.Policy()
	b.def.Nodes[len(b.def.Nodes)-1].Retry = &p
	return b
}

// RequireSucceeded makes the most recently added node insist that every
// dependency actually succeeded (a skipped dependency skips it too).
func (b *FlowBuilder) RequireSucceeded() *FlowBuilder {
	b.lastNode().RequireSucceeded = true
	return b
}

// BestEffort lets the most recently added node run even when a
// dependency failed, with the missing input treated as absent.
func (b *FlowBuilder) BestEffort() *FlowBuilder {
	b.lastNode().BestEffort = true
	return b
}

func (b *FlowBuilder) lastNode() *api.NodeSpec {
	if len(b.def.Nodes) == 0 {
		panic("arbor: no node to modify; call Node first")
	}
	return &b.def.Nodes[len(b.def.Nodes)-1]
}

// Edge declares that `to` depends on `from`.
func (b *FlowBuilder) Edge(from, to string) *FlowBuilder {
	b.def.Edges = append(b.def.Edges, api.EdgeSpec{From: from, To: to})
	return b
}

// EdgeWhen declares a guarded edge out of a branch node: the edge is
// live for a run only when guard evaluates true.
func (b *FlowBuilder) EdgeWhen(from, to, guard string) *FlowBuilder {
	b.def.Edges = append(b.def.Edges, api.EdgeSpec{From: from, To: to, Guard: guard})
	return b
}

// Register validates and registers the flow with the engine.
func (b *FlowBuilder) Register(ctx context.Context, e Engine) error {
	return e.RegisterFlow(ctx, b.def)
}

// MustRegister is Register panicking on error, for program-startup
// registration of flows known to be valid.
func (b *FlowBuilder) MustRegister(ctx context.Context, e Engine) *FlowBuilder {
	if err := b.Register(ctx, e); err != nil {
		panic(fmt.Sprintf("arbor: register flow %q: %v", b.def.Name, err))
	}
	return b
}
