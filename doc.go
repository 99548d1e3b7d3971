// Package arbor provides an embeddable workflow orchestration engine
// for Go.
//
// Arbor executes flows: directed acyclic graphs of typed nodes, where
// each node's kind (trigger, tool, agent, data-sink, branch, transform,
// delay, or anything a host registers) selects the executor that
// performs it. Node configuration is templated, so a step can reference
// the outputs of completed steps with `{{node.field}}` and the trigger
// payload with `{{trigger.field}}`. Runs are durable: every node state
// transition is persisted before the next dispatch, and an interrupted
// run resumes from its last consistent snapshot on any engine sharing
// the same storage.
//
// # Core Concepts
//
// The arbor programming model is intentionally small:
//
//  1. Engine
//  2. FlowBuilder
//  3. Executor / Registry
//  4. Worker
//  5. LocalRunner
//
// # Engine
//
// The Engine persists flow definitions and run state, resolves node
// dependencies, routes branches, retries failed attempts under each
// node's retry policy, and enforces single-ownership of every run via
// storage-backed leases. Submit creates a durable pending run; Drive
// takes ownership and executes it; Start combines both. Several engines
// may share one storage backend: leases guarantee at most one drives a
// given run at a time, and a run orphaned by a crash can be re-driven
// by any of them once the lease expires.
//
// Storage backends:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres (multi-process deployments)
//   - Redis
//
// # Defining flows
//
//	flow := arbor.NewFlow("enrich-order").
//	    Node("intake", arbor.KindTrigger, nil).
//	    Node("fetch", arbor.KindTool, map[string]any{
//	        "url": "https://api.example.com/orders/{{intake.order_id}}",
//	    }).
//	    Node("store", arbor.KindDataSink, map[string]any{
//	        "routing_key": "orders.enriched",
//	        "payload":     "{{fetch.body}}",
//	    }).
//	    Edge("intake", "fetch").
//	    Edge("fetch", "store")
//
//	if err := flow.Register(ctx, engine); err != nil {
//	    log.Fatal(err)
//	}
//	run, err := engine.Start(ctx, "enrich-order", map[string]any{"order_id": "42"})
package arbor
