package arbor_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/petrijr/arbor"
	"github.com/petrijr/arbor/pkg/api"
)

// Example_flowBuilder demonstrates defining and running a simple flow
// using the FlowBuilder API and an in-memory engine.
func Example_flowBuilder() {
	ctx := context.Background()

	reg := arbor.NewRegistry()
	reg.Register(arbor.KindTrigger, arbor.ExecutorFunc(greet))
	reg.Register(arbor.KindTransform, arbor.ExecutorFunc(passthrough))

	eng, err := arbor.NewInMemoryEngine(arbor.Options{Registry: reg})
	if err != nil {
		log.Fatal(err)
	}

	arbor.NewFlow("greeting").
		Node("in", arbor.KindTrigger, nil).
		Node("decorate", arbor.KindTransform, map[string]any{
			"message": "*** hello, {{in.name}} ***",
		}).
		Edge("in", "decorate").
		MustRegister(ctx, eng)

	run, err := eng.Start(ctx, "greeting", map[string]any{"name": "gopher"})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("run %q finished with status %s: %v\n",
		run.ID, run.Status, run.Nodes["decorate"].Output["message"])
}

// Example_localRunner demonstrates executing flows asynchronously with
// an in-process engine, queue, and worker.
func Example_localRunner() {
	ctx := context.Background()

	runner, err := arbor.NewLocalRunner()
	if err != nil {
		log.Fatal(err)
	}

	arbor.NewFlow("echo").
		Node("in", arbor.KindTrigger, nil).
		Node("shape", arbor.KindTransform, map[string]any{
			"said": "{{in.word}}",
		}).
		Edge("in", "shape").
		MustRegister(ctx, runner.Engine)

	if err := runner.StartWorkers(ctx, 1); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	if err := runner.StartFlowAsync(ctx, "echo", map[string]any{"word": "hi"}); err != nil {
		log.Fatal(err)
	}

	// In a real application you'd subscribe to events or poll the run;
	// for example purposes, just give the worker a moment.
	time.Sleep(200 * time.Millisecond)
}

// Example_branching demonstrates guard-based routing: exactly one of
// the guarded paths runs, the other is skipped.
func Example_branching() {
	ctx := context.Background()

	reg := arbor.NewRegistry()
	reg.Register(arbor.KindTrigger, arbor.ExecutorFunc(greet))
	reg.Register(arbor.KindBranch, arbor.ExecutorFunc(passthrough))
	reg.Register(arbor.KindTransform, arbor.ExecutorFunc(passthrough))

	eng, err := arbor.NewInMemoryEngine(arbor.Options{Registry: reg})
	if err != nil {
		log.Fatal(err)
	}

	arbor.NewFlow("triage").
		Node("in", arbor.KindTrigger, nil).
		Node("route", arbor.KindBranch, map[string]any{
			"severity": "{{in.severity}}",
		}).
		Node("page", arbor.KindTransform, map[string]any{"channel": "oncall"}).
		Node("log", arbor.KindTransform, map[string]any{"channel": "digest"}).
		Edge("in", "route").
		EdgeWhen("route", "page", `{{route.severity}} == "critical"`).
		EdgeWhen("route", "log", `{{route.severity}} != "critical"`).
		MustRegister(ctx, eng)

	run, err := eng.Start(ctx, "triage", map[string]any{"severity": "critical"})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("page: %s, log: %s\n",
		run.Nodes["page"].Status, run.Nodes["log"].Status)
	// Output: page: SUCCEEDED, log: SKIPPED
}

func greet(_ context.Context, req api.ExecRequest) (map[string]any, error) {
	out := make(map[string]any, len(req.Trigger))
	for k, v := range req.Trigger {
		out[k] = v
	}
	return out, nil
}

func passthrough(_ context.Context, req api.ExecRequest) (map[string]any, error) {
	if req.Config == nil {
		return map[string]any{}, nil
	}
	return req.Config, nil
}
