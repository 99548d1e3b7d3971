package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dario.cat/mergo"

	"github.com/petrijr/arbor/internal/expr"
	"github.com/petrijr/arbor/internal/graph"
	"github.com/petrijr/arbor/pkg/api"
)

// edgeState classifies one dependency edge for a running scheduler.
type edgeState int

const (
	edgeUnknown edgeState = iota // source not yet decided
	edgeLive                     // dependency satisfied
	edgeDead                     // source skipped, failed, or routed away
)

// scheduler drives one run to a terminal state. It is strictly
// single-writer: every store write and every mutation of run state
// happens on the goroutine running drive(); dispatch goroutines only
// call executors and report back over the results channel. That makes
// each persisted node transition a consistent snapshot, which is what
// allows another engine to resume the run after a crash.
type scheduler struct {
	eng   *Engine
	graph *graph.Graph
	run   *api.Run

	runVersion   int64
	nodeVersions map[string]int64

	rctx api.RunContext

	// edges tracks the state of every dependency edge, keyed by
	// "from\x00to".
	edges map[string]edgeState

	results      chan nodeResult
	requeue      chan string
	retryTimers  map[string]*time.Timer
	nodeCancels  map[string]context.CancelFunc
	inflight     int
	pendingRetry int
	cancelled    bool
	notify       <-chan struct{}
}

type nodeResult struct {
	nodeID   string
	output   map[string]any
	err      error
	duration time.Duration
}

func newScheduler(eng *Engine, g *graph.Graph, run *api.Run, runVersion int64, notify <-chan struct{}) *scheduler {
	return &scheduler{
		eng:          eng,
		graph:        g,
		run:          run,
		runVersion:   runVersion,
		nodeVersions: make(map[string]int64),
		edges:        make(map[string]edgeState),
		results:      make(chan nodeResult),
		requeue:      make(chan string, g.Len()),
		retryTimers:  make(map[string]*time.Timer),
		nodeCancels:  make(map[string]context.CancelFunc),
		notify:       notify,
	}
}

func edgeKey(from, to string) string { return from + "\x00" + to }

// drive executes the run until it is terminal, ctx is cancelled, or the
// ownership lease is lost. Resuming a partially executed run is the
// same code path as a fresh start: terminal node records are kept as-is
// and only the remainder executes.
func (s *scheduler) drive(ctx context.Context) (*api.Run, error) {
	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	if s.run.Status == api.RunPending {
		s.run.Status = api.RunRunning
		s.run.LeaseOwner = s.eng.Identity()
		if err := s.persistRun(ctx); err != nil {
			return nil, err
		}
	}
	s.eng.observer.OnRunStart(ctx, s.run)

	if requested, err := s.eng.store.CancelRequested(ctx, s.run.ID); err == nil && requested {
		s.beginCancel(ctx)
	}

	if err := s.pump(ctx); err != nil {
		return nil, s.abandon(err)
	}

	poll := time.NewTicker(cancelPollInterval)
	defer poll.Stop()
	defer s.stopTimers()

	for !s.done() {
		select {
		case <-ctx.Done():
			return nil, s.abandon(driveInterrupted(ctx))

		case res := <-s.results:
			s.inflight--
			delete(s.nodeCancels, res.nodeID)
			if err := s.applyResult(ctx, res); err != nil {
				return nil, s.abandon(err)
			}

		case nodeID := <-s.requeue:
			s.pendingRetry--
			delete(s.retryTimers, nodeID)
			if err := s.makeReady(ctx, nodeID); err != nil {
				return nil, s.abandon(err)
			}

		case <-s.notify:
			s.beginCancel(ctx)

		case <-poll.C:
			if s.cancelled {
				continue
			}
			if requested, err := s.eng.store.CancelRequested(ctx, s.run.ID); err == nil && requested {
				s.beginCancel(ctx)
			}
		}

		if err := s.pump(ctx); err != nil {
			return nil, s.abandon(err)
		}
	}

	return s.finish(ctx)
}

// pump alternates settling and dispatching until the run is stable:
// dispatch can fail a node without executing it (unresolvable config),
// which settle must then cascade before the loop waits for events.
func (s *scheduler) pump(ctx context.Context) error {
	for {
		if err := s.settle(ctx); err != nil {
			return err
		}
		failed, err := s.dispatchReady(ctx)
		if err != nil {
			return err
		}
		if !failed {
			return nil
		}
	}
}

// restore rebuilds in-memory state from the durable records: node
// execution snapshots, their storage versions, succeeded outputs, and
// the interrupted-attempt repair. A node persisted as Running belongs
// to a driver that died mid-attempt; the attempt may or may not have
// had effect, so it is treated as a failed attempt and retried under
// the node's policy (at-least-once execution).
func (s *scheduler) restore(ctx context.Context) error {
	vers, err := s.eng.store.NodeVersions(ctx, s.run.ID)
	if err != nil {
		return err
	}
	s.nodeVersions = vers

	if s.run.Nodes == nil {
		s.run.Nodes = make(map[string]*api.NodeExecution)
	}
	for _, id := range s.graph.NodeIDs() {
		ne, ok := s.run.Nodes[id]
		if !ok {
			s.run.Nodes[id] = &api.NodeExecution{NodeID: id, Status: api.NodePending}
			continue
		}
		switch ne.Status {
		case api.NodeRunning:
			node, _ := s.graph.Node(id)
			policy := retryPolicy(node)
			ne.Error = &api.NodeError{
				Kind:    api.ErrorKindRetryable,
				Message: "attempt interrupted by driver failure",
				Attempt: ne.Attempts,
			}
			if ne.Attempts < policy.MaxAttempts {
				ne.Status = api.NodeReady
			} else {
				ne.Status = api.NodeFailed
				ne.Error.Kind = api.ErrorKindFatal
				ne.FinishedAt = time.Now().UTC()
			}
			if err := s.persistNode(ctx, ne); err != nil {
				return err
			}
		case api.NodeFailed:
			// A Failed record without a finish timestamp was waiting out
			// a retry backoff when the driver died. The timer is gone;
			// retry immediately.
			node, _ := s.graph.Node(id)
			if ne.FinishedAt.IsZero() && ne.Attempts < retryPolicy(node).MaxAttempts {
				ne.Status = api.NodeReady
				if err := s.persistNode(ctx, ne); err != nil {
					return err
				}
			}
		case api.NodeReady:
			// Re-dispatched below.
		}
	}

	s.rctx = api.NewRunContext(s.run.Trigger)
	for id, ne := range s.run.Nodes {
		if ne.Status == api.NodeSucceeded {
			s.rctx.Outputs[id] = ne.Output
		}
	}

	// Rebuild routing decisions for branches that completed before the
	// interruption.
	for id, ne := range s.run.Nodes {
		if ne.Status != api.NodeSucceeded {
			continue
		}
		node, _ := s.graph.Node(id)
		if node.Kind != api.KindBranch {
			continue
		}
		if err := s.routeBranch(id); err != nil {
			// Guards no longer route cleanly against the restored
			// context. Record the failure on the branch node so the run
			// cascades to a terminal state instead of wedging.
			ne.Status = api.NodeFailed
			ne.Error = &api.NodeError{
				Kind:    routingErrorKind(err),
				Message: err.Error(),
				Attempt: ne.Attempts,
			}
			ne.FinishedAt = time.Now().UTC()
			delete(s.rctx.Outputs, id)
			if err := s.persistNode(ctx, ne); err != nil {
				return err
			}
		}
	}
	return nil
}

// settle propagates decided edges until nothing changes: succeeded
// sources make their live edges satisfiable, dead paths skip their
// descendants, and terminal failures cascade. All transitions here are
// persisted before settle returns.
func (s *scheduler) settle(ctx context.Context) error {
	for {
		changed := false
		for _, id := range s.graph.NodeIDs() {
			ne := s.run.Nodes[id]
			if s.cancelled && ne.Status == api.NodeReady {
				// Queued behind the parallelism bound when the run was
				// cancelled; it never dispatches, so finalize it here.
				ne.Status = api.NodeSkipped
				ne.FinishedAt = time.Now().UTC()
				if err := s.persistNode(ctx, ne); err != nil {
					return err
				}
				s.eng.observer.OnNodeSkipped(ctx, s.run, id)
				changed = true
				continue
			}
			if ne.Status != api.NodePending {
				continue
			}
			node, _ := s.graph.Node(id)
			next, errInfo := s.decide(id, node)
			if next == api.NodePending {
				continue
			}
			changed = true

			switch next {
			case api.NodeReady:
				ne.Status = api.NodeReady
				if err := s.persistNode(ctx, ne); err != nil {
					return err
				}
			case api.NodeSkipped:
				ne.Status = api.NodeSkipped
				ne.FinishedAt = time.Now().UTC()
				if err := s.persistNode(ctx, ne); err != nil {
					return err
				}
				s.eng.observer.OnNodeSkipped(ctx, s.run, id)
			case api.NodeFailed:
				ne.Status = api.NodeFailed
				ne.Error = errInfo
				ne.FinishedAt = time.Now().UTC()
				if err := s.persistNode(ctx, ne); err != nil {
					return err
				}
			}
		}
		if !changed {
			return nil
		}
	}
}

// decide computes the next state of a Pending node from its incoming
// edges, or Pending when undecided. The rules:
//
//   - a terminally failed predecessor fails this node too (cascade),
//     unless the node is BestEffort;
//   - RequireSucceeded turns any dead edge into a skip;
//   - all edges dead means no path reaches this node: skip;
//   - otherwise the node is ready once every edge is decided.
func (s *scheduler) decide(id string, node api.NodeSpec) (api.NodeStatus, *api.NodeError) {
	if s.cancelled {
		return api.NodeSkipped, nil
	}

	in := s.graph.Predecessors(id)
	if len(in) == 0 {
		return api.NodeReady, nil
	}

	if !node.BestEffort {
		for _, e := range in {
			pred := s.run.Nodes[e.From]
			if pred.Status == api.NodeFailed && !s.retryPending(e.From) {
				return api.NodeFailed, &api.NodeError{
					Kind:    api.ErrorKindCascade,
					Message: fmt.Sprintf("dependency %s failed", e.From),
				}
			}
		}
	}

	undecided := 0
	dead := 0
	for _, e := range in {
		st := s.edgeState(e)
		// Best-effort nodes run despite failed dependencies; the edge
		// still counts as satisfied, with the input simply absent.
		if st == edgeDead && node.BestEffort && s.run.Nodes[e.From].Status == api.NodeFailed {
			st = edgeLive
		}
		// The skip-tolerant default does not apply to strict joins: a
		// skipped dependency is a dead edge for RequireSucceeded nodes.
		if st == edgeLive && node.RequireSucceeded && s.run.Nodes[e.From].Status == api.NodeSkipped {
			st = edgeDead
		}
		switch st {
		case edgeUnknown:
			undecided++
		case edgeDead:
			dead++
		}
	}

	if node.RequireSucceeded && dead > 0 {
		return api.NodeSkipped, nil
	}
	if undecided > 0 {
		return api.NodePending, nil
	}
	if dead == len(in) {
		return api.NodeSkipped, nil
	}
	return api.NodeReady, nil
}

// edgeState classifies one edge given the current node states and any
// recorded branch routing decision.
func (s *scheduler) edgeState(e api.EdgeSpec) edgeState {
	if st, ok := s.edges[edgeKey(e.From, e.To)]; ok && st != edgeUnknown {
		return st
	}
	pred := s.run.Nodes[e.From]
	switch pred.Status {
	case api.NodeSucceeded:
		from, _ := s.graph.Node(e.From)
		if from.Kind == api.KindBranch {
			// Branch edges are decided by routeBranch when the branch
			// completes; absent a recorded decision they stay unknown.
			return edgeUnknown
		}
		return edgeLive
	case api.NodeSkipped:
		if e.Guard == "" {
			from, _ := s.graph.Node(e.From)
			if from.Kind != api.KindBranch {
				// A skipped non-required dependency still satisfies the
				// edge; downstream work proceeds around it.
				return edgeLive
			}
		}
		return edgeDead
	case api.NodeFailed:
		if s.retryPending(e.From) {
			return edgeUnknown
		}
		return edgeDead
	default:
		return edgeUnknown
	}
}

// retryPending reports whether id is a Failed record with a retry still
// armed. Such a node loops back to Ready when its backoff elapses, so
// nothing downstream may treat the failure as terminal yet.
func (s *scheduler) retryPending(id string) bool {
	_, ok := s.retryTimers[id]
	return ok
}

// routeBranch evaluates the guards on a completed branch node's
// outgoing edges and records which single edge is live. More than one
// true guard is a definition-level contradiction surfaced as an
// AMBIGUOUS_ROUTING failure of the branch node; zero true guards kills
// every outgoing edge, skipping the whole downstream region.
func (s *scheduler) routeBranch(id string) error {
	resolver := expr.New(s.rctx)
	var live []string
	for _, e := range s.graph.Successors(id) {
		ok, err := resolver.EvalGuard(e.Guard)
		if err != nil {
			return fmt.Errorf("guard on edge %s->%s: %w", e.From, e.To, err)
		}
		if ok {
			live = append(live, e.To)
		}
		st := edgeDead
		if ok {
			st = edgeLive
		}
		s.edges[edgeKey(e.From, e.To)] = st
	}
	if len(live) > 1 {
		sort.Strings(live)
		return &api.ValidationError{
			Code:    api.CodeAmbiguousRouting,
			NodeID:  id,
			Message: fmt.Sprintf("guards selected %d edges (%v), want at most 1", len(live), live),
		}
	}
	return nil
}

// dispatchReady launches executor goroutines for Ready nodes up to the
// parallelism bound, lowest topological rank first for determinism. It
// reports whether any node failed without executing.
func (s *scheduler) dispatchReady(ctx context.Context) (bool, error) {
	if s.cancelled {
		return false, nil
	}
	var ready []string
	for _, id := range s.graph.NodeIDs() {
		if s.run.Nodes[id].Status == api.NodeReady {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ri, rj := s.graph.Rank(ready[i]), s.graph.Rank(ready[j])
		if ri != rj {
			return ri < rj
		}
		return ready[i] < ready[j]
	})

	failedAny := false
	for _, id := range ready {
		if s.inflight >= s.eng.parallelism {
			break
		}
		failed, err := s.dispatch(ctx, id)
		if err != nil {
			return failedAny, err
		}
		failedAny = failedAny || failed
	}
	return failedAny, nil
}

// dispatch resolves a node's configuration and inputs, persists the
// Running transition, and starts the attempt goroutine. The bool is
// true when the node failed before executing.
func (s *scheduler) dispatch(ctx context.Context, id string) (bool, error) {
	node, _ := s.graph.Node(id)
	ne := s.run.Nodes[id]

	resolver := expr.New(s.rctx)
	resolver.Lenient = node.BestEffort
	raw, err := nodeConfig(s.graph.Definition(), node)
	var config map[string]any
	if err == nil {
		config, err = resolver.ResolveConfig(raw)
	}
	if err != nil {
		// Unresolvable configuration is a property of the definition
		// and context, not of the attempt: fail without retrying.
		ne.Status = api.NodeFailed
		ne.Error = &api.NodeError{Kind: api.ErrorKindResolution, Message: err.Error()}
		ne.FinishedAt = time.Now().UTC()
		return true, s.persistNode(ctx, ne)
	}

	inputs := make(map[string]map[string]any)
	for _, e := range s.graph.Predecessors(id) {
		if s.edgeState(e) != edgeLive {
			continue
		}
		if pred := s.run.Nodes[e.From]; pred.Status == api.NodeSucceeded {
			inputs[e.From] = pred.Output
		}
	}

	ne.Status = api.NodeRunning
	ne.Attempts++
	ne.Input = config
	ne.Error = nil
	if ne.Attempts == 1 {
		ne.StartedAt = time.Now().UTC()
	}
	if err := s.persistNode(ctx, ne); err != nil {
		return false, err
	}
	s.eng.observer.OnNodeStart(ctx, s.run, id, ne.Attempts)

	ex, err := s.eng.registry.Get(node.Kind)
	if err != nil {
		res := nodeResult{nodeID: id, err: api.Fatal(err)}
		s.inflight++
		go func() { s.results <- res }()
		s.nodeCancels[id] = func() {}
		return false, nil
	}

	policy := retryPolicy(node)
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	s.nodeCancels[id] = cancel

	req := api.ExecRequest{
		RunID:   s.run.ID,
		Node:    node,
		Config:  config,
		Inputs:  inputs,
		Trigger: s.run.Trigger,
		Attempt: ne.Attempts,
	}
	s.inflight++
	go func() {
		defer cancel()
		start := time.Now()
		out, execErr := ex.Execute(attemptCtx, req)
		if execErr == nil && attemptCtx.Err() != nil {
			execErr = attemptCtx.Err()
		}
		s.results <- nodeResult{nodeID: id, output: out, err: execErr, duration: time.Since(start)}
	}()
	return false, nil
}

// applyResult records one finished attempt: success feeds the run
// context and routes branches; failure either schedules a retry under
// the node's policy or fails the node terminally.
func (s *scheduler) applyResult(ctx context.Context, res nodeResult) error {
	id := res.nodeID
	node, _ := s.graph.Node(id)
	ne := s.run.Nodes[id]
	s.eng.observer.OnNodeFinished(ctx, s.run, id, ne.Attempts, res.err, res.duration)

	if res.err == nil {
		ne.Output = res.output
		s.rctx.Outputs[id] = res.output
		if node.Kind == api.KindBranch {
			if err := s.routeBranch(id); err != nil {
				ne.Status = api.NodeFailed
				ne.Error = &api.NodeError{
					Kind:    routingErrorKind(err),
					Message: err.Error(),
					Attempt: ne.Attempts,
				}
				ne.FinishedAt = time.Now().UTC()
				return s.persistNode(ctx, ne)
			}
		}
		ne.Status = api.NodeSucceeded
		ne.Error = nil
		ne.FinishedAt = time.Now().UTC()
		return s.persistNode(ctx, ne)
	}

	kind := api.ErrorKindRetryable
	retryable := api.IsRetryable(res.err)
	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		kind = api.ErrorKindTimeout
		retryable = true
	case errors.Is(res.err, context.Canceled):
		kind = api.ErrorKindCancelled
		retryable = false
	case !retryable:
		kind = api.ErrorKindFatal
	}

	policy := retryPolicy(node)
	ne.Error = &api.NodeError{Kind: kind, Message: res.err.Error(), Attempt: ne.Attempts}
	ne.Status = api.NodeFailed

	if retryable && !s.cancelled && ne.Attempts < policy.MaxAttempts {
		// The Failed record is persisted before the retry is armed, so
		// a crash between them resumes as an interrupted attempt rather
		// than losing the failure.
		if err := s.persistNode(ctx, ne); err != nil {
			return err
		}
		delay := backoffDelay(policy, ne.Attempts)
		s.pendingRetry++
		s.retryTimers[id] = time.AfterFunc(delay, func() { s.requeue <- id })
		s.eng.logger.Debug("retry scheduled",
			slog.String("run_id", s.run.ID),
			slog.String("node", id),
			slog.Int("attempt", ne.Attempts),
			slog.Duration("delay", delay))
		return nil
	}

	if retryable && !s.cancelled {
		ne.Error.Kind = api.ErrorKindFatal
		ne.Error.Message = fmt.Sprintf("retries exhausted after %d attempts: %s", ne.Attempts, res.err)
	}
	ne.FinishedAt = time.Now().UTC()
	return s.persistNode(ctx, ne)
}

// makeReady moves a node back to Ready after its retry backoff. Under
// cancellation the node stays Failed and is finalized instead.
func (s *scheduler) makeReady(ctx context.Context, id string) error {
	ne := s.run.Nodes[id]
	if ne.Status != api.NodeFailed {
		return nil
	}
	if s.cancelled {
		ne.Error = &api.NodeError{Kind: api.ErrorKindCancelled, Message: "run cancelled during retry backoff", Attempt: ne.Attempts}
		ne.FinishedAt = time.Now().UTC()
		return s.persistNode(ctx, ne)
	}
	ne.Status = api.NodeReady
	return s.persistNode(ctx, ne)
}

// beginCancel stops new work: in-flight attempt contexts are cancelled,
// armed retries are abandoned as terminal failures, and settle skips
// everything not yet started. In-flight attempts are still awaited so
// their outcomes are recorded.
func (s *scheduler) beginCancel(ctx context.Context) {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.run.Status = api.RunCancelled
	s.eng.logger.Info("cancelling run", slog.String("run_id", s.run.ID))

	for _, cancel := range s.nodeCancels {
		cancel()
	}
	for id, t := range s.retryTimers {
		if t.Stop() {
			s.pendingRetry--
			ne := s.run.Nodes[id]
			ne.Error = &api.NodeError{Kind: api.ErrorKindCancelled, Message: "run cancelled during retry backoff", Attempt: ne.Attempts}
			ne.FinishedAt = time.Now().UTC()
			if err := s.persistNode(ctx, ne); err != nil {
				s.eng.logger.Error("persist cancelled node", slog.String("node", id), slog.Any("error", err))
			}
		}
		delete(s.retryTimers, id)
	}
}

// done reports whether every node is terminal and nothing is in flight.
func (s *scheduler) done() bool {
	if s.inflight > 0 || s.pendingRetry > 0 {
		return false
	}
	for _, ne := range s.run.Nodes {
		if !ne.Status.Terminal() {
			return false
		}
	}
	return true
}

// finish computes and persists the terminal run status.
func (s *scheduler) finish(ctx context.Context) (*api.Run, error) {
	status := api.RunSucceeded
	if s.cancelled {
		status = api.RunCancelled
	} else {
		for _, ne := range s.run.Nodes {
			if ne.Status == api.NodeFailed {
				status = api.RunFailed
				break
			}
		}
	}
	s.run.Status = status
	s.run.CompletedAt = time.Now().UTC()
	if err := s.persistRun(ctx); err != nil {
		return nil, err
	}
	if s.cancelled {
		s.eng.store.ClearCancel(ctx, s.run.ID)
	}
	s.eng.observer.OnRunFinished(ctx, s.run)
	s.eng.logger.Info("run finished",
		slog.String("run_id", s.run.ID),
		slog.String("status", string(status)))
	return s.run, nil
}

// abandon stops driving without persisting a terminal state, leaving
// the durable records consistent for the next driver. In-flight
// goroutines are drained so they do not leak into a dead scheduler.
func (s *scheduler) abandon(err error) error {
	for _, cancel := range s.nodeCancels {
		cancel()
	}
	for s.inflight > 0 {
		<-s.results
		s.inflight--
	}
	return err
}

func (s *scheduler) stopTimers() {
	for _, t := range s.retryTimers {
		t.Stop()
	}
}

func (s *scheduler) persistRun(ctx context.Context) error {
	ver, err := s.eng.store.UpdateRun(ctx, s.run, s.runVersion)
	if err != nil {
		return fmt.Errorf("persist run %s: %w", s.run.ID, err)
	}
	s.runVersion = ver
	return nil
}

func (s *scheduler) persistNode(ctx context.Context, ne *api.NodeExecution) error {
	ver, err := s.eng.store.SaveNode(ctx, s.run.ID, ne, s.nodeVersions[ne.NodeID])
	if err != nil {
		return fmt.Errorf("persist node %s of run %s: %w", ne.NodeID, s.run.ID, err)
	}
	s.nodeVersions[ne.NodeID] = ver
	return nil
}

// driveInterrupted maps a done context to the error the caller should
// see: lease loss surfaces as ErrLeaseExpired via the cause.
func driveInterrupted(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return ctx.Err()
}

func routingErrorKind(err error) api.ErrorKind {
	var ve *api.ValidationError
	if errors.As(err, &ve) && ve.Code == api.CodeAmbiguousRouting {
		return api.ErrorKindRouting
	}
	return api.ErrorKindResolution
}

// retryPolicy returns the node's policy with defaults applied.
func retryPolicy(node api.NodeSpec) api.RetryPolicy {
	if node.Retry == nil {
		return api.DefaultRetryPolicy()
	}
	p := *node.Retry
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return p
}

// nodeConfig merges flow-level variables under the node configuration,
// node values winning, so shared settings need declaring once.
func nodeConfig(def api.FlowDefinition, node api.NodeSpec) (map[string]any, error) {
	if len(def.Variables) == 0 {
		return node.Config, nil
	}
	merged := make(map[string]any, len(def.Variables)+len(node.Config))
	for k, v := range node.Config {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, def.Variables); err != nil {
		return nil, fmt.Errorf("merge flow variables into node %s: %w", node.ID, err)
	}
	return merged, nil
}
