// Package engine implements the orchestration core: run creation,
// ownership, dependency-driven scheduling, retries and cancellation.
// It has no opinion on where state lives (persistence.KV) or what nodes
// do (api.Registry); both are injected.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/arbor/internal/cluster"
	"github.com/petrijr/arbor/internal/graph"
	"github.com/petrijr/arbor/internal/persistence"
	"github.com/petrijr/arbor/pkg/api"
)

const (
	defaultParallelism = 4
	defaultLeaseTTL    = 15 * time.Second
	cancelPollInterval = time.Second
)

// Config assembles an engine. Store is required; everything else has a
// working default.
type Config struct {
	// Store is the durable backend shared by every engine driving runs
	// of the same deployment.
	Store persistence.KV

	// Registry maps node kinds to executors. Defaults to an empty
	// registry; runs touching any node kind then fail at dispatch.
	Registry *api.Registry

	// Parallelism bounds concurrently executing nodes per run.
	// Defaults to 4.
	Parallelism int

	// LeaseTTL bounds how long a crashed engine blocks takeover of its
	// runs. Defaults to 15s.
	LeaseTTL time.Duration

	// Identity names this engine in leases and run records. Defaults
	// to a fresh UUID.
	Identity string

	Logger   *slog.Logger
	Observer api.Observer
}

// Engine is the concrete api.Engine implementation.
type Engine struct {
	store       *persistence.RunStore
	coord       *cluster.Coordinator
	registry    *api.Registry
	parallelism int
	logger      *slog.Logger
	observer    api.Observer

	mu     sync.Mutex
	active map[string]chan struct{}
	closed bool
}

var _ api.Engine = (*Engine)(nil)

// New creates an engine over cfg.Store.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: Store is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	if cfg.Identity == "" {
		cfg.Identity = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = api.NewRegistry()
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	return &Engine{
		store:       persistence.NewRunStore(cfg.Store),
		coord:       cluster.NewCoordinator(cfg.Store, cfg.Identity, cfg.LeaseTTL),
		registry:    cfg.Registry,
		parallelism: cfg.Parallelism,
		logger:      cfg.Logger.With(slog.String("engine", cfg.Identity)),
		observer:    cfg.Observer,
	}, nil
}

// Identity returns the engine's lease identity.
func (e *Engine) Identity() string { return e.coord.Owner() }

// Registry returns the executor registry, for hosts that register
// executors after construction.
func (e *Engine) Registry() *api.Registry { return e.registry }

func (e *Engine) RegisterFlow(ctx context.Context, def api.FlowDefinition) error {
	g, err := graph.Validate(def)
	if err != nil {
		return err
	}
	for _, w := range g.Warnings {
		e.logger.Warn("flow declares unreachable node",
			slog.String("flow", def.Name), slog.String("node", w))
	}
	if err := e.store.SaveFlow(ctx, def); err != nil {
		return fmt.Errorf("register flow %s: %w", def.Name, err)
	}
	e.logger.Info("flow registered",
		slog.String("flow", def.Name),
		slog.String("version", def.Version()),
		slog.Int("nodes", len(def.Nodes)))
	return nil
}

func (e *Engine) Flow(ctx context.Context, name string) (api.FlowDefinition, error) {
	return e.store.GetFlow(ctx, name)
}

func (e *Engine) ListFlows(ctx context.Context) ([]api.FlowDefinition, error) {
	return e.store.ListFlows(ctx)
}

func (e *Engine) Submit(ctx context.Context, flowName string, trigger map[string]any) (string, error) {
	def, err := e.store.GetFlow(ctx, flowName)
	if err != nil {
		return "", err
	}
	run := &api.Run{
		ID:          uuid.NewString(),
		FlowName:    def.Name,
		FlowVersion: def.Version(),
		Trigger:     trigger,
		Status:      api.RunPending,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := e.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("submit run for %s: %w", flowName, err)
	}
	e.logger.Info("run submitted",
		slog.String("flow", flowName), slog.String("run_id", run.ID))
	return run.ID, nil
}

func (e *Engine) Drive(ctx context.Context, runID string) (*api.Run, error) {
	run, runVer, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	def, err := e.store.GetFlowVersion(ctx, run.FlowName, run.FlowVersion)
	if err != nil {
		return nil, err
	}
	g, err := graph.Validate(def)
	if err != nil {
		return nil, err
	}

	lease, err := e.coord.Acquire(ctx, runID)
	if err != nil {
		return nil, err
	}
	leaseCtx, stopRenewal := e.coord.KeepAlive(ctx, lease)
	defer stopRenewal()
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.coord.Release(releaseCtx, lease)
	}()

	notify := e.registerActive(runID)
	defer e.unregisterActive(runID)

	sched := newScheduler(e, g, run, runVer, notify)
	return sched.drive(leaseCtx)
}

func (e *Engine) Start(ctx context.Context, flowName string, trigger map[string]any) (*api.Run, error) {
	runID, err := e.Submit(ctx, flowName, trigger)
	if err != nil {
		return nil, err
	}
	return e.Drive(ctx, runID)
}

func (e *Engine) GetRun(ctx context.Context, runID string) (*api.Run, error) {
	run, _, err := e.store.GetRun(ctx, runID)
	return run, err
}

func (e *Engine) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	runs, err := e.store.ListRuns(ctx, opts)
	if err != nil {
		return nil, err
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (e *Engine) Cancel(ctx context.Context, runID string) error {
	run, _, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", api.ErrRunTerminal, runID, run.Status)
	}
	if err := e.store.RequestCancel(ctx, runID); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}

	// Nudge a scheduler in this process; remote drivers notice the
	// marker on their next poll.
	e.mu.Lock()
	if ch, ok := e.active[runID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
	e.logger.Info("run cancellation requested", slog.String("run_id", runID))
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) registerActive(runID string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		e.active = make(map[string]chan struct{})
	}
	ch := make(chan struct{}, 1)
	e.active[runID] = ch
	return ch
}

func (e *Engine) unregisterActive(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, runID)
}

func sortRunsNewestFirst(runs []*api.Run) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
