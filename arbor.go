package arbor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/arbor/internal/engine"
	"github.com/petrijr/arbor/internal/persistence"
	"github.com/petrijr/arbor/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine         = api.Engine
	FlowDefinition = api.FlowDefinition
	NodeSpec       = api.NodeSpec
	EdgeSpec       = api.EdgeSpec
	NodeKind       = api.NodeKind
	Run            = api.Run
	NodeExecution  = api.NodeExecution
	RunStatus      = api.RunStatus
	NodeStatus     = api.NodeStatus
	RunListOptions = api.RunListOptions
	RetryPolicy    = api.RetryPolicy
	Executor       = api.Executor
	ExecutorFunc   = api.ExecutorFunc
	ExecRequest    = api.ExecRequest
	Registry       = api.Registry
	Observer       = api.Observer
	EventBus       = api.EventBus
	Event          = api.Event
)

// Re-export common helpers.

var (
	NewRegistry          = api.NewRegistry
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewEventBus          = api.NewEventBus
	ParseFlowDocument    = api.ParseFlowDocument
	EncodeFlowDocument   = api.EncodeFlowDocument
	Retryable            = api.Retryable
	Fatal                = api.Fatal
)

// Re-export node kinds and statuses for convenience.

const (
	KindTrigger   = api.KindTrigger
	KindTool      = api.KindTool
	KindAgent     = api.KindAgent
	KindDataSink  = api.KindDataSink
	KindBranch    = api.KindBranch
	KindTransform = api.KindTransform
	KindDelay     = api.KindDelay

	RunPending   = api.RunPending
	RunRunning   = api.RunRunning
	RunSucceeded = api.RunSucceeded
	RunFailed    = api.RunFailed
	RunCancelled = api.RunCancelled
)

// Options tunes an engine beyond its storage backend.
type Options struct {
	// Registry supplies the node executors. Defaults to an empty
	// registry; see pkg/exec for the built-ins.
	Registry *api.Registry

	// Parallelism bounds concurrently executing nodes per run
	// (default 4).
	Parallelism int

	// LeaseTTL bounds how long a crashed engine blocks takeover of its
	// runs (default 15s).
	LeaseTTL time.Duration

	// Identity names this engine in leases. Defaults to a fresh UUID.
	Identity string

	Logger   *slog.Logger
	Observer api.Observer
}

func (o Options) engineConfig(store persistence.KV) engine.Config {
	return engine.Config{
		Store:       store,
		Registry:    o.Registry,
		Parallelism: o.Parallelism,
		LeaseTTL:    o.LeaseTTL,
		Identity:    o.Identity,
		Logger:      o.Logger,
		Observer:    o.Observer,
	}
}

// Engine constructors. These wrap the internal packages so external
// callers never need to import them.

// NewInMemoryEngine returns an Engine backed entirely by process
// memory. Nothing survives a restart; best for tests and LocalRunner.
func NewInMemoryEngine(opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewMemoryStore()))
}

// NewSQLiteEngine returns an Engine persisting to the SQLite database
// at path (":memory:" for ephemeral).
func NewSQLiteEngine(path string, opts Options) (Engine, error) {
	store, err := persistence.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return engine.New(opts.engineConfig(store))
}

// NewPostgresEngine returns an Engine persisting to PostgreSQL. Engines
// on different hosts sharing one database coordinate run ownership
// through it.
func NewPostgresEngine(ctx context.Context, dsn string, opts Options) (Engine, error) {
	store, err := persistence.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return engine.New(opts.engineConfig(store))
}

// NewPostgresEngineWithPool is NewPostgresEngine over an existing pool.
func NewPostgresEngineWithPool(pool *pgxpool.Pool, opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewPostgresStoreWithPool(pool)))
}

// NewRedisEngine returns an Engine persisting to Redis at addr.
func NewRedisEngine(addr string, opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewRedisStore(addr)))
}

// NewRedisEngineWithClient is NewRedisEngine over an existing client.
func NewRedisEngineWithClient(client redis.UniversalClient, opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewRedisStoreWithClient(client)))
}
