// Package trigger starts flow runs from external stimuli. The cron
// scheduler here covers time-based triggers; event-based triggers are a
// worker consuming a queue (see pkg/worker).
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/petrijr/arbor/pkg/api"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr checks a five-field cron expression.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// CronScheduler starts runs of registered flows on cron schedules. Each
// firing submits and drives a fresh run; a slow run does not delay the
// next firing.
type CronScheduler struct {
	engine api.Engine
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewCronScheduler creates a stopped scheduler bound to an engine.
func NewCronScheduler(engine api.Engine, logger *slog.Logger) *CronScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{
		engine:  engine,
		logger:  logger,
		cron:    cron.New(cron.WithParser(cronParser)),
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule arranges for flowName to start on the given cron expression
// with the given trigger payload. Re-scheduling a flow replaces its
// previous schedule.
func (s *CronScheduler) Schedule(expr, flowName string, trigger map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(expr, func() {
		ctx := context.Background()
		run, err := s.engine.Start(ctx, flowName, trigger)
		if err != nil {
			s.logger.Error("scheduled run failed to start",
				slog.String("flow", flowName), slog.Any("error", err))
			return
		}
		s.logger.Info("scheduled run finished",
			slog.String("flow", flowName),
			slog.String("run_id", run.ID),
			slog.String("status", string(run.Status)))
	})
	if err != nil {
		return fmt.Errorf("schedule flow %s: %w", flowName, err)
	}

	if old, ok := s.entries[flowName]; ok {
		s.cron.Remove(old)
	}
	s.entries[flowName] = id
	return nil
}

// Unschedule removes a flow's schedule, if any.
func (s *CronScheduler) Unschedule(flowName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[flowName]; ok {
		s.cron.Remove(id)
		delete(s.entries, flowName)
	}
}

// Start begins firing schedules.
func (s *CronScheduler) Start() { s.cron.Start() }

// Stop stops firing and returns a context that is done once in-flight
// jobs have finished.
func (s *CronScheduler) Stop() context.Context { return s.cron.Stop() }
