package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/arbor/pkg/api"
)

// DelayExecutor handles delay-kind nodes: it waits for the configured
// duration, honoring cancellation.
//
// Config:
//   - duration (duration string or seconds): how long to wait (required)
type DelayExecutor struct{}

func (DelayExecutor) Execute(ctx context.Context, req api.ExecRequest) (map[string]any, error) {
	d := getDuration(req.Config, "duration", 0)
	if d <= 0 {
		return nil, api.Fatal(fmt.Errorf("delay node %s: duration is required", req.Node.ID))
	}
	select {
	case <-time.After(d):
		return map[string]any{"waited": d.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
