package exec

import (
	"context"
	"time"

	"github.com/petrijr/arbor/pkg/api"
)

// TriggerExecutor handles trigger-kind nodes: the entry point of a flow
// that surfaces the run's trigger payload as node output, so downstream
// templates can address it either as {{trigger.x}} or {{<node>.x}}.
type TriggerExecutor struct{}

func (TriggerExecutor) Execute(_ context.Context, req api.ExecRequest) (map[string]any, error) {
	out := make(map[string]any, len(req.Trigger)+1)
	for k, v := range req.Trigger {
		out[k] = v
	}
	out["triggered_at"] = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}
