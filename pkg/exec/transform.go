package exec

import (
	"context"

	"github.com/petrijr/arbor/pkg/api"
)

// TransformExecutor handles transform-kind nodes. The scheduler has
// already resolved every template in the config, so a transform is a
// pass-through: its resolved config becomes its output, which is how
// data gets reshaped between steps without calling anything.
type TransformExecutor struct{}

func (TransformExecutor) Execute(_ context.Context, req api.ExecRequest) (map[string]any, error) {
	if req.Config == nil {
		return map[string]any{}, nil
	}
	return req.Config, nil
}
