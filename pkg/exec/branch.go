package exec

import (
	"context"

	"github.com/petrijr/arbor/pkg/api"
)

// BranchExecutor handles branch-kind nodes. The node itself does no
// work: its resolved config becomes its output so that outgoing guards
// (and downstream nodes) can reference whatever values the branch was
// configured to surface. Routing happens after the node succeeds, when
// the scheduler evaluates the guards on its outgoing edges.
type BranchExecutor struct{}

func (BranchExecutor) Execute(_ context.Context, req api.ExecRequest) (map[string]any, error) {
	if req.Config == nil {
		return map[string]any{}, nil
	}
	return req.Config, nil
}
