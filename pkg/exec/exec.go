// Package exec ships the executors for arbor's built-in node kinds:
// trigger, tool (HTTP), agent (LLM), data-sink (AMQP), branch,
// transform and delay. Hosts with custom kinds register their own
// api.Executor implementations alongside these.
package exec

import (
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/petrijr/arbor/pkg/api"
)

// Options configures the built-in executors.
type Options struct {
	// OpenAI backs the agent executor. Nil leaves agent nodes failing
	// at dispatch unless a replacement is registered.
	OpenAI *openai.Client

	// AMQPURL backs the data-sink executor ("amqp://..."). Empty leaves
	// sink nodes routing to the no-op sink.
	AMQPURL string
}

// DefaultRegistry builds a registry with every built-in executor
// registered for its kind.
func DefaultRegistry(opts Options) *api.Registry {
	r := api.NewRegistry()
	r.Register(api.KindTrigger, &TriggerExecutor{})
	r.Register(api.KindTool, NewHTTPExecutor())
	r.Register(api.KindBranch, &BranchExecutor{})
	r.Register(api.KindTransform, &TransformExecutor{})
	r.Register(api.KindDelay, &DelayExecutor{})
	if opts.OpenAI != nil {
		r.Register(api.KindAgent, NewAgentExecutor(opts.OpenAI))
	}
	if opts.AMQPURL != "" {
		r.Register(api.KindDataSink, NewSinkExecutor(opts.AMQPURL))
	} else {
		r.Register(api.KindDataSink, &NoopSink{})
	}
	return r
}

func getString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func getDuration(m map[string]any, key string, def time.Duration) time.Duration {
	switch v := m[key].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
