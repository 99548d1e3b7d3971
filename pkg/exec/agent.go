package exec

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/petrijr/arbor/pkg/api"
)

// AgentExecutor handles agent-kind nodes by calling a chat completion
// model.
//
// Config:
//   - prompt (string): user message, usually templated (required)
//   - system (string): system message
//   - model (string): model name. Default gpt-4o-mini
//   - temperature (number), max_tokens (number)
//
// Output:
//   - content (string): the model's reply
//   - model (string): the model that produced it
type AgentExecutor struct {
	client *openai.Client
}

// NewAgentExecutor wraps an OpenAI-compatible client.
func NewAgentExecutor(client *openai.Client) *AgentExecutor {
	return &AgentExecutor{client: client}
}

func (e *AgentExecutor) Execute(ctx context.Context, req api.ExecRequest) (map[string]any, error) {
	prompt := getString(req.Config, "prompt", "")
	if prompt == "" {
		return nil, api.Fatal(fmt.Errorf("agent node %s: prompt is required", req.Node.ID))
	}
	model := getString(req.Config, "model", openai.GPT4oMini)

	messages := []openai.ChatCompletionMessage{}
	if system := getString(req.Config, "system", ""); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if t, ok := req.Config["temperature"].(float64); ok {
		chatReq.Temperature = float32(t)
	}
	if mt, ok := req.Config["max_tokens"].(float64); ok {
		chatReq.MaxTokens = int(mt)
	}

	resp, err := e.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		// Rate limits and upstream hiccups are transient; the node's
		// retry policy decides how hard to push.
		return nil, api.Retryable(fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, api.Retryable(fmt.Errorf("agent node %s: empty choice list", req.Node.ID))
	}

	return map[string]any{
		"content": strings.TrimSpace(resp.Choices[0].Message.Content),
		"model":   resp.Model,
	}, nil
}
