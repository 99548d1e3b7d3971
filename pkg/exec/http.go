package exec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/petrijr/arbor/pkg/api"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPExecutor handles tool-kind nodes by performing an HTTP request.
//
// Config:
//   - method (string): GET, POST, PUT, DELETE. Default GET
//   - url (string): request URL (required)
//   - headers (map): request headers
//   - body (any): request body, serialized as JSON
//   - timeout (duration string or seconds): per-request timeout
//
// Output:
//   - status_code (int), headers (map), body (any; JSON when parseable)
//
// Responses with status >= 500 fail retryably; 4xx responses are the
// caller's fault and fail terminally.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates the executor with a shared client.
func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{client: &http.Client{}}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req api.ExecRequest) (map[string]any, error) {
	url := getString(req.Config, "url", "")
	if url == "" {
		return nil, api.Fatal(fmt.Errorf("tool node %s: url is required", req.Node.ID))
	}
	method := getString(req.Config, "method", http.MethodGet)

	ctx, cancel := context.WithTimeout(ctx, getDuration(req.Config, "timeout", defaultHTTPTimeout))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := req.Config["body"]; ok && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, api.Fatal(fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, api.Fatal(fmt.Errorf("create request: %w", err))
	}
	if headers, ok := req.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				httpReq.Header.Set(k, s)
			}
		}
	}
	if bodyReader != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, api.Retryable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.Retryable(fmt.Errorf("read response: %w", err))
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}
	out := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsed,
	}

	switch {
	case resp.StatusCode >= 500:
		return out, api.Retryable(fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	case resp.StatusCode >= 400:
		return out, api.Fatal(fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
