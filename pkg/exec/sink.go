package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/petrijr/arbor/pkg/api"
)

// SinkExecutor handles data-sink-kind nodes by publishing a message to
// RabbitMQ. The connection is dialed lazily on first use and shared
// across attempts.
//
// Config:
//   - exchange (string): target exchange ("" for the default)
//   - routing_key (string): routing key, or queue name on the default
//     exchange (required)
//   - payload (any): message body, serialized as JSON (required)
//
// Output:
//   - message_id (string), published_at (string)
type SinkExecutor struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewSinkExecutor creates a sink publishing to the broker at url.
func NewSinkExecutor(url string) *SinkExecutor {
	return &SinkExecutor{url: url}
}

func (e *SinkExecutor) channel() (*amqp.Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch != nil && !e.conn.IsClosed() {
		return e.ch, nil
	}
	conn, err := amqp.Dial(e.url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	e.conn, e.ch = conn, ch
	return ch, nil
}

func (e *SinkExecutor) Execute(ctx context.Context, req api.ExecRequest) (map[string]any, error) {
	routingKey := getString(req.Config, "routing_key", "")
	if routingKey == "" {
		return nil, api.Fatal(fmt.Errorf("data-sink node %s: routing_key is required", req.Node.ID))
	}
	payload, ok := req.Config["payload"]
	if !ok {
		return nil, api.Fatal(fmt.Errorf("data-sink node %s: payload is required", req.Node.ID))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, api.Fatal(fmt.Errorf("marshal payload: %w", err))
	}

	ch, err := e.channel()
	if err != nil {
		return nil, api.Retryable(err)
	}

	msgID := uuid.NewString()
	now := time.Now().UTC()
	err = ch.PublishWithContext(ctx,
		getString(req.Config, "exchange", ""),
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    now,
			Body:         body,
		},
	)
	if err != nil {
		return nil, api.Retryable(fmt.Errorf("publish to %s: %w", routingKey, err))
	}

	return map[string]any{
		"message_id":   msgID,
		"published_at": now.Format(time.RFC3339),
	}, nil
}

// Close releases the broker connection.
func (e *SinkExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	e.ch.Close()
	return e.conn.Close()
}

// NoopSink accepts data-sink nodes without delivering anywhere. It is
// the default when no broker is configured, so flows with sink nodes
// still run end to end in development.
type NoopSink struct{}

func (NoopSink) Execute(_ context.Context, req api.ExecRequest) (map[string]any, error) {
	return map[string]any{
		"message_id":   uuid.NewString(),
		"published_at": time.Now().UTC().Format(time.RFC3339),
		"dropped":      true,
	}, nil
}
