package taskqueue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue is a Queue backed by a RabbitMQ queue. Tasks survive
// process restarts and are load-balanced across every worker consuming
// the same queue name, which is how a fleet shares submission work.
//
// Messages are acked on Dequeue; a worker crash between Dequeue and run
// completion is covered by run-level resume, not by message redelivery.
type AMQPQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	name      string
	deliverCh <-chan amqp.Delivery
}

// NewAMQPQueue connects to url and declares the durable queue name.
func NewAMQPQueue(url, name string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &AMQPQueue{conn: conn, ch: ch, name: name}, nil
}

var _ Queue = (*AMQPQueue)(nil)

func (q *AMQPQueue) Enqueue(ctx context.Context, t Task) error {
	body, err := EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (q *AMQPQueue) Dequeue(ctx context.Context) (*Task, error) {
	if q.deliverCh == nil {
		ch, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("consume %s: %w", q.name, err)
		}
		q.deliverCh = ch
	}
	select {
	case d, ok := <-q.deliverCh:
		if !ok {
			return nil, fmt.Errorf("queue %s: consumer channel closed", q.name)
		}
		t, err := DecodeTask(d.Body)
		if err != nil {
			d.Nack(false, false)
			return nil, fmt.Errorf("decode task: %w", err)
		}
		d.Ack(false)
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the server-side message count at declaration time.
func (q *AMQPQueue) Len() int {
	st, err := q.ch.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err != nil {
		return -1
	}
	return st.Messages
}

// Close releases the channel and connection.
func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
