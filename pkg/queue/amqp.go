package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"harvest-go/pkg/logger"
)

// Broker holds one AMQP connection shared by the process
type Broker struct {
	conn *amqp.Connection
	log  *logger.Logger
}

// Dial connects to the broker. The URL is masked before logging.
func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	masked := logger.NewMaskedLogger()
	log := logger.GetLogger().Component("queue")
	log.WithField("broker", masked.MaskDSN(url)).Info("Connected to message broker")

	return &Broker{conn: conn, log: log}, nil
}

func (b *Broker) Close() error {
	return b.conn.Close()
}

// Declare sets up a durable queue plus its dead-letter queue and returns
// a handle bound to a dedicated channel. Messages negatively acknowledged
// without requeue are routed to <name>.dlq by the broker.
func (b *Broker) Declare(name string, prefetch int) (*AMQPQueue, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	dlqName := name + ".dlq"
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter queue %s: %w", dlqName, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set prefetch on %s: %w", name, err)
		}
	}

	b.log.WithField("queue", name).Info("Queue declared")

	return &AMQPQueue{
		ch:      ch,
		name:    name,
		dlqName: dlqName,
		log:     b.log.WithField("queue", name),
	}, nil
}

// AMQPQueue is one durable queue with manual acknowledgment
type AMQPQueue struct {
	ch      *amqp.Channel
	name    string
	dlqName string
	log     *logger.Logger
}

func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	return q.publish(ctx, q.name, msg)
}

func (q *AMQPQueue) PublishDead(ctx context.Context, msg Message) error {
	return q.publish(ctx, q.dlqName, msg)
}

func (q *AMQPQueue) publish(ctx context.Context, routingKey string, msg Message) error {
	headers := amqp.Table{}
	if msg.Attempts > 0 {
		headers["x-attempts"] = int32(msg.Attempts)
	}

	err := q.ch.PublishWithContext(ctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         msg.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", routingKey, err)
	}
	return nil
}

func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s: %w", q.name, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- &amqpDelivery{d: d}:
				case <-ctx.Done():
					// Hand the unprocessed message back
					if err := d.Nack(false, true); err != nil {
						q.log.WithError(err).Warn("Failed to return message on shutdown")
					}
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQPQueue) Close() error {
	return q.ch.Close()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a *amqpDelivery) Body() []byte {
	return a.d.Body
}

func (a *amqpDelivery) Redelivered() bool {
	return a.d.Redelivered
}

func (a *amqpDelivery) Attempts() int {
	switch v := a.d.Headers["x-attempts"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (a *amqpDelivery) Ack() error {
	return a.d.Ack(false)
}

func (a *amqpDelivery) Requeue() error {
	return a.d.Nack(false, true)
}

func (a *amqpDelivery) Dead() error {
	return a.d.Nack(false, false)
}
