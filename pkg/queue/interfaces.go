package queue

import "context"

// Message is an outbound payload. Attempts carries the delivery-attempt
// count for batches that have already failed once and are being sent
// around again.
type Message struct {
	Body     []byte
	Attempts int
}

// Delivery is one received message together with its acknowledgment
// controls. Exactly one of Ack, Requeue or Dead must be called.
type Delivery interface {
	Body() []byte
	Redelivered() bool
	Attempts() int

	// Ack confirms successful processing
	Ack() error
	// Requeue hands the message back for another delivery
	Requeue() error
	// Dead routes the message to the dead-letter queue
	Dead() error
}

// Publisher writes messages to one queue
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer reads deliveries from one queue. The returned channel closes
// when the context is cancelled or the transport goes away.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Queue is one named at-least-once queue with a paired dead-letter queue
type Queue interface {
	Publisher
	Consumer

	// PublishDead writes directly to the dead-letter queue, used when a
	// batch has exhausted its attempt allowance
	PublishDead(ctx context.Context, msg Message) error

	Close() error
}
