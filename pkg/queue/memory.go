package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue provides an in-process queue with the same at-least-once
// semantics as the broker-backed one. Used by tests and the single
// process demo.
type MemoryQueue struct {
	mu        sync.Mutex
	buf       chan *memoryDelivery
	published []Message
	dead      []Message
	acked     int
}

// NewMemoryQueue creates a memory queue holding at most capacity
// undelivered messages
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		buf: make(chan *memoryDelivery, capacity),
	}
}

func (mq *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	mq.mu.Lock()
	mq.published = append(mq.published, msg)
	mq.mu.Unlock()
	return mq.enqueue(msg, false)
}

func (mq *MemoryQueue) PublishDead(ctx context.Context, msg Message) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.dead = append(mq.dead, msg)
	return nil
}

func (mq *MemoryQueue) enqueue(msg Message, redelivered bool) error {
	d := &memoryDelivery{
		queue:       mq,
		body:        msg.Body,
		attempts:    msg.Attempts,
		redelivered: redelivered,
	}
	select {
	case mq.buf <- d:
		return nil
	default:
		return fmt.Errorf("memory queue is full")
	}
}

func (mq *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-mq.buf:
				select {
				case out <- d:
				case <-ctx.Done():
					// Hand the unprocessed message back
					mq.enqueue(Message{Body: d.body, Attempts: d.attempts}, d.redelivered)
					return
				}
			}
		}
	}()
	return out, nil
}

func (mq *MemoryQueue) Close() error {
	return nil
}

// Published returns every message published so far, in order
func (mq *MemoryQueue) Published() []Message {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	out := make([]Message, len(mq.published))
	copy(out, mq.published)
	return out
}

// DeadLetters returns the dead-lettered messages
func (mq *MemoryQueue) DeadLetters() []Message {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	out := make([]Message, len(mq.dead))
	copy(out, mq.dead)
	return out
}

// Acked returns the number of acknowledged deliveries
func (mq *MemoryQueue) Acked() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return mq.acked
}

// Pending returns the number of undelivered messages
func (mq *MemoryQueue) Pending() int {
	return len(mq.buf)
}

type memoryDelivery struct {
	queue       *MemoryQueue
	body        []byte
	attempts    int
	redelivered bool
}

func (d *memoryDelivery) Body() []byte {
	return d.body
}

func (d *memoryDelivery) Redelivered() bool {
	return d.redelivered
}

func (d *memoryDelivery) Attempts() int {
	return d.attempts
}

func (d *memoryDelivery) Ack() error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.acked++
	return nil
}

func (d *memoryDelivery) Requeue() error {
	return d.queue.enqueue(Message{Body: d.body, Attempts: d.attempts}, true)
}

func (d *memoryDelivery) Dead() error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.dead = append(d.queue.dead, Message{Body: d.body, Attempts: d.attempts})
	return nil
}
