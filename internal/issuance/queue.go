package issuance

import (
	"context"
	"fmt"

	"accezzpay/internal/logger"
)

// Queue feeds order IDs to a single consumer goroutine so issuance for
// different orders never interleaves within one process. Enqueue never
// blocks the HTTP handlers that call it.
type Queue struct {
	jobs   chan string
	engine *Engine
	log    *logger.Logger
	done   chan struct{}
}

func NewQueue(engine *Engine, size int, log *logger.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		jobs:   make(chan string, size),
		engine: engine,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Start launches the consumer. It drains until ctx is cancelled, then
// finishes the job in flight and closes Done().
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case orderID := <-q.jobs:
				q.process(orderID)
			}
		}
	}()
}

// Done is closed once the consumer has stopped.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Enqueue hands an order to the consumer. A full buffer returns an
// error instead of blocking; the caller already has the durable
// webhook log, so the event can be replayed.
func (q *Queue) Enqueue(orderID string) error {
	select {
	case q.jobs <- orderID:
		q.log.LogIssuance(orderID, "Queued for issuance")
		return nil
	default:
		return fmt.Errorf("issuance queue full, dropping order %s", orderID)
	}
}

// process shields the consumer loop from a panicking job; one bad
// order must not kill fulfilment for everyone behind it.
func (q *Queue) process(orderID string) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("ISSUANCE", fmt.Sprintf("Panic while issuing order %s: %v", orderID, r))
		}
	}()

	if err := q.engine.Issue(orderID); err != nil {
		q.log.Error("ISSUANCE", fmt.Sprintf("Issuance failed for order %s: %v", orderID, err))
	}
}
