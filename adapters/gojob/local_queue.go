package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// LocalQueue is an in-process go-job queue for single-node deployments. A
// pending message with the same idempotency key is not enqueued twice, and
// nacked messages honor their requeue delay.
type LocalQueue struct {
	mu         sync.Mutex
	pending    []localEntry
	deadLetter []*job.ExecutionMessage
	now        func() time.Time
}

type localEntry struct {
	msg     *job.ExecutionMessage
	readyAt time.Time
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{now: time.Now}
}

func (q *LocalQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: local queue is nil")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		for _, entry := range q.pending {
			if entry.msg.IdempotencyKey == key {
				return nil
			}
		}
	}
	q.pending = append(q.pending, localEntry{msg: msg, readyAt: q.now()})
	return nil
}

// Dequeue returns the oldest ready message, or nil when none is ready.
func (q *LocalQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: local queue is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for i, entry := range q.pending {
		if entry.readyAt.After(now) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		return &localDelivery{queue: q, msg: entry.msg}, nil
	}
	return nil, nil
}

func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *LocalQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetter...)
}

type localDelivery struct {
	queue   *LocalQueue
	msg     *job.ExecutionMessage
	settled bool
}

func (d *localDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *localDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.settled = true
	return nil
}

func (d *localDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.settled = true
	switch {
	case opts.DeadLetter:
		d.queue.deadLetter = append(d.queue.deadLetter, d.msg)
	case opts.Requeue:
		delay := opts.Delay
		if delay < 0 {
			delay = 0
		}
		d.queue.pending = append(d.queue.pending, localEntry{msg: d.msg, readyAt: d.queue.now().Add(delay)})
	}
	return nil
}

var (
	_ queue.Enqueuer = (*LocalQueue)(nil)
	_ queue.Dequeuer = (*LocalQueue)(nil)
	_ queue.Delivery = (*localDelivery)(nil)
)
