package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-wallet-provisioning/core"
)

const JobIDTokenStatusRefresh = core.JobIDTokenStatusRefresh

// RetryPolicy bounds how often a token status refresh is redelivered.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// bound applies the policy to the nack of a delivery on its attempt-th run.
func (p RetryPolicy) bound(opts core.JobNackOptions, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue && !opts.DeadLetter,
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = out.DeadLetter || p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func toQueueMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromQueueMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func cloneParameters(in map[string]any) map[string]any {
	out := maps.Clone(in)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// EnqueuerAdapter puts refresh jobs on a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch {
	case a == nil || a.enqueuer == nil:
		return fmt.Errorf("gojob: enqueuer is not configured")
	case msg == nil:
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, toQueueMessage(msg))
}

// DeliveryAdapter is one dequeued job. Nack is bounded by the retry policy
// using the attempt the dequeuer counted.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return fromQueueMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, d.policy.bound(opts, d.attempt))
}

// Attempt is 1 on the first delivery of a job.
func (d *DeliveryAdapter) Attempt() int {
	if d == nil {
		return 0
	}
	return d.attempt
}

// DequeuerAdapter counts deliveries per idempotency key, falling back to the
// job id. Counts live only as long as the adapter.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	attempts map[string]int
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy, attempts: map[string]int{}}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	adapted := &DeliveryAdapter{delivery: delivery, policy: a.policy, attempt: 1}
	if msg := delivery.Message(); msg != nil {
		key := strings.TrimSpace(msg.IdempotencyKey)
		if key == "" {
			key = strings.TrimSpace(msg.JobID)
		}
		if a.attempts == nil {
			a.attempts = map[string]int{}
		}
		a.attempts[key]++
		adapted.attempt = a.attempts[key]
	}
	return adapted, nil
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
)
