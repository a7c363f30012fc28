package gojob

import (
	"context"
	"time"

	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-wallet-provisioning/core"
)

// ActivityHook writes finished job runs to the activity log as
// "job.<job id>" entries tagged with the refreshed token reference.
type ActivityHook struct {
	sink core.ActivitySink
	now  func() time.Time
}

func NewActivityHook(sink core.ActivitySink) *ActivityHook {
	return &ActivityHook{sink: sink, now: time.Now}
}

func (h *ActivityHook) OnStart(context.Context, worker.Event) {}

func (h *ActivityHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, event, core.ActivityStatusOK, "succeeded")
}

func (h *ActivityHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, event, core.ActivityStatusFailed, "failed")
}

func (h *ActivityHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, event, core.ActivityStatusFailed, "retried")
}

func (h *ActivityHook) record(ctx context.Context, event worker.Event, status core.ActivityStatus, outcome string) {
	if h == nil || h.sink == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	if msg == nil {
		return
	}

	entry := core.ActivityEntry{
		Operation:  "job." + msg.JobID,
		Status:     status,
		DurationMS: event.Duration.Milliseconds(),
		Metadata:   map[string]any{"job_outcome": outcome, "attempt": event.Attempt},
		CreatedAt:  h.now().UTC(),
	}
	if ref, ok := msg.Parameters[core.JobParamTokenReference].(string); ok {
		entry.TokenReference = ref
	}
	if event.Delay > 0 {
		entry.Metadata["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Err != nil {
		entry.Metadata["error"] = event.Err.Error()
	}
	if status == core.ActivityStatusFailed {
		entry.StatusTag = core.StatusTag(event.Err)
	}
	_ = h.sink.Record(ctx, entry)
}

var _ worker.Hook = (*ActivityHook)(nil)
