package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wallet-provisioning/core"
)

const defaultPollInterval = time.Second

// JobProcessor runs one dequeued job. *core.Service satisfies it.
type JobProcessor interface {
	ProcessNextJob(ctx context.Context, dequeuer core.JobDequeuer) error
}

type WorkerOption func(*Worker)

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithWorkerHooks(hooks ...worker.Hook) WorkerOption {
	return func(w *Worker) {
		for _, hook := range hooks {
			if hook != nil {
				w.hooks = append(w.hooks, hook)
			}
		}
	}
}

func WithWorkerLogger(logger glog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = glog.Ensure(logger)
	}
}

// Worker polls a dequeuer and hands each delivery to the processor, firing
// go-job worker hooks around every run.
type Worker struct {
	processor    JobProcessor
	dequeuer     core.JobDequeuer
	hooks        []worker.Hook
	pollInterval time.Duration
	logger       glog.Logger
}

func NewWorker(processor JobProcessor, dequeuer core.JobDequeuer, opts ...WorkerOption) (*Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("gojob: job processor is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	w := &Worker{
		processor:    processor,
		dequeuer:     dequeuer,
		pollInterval: defaultPollInterval,
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.logger.Warn("job run failed", "error", err.Error())
		}
		if processed {
			continue
		}
		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce processes at most one job. processed is false when the queue was
// empty or the dequeue failed.
func (w *Worker) RunOnce(ctx context.Context) (processed bool, err error) {
	tracker := &trackingDequeuer{next: w.dequeuer, startHook: w.fireStart}
	startedAt := time.Now().UTC()
	err = w.processor.ProcessNextJob(ctx, tracker)
	if tracker.delivery == nil {
		return false, err
	}

	event := worker.Event{
		Message:   toQueueMessage(tracker.delivery.Message()),
		Attempt:   tracker.attempt,
		Err:       err,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}
	switch {
	case tracker.delivery.acked:
		w.fire(ctx, event, worker.Hook.OnSuccess)
	case tracker.delivery.nacked && tracker.delivery.nackOpts.Requeue:
		event.Delay = tracker.delivery.nackOpts.Delay
		w.fire(ctx, event, worker.Hook.OnRetry)
	default:
		if event.Err == nil {
			event.Err = errors.New(tracker.delivery.nackOpts.Reason)
		}
		w.fire(ctx, event, worker.Hook.OnFailure)
	}
	return true, err
}

func (w *Worker) fireStart(ctx context.Context, delivery core.JobDelivery, attempt int) {
	w.fire(ctx, worker.Event{
		Message:   toQueueMessage(delivery.Message()),
		Attempt:   attempt,
		StartedAt: time.Now().UTC(),
	}, worker.Hook.OnStart)
}

func (w *Worker) fire(ctx context.Context, event worker.Event, call func(worker.Hook, context.Context, worker.Event)) {
	for _, hook := range w.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("job worker hook panicked", "panic", r)
				}
			}()
			call(hook, ctx, event)
		}()
	}
}

type trackingDequeuer struct {
	next      core.JobDequeuer
	startHook func(ctx context.Context, delivery core.JobDelivery, attempt int)
	delivery  *trackingDelivery
	attempt   int
}

func (d *trackingDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	delivery, err := d.next.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	d.attempt = 1
	if counted, ok := delivery.(interface{ Attempt() int }); ok && counted.Attempt() > 0 {
		d.attempt = counted.Attempt()
	}
	d.delivery = &trackingDelivery{JobDelivery: delivery}
	if d.startHook != nil {
		d.startHook(ctx, delivery, d.attempt)
	}
	return d.delivery, nil
}

type trackingDelivery struct {
	core.JobDelivery
	acked    bool
	nacked   bool
	nackOpts core.JobNackOptions
}

func (d *trackingDelivery) Ack(ctx context.Context) error {
	d.acked = true
	return d.JobDelivery.Ack(ctx)
}

func (d *trackingDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	d.nacked = true
	d.nackOpts = opts
	return d.JobDelivery.Nack(ctx, opts)
}

var _ JobProcessor = (*core.Service)(nil)
