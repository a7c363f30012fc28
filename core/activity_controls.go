package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ActivityStore is an activity sink that can also be queried.
type ActivityStore interface {
	ActivitySink
	ActivityReader
}

// ActivitySinkStats counts what happened to recorded entries.
type ActivitySinkStats struct {
	Written uint64
	Spilled uint64
	Dropped uint64
	Failed  uint64
}

// BufferedActivitySink queues activity writes so wallet completions never wait
// on storage. A full queue, a failed write or a closed sink spills to the
// fallback sink; without one the entry is dropped.
type BufferedActivitySink struct {
	primary  ActivityStore
	fallback ActivitySink
	policy   ActivityRetentionPolicy
	pruner   ActivityRetentionPruner

	queue chan ActivityEntry
	now   func() time.Time

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	written atomic.Uint64
	spilled atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewBufferedActivitySink(
	primary ActivityStore,
	fallback ActivitySink,
	policy ActivityRetentionPolicy,
	bufferSize int,
) (*BufferedActivitySink, error) {
	if primary == nil {
		return nil, fmt.Errorf("core: primary activity store is required")
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	sink := &BufferedActivitySink{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		queue:    make(chan ActivityEntry, bufferSize),
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if pruner, ok := primary.(ActivityRetentionPruner); ok {
		sink.pruner = pruner
	}

	go sink.run()
	return sink, nil
}

func (s *BufferedActivitySink) Record(ctx context.Context, entry ActivityEntry) error {
	if s == nil || s.primary == nil {
		return fmt.Errorf("core: buffered activity sink is not configured")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.spill(ctx, entry)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- entry:
		return nil
	default:
		return s.spill(ctx, entry)
	}
}

func (s *BufferedActivitySink) spill(ctx context.Context, entry ActivityEntry) error {
	if s.fallback == nil {
		s.dropped.Add(1)
		return nil
	}
	s.spilled.Add(1)
	return s.fallback.Record(ctx, entry)
}

// Stats reports entry counts since the sink was created.
func (s *BufferedActivitySink) Stats() ActivitySinkStats {
	if s == nil {
		return ActivitySinkStats{}
	}
	return ActivitySinkStats{
		Written: s.written.Load(),
		Spilled: s.spilled.Load(),
		Dropped: s.dropped.Load(),
		Failed:  s.failed.Load(),
	}
}

func (s *BufferedActivitySink) List(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	if s == nil || s.primary == nil {
		return ActivityPage{}, fmt.Errorf("core: buffered activity sink is not configured")
	}
	return s.primary.List(ctx, filter)
}

// EnforceRetention prunes the primary store with the configured policy. It is
// a no-op when the store cannot prune.
func (s *BufferedActivitySink) EnforceRetention(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: buffered activity sink is not configured")
	}
	if s.pruner == nil {
		return 0, nil
	}
	return s.pruner.Prune(ctx, s.policy)
}

// Close stops the writer after draining queued entries.
func (s *BufferedActivitySink) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *BufferedActivitySink) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case entry := <-s.queue:
			s.write(entry)
		}
	}
}

func (s *BufferedActivitySink) drain() {
	for {
		select {
		case entry := <-s.queue:
			s.write(entry)
		default:
			return
		}
	}
}

func (s *BufferedActivitySink) write(entry ActivityEntry) {
	ctx := context.Background()
	if err := s.primary.Record(ctx, entry); err != nil {
		s.failed.Add(1)
		_ = s.spill(ctx, entry)
		return
	}
	s.written.Add(1)
}

var (
	_ ActivitySink   = (*BufferedActivitySink)(nil)
	_ ActivityReader = (*BufferedActivitySink)(nil)
)
