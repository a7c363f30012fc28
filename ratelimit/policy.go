// Package ratelimit keeps throttle windows per wallet agent operation so the
// bridge stops calling an agent that already asked it to back off.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// Key names the throttle bucket of one agent operation, such as
// ("http://wallet-agent:7000", "push_tokenize").
type Key struct {
	Agent  string
	Bucket string
}

func (k Key) normalized() Key {
	return Key{
		Agent:  strings.ToLower(strings.TrimSpace(k.Agent)),
		Bucket: strings.ToLower(strings.TrimSpace(k.Bucket)),
	}
}

// ResponseMeta is what the policy reads from an agent response.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type Policy interface {
	BeforeCall(ctx context.Context, key Key) error
	AfterCall(ctx context.Context, key Key, res ResponseMeta) error
}

// State is the persisted throttle window of one bucket.
type State struct {
	Key            Key
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// wait reports how long calls on the bucket must still be held back.
func (s State) wait(now time.Time) (time.Duration, bool) {
	if s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil) {
		return s.ThrottledUntil.Sub(now), true
	}
	if s.Remaining == 0 && s.ResetAt != nil && now.Before(*s.ResetAt) {
		return s.ResetAt.Sub(now), true
	}
	return 0, false
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
}

// ThrottledError is returned by BeforeCall while a bucket is held back.
type ThrottledError struct {
	Agent      string
	Bucket     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: %s on %s is throttled for %s", e.Bucket, e.Agent, e.RetryAfter.Round(time.Millisecond))
}

type Option func(*AdaptivePolicy)

// WithClock replaces the UTC wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *AdaptivePolicy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBackoff sets the window used when a throttled response carries no
// retry hint. It doubles per consecutive throttle up to maximum.
func WithBackoff(initial, maximum time.Duration) Option {
	return func(p *AdaptivePolicy) {
		if initial > 0 {
			p.initialBackoff = initial
		}
		if maximum > 0 {
			p.maxBackoff = maximum
		}
	}
}

// AdaptivePolicy learns throttle windows from agent responses and fails calls
// fast until the window passes. State lives in the StateStore so replicas
// sharing a store share windows.
type AdaptivePolicy struct {
	store          StateStore
	now            func() time.Time
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore, opts ...Option) *AdaptivePolicy {
	p := &AdaptivePolicy{
		store:          store,
		now:            time.Now,
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.maxBackoff < p.initialBackoff {
		p.maxBackoff = p.initialBackoff
	}
	return p
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key Key) error {
	if p == nil || p.store == nil {
		return nil
	}
	state, err := p.load(ctx, key.normalized())
	if err != nil {
		return err
	}
	if wait, blocked := state.wait(p.clock()); blocked {
		return ThrottledError{Agent: state.Key.Agent, Bucket: state.Key.Bucket, RetryAfter: wait}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key Key, res ResponseMeta) error {
	if p == nil || p.store == nil {
		return nil
	}
	key = key.normalized()
	state, err := p.load(ctx, key)
	if err != nil {
		return err
	}

	now := p.clock()
	h := readHints(res, now)
	state.Key = key
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.Metadata = mergeMetadata(state.Metadata, res.Metadata)
	if h.limit != nil {
		state.Limit = *h.limit
	}
	if h.remaining != nil {
		state.Remaining = *h.remaining
	}
	if h.resetAt != nil {
		state.ResetAt = h.resetAt
	}
	state.RetryAfter = h.retryAfter

	if !h.throttles(res.StatusCode, state.Remaining) {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.store.Upsert(ctx, state)
	}

	state.Attempts++
	delay := p.backoff(state.Attempts)
	if h.retryAfter != nil {
		delay = *h.retryAfter
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.store.Upsert(ctx, state)
}

// load returns the stored state or a fresh one for key.
func (p *AdaptivePolicy) load(ctx context.Context, key Key) (State, error) {
	state, err := p.store.Get(ctx, key)
	if errors.Is(err, ErrStateNotFound) {
		return State{Key: key}, nil
	}
	return state, err
}

func (p *AdaptivePolicy) clock() time.Time {
	if p.now == nil {
		return time.Now().UTC()
	}
	return p.now().UTC()
}

func (p *AdaptivePolicy) backoff(attempt int) time.Duration {
	delay := p.initialBackoff
	for i := 1; i < attempt && delay < p.maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, p.maxBackoff)
}

var _ Policy = (*AdaptivePolicy)(nil)
