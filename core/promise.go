package core

import (
	"context"
	"sync"
)

// Promise is a single-resolution result handle. The first Resolve or Reject
// wins; later settlements are ignored and report false. The zero value is a
// usable pending promise.
type Promise[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// doneLocked returns the done channel, creating it for a zero-value promise.
func (p *Promise[T]) doneLocked() chan struct{} {
	if p.done == nil {
		p.done = make(chan struct{})
	}
	return p.done
}

func Resolved[T any](value T) *Promise[T] {
	p := NewPromise[T]()
	p.Resolve(value)
	return p
}

func Rejected[T any](err error) *Promise[T] {
	p := NewPromise[T]()
	p.Reject(err)
	return p
}

func (p *Promise[T]) Resolve(value T) bool {
	return p.settle(value, nil)
}

// Reject settles the promise with err. A nil err is replaced with an internal
// error so a rejected promise never looks like a zero-value success.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = newInternalError("core: promise rejected without error")
	}
	var zero T
	return p.settle(zero, err)
}

func (p *Promise[T]) settle(value T, err error) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value = value
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.doneLocked())
	p.mu.Unlock()

	// Callbacks run unlocked so they may touch the promise again.
	for _, fn := range callbacks {
		fn(value, err)
	}
	return true
}

func (p *Promise[T]) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneLocked()
}

// Await blocks until the promise settles or ctx is done. A done ctx only stops
// the wait; the underlying wallet call keeps running.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.Done():
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled value without blocking. ok is false while pending.
func (p *Promise[T]) Peek() (value T, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.settled {
		var zero T
		return zero, nil, false
	}
	return p.value, p.err, true
}

// Then registers fn to run once after settlement. If the promise is already
// settled fn runs immediately on the calling goroutine.
func (p *Promise[T]) Then(fn func(T, error)) {
	if p == nil || fn == nil {
		return
	}
	p.mu.Lock()
	if p.settled {
		value, err := p.value, p.err
		p.mu.Unlock()
		fn(value, err)
		return
	}
	p.callbacks = append(p.callbacks, fn)
	p.mu.Unlock()
}
