package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPromise_FirstSettlementWins(t *testing.T) {
	p := NewPromise[string]()
	if !p.Resolve("wallet-1") {
		t.Fatalf("expected first resolve to settle")
	}
	if p.Resolve("wallet-2") {
		t.Fatalf("expected second resolve to be ignored")
	}
	if p.Reject(errors.New("late failure")) {
		t.Fatalf("expected reject after resolve to be ignored")
	}
	value, err := awaitPromise(t, p)
	if err != nil || value != "wallet-1" {
		t.Fatalf("expected wallet-1, got %q err=%v", value, err)
	}
}

func TestPromise_ConcurrentSettlementSettlesOnce(t *testing.T) {
	p := NewPromise[int]()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var settled bool
			if i%2 == 0 {
				settled = p.Resolve(i)
			} else {
				settled = p.Reject(errors.New("failed"))
			}
			if settled {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one settlement, got %d", wins.Load())
	}
}

func TestPromise_RejectNilErrorStillRejects(t *testing.T) {
	p := NewPromise[bool]()
	p.Reject(nil)
	_, err := awaitPromise(t, p)
	if err == nil {
		t.Fatalf("expected non-nil rejection")
	}
	if ErrorKind(err) != ErrorInternal {
		t.Fatalf("expected internal error kind, got %q", ErrorKind(err))
	}
}

func TestPromise_ThenRunsOnceForPendingAndSettled(t *testing.T) {
	p := NewPromise[string]()
	var calls atomic.Int32
	p.Then(func(value string, err error) {
		if value != "ok" || err != nil {
			t.Errorf("unexpected then args %q %v", value, err)
		}
		calls.Add(1)
	})
	p.Resolve("ok")
	p.Resolve("again")
	p.Then(func(string, error) { calls.Add(1) })
	if calls.Load() != 2 {
		t.Fatalf("expected two callback runs, got %d", calls.Load())
	}
}

func TestPromise_AwaitHonoursContext(t *testing.T) {
	p := NewPromise[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, _, ok := p.Peek(); ok {
		t.Fatalf("expected pending promise after await timeout")
	}
	p.Resolve("late")
	value, _, ok := p.Peek()
	if !ok || value != "late" {
		t.Fatalf("expected late value after settlement, got %q ok=%v", value, ok)
	}
}

func TestPromise_ResolvedAndRejectedHelpers(t *testing.T) {
	if value, err, ok := Resolved(true).Peek(); !ok || !value || err != nil {
		t.Fatalf("expected resolved helper to settle true")
	}
	sentinel := errors.New("boom")
	if _, err, ok := Rejected[string](sentinel).Peek(); !ok || !errors.Is(err, sentinel) {
		t.Fatalf("expected rejected helper to carry sentinel, got %v", err)
	}
}

func TestPromise_ZeroValueSettlesAndAwaits(t *testing.T) {
	var p Promise[int]
	if _, _, ok := p.Peek(); ok {
		t.Fatalf("expected zero-value promise to start pending")
	}
	done := p.Done()
	if !p.Resolve(7) {
		t.Fatalf("expected zero-value promise to settle")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected done channel taken before settlement to close")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := p.Await(ctx)
	if err != nil || value != 7 {
		t.Fatalf("unexpected await result %d %v", value, err)
	}
}

func TestPromise_ThenMayResettleWithoutDeadlock(t *testing.T) {
	p := NewPromise[string]()
	resettled := make(chan bool, 1)
	p.Then(func(string, error) {
		resettled <- p.Reject(errors.New("late"))
	})
	p.Resolve("first")

	select {
	case ok := <-resettled:
		if ok {
			t.Fatalf("expected second settlement from a callback to be ignored")
		}
	case <-time.After(time.Second):
		t.Fatalf("callback re-settling the promise deadlocked")
	}
	value, err, _ := p.Peek()
	if value != "first" || err != nil {
		t.Fatalf("expected first settlement to stand, got %q %v", value, err)
	}
}
