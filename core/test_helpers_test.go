package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type walletIDResult struct {
	id  string
	err error
}

// stubWallet completes every query inline unless async is set.
type stubWallet struct {
	mu    sync.Mutex
	async bool

	activeResults []walletIDResult
	activeCalls   int
	createErr     error
	createCalls   int
	createHosts   []UIHost

	hardwareID    string
	hardwareErr   error
	hardwareCalls int

	tokenStatus   TokenStatus
	tokenErr      error
	tokenCalls    int
	lastProvider  int
	lastTokenRef  string
	tokens        []TokenInfo
	listErr       error
	pushErr       error
	pushCalls     int
	lastPush      PushTokenizeRequest
	lastPushHost  UIHost
	lastPushCode  int
	panicOnActive bool
}

func (w *stubWallet) complete(fn func()) {
	if w.async {
		go fn()
		return
	}
	fn()
}

func (w *stubWallet) GetActiveWalletID(_ context.Context, done Completion[string]) {
	w.mu.Lock()
	if w.panicOnActive {
		w.mu.Unlock()
		panic("wallet unavailable")
	}
	index := w.activeCalls
	w.activeCalls++
	result := walletIDResult{}
	if len(w.activeResults) > 0 {
		if index >= len(w.activeResults) {
			index = len(w.activeResults) - 1
		}
		result = w.activeResults[index]
	}
	w.mu.Unlock()
	w.complete(func() { done(result.id, result.err) })
}

func (w *stubWallet) CreateWallet(_ context.Context, host UIHost, _ int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.createCalls++
	w.createHosts = append(w.createHosts, host)
	return w.createErr
}

func (w *stubWallet) GetStableHardwareID(_ context.Context, done Completion[string]) {
	w.mu.Lock()
	w.hardwareCalls++
	id, err := w.hardwareID, w.hardwareErr
	w.mu.Unlock()
	w.complete(func() { done(id, err) })
}

func (w *stubWallet) GetTokenStatus(_ context.Context, provider int, tokenRef string, done Completion[TokenStatus]) {
	w.mu.Lock()
	w.tokenCalls++
	w.lastProvider = provider
	w.lastTokenRef = tokenRef
	status, err := w.tokenStatus, w.tokenErr
	w.mu.Unlock()
	w.complete(func() { done(status, err) })
}

func (w *stubWallet) ListTokens(_ context.Context, done Completion[[]TokenInfo]) {
	w.mu.Lock()
	tokens, err := append([]TokenInfo(nil), w.tokens...), w.listErr
	w.mu.Unlock()
	w.complete(func() { done(tokens, err) })
}

func (w *stubWallet) PushTokenize(_ context.Context, host UIHost, req PushTokenizeRequest, requestCode int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushCalls++
	w.lastPush = req
	w.lastPushHost = host
	w.lastPushCode = requestCode
	return w.pushErr
}

func (w *stubWallet) counts() (active int, create int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeCalls, w.createCalls
}

type stubHost struct {
	id string
}

func (h stubHost) HostID() string { return h.id }

func staticHost(id string) UIHostProvider {
	return UIHostProviderFunc(func() UIHost { return stubHost{id: id} })
}

type captureActivitySink struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *captureActivitySink) Record(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureActivitySink) List(_ context.Context, filter ActivityFilter) (ActivityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]ActivityEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if filter.Operation != "" && entry.Operation != filter.Operation {
			continue
		}
		items = append(items, entry)
	}
	return ActivityPage{Items: items, Total: len(items)}, nil
}

func (s *captureActivitySink) snapshot() []ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActivityEntry(nil), s.entries...)
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

type stubDelivery struct {
	msg    *JobExecutionMessage
	acked  bool
	nacked bool
	nack   JobNackOptions
}

func (d *stubDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacked = true
	d.nack = opts
	return nil
}

type stubDequeuer struct {
	delivery *stubDelivery
	err      error
}

func (d stubDequeuer) Dequeue(context.Context) (JobDelivery, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.delivery == nil {
		return nil, nil
	}
	return d.delivery, nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func newTestService(t *testing.T, wallet WalletClient, opts ...Option) *Service {
	t.Helper()
	all := append([]Option{WithWalletClient(wallet), WithUIHostProvider(staticHost("main"))}, opts...)
	svc, err := NewService(Config{}, all...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func awaitPromise[T any](t *testing.T, p *Promise[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	value, err := p.Await(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("promise did not settle")
	}
	return value, err
}
