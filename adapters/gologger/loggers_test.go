package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wallet-provisioning/core"
)

func TestResolve_ProviderWinsOverLogger(t *testing.T) {
	direct := &capturingLogger{id: "direct"}
	provider := &namedProvider{loggers: map[string]*capturingLogger{
		ComponentService: {id: "service"},
		ComponentWorker:  {id: "worker"},
	}}

	loggers := Resolve(provider, direct)
	if got := loggers.Service().(*capturingLogger); got.id != "service" {
		t.Fatalf("expected provider service logger, got %q", got.id)
	}
	if got := loggers.For(ComponentWorker).(*capturingLogger); got.id != "worker" {
		t.Fatalf("expected worker component logger, got %q", got.id)
	}
	if got := loggers.For(ComponentHTTP).(*capturingLogger); got.id != "direct" {
		t.Fatalf("expected missing component to fall back to the direct logger, got %q", got.id)
	}
	if got := loggers.For("  ").(*capturingLogger); got.id != "service" {
		t.Fatalf("expected blank component to use the service logger, got %q", got.id)
	}
}

func TestResolve_LoggerOnlyServesEveryComponent(t *testing.T) {
	direct := &capturingLogger{id: "direct"}
	loggers := Resolve(nil, direct)

	for _, component := range []string{ComponentBridge, ComponentHTTP, ComponentWorker} {
		if got := loggers.For(component).(*capturingLogger); got.id != "direct" {
			t.Fatalf("expected %s to log through the direct logger, got %q", component, got.id)
		}
	}
}

func TestResolve_ZeroValueIsNop(t *testing.T) {
	var loggers Loggers
	if loggers.Service() == nil || loggers.For(ComponentWorker) == nil {
		t.Fatalf("expected nop loggers from zero value")
	}
	if opts := loggers.ServiceOptions(); len(opts) != 1 {
		t.Fatalf("expected logger option only, got %d", len(opts))
	}
}

func TestServiceOptions_WireResolvedLoggerIntoService(t *testing.T) {
	provider := &namedProvider{loggers: map[string]*capturingLogger{
		ComponentService: {id: "service"},
	}}

	opts := Resolve(provider, nil).ServiceOptions()
	if len(opts) != 2 {
		t.Fatalf("expected logger and provider options, got %d", len(opts))
	}
	svc, err := core.NewService(core.Config{}, append(opts, core.WithWalletClient(nopWallet{}))...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.LoggerProvider == nil {
		t.Fatalf("expected provider to reach the service")
	}
	deps.Logger.Info("wallet created", "wallet_id", "w-1")
	if got := provider.loggers[ComponentService].lastInfo; got.msg != "wallet created" || got.args[1] != "w-1" {
		t.Fatalf("expected service logs through the provider, got %#v", got)
	}
}

type nopWallet struct{}

func (nopWallet) GetActiveWalletID(_ context.Context, done core.Completion[string]) { done("", nil) }

func (nopWallet) CreateWallet(context.Context, core.UIHost, int) error { return nil }

func (nopWallet) GetStableHardwareID(_ context.Context, done core.Completion[string]) { done("", nil) }

func (nopWallet) GetTokenStatus(_ context.Context, _ int, _ string, done core.Completion[core.TokenStatus]) {
	done(core.TokenStatus{}, nil)
}

func (nopWallet) ListTokens(_ context.Context, done core.Completion[[]core.TokenInfo]) {
	done(nil, nil)
}

func (nopWallet) PushTokenize(context.Context, core.UIHost, core.PushTokenizeRequest, int) error {
	return nil
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*namedProvider)(nil)
)

// namedProvider returns nil for names it does not know.
type namedProvider struct {
	loggers map[string]*capturingLogger
}

func (p *namedProvider) GetLogger(name string) glog.Logger {
	if logger, ok := p.loggers[name]; ok {
		return logger
	}
	return nil
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
