package gologger

import (
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wallet-provisioning/core"
)

// Logger names used by the bridge subsystems.
const (
	ComponentService = "provisioning"
	ComponentBridge  = "provisioning-bridge"
	ComponentHTTP    = "httpapi"
	ComponentWorker  = "worker"
)

// Loggers is the resolved logging pair shared by the provisioning service
// and the bridge components around it.
type Loggers struct {
	provider glog.LoggerProvider
	service  glog.Logger
}

// Resolve picks provider over logger over nop.
func Resolve(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, resolvedLogger := glog.Resolve(ComponentService, provider, logger)
	return Loggers{provider: resolvedProvider, service: glog.Ensure(resolvedLogger)}
}

// For returns the named component logger. Blank names and providers that
// hand back nil fall back to the service logger.
func (l Loggers) For(component string) glog.Logger {
	component = strings.TrimSpace(component)
	if component == "" || component == ComponentService || l.provider == nil {
		return l.Service()
	}
	if logger := l.provider.GetLogger(component); logger != nil {
		return logger
	}
	return l.Service()
}

func (l Loggers) Service() glog.Logger {
	return glog.Ensure(l.service)
}

// ServiceOptions hands the resolved pair to the service so its job hooks
// log through the same provider.
func (l Loggers) ServiceOptions() []core.Option {
	opts := []core.Option{core.WithLogger(l.Service())}
	if l.provider != nil {
		opts = append(opts, core.WithLoggerProvider(l.provider))
	}
	return opts
}
