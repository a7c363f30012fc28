package main

import (
	"context"
	"sync"

	"github.com/goliatone/go-wallet-provisioning/core"
)

// activityResultRelay forwards simulated UI results into the service. The
// wallet is built before the service, so the target is bound afterwards.
type activityResultRelay struct {
	mu      sync.RWMutex
	service *core.Service
	logger  core.Logger
}

func (r *activityResultRelay) bind(service *core.Service, logger core.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.service = service
	r.logger = logger
}

func (r *activityResultRelay) forward(ctx context.Context, result core.ActivityResult) {
	r.mu.RLock()
	service, logger := r.service, r.logger
	r.mu.RUnlock()
	if service == nil {
		return
	}
	if _, err := service.HandleActivityResult(ctx, result); err != nil && logger != nil {
		logger.Warn("activity result rejected", "request_code", result.RequestCode, "error", err.Error())
	}
}
