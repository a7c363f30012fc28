package core

import (
	"context"
	"sync"
	"testing"
)

type memoHardwareIDCache struct {
	mu     sync.Mutex
	value  string
	cached bool
}

func (c *memoHardwareIDCache) GetOrFetch(ctx context.Context, fetch func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached {
		return c.value, nil
	}
	value, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	c.value, c.cached = value, true
	return value, nil
}

func TestGetStableHardwareID_Direct(t *testing.T) {
	wallet := &stubWallet{hardwareID: "hw-1"}
	svc := newTestService(t, wallet)

	id, err := awaitPromise(t, svc.GetStableHardwareID(context.Background()))
	if err != nil || id != "hw-1" {
		t.Fatalf("expected hw-1, got %q err=%v", id, err)
	}
}

func TestGetStableHardwareID_Failure(t *testing.T) {
	wallet := &stubWallet{hardwareErr: NewAPIError(StatusAttestationError, "attestation failed")}
	svc := newTestService(t, wallet)

	_, err := awaitPromise(t, svc.GetStableHardwareID(context.Background()))
	if ErrorKind(err) != ErrorStableHardware {
		t.Fatalf("expected %s, got %q", ErrorStableHardware, ErrorKind(err))
	}
	if StatusTag(err) != TagAttestationError {
		t.Fatalf("expected attestation tag, got %q", StatusTag(err))
	}
}

func TestGetStableHardwareID_UsesCache(t *testing.T) {
	wallet := &stubWallet{hardwareID: "hw-cached", async: true}
	cache := &memoHardwareIDCache{}
	svc := newTestService(t, wallet, WithHardwareIDCache(cache))

	for i := 0; i < 3; i++ {
		id, err := awaitPromise(t, svc.GetStableHardwareID(context.Background()))
		if err != nil || id != "hw-cached" {
			t.Fatalf("lookup %d: expected hw-cached, got %q err=%v", i, id, err)
		}
	}
	wallet.mu.Lock()
	calls := wallet.hardwareCalls
	wallet.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one wallet lookup behind the cache, got %d", calls)
	}
}

func TestGetStableHardwareID_CacheDisabledByConfig(t *testing.T) {
	wallet := &stubWallet{hardwareID: "hw-2"}
	cache := &memoHardwareIDCache{value: "stale", cached: true}
	svc, err := NewService(Config{}, WithWalletClient(wallet), WithHardwareIDCache(cache),
		WithConfigProvider(NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
			"hardware_id_cache": map[string]any{"enabled": false},
		}})))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	id, err := awaitPromise(t, svc.GetStableHardwareID(context.Background()))
	if err != nil || id != "hw-2" {
		t.Fatalf("expected uncached hw-2, got %q err=%v", id, err)
	}
}
