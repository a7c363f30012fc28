package webhooks

import (
	"context"
	"strings"
	"time"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

// Request is one inbound callback. Source names the sending agent and scopes
// delivery ids.
type Request struct {
	Source   string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// Header returns the trimmed value of name, matched case-insensitively.
func (r Request) Header(name string) string {
	name = strings.TrimSpace(name)
	for key, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// Result is what a Handler made of a delivery. StatusCode is echoed to the
// agent.
type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type DeliveryRecord struct {
	ID            string
	ClaimID       string
	Source        string
	DeliveryID    string
	Status        string
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger records deliveries so each runs at most once. Claim returns
// claimed=false for a delivery that is processed, dead, in flight or not yet
// due for retry.
type DeliveryLedger interface {
	Claim(ctx context.Context, source, deliveryID string, payload []byte, lease time.Duration) (DeliveryRecord, bool, error)
	Get(ctx context.Context, source, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

type Handler interface {
	Handle(ctx context.Context, req Request) (Result, error)
}

type DeliveryIDExtractor func(req Request) (string, error)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}
