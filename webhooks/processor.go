package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

var (
	ErrVerification      = errors.New("webhooks: verification failed")
	ErrMissingDeliveryID = errors.New("webhooks: delivery id is required for dedupe")
)

const (
	defaultClaimLease  = 30 * time.Second
	defaultMaxAttempts = 8
)

// ExponentialRetryPolicy doubles Initial per attempt up to Max.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	delay, maximum := p.Initial, p.Max
	if delay <= 0 {
		delay = time.Second
	}
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	for i := 1; i < attempt && delay < maximum; i++ {
		delay *= 2
	}
	return min(delay, maximum)
}

type ProcessorOption func(*Processor)

func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) {
		if policy != nil {
			p.retry = policy
		}
	}
}

// WithMaxAttempts sets how many failed runs mark a delivery dead.
func WithMaxAttempts(attempts int) ProcessorOption {
	return func(p *Processor) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
	}
}

// WithClaimLease bounds how long a claimed delivery blocks redeliveries.
func WithClaimLease(lease time.Duration) ProcessorOption {
	return func(p *Processor) {
		if lease > 0 {
			p.lease = lease
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithDeliveryIDHeaders reads the delivery id from the first present header
// before falling back to the defaults.
func WithDeliveryIDHeaders(headers ...string) ProcessorOption {
	return func(p *Processor) {
		if len(headers) > 0 {
			p.extract = headerDeliveryID(slices.Concat(headers, []string{HeaderDeliveryID, "X-Delivery-Id"})...)
		}
	}
}

// WithAcceptedServerErrors closes deliveries the handler accepted even when it
// reports a 5xx status.
func WithAcceptedServerErrors() ProcessorOption {
	return func(p *Processor) {
		p.acceptServerErrors = true
	}
}

// Processor verifies a callback, claims it in the ledger and runs the handler
// at most once per (source, delivery id).
type Processor struct {
	verifier           Verifier
	ledger             DeliveryLedger
	handler            Handler
	extract            DeliveryIDExtractor
	retry              RetryPolicy
	lease              time.Duration
	maxAttempts        int
	acceptServerErrors bool
	now                func() time.Time
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler, opts ...ProcessorOption) *Processor {
	p := &Processor{
		verifier:    verifier,
		ledger:      ledger,
		handler:     handler,
		extract:     DefaultDeliveryIDExtractor,
		retry:       ExponentialRetryPolicy{},
		lease:       defaultClaimLease,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// outcome is what the ledger does with a handled delivery.
type outcome int

const (
	outcomeComplete outcome = iota
	outcomeReject
	outcomeRetry
)

func (p *Processor) classify(result Result) outcome {
	switch {
	case !result.Accepted && result.StatusCode >= http.StatusBadRequest && result.StatusCode < http.StatusInternalServerError:
		return outcomeReject
	case !result.Accepted:
		return outcomeRetry
	case result.StatusCode >= http.StatusInternalServerError && !p.acceptServerErrors:
		return outcomeRetry
	}
	return outcomeComplete
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.handler == nil || p.ledger == nil {
		return Result{}, fmt.Errorf("webhooks: processor requires handler and ledger")
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return Result{}, fmt.Errorf("webhooks: source is required")
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(ctx, req); err != nil {
			return Result{
				StatusCode: http.StatusUnauthorized,
				Metadata:   map[string]any{"source": req.Source, "rejected": true},
			}, fmt.Errorf("%w: %v", ErrVerification, err)
		}
	}

	deliveryID, err := p.extract(req)
	if err != nil {
		return Result{}, err
	}
	delivery, claimed, err := p.ledger.Claim(ctx, req.Source, deliveryID, req.Body, p.lease)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return Result{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"source":      req.Source,
				"delivery_id": delivery.DeliveryID,
				"status":      delivery.Status,
				"deduped":     true,
			},
		}, nil
	}

	result, err := p.handler.Handle(ctx, req)
	if err != nil {
		p.fail(ctx, delivery, err)
		return Result{}, err
	}

	switch p.classify(result) {
	case outcomeRetry:
		err := fmt.Errorf("webhooks: delivery handler returned retryable status %d", result.StatusCode)
		p.fail(ctx, delivery, err)
		return result, err
	case outcomeReject:
		result.Metadata = annotate(result.Metadata, req.Source, deliveryID)
		result.Metadata["rejected"] = true
	default:
		result.Metadata = annotate(result.Metadata, req.Source, deliveryID)
	}
	if err := p.ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return Result{}, err
	}
	return result, nil
}

// fail releases the claim for a later redelivery. The handler error is what
// the caller sees, so a ledger error here is dropped.
func (p *Processor) fail(ctx context.Context, delivery DeliveryRecord, cause error) {
	next := p.now().UTC().Add(p.retry.NextDelay(delivery.Attempts))
	_ = p.ledger.Fail(ctx, delivery.ClaimID, cause, next, p.maxAttempts)
}

func annotate(metadata map[string]any, source, deliveryID string) map[string]any {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["source"] = source
	metadata["delivery_id"] = deliveryID
	return metadata
}

// DefaultDeliveryIDExtractor reads the delivery id from request metadata or
// the X-Wallet-Delivery-Id / X-Delivery-Id headers.
func DefaultDeliveryIDExtractor(req Request) (string, error) {
	if value, ok := req.Metadata["delivery_id"].(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return headerDeliveryID(HeaderDeliveryID, "X-Delivery-Id")(req)
}

func headerDeliveryID(headers ...string) DeliveryIDExtractor {
	return func(req Request) (string, error) {
		for _, name := range headers {
			if value := req.Header(name); value != "" {
				return value, nil
			}
		}
		return "", ErrMissingDeliveryID
	}
}
