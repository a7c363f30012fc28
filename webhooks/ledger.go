package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger keeps delivery claims in process. Records are dropped after
// Retention once they reach processed or dead.
type MemoryLedger struct {
	mu        sync.Mutex
	records   map[string]DeliveryRecord
	claims    map[string]string
	Retention time.Duration
	Now       func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records:   map[string]DeliveryRecord{},
		claims:    map[string]string{},
		Retention: 24 * time.Hour,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Claim returns claimed=false when the delivery is processed, dead, held by
// a live lease, or not yet due for retry.
func (l *MemoryLedger) Claim(
	_ context.Context,
	source string,
	deliveryID string,
	_ []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: source and delivery id are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evictLocked(now)

	key := ledgerKey(source, deliveryID)
	record, exists := l.records[key]
	if exists {
		switch record.Status {
		case DeliveryStatusProcessed, DeliveryStatusDead:
			return record, false, nil
		case DeliveryStatusProcessing:
			if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
				return record, false, nil
			}
		case DeliveryStatusRetryReady:
			if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
				return record, false, nil
			}
		}
		delete(l.claims, record.ClaimID)
		record.Attempts++
	} else {
		record = DeliveryRecord{
			ID:         uuid.NewString(),
			Source:     source,
			DeliveryID: deliveryID,
			Attempts:   1,
			CreatedAt:  now,
		}
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	leaseEnd := now.Add(lease)
	record.ClaimID = uuid.NewString()
	record.Status = DeliveryStatusProcessing
	record.NextAttemptAt = &leaseEnd
	record.UpdatedAt = now
	l.records[key] = record
	l.claims[record.ClaimID] = key
	return record, true, nil
}

func (l *MemoryLedger) Get(_ context.Context, source string, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[ledgerKey(strings.TrimSpace(source), strings.TrimSpace(deliveryID))]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %q not found", deliveryID)
	}
	return record, nil
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, record, err := l.claimedLocked(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.NextAttemptAt = nil
	record.LastError = ""
	record.UpdatedAt = l.now()
	l.records[key] = record
	delete(l.claims, claimID)
	return nil
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key, record, err := l.claimedLocked(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusRetryReady
	record.NextAttemptAt = &nextAttemptAt
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		record.NextAttemptAt = nil
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	record.UpdatedAt = l.now()
	l.records[key] = record
	delete(l.claims, claimID)
	return nil
}

func (l *MemoryLedger) claimedLocked(claimID string) (string, DeliveryRecord, error) {
	key, ok := l.claims[strings.TrimSpace(claimID)]
	if !ok {
		return "", DeliveryRecord{}, fmt.Errorf("webhooks: claim %q is not active", claimID)
	}
	return key, l.records[key], nil
}

func (l *MemoryLedger) evictLocked(now time.Time) {
	if l.Retention <= 0 {
		return
	}
	for key, record := range l.records {
		if record.Status != DeliveryStatusProcessed && record.Status != DeliveryStatusDead {
			continue
		}
		if now.Sub(record.UpdatedAt) > l.Retention {
			delete(l.records, key)
		}
	}
}

func (l *MemoryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func ledgerKey(source, deliveryID string) string {
	return source + "::" + deliveryID
}

var _ DeliveryLedger = (*MemoryLedger)(nil)
