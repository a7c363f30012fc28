package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-wallet-provisioning/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookDeliveryStore is a webhooks.DeliveryLedger over
// provisioning_webhook_deliveries. Reclaims compare the previous claim id so
// two processors cannot take the same delivery.
type WebhookDeliveryStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &WebhookDeliveryStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	source string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: source and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := s.now()
	leaseEnd := now.Add(lease)

	record := &webhookDeliveryRecord{
		ID:            uuid.NewString(),
		ClaimID:       uuid.NewString(),
		Source:        source,
		DeliveryID:    deliveryID,
		Status:        webhooks.DeliveryStatusProcessing,
		Attempts:      1,
		PayloadDigest: payloadDigest(payload),
		NextAttemptAt: &leaseEnd,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err == nil {
		return webhookDeliveryToDomain(record), true, nil
	} else if !isUniqueViolation(err) {
		return webhooks.DeliveryRecord{}, false, err
	}

	existing, err := s.load(ctx, source, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	switch existing.Status {
	case webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead:
		return webhookDeliveryToDomain(existing), false, nil
	}
	if existing.NextAttemptAt != nil && now.Before(*existing.NextAttemptAt) {
		return webhookDeliveryToDomain(existing), false, nil
	}

	previousClaim := existing.ClaimID
	existing.ClaimID = uuid.NewString()
	existing.Status = webhooks.DeliveryStatusProcessing
	existing.Attempts++
	existing.NextAttemptAt = &leaseEnd
	existing.UpdatedAt = now
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("claim_id = ?", existing.ClaimID).
		Set("status = ?", existing.Status).
		Set("attempts = ?", existing.Attempts).
		Set("next_attempt_at = ?", leaseEnd).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Where("claim_id = ?", previousClaim).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		current, err := s.load(ctx, source, deliveryID)
		if err != nil {
			return webhooks.DeliveryRecord{}, false, err
		}
		return webhookDeliveryToDomain(current), false, nil
	}
	return webhookDeliveryToDomain(existing), true, nil
}

func (s *WebhookDeliveryStore) Get(ctx context.Context, source string, deliveryID string) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record, err := s.load(ctx, strings.TrimSpace(source), strings.TrimSpace(deliveryID))
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("next_attempt_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", strings.TrimSpace(claimID)).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, claimID)
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.claim_id = ?", strings.TrimSpace(claimID)).
		Where("?TableAlias.status = ?", webhooks.DeliveryStatusProcessing).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlstore: webhook claim %q is not active", claimID)
		}
		return err
	}

	status := webhooks.DeliveryStatusRetryReady
	next := nextAttemptAt.UTC()
	nextValue := &next
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		status = webhooks.DeliveryStatusDead
		nextValue = nil
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", status).
		Set("next_attempt_at = ?", nextValue).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", record.ClaimID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, claimID)
}

// Prune deletes processed and dead deliveries last updated before cutoff.
func (s *WebhookDeliveryStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*webhookDeliveryRecord)(nil)).
		Where("status IN (?)", bun.In([]string{webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead})).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *WebhookDeliveryStore) load(ctx context.Context, source, deliveryID string) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source = ?", source).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlstore: webhook delivery not found for source %q delivery %q", source, deliveryID)
		}
		return nil, err
	}
	return record, nil
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	result := webhooks.DeliveryRecord{
		ID:         record.ID,
		ClaimID:    record.ClaimID,
		Source:     record.Source,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		LastError:  record.LastError,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		result.NextAttemptAt = &value
	}
	return result
}

func payloadDigest(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func requireAffected(res sql.Result, claimID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: webhook claim %q is not active", claimID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
