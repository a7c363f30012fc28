package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-wallet-provisioning/ratelimit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore persists agent throttle state so every bridge instance
// sharing the database honors the same Retry-After window.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}
	record, err := s.find(ctx, key)
	if err != nil {
		return ratelimit.State{}, err
	}
	if record == nil {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return record.toDomain(), nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = normalizeRateLimitKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	existing, err := s.find(ctx, state.Key)
	if err != nil {
		return err
	}
	if existing == nil {
		record := rateLimitStateFromDomain(state)
		record.ID = uuid.NewString()
		record.CreatedAt = record.UpdatedAt
		if _, err := s.repo.Create(ctx, record); err == nil || !isUniqueViolation(err) {
			return err
		}
	}

	// Last writer wins; the policy re-reads state before every call.
	record := rateLimitStateFromDomain(state)
	_, err = s.db.NewUpdate().
		Model((*rateLimitStateRecord)(nil)).
		Set("request_limit = ?", record.Limit).
		Set("remaining = ?", record.Remaining).
		Set("reset_at = ?", record.ResetAt).
		Set("retry_after_ms = ?", record.RetryAfterMS).
		Set("throttled_until = ?", record.ThrottledUntil).
		Set("last_status = ?", record.LastStatus).
		Set("attempts = ?", record.Attempts).
		Set("metadata = ?", record.Metadata).
		Set("updated_at = ?", record.UpdatedAt).
		Where("agent = ?", record.Agent).
		Where("bucket = ?", record.Bucket).
		Exec(ctx)
	return err
}

func (s *RateLimitStateStore) find(ctx context.Context, key ratelimit.Key) (*rateLimitStateRecord, error) {
	record := &rateLimitStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.agent = ?", key.Agent).
		Where("?TableAlias.bucket = ?", key.Bucket).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func rateLimitStateFromDomain(state ratelimit.State) *rateLimitStateRecord {
	record := &rateLimitStateRecord{
		Agent:          state.Key.Agent,
		Bucket:         state.Key.Bucket,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        utcPointer(state.ResetAt),
		ThrottledUntil: utcPointer(state.ThrottledUntil),
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		Metadata:       copyAnyMap(state.Metadata),
		UpdatedAt:      state.UpdatedAt.UTC(),
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		ms := state.RetryAfter.Milliseconds()
		record.RetryAfterMS = &ms
	}
	return record
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	state := ratelimit.State{
		Key:            ratelimit.Key{Agent: r.Agent, Bucket: r.Bucket},
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        utcPointer(r.ResetAt),
		ThrottledUntil: utcPointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt,
		Metadata:       copyAnyMap(r.Metadata),
	}
	if r.RetryAfterMS != nil && *r.RetryAfterMS > 0 {
		value := time.Duration(*r.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &value
	}
	return state
}

func normalizeRateLimitKey(key ratelimit.Key) ratelimit.Key {
	return ratelimit.Key{
		Agent:  strings.TrimSpace(strings.ToLower(key.Agent)),
		Bucket: strings.TrimSpace(strings.ToLower(key.Bucket)),
	}
}

func validateRateLimitKey(key ratelimit.Key) error {
	if key.Agent == "" {
		return fmt.Errorf("sqlstore: rate-limit agent is required")
	}
	if key.Bucket == "" {
		return fmt.Errorf("sqlstore: rate-limit bucket is required")
	}
	return nil
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
