package sqlstore

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultActivityPerPage = 25

// ActivityStore keeps the provisioning activity log in
// provisioning_activity_entries.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityEntryRecord]
	now  func() time.Time
}

type ActivityStoreOption func(*ActivityStore)

// WithActivityClock sets the clock used for default timestamps and TTL pruning.
func WithActivityClock(now func() time.Time) ActivityStoreOption {
	return func(s *ActivityStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewActivityStore(db *bun.DB, opts ...ActivityStoreOption) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityEntryRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: activity repository: %w", err)
		}
	}
	store := &ActivityStore{db: db, repo: repo, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Record persists one operation outcome. Metadata is redacted again before it
// is written so card and address values never reach the table.
func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	record, err := s.newRecord(entry)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) newRecord(entry core.ActivityEntry) (*activityEntryRecord, error) {
	record := &activityEntryRecord{
		ID:          strings.TrimSpace(entry.ID),
		Operation:   strings.TrimSpace(entry.Operation),
		Status:      strings.TrimSpace(string(entry.Status)),
		StatusTag:   strings.TrimSpace(entry.StatusTag),
		ErrorKind:   strings.TrimSpace(entry.ErrorKind),
		RequestCode: entry.RequestCode,
		DurationMS:  entry.DurationMS,
		Metadata:    core.RedactSensitiveMap(entry.Metadata),
		CreatedAt:   entry.CreatedAt.UTC(),
	}
	if record.Operation == "" {
		return nil, fmt.Errorf("sqlstore: activity operation is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = string(core.ActivityStatusOK)
	}
	if entry.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	if ref := strings.TrimSpace(entry.TokenReference); ref != "" {
		record.TokenReference = &ref
	}
	return record, nil
}

// List returns entries newest first. NextCursor is the offset of the next
// page when one exists.
func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := max(filter.Page, 1)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	offset := (page - 1) * perPage

	records, total, err := s.repo.List(ctx, activitySelectors(filter, perPage, offset)...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	result := core.ActivityPage{
		Items:   make([]core.ActivityEntry, 0, len(records)),
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}
	for _, record := range records {
		result.Items = append(result.Items, activityRecordToDomain(record))
	}
	if next := offset + len(result.Items); next < total {
		result.HasNext = true
		result.NextCursor = strconv.Itoa(next)
	}
	return result, nil
}

func activitySelectors(filter core.ActivityFilter, perPage, offset int) []repository.SelectCriteria {
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	equals := []struct{ column, value string }{
		{"operation", filter.Operation},
		{"status", string(filter.Status)},
		{"token_reference", filter.TokenReference},
		{"error_kind", filter.ErrorKind},
	}
	for _, eq := range equals {
		if value := strings.TrimSpace(eq.value); value != "" {
			selectors = append(selectors, repository.SelectBy(eq.column, "=", value))
		}
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}
	return selectors
}

// Prune drops entries older than the TTL, then the oldest entries beyond the
// row cap. It returns the number of rows removed.
func (s *ActivityStore) Prune(ctx context.Context, policy core.ActivityRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0
	if policy.TTL > 0 {
		cutoff := s.now().UTC().Add(-policy.TTL)
		n, err := s.deleteWhere(ctx, "created_at < ?", cutoff)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	if policy.RowCap <= 0 {
		return deleted, nil
	}
	total, err := s.db.NewSelect().Model((*activityEntryRecord)(nil)).Count(ctx)
	if err != nil {
		return deleted, err
	}
	if excess := total - policy.RowCap; excess > 0 {
		oldest := s.db.NewSelect().
			Model((*activityEntryRecord)(nil)).
			Column("id").
			Order("created_at ASC").
			Limit(excess)
		n, err := s.deleteWhere(ctx, "id IN (?)", oldest)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func (s *ActivityStore) deleteWhere(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.NewDelete().
		Model((*activityEntryRecord)(nil)).
		Where(query, args...).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func activityRecordToDomain(record *activityEntryRecord) core.ActivityEntry {
	if record == nil {
		return core.ActivityEntry{}
	}
	entry := core.ActivityEntry{
		ID:          record.ID,
		Operation:   record.Operation,
		Status:      core.ActivityStatus(record.Status),
		StatusTag:   record.StatusTag,
		ErrorKind:   record.ErrorKind,
		RequestCode: record.RequestCode,
		DurationMS:  record.DurationMS,
		Metadata:    copyAnyMap(record.Metadata),
		CreatedAt:   record.CreatedAt.UTC(),
	}
	if record.TokenReference != nil {
		entry.TokenReference = strings.TrimSpace(*record.TokenReference)
	}
	return entry
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
