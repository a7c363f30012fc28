package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type activityEntryRecord struct {
	bun.BaseModel `bun:"table:provisioning_activity_entries,alias:pae"`

	ID             string         `bun:"id,pk"`
	Operation      string         `bun:"operation,notnull"`
	Status         string         `bun:"status,notnull"`
	StatusTag      string         `bun:"status_tag"`
	ErrorKind      string         `bun:"error_kind"`
	TokenReference *string        `bun:"token_reference"`
	RequestCode    int            `bun:"request_code,notnull"`
	DurationMS     int64          `bun:"duration_ms,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:provisioning_webhook_deliveries,alias:pwd"`

	ID            string     `bun:"id,pk"`
	ClaimID       string     `bun:"claim_id,notnull"`
	Source        string     `bun:"source,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastError     string     `bun:"last_error,notnull"`
	PayloadDigest string     `bun:"payload_digest,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:provisioning_rate_limit_state,alias:prl"`

	ID             string         `bun:"id,pk"`
	Agent          string         `bun:"agent,notnull"`
	Bucket         string         `bun:"bucket,notnull"`
	Limit          int            `bun:"request_limit,notnull"`
	Remaining      int            `bun:"remaining,notnull"`
	ResetAt        *time.Time     `bun:"reset_at"`
	RetryAfterMS   *int64         `bun:"retry_after_ms"`
	ThrottledUntil *time.Time     `bun:"throttled_until"`
	LastStatus     int            `bun:"last_status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
