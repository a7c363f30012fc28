package httpapi

import (
	"time"

	"github.com/goliatone/go-wallet-provisioning/core"
)

type activityEntryJSON struct {
	ID             string         `json:"id,omitempty"`
	Operation      string         `json:"operation"`
	Status         string         `json:"status"`
	StatusTag      string         `json:"status_tag,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	TokenReference string         `json:"token_reference,omitempty"`
	RequestCode    int            `json:"request_code,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type activityPageJSON struct {
	Items      []activityEntryJSON `json:"items"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	Total      int                 `json:"total"`
	HasNext    bool                `json:"has_next"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

func activityEntryResponse(entry core.ActivityEntry) activityEntryJSON {
	return activityEntryJSON{
		ID:             entry.ID,
		Operation:      entry.Operation,
		Status:         string(entry.Status),
		StatusTag:      entry.StatusTag,
		ErrorKind:      entry.ErrorKind,
		TokenReference: entry.TokenReference,
		RequestCode:    entry.RequestCode,
		DurationMS:     entry.DurationMS,
		Metadata:       core.RedactSensitiveMap(entry.Metadata),
		CreatedAt:      entry.CreatedAt,
	}
}

func activityPageResponse(page core.ActivityPage) activityPageJSON {
	items := make([]activityEntryJSON, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, activityEntryResponse(entry))
	}
	return activityPageJSON{
		Items:      items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      page.Total,
		HasNext:    page.HasNext,
		NextCursor: page.NextCursor,
	}
}
