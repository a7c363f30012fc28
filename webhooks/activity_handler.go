package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-wallet-provisioning/core"
)

// ActivityResultReceiver is the service side of an activity result callback.
type ActivityResultReceiver interface {
	HandleActivityResult(ctx context.Context, result core.ActivityResult) (core.ActivityEntry, error)
}

type activityResultPayload struct {
	RequestCode    int            `json:"request_code"`
	ResultCode     int            `json:"result_code"`
	TokenReference string         `json:"token_reference"`
	Metadata       map[string]any `json:"metadata"`
}

// ActivityResultHandler decodes a UI flow outcome posted by the wallet agent
// and forwards it to the receiver. Malformed payloads and bad input are
// rejected with 400 so they are not retried.
type ActivityResultHandler struct {
	receiver ActivityResultReceiver
}

func NewActivityResultHandler(receiver ActivityResultReceiver) *ActivityResultHandler {
	return &ActivityResultHandler{receiver: receiver}
}

func (h *ActivityResultHandler) Handle(ctx context.Context, req Request) (Result, error) {
	if h == nil || h.receiver == nil {
		return Result{}, fmt.Errorf("webhooks: activity result receiver is required")
	}
	var payload activityResultPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return Result{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata:   map[string]any{"error": "invalid json body"},
		}, nil
	}
	entry, err := h.receiver.HandleActivityResult(ctx, core.ActivityResult(payload))
	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich != nil &&
			(rich.Category == goerrors.CategoryBadInput || rich.Category == goerrors.CategoryValidation) {
			return Result{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
				Metadata:   map[string]any{"error": rich.Message, "text_code": rich.TextCode},
			}, nil
		}
		return Result{}, err
	}
	return Result{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		Metadata: map[string]any{
			"operation": entry.Operation,
			"status":    string(entry.Status),
		},
	}, nil
}

var _ Handler = (*ActivityResultHandler)(nil)
