package httpapi

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-wallet-provisioning/core"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Category   string            `json:"category"`
	Code       int               `json:"code"`
	TextCode   string            `json:"text_code"`
	Message    string            `json:"message"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	Validation []validationField `json:"validation,omitempty"`
}

type validationField struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func envelopeFor(err error) (int, errorBody) {
	rich := core.ToEnvelope(err)
	if rich == nil {
		rich = goerrors.New("An unexpected error occurred", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ErrorInternal)
	}
	status := rich.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	body := errorBody{Error: errorPayload{
		Category: string(rich.Category),
		Code:     rich.Code,
		TextCode: rich.TextCode,
		Message:  rich.Message,
		Metadata: core.RedactSensitiveMap(rich.Metadata),
	}}
	for _, field := range rich.AllValidationErrors() {
		body.Error.Validation = append(body.Error.Validation, validationField{
			Field:   field.Field,
			Message: field.Message,
		})
	}
	return status, body
}

func badRequest(field, message string) error {
	return goerrors.NewValidation("invalid request", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).WithCode(http.StatusBadRequest).WithTextCode(core.ErrorBadInput)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
