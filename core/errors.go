package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorActiveWallet     = "ACTIVE_WALLET_ERROR"
	ErrorStableHardware   = "STABLE_HARDWARE_ERROR"
	ErrorTokenStatus      = "TOKEN_STATUS_ERROR"
	ErrorCanAddToken      = "CAN_ADD_TOKEN_ERROR"
	ErrorPushProvision    = "PUSH_PROVISION_ERROR"
	ErrorTokenize         = "TOKENIZE_ERROR"
	ErrorDefaultPayments  = "SET_DEFAULT_PAYMENTS_ERROR"
	ErrorUnknownStatus    = UnknownStatusTag
	ErrorBadInput         = "PROVISIONING_BAD_INPUT"
	ErrorInternal         = "PROVISIONING_INTERNAL_ERROR"
	ErrorReasonNotFound   = "not_found"
	ErrorReasonNoUIHost   = "no_ui_host"
	ErrorReasonDispatch   = "dispatch_failed"
	ErrorReasonRetryLimit = "retry_exhausted"
)

const (
	MetadataOperation     = "operation"
	MetadataStatusCode    = "status_code"
	MetadataStatusTag     = "status_tag"
	MetadataStatusMessage = "status_message"
	MetadataReason        = "reason"
)

// APIError is the failure shape reported by a WalletClient completion.
type APIError struct {
	StatusCode    int
	StatusMessage string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.StatusMessage)
	if msg == "" {
		return fmt.Sprintf("wallet api error %d", e.StatusCode)
	}
	return fmt.Sprintf("wallet api error %d: %s", e.StatusCode, msg)
}

func NewAPIError(code StatusCode, message string) *APIError {
	return &APIError{StatusCode: int(code), StatusMessage: message}
}

// StatusOf extracts the wallet status code carried by err.
func StatusOf(err error) (code int, message string, ok bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.StatusCode, strings.TrimSpace(apiErr.StatusMessage), true
	}
	return 0, "", false
}

func hasStatus(err error, code StatusCode) bool {
	got, _, ok := StatusOf(err)
	return ok && got == int(code)
}

// operationFailure builds the rejection envelope for a failed wallet call. The
// status tag is always a translated tag, UnknownStatusTag included.
func operationFailure(kind string, operation string, message string, cause error) *goerrors.Error {
	metadata := map[string]any{
		MetadataOperation: operation,
		MetadataStatusTag: UnknownStatusTag,
	}
	category := goerrors.CategoryExternal
	if code, statusMessage, ok := StatusOf(cause); ok {
		metadata[MetadataStatusCode] = code
		metadata[MetadataStatusTag] = StatusCodeTag(code)
		if statusMessage != "" {
			metadata[MetadataStatusMessage] = statusMessage
		}
	} else if cause != nil {
		metadata[MetadataStatusMessage] = cause.Error()
	}
	if kind == ErrorTokenStatus && hasStatus(cause, StatusTokenNotFound) {
		category = goerrors.CategoryNotFound
		metadata[MetadataReason] = ErrorReasonNotFound
	}

	var out *goerrors.Error
	if cause != nil {
		out = goerrors.Wrap(cause, category, message)
	} else {
		out = goerrors.New(message, category)
	}
	out = out.WithCode(provisioningHTTPStatus(category)).WithTextCode(kind)
	out.WithMetadata(metadata)
	return out
}

// withReason tags a rejection with a machine readable reason.
func withReason(err *goerrors.Error, reason string) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Metadata == nil {
		err.Metadata = map[string]any{}
	}
	err.Metadata[MetadataReason] = reason
	return err
}

func newInternalError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

// MissingDependency reports a handler built without its backing service.
func MissingDependency(layer, dependency string) error {
	return newInternalError(fmt.Sprintf("%s: %s is required", layer, dependency)).
		WithMetadata(map[string]any{"dependency": dependency})
}

// InvalidField reports a rejected message field as a validation error.
func InvalidField(layer, field, message string) error {
	return goerrors.NewValidation(layer+": validation failed", goerrors.FieldError{Field: field, Message: message}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func newBadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

// ErrorKind returns the text code of a rejection, or "" for foreign errors.
func ErrorKind(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode
	}
	return ""
}

// StatusTag returns the translated wallet status tag attached to err.
func StatusTag(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		if tag, ok := rich.Metadata[MetadataStatusTag].(string); ok && tag != "" {
			return tag
		}
	}
	if code, _, ok := StatusOf(err); ok {
		return StatusCodeTag(code)
	}
	return UnknownStatusTag
}

// IsUnknownStatus reports whether err carries a status outside the vocabulary.
func IsUnknownStatus(err error) bool {
	return err != nil && StatusTag(err) == UnknownStatusTag
}

func IsTokenNotFound(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return hasStatus(err, StatusTokenNotFound)
	}
	reason, _ := rich.Metadata[MetadataReason].(string)
	return rich.TextCode == ErrorTokenStatus && reason == ErrorReasonNotFound
}

func provisioningErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	if _, _, ok := StatusOf(err); ok {
		return operationFailure(ErrorUnknownStatus, "unknown", err.Error(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		mapped := goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).WithTextCode(ErrorInternal)
		if errors.Is(err, context.DeadlineExceeded) {
			mapped.Code = http.StatusGatewayTimeout
		}
		return ensureErrorEnvelope(mapped)
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()))
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	// Text codes set by the library mappers are replaced by the local vocabulary.
	mapped.TextCode = ""
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = provisioningHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryExternal:
		return ErrorUnknownStatus
	default:
		return ErrorInternal
	}
}

func provisioningHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToEnvelope normalizes any error into a go-errors envelope with an HTTP code
// and text code set.
func ToEnvelope(err error) *goerrors.Error {
	return provisioningErrorMapper(err)
}
