package core

import "strings"

const RedactedValue = "[REDACTED]"

// Key fragments that mark card, cardholder, or credential data.
var sensitiveKeyParts = []string{
	"opc",
	"opaque",
	"payment_card",
	"fpan",
	"account_number",
	"phone",
	"address",
	"postal",
	"locality",
	"administrative_area",
	"last_digits",
	"name",
	"secret",
	"authorization",
	"api_key",
	"credential",
}

// Keys that identify an operation rather than a cardholder. They stay visible
// even when they contain a sensitive fragment.
var traceableKeys = map[string]struct{}{
	"operation":              {},
	"event_type":             {},
	"token_reference":        {},
	"token_service_provider": {},
	"network":                {},
	"request_code":           {},
	"result_code":            {},
	"status_tag":             {},
	"status_code":            {},
	"request_id":             {},
	"trace_id":               {},
}

// RedactSensitiveMap returns a copy of metadata with card and address values
// masked so it can be logged or persisted. String values that read as a card
// number are masked under any key.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if sensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return RedactSensitiveMap(out)
	case []map[string]any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = RedactSensitiveMap(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	case string:
		if looksLikeCardNumber(typed) {
			return RedactedValue
		}
		return typed
	default:
		return value
	}
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceableKeys[key]; ok {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

// looksLikeCardNumber reports whether s is 13 to 19 digits, optionally
// grouped by spaces or dashes, that pass the Luhn check.
func looksLikeCardNumber(s string) bool {
	digits := make([]int, 0, 19)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
		if len(digits) > 19 {
			return false
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	for i := range digits {
		d := digits[len(digits)-1-i]
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
