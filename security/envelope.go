package security

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EnvelopePrefix marks a sealed config value.
const EnvelopePrefix = "wallet.secret.v1:"

// envelope is the JSON body after the prefix. Byte fields encode as base64.
type envelope struct {
	KeyID      string `json:"kid"`
	Field      string `json:"field"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// IsSealed reports whether value carries the envelope prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), EnvelopePrefix)
}

// SealedField returns the field a sealed value was bound to.
func SealedField(value string) (Field, error) {
	env, err := decodeEnvelope(value)
	if err != nil {
		return "", err
	}
	return Field(env.Field), nil
}

func (e envelope) encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return EnvelopePrefix + string(data), nil
}

func decodeEnvelope(value string) (envelope, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(value), EnvelopePrefix)
	if !ok {
		return envelope{}, fmt.Errorf("security: value is not sealed")
	}
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	if env.KeyID == "" || env.Field == "" || len(env.Ciphertext) == 0 {
		return envelope{}, fmt.Errorf("security: envelope is incomplete")
	}
	return env, nil
}
