// Package security seals bridge credentials with an app key so config files
// can carry the wallet agent and webhook secrets at rest.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Field names the config value a secret belongs to. A secret sealed for one
// field fails to open as another.
type Field string

const (
	FieldWalletAPIKey  Field = "wallet.api_key"
	FieldWebhookSecret Field = "webhooks.secret"
)

// Sealer encrypts credentials with AES-256-GCM under a key derived from the
// app key.
type Sealer struct {
	aead        cipher.AEAD
	fingerprint string
}

func NewSealer(appKey string) (*Sealer, error) {
	appKey = strings.TrimSpace(appKey)
	if appKey == "" {
		return nil, fmt.Errorf("security: app key is required")
	}
	key := sha256.Sum256([]byte(appKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	id := sha256.Sum256(key[:])
	return &Sealer{aead: aead, fingerprint: hex.EncodeToString(id[:4])}, nil
}

// Fingerprint identifies the app key without revealing it.
func (s *Sealer) Fingerprint() string {
	if s == nil {
		return ""
	}
	return s.fingerprint
}

// Seal returns an envelope string for plaintext bound to field.
func (s *Sealer) Seal(field Field, plaintext string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: no app key configured")
	}
	if field == "" {
		return "", fmt.Errorf("security: field is required")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: %s: nothing to seal", field)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("security: nonce: %w", err)
	}
	return envelope{
		KeyID:      s.fingerprint,
		Field:      string(field),
		Nonce:      nonce,
		Ciphertext: s.aead.Seal(nil, nonce, []byte(plaintext), []byte(field)),
	}.encode()
}

// Open returns value unchanged unless it is sealed. Sealed values must have
// been sealed for field under the same app key.
func (s *Sealer) Open(field Field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("security: %s is sealed but no app key is configured", field)
	}
	env, err := decodeEnvelope(value)
	if err != nil {
		return "", err
	}
	if env.KeyID != s.fingerprint {
		return "", fmt.Errorf("security: %s was sealed with app key %s, have %s", field, env.KeyID, s.fingerprint)
	}
	if env.Field != string(field) {
		return "", fmt.Errorf("security: value sealed for %s cannot be used as %s", env.Field, field)
	}
	if len(env.Nonce) != s.aead.NonceSize() {
		return "", fmt.Errorf("security: %s: malformed nonce", field)
	}
	plaintext, err := s.aead.Open(nil, env.Nonce, env.Ciphertext, []byte(field))
	if err != nil {
		return "", fmt.Errorf("security: %s: %w", field, err)
	}
	return string(plaintext), nil
}
