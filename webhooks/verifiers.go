package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	HeaderSignature  = "X-Wallet-Signature"
	HeaderDeliveryID = "X-Wallet-Delivery-Id"
	HeaderRequestID  = "X-Request-Id"
	SignaturePrefix  = "sha256="
)

// Template bundles the verification and dedupe settings of one callback
// source.
type Template struct {
	Source            string
	Verifier          Verifier
	DeliveryIDHeaders []string
}

// NewWalletAgentTemplate verifies X-Wallet-Signature against the body and
// takes the delivery id from X-Wallet-Delivery-Id or X-Request-Id.
func NewWalletAgentTemplate(source string, secret string) Template {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "wallet-agent"
	}
	return Template{
		Source:            source,
		Verifier:          SignatureVerifier{Secret: secret},
		DeliveryIDHeaders: []string{HeaderDeliveryID, HeaderRequestID},
	}
}

// NewProcessor builds a processor that verifies and dedupes with the
// template settings.
func (t Template) NewProcessor(ledger DeliveryLedger, handler Handler, opts ...ProcessorOption) *Processor {
	opts = append([]ProcessorOption{WithDeliveryIDHeaders(t.DeliveryIDHeaders...)}, opts...)
	return NewProcessor(t.Verifier, ledger, handler, opts...)
}

// Sign returns the X-Wallet-Signature value for body: "sha256=" followed by
// the hex HMAC-SHA256 under secret.
func Sign(secret string, body []byte) string {
	return SignaturePrefix + hex.EncodeToString(signature(secret, body))
}

func signature(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// SignatureVerifier checks the Sign header of a callback. Header defaults to
// X-Wallet-Signature.
type SignatureVerifier struct {
	Header string
	Secret string
}

func (v SignatureVerifier) Verify(_ context.Context, req Request) error {
	name := v.Header
	if strings.TrimSpace(name) == "" {
		name = HeaderSignature
	}
	if strings.TrimSpace(v.Secret) == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	value, ok := strings.CutPrefix(req.Header(name), SignaturePrefix)
	if !ok || strings.TrimSpace(value) == "" {
		return fmt.Errorf("webhooks: %s must carry a %s signature", name, SignaturePrefix)
	}
	got, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("webhooks: decode signature: %w", err)
	}
	if !hmac.Equal(got, signature(v.Secret, req.Body)) {
		return fmt.Errorf("webhooks: signature mismatch")
	}
	return nil
}

var _ Verifier = SignatureVerifier{}
