// Package auth signs outbound wallet agent requests. Signers run inside a
// SigningAdapter so they see the encoded body.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-wallet-provisioning/transport"
)

const (
	KindAPIKey     = "api_key"
	KindHMAC       = "hmac"
	KindServiceJWT = "service_jwt"

	defaultAPIKeyHeader = "X-API-Key"
	defaultHMACHeader   = "X-Signature"
	defaultTimeHeader   = "X-Timestamp"
	defaultKeyIDHeader  = "X-Key-Id"
)

type Signer interface {
	Kind() string
	Sign(ctx context.Context, req *transport.Request) error
}

// SigningAdapter signs each request before handing it to Next.
type SigningAdapter struct {
	Next   transport.Adapter
	Signer Signer
}

func NewSigningAdapter(next transport.Adapter, signer Signer) *SigningAdapter {
	return &SigningAdapter{Next: next, Signer: signer}
}

func (a *SigningAdapter) Kind() string {
	if a == nil || a.Next == nil {
		return ""
	}
	return a.Next.Kind()
}

func (a *SigningAdapter) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	if a == nil || a.Next == nil {
		return transport.Response{}, fmt.Errorf("auth: signing adapter requires a transport")
	}
	if a.Signer != nil {
		req.Headers = cloneHeaders(req.Headers)
		if err := a.Signer.Sign(ctx, &req); err != nil {
			return transport.Response{}, fmt.Errorf("auth: sign %s request: %w", a.Signer.Kind(), err)
		}
	}
	return a.Next.Do(ctx, req)
}

// APIKeySigner sets a static key header. With Header "Authorization" and
// Prefix "Bearer" it produces a bearer token.
type APIKeySigner struct {
	Header string
	Prefix string
	Key    string
}

func (APIKeySigner) Kind() string { return KindAPIKey }

func (s APIKeySigner) Sign(_ context.Context, req *transport.Request) error {
	key := strings.TrimSpace(s.Key)
	if key == "" {
		return fmt.Errorf("auth: api key is required")
	}
	header := strings.TrimSpace(s.Header)
	if header == "" {
		header = defaultAPIKeyHeader
	}
	value := key
	if prefix := strings.TrimSpace(s.Prefix); prefix != "" {
		value = prefix + " " + key
	}
	req.Headers[header] = value
	return nil
}

// HMACSigner signs METHOD, path, sorted query, timestamp and the body digest
// with HMAC-SHA256.
type HMACSigner struct {
	Secret          string
	KeyID           string
	SignatureHeader string
	TimestampHeader string
	Now             func() time.Time
}

func (HMACSigner) Kind() string { return KindHMAC }

func (s HMACSigner) Sign(_ context.Context, req *transport.Request) error {
	secret := strings.TrimSpace(s.Secret)
	if secret == "" {
		return fmt.Errorf("auth: hmac secret is required")
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)

	req.Headers[headerOr(s.TimestampHeader, defaultTimeHeader)] = timestamp
	req.Headers[headerOr(s.SignatureHeader, defaultHMACHeader)] = SignHMAC(secret, *req, timestamp)
	if keyID := strings.TrimSpace(s.KeyID); keyID != "" {
		req.Headers[defaultKeyIDHeader] = keyID
	}
	return nil
}

// SignHMAC returns the hex signature HMACSigner attaches to req.
func SignHMAC(secret string, req transport.Request, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	_, _ = mac.Write([]byte(CanonicalRequest(req, timestamp)))
	return hex.EncodeToString(mac.Sum(nil))
}

func CanonicalRequest(req transport.Request, timestamp string) string {
	keys := make([]string, 0, len(req.Query))
	for key := range req.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	query := make([]string, 0, len(keys))
	for _, key := range keys {
		query = append(query, key+"="+req.Query[key])
	}
	digest := sha256.Sum256(req.Body)
	return strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(req.Method)),
		strings.TrimSpace(req.URL),
		strings.Join(query, "&"),
		timestamp,
		hex.EncodeToString(digest[:]),
	}, "\n")
}

func headerOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func cloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+3)
	for key, value := range headers {
		out[key] = value
	}
	return out
}

var (
	_ transport.Adapter = (*SigningAdapter)(nil)
	_ Signer            = APIKeySigner{}
	_ Signer            = HMACSigner{}
)
