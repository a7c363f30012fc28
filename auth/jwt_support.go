package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-wallet-provisioning/transport"
)

// ServiceJWTSigner sends a short lived HS256 bearer token. Tokens are reused
// until RefreshSkew before they expire.
type ServiceJWTSigner struct {
	Issuer       string
	Audience     string
	Subject      string
	KeyID        string
	SigningKey   string
	TokenTTL     time.Duration
	RefreshSkew  time.Duration
	Now          func() time.Time
	mu           sync.Mutex
	cachedToken  string
	cachedExpiry time.Time
}

func (*ServiceJWTSigner) Kind() string { return KindServiceJWT }

func (s *ServiceJWTSigner) Sign(_ context.Context, req *transport.Request) error {
	token, err := s.Token()
	if err != nil {
		return err
	}
	req.Headers["Authorization"] = "Bearer " + token
	return nil
}

// Token returns the cached token or mints a new one.
func (s *ServiceJWTSigner) Token() (string, error) {
	if s == nil {
		return "", fmt.Errorf("auth: service jwt signer is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	skew := s.RefreshSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	if s.cachedToken != "" && now.Add(skew).Before(s.cachedExpiry) {
		return s.cachedToken, nil
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	expiry := now.Add(ttl)
	claims := map[string]any{
		"iat": now.Unix(),
		"exp": expiry.Unix(),
	}
	if issuer := strings.TrimSpace(s.Issuer); issuer != "" {
		claims["iss"] = issuer
	}
	if audience := strings.TrimSpace(s.Audience); audience != "" {
		claims["aud"] = audience
	}
	if subject := strings.TrimSpace(s.Subject); subject != "" {
		claims["sub"] = subject
	}
	token, err := buildHS256JWT(s.KeyID, s.SigningKey, claims)
	if err != nil {
		return "", err
	}
	s.cachedToken = token
	s.cachedExpiry = expiry
	return token, nil
}

func buildHS256JWT(keyID string, secret string, claims map[string]any) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("auth: jwt signing secret is required")
	}
	header := map[string]any{
		"alg": "HS256",
		"typ": "JWT",
	}
	if strings.TrimSpace(keyID) != "" {
		header["kid"] = strings.TrimSpace(keyID)
	}

	headerRaw, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("auth: marshal jwt header: %w", err)
	}
	claimsRaw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal jwt claims: %w", err)
	}

	headerToken := base64.RawURLEncoding.EncodeToString(headerRaw)
	claimsToken := base64.RawURLEncoding.EncodeToString(claimsRaw)
	signed := headerToken + "." + claimsToken

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signed + "." + signature, nil
}

var _ Signer = (*ServiceJWTSigner)(nil)
