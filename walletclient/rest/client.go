// Package rest implements core.WalletClient against a wallet agent that
// exposes the platform wallet over HTTP. Query calls complete asynchronously
// on a goroutine owned by the client.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wallet-provisioning/auth"
	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/goliatone/go-wallet-provisioning/ratelimit"
	"github.com/goliatone/go-wallet-provisioning/transport"
)

const (
	PathActiveWallet = "/v1/wallet/active"
	PathCreateWallet = "/v1/wallet"
	PathHardwareID   = "/v1/device/hardware-id"
	PathTokens       = "/v1/tokens"
	PathPushTokenize = "/v1/push-tokenize"

	defaultRequestTimeout = 15 * time.Second
)

// Runner schedules a completion callback. The default runs each call on its
// own goroutine.
type Runner func(fn func())

type Client struct {
	adapter   transport.Adapter
	agent     string
	timeout   time.Duration
	headers   map[string]string
	logger    glog.Logger
	run       Runner
	rateLimit ratelimit.Policy
	signer    auth.Signer
}

type Option func(*Client)

func WithAdapter(adapter transport.Adapter) Option {
	return func(c *Client) {
		if adapter != nil {
			c.adapter = adapter
		}
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers[strings.TrimSpace(key)] = value
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimitPolicy consults policy before each call and feeds it the
// agent's throttle headers afterwards. Throttled calls fail with
// core.StatusUnavailable without reaching the agent.
func WithRateLimitPolicy(policy ratelimit.Policy) Option {
	return func(c *Client) { c.rateLimit = policy }
}

// WithSigner signs every request sent to the agent.
func WithSigner(signer auth.Signer) Option {
	return func(c *Client) { c.signer = signer }
}

func WithRunner(run Runner) Option {
	return func(c *Client) {
		if run != nil {
			c.run = run
		}
	}
}

// NewClient builds a client for the agent at baseURL. Without WithAdapter it
// uses a transport.RESTAdapter over httpClient (or a default client when nil).
func NewClient(baseURL string, httpClient transport.HTTPDoer, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	client := &Client{
		agent:   baseURL,
		timeout: defaultRequestTimeout,
		headers: map[string]string{},
		logger:  glog.Nop(),
		run:     func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.adapter == nil {
		if baseURL == "" {
			return nil, fmt.Errorf("rest: wallet agent base url is required")
		}
		if _, err := url.ParseRequestURI(baseURL); err != nil {
			return nil, fmt.Errorf("rest: invalid wallet agent base url: %w", err)
		}
		client.adapter = transport.NewRESTAdapter(httpClient, transport.WithBaseURL(baseURL))
	}
	if client.signer != nil {
		client.adapter = auth.NewSigningAdapter(client.adapter, client.signer)
	}
	return client, nil
}

type activeWalletResponse struct {
	WalletID string `json:"wallet_id"`
}

type hardwareIDResponse struct {
	HardwareID string `json:"hardware_id"`
}

type tokenStatusResponse struct {
	TokenState int            `json:"token_state"`
	IsSelected bool           `json:"is_selected"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type tokenInfoPayload struct {
	IssuerTokenID  string `json:"issuer_token_id"`
	IssuerName     string `json:"issuer_name"`
	DisplayName    string `json:"display_name"`
	TokenState     int    `json:"token_state"`
	Network        int    `json:"network"`
	TokenProvider  int    `json:"token_service_provider"`
	FPANLastFour   string `json:"fpan_last_four"`
	PortfolioName  string `json:"portfolio_name"`
	ClientTokenRef string `json:"client_token_ref"`
}

type listTokensResponse struct {
	Tokens []tokenInfoPayload `json:"tokens"`
}

type createWalletPayload struct {
	HostID      string `json:"host_id"`
	RequestCode int    `json:"request_code"`
}

type pushTokenizePayload struct {
	HostID      string                   `json:"host_id"`
	RequestCode int                      `json:"request_code"`
	Request     core.PushTokenizeRequest `json:"request"`
}

// statusEnvelope is the agent's failure body.
type statusEnvelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (c *Client) GetActiveWalletID(ctx context.Context, done core.Completion[string]) {
	c.async(ctx, "get_active_wallet_id", func(ctx context.Context) {
		var out activeWalletResponse
		err := c.call(ctx, "get_active_wallet_id", http.MethodGet, PathActiveWallet, nil, nil, &out)
		done(strings.TrimSpace(out.WalletID), err)
	})
}

func (c *Client) CreateWallet(ctx context.Context, host core.UIHost, requestCode int) error {
	return c.call(ctx, "create_wallet", http.MethodPost, PathCreateWallet, nil, createWalletPayload{
		HostID:      hostID(host),
		RequestCode: requestCode,
	}, nil)
}

func (c *Client) GetStableHardwareID(ctx context.Context, done core.Completion[string]) {
	c.async(ctx, "get_stable_hardware_id", func(ctx context.Context) {
		var out hardwareIDResponse
		err := c.call(ctx, "get_stable_hardware_id", http.MethodGet, PathHardwareID, nil, nil, &out)
		done(strings.TrimSpace(out.HardwareID), err)
	})
}

func (c *Client) GetTokenStatus(ctx context.Context, tokenServiceProvider int, tokenReference string, done core.Completion[core.TokenStatus]) {
	c.async(ctx, "get_token_status", func(ctx context.Context) {
		var out tokenStatusResponse
		path := PathTokens + "/" + url.PathEscape(tokenReference)
		query := map[string]string{"tsp": strconv.Itoa(tokenServiceProvider)}
		if err := c.call(ctx, "get_token_status", http.MethodGet, path, query, nil, &out); err != nil {
			done(core.TokenStatus{}, err)
			return
		}
		done(core.TokenStatus{
			TokenState:  out.TokenState,
			IsSelected:  out.IsSelected,
			RawMetadata: out.Metadata,
		}, nil)
	})
}

func (c *Client) ListTokens(ctx context.Context, done core.Completion[[]core.TokenInfo]) {
	c.async(ctx, "list_tokens", func(ctx context.Context) {
		var out listTokensResponse
		if err := c.call(ctx, "list_tokens", http.MethodGet, PathTokens, nil, nil, &out); err != nil {
			done(nil, err)
			return
		}
		tokens := make([]core.TokenInfo, 0, len(out.Tokens))
		for _, token := range out.Tokens {
			tokens = append(tokens, core.TokenInfo(token))
		}
		done(tokens, nil)
	})
}

func (c *Client) PushTokenize(ctx context.Context, host core.UIHost, req core.PushTokenizeRequest, requestCode int) error {
	return c.call(ctx, "push_tokenize", http.MethodPost, PathPushTokenize, nil, pushTokenizePayload{
		HostID:      hostID(host),
		RequestCode: requestCode,
		Request:     req,
	}, nil)
}

func (c *Client) async(ctx context.Context, operation string, fn func(context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger.Debug("wallet agent call dispatched", "operation", operation)
	c.run(func() { fn(ctx) })
}

func (c *Client) call(ctx context.Context, bucket, method, path string, query map[string]string, payload any, out any) error {
	if c == nil || c.adapter == nil {
		return fmt.Errorf("rest: wallet client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key := ratelimit.Key{Agent: c.agent, Bucket: bucket}
	if c.rateLimit != nil {
		if err := c.rateLimit.BeforeCall(ctx, key); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				c.logger.Warn("wallet agent call throttled", "bucket", bucket, "retry_after", throttled.RetryAfter.String())
				return core.NewAPIError(core.StatusUnavailable, throttled.Error())
			}
			return err
		}
	}
	res, err := transport.DoJSON(ctx, c.adapter, transport.Request{
		Method:  method,
		URL:     path,
		Query:   query,
		Headers: c.headers,
		Timeout: c.timeout,
	}, payload, out)
	if err != nil {
		c.logger.Warn("wallet agent call failed", "path", path, "error", err.Error())
		return err
	}
	if c.rateLimit != nil {
		meta := ratelimit.ResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
		if err := c.rateLimit.AfterCall(ctx, key, meta); err != nil {
			c.logger.Warn("rate limit state update failed", "bucket", bucket, "error", err.Error())
		}
	}
	if transport.IsSuccess(res.StatusCode) {
		return nil
	}
	return decodeStatusError(res)
}

// decodeStatusError maps a non-2xx agent response to core.APIError. Bodies
// without a wallet status code fall back to the HTTP status.
func decodeStatusError(res transport.Response) error {
	var envelope statusEnvelope
	if len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, &envelope); err == nil && envelope.StatusCode != 0 {
			return &core.APIError{StatusCode: envelope.StatusCode, StatusMessage: envelope.StatusMessage}
		}
	}
	return fmt.Errorf("rest: wallet agent responded with http %d", res.StatusCode)
}

func hostID(host core.UIHost) string {
	if host == nil {
		return ""
	}
	return host.HostID()
}

var _ core.WalletClient = (*Client)(nil)
