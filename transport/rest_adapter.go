package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const KindREST = "rest"

const (
	defaultRESTTimeout       = 30 * time.Second
	defaultRESTResponseLimit = 10 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type RESTOption func(*RESTAdapter)

// WithBaseURL resolves relative request URLs against the wallet agent root.
func WithBaseURL(base string) RESTOption {
	return func(a *RESTAdapter) {
		a.base = strings.TrimSpace(base)
	}
}

// WithHeader sends name on every call unless the request sets it.
func WithHeader(name, value string) RESTOption {
	return func(a *RESTAdapter) {
		if name = strings.TrimSpace(name); name != "" {
			a.headers.Set(name, strings.TrimSpace(value))
		}
	}
}

// WithResponseLimit caps how many body bytes are read from the agent.
func WithResponseLimit(limit int64) RESTOption {
	return func(a *RESTAdapter) {
		if limit > 0 {
			a.limit = limit
		}
	}
}

// RESTAdapter executes wallet agent calls over HTTP.
type RESTAdapter struct {
	client  HTTPDoer
	base    string
	headers http.Header
	limit   int64
}

func NewRESTAdapter(client HTTPDoer, opts ...RESTOption) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTTimeout}
	}
	a := &RESTAdapter{client: client, headers: http.Header{}, limit: defaultRESTResponseLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.client == nil {
		return Response{}, fail(StageSetup, nil, "transport: rest adapter requires an http client", map[string]any{"adapter": KindREST})
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := a.target(req)
	if err != nil {
		return Response{}, fail(StageURL, err, "transport: invalid request url", map[string]any{"url": strings.TrimSpace(req.URL)})
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	call := map[string]any{"method": method, "url": target}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fail(StageURL, err, "transport: create http request", call)
	}
	httpReq.Header = a.headers.Clone()
	for name, value := range req.Headers {
		if name = strings.TrimSpace(name); name != "" {
			httpReq.Header.Set(name, strings.TrimSpace(value))
		}
	}

	startedAt := time.Now()
	httpRes, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, fail(StageSend, err, "transport: execute http request", call)
	}
	defer httpRes.Body.Close()

	limit := a.limit
	if req.MaxResponseBodyBytes > 0 {
		limit = req.MaxResponseBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return Response{}, fail(StageRead, err, "transport: read response body", map[string]any{"status_code": httpRes.StatusCode})
	}
	if int64(len(body)) > limit {
		return Response{}, fail(StageRead, nil,
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			map[string]any{"status_code": httpRes.StatusCode, "response_limit_b": limit},
		)
	}

	headers := make(map[string]string, len(httpRes.Header))
	for name, values := range httpRes.Header {
		headers[name] = strings.Join(values, ",")
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    headers,
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// target resolves req.URL against the base and merges req.Query into it.
// Escaped path separators such as %2F inside a token reference are kept.
func (a *RESTAdapter) target(req Request) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return "", err
	}
	resolved := ref
	if a.base != "" && !ref.IsAbs() {
		root, err := url.Parse(strings.TrimRight(a.base, "/") + "/")
		if err != nil {
			return "", err
		}
		resolved = root.ResolveReference(&url.URL{
			Path:     strings.TrimLeft(ref.Path, "/"),
			RawPath:  strings.TrimLeft(ref.RawPath, "/"),
			RawQuery: ref.RawQuery,
		})
	}
	if resolved.String() == "" {
		return "", fmt.Errorf("request url is required")
	}

	query := resolved.Query()
	for key, value := range req.Query {
		if key = strings.TrimSpace(key); key != "" {
			query.Set(key, strings.TrimSpace(value))
		}
	}
	resolved.RawQuery = query.Encode()
	return resolved.String(), nil
}

var _ Adapter = (*RESTAdapter)(nil)
