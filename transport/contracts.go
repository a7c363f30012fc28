package transport

import (
	"context"
	"time"
)

// Request describes one call to the wallet agent.
type Request struct {
	Method               string
	URL                  string
	Query                map[string]string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type Adapter interface {
	Kind() string
	Do(ctx context.Context, req Request) (Response, error)
}
