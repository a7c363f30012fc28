package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestRESTAdapter_ResolvesBaseURLAndMergesHeadersAndQuery(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotTrace, gotMethod string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("tsp")
		gotAuth = r.Header.Get("Authorization")
		gotTrace = r.Header.Get("X-Trace")
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(),
		WithBaseURL(server.URL+"/agent/"),
		WithHeader("Authorization", "Bearer t"),
		WithHeader("X-Trace", "default"),
	)

	res, err := adapter.Do(context.Background(), Request{
		Method:  "post",
		URL:     "/v1/tokens/T-1",
		Query:   map[string]string{"tsp": " 4 ", " ": "skip"},
		Headers: map[string]string{"X-Trace": "abc"},
		Body:    []byte(`{"a":1}`),
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected upper-cased method, got %q", gotMethod)
	}
	if gotPath != "/agent/v1/tokens/T-1" {
		t.Fatalf("expected base url resolution, got %q", gotPath)
	}
	if gotQuery != "4" || gotAuth != "Bearer t" || gotTrace != "abc" {
		t.Fatalf("unexpected query/headers %q %q %q", gotQuery, gotAuth, gotTrace)
	}
	if string(gotBody) != `{"a":1}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if res.StatusCode != http.StatusAccepted || string(res.Body) != "ok" {
		t.Fatalf("unexpected response %#v", res)
	}
	if res.Headers["X-Multi"] != "a,b" {
		t.Fatalf("expected flattened headers, got %q", res.Headers["X-Multi"])
	}
	if res.Metadata["kind"] != KindREST {
		t.Fatalf("expected kind metadata, got %#v", res.Metadata)
	}
}

func TestRESTAdapter_KeepsEscapedPathSegments(t *testing.T) {
	var gotEscaped, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEscaped = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("tsp")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), WithBaseURL(server.URL+"/agent"))

	if _, err := adapter.Do(context.Background(), Request{
		Method: http.MethodGet,
		URL:    "/v1/tokens/" + url.PathEscape("a/b+c=="),
		Query:  map[string]string{"tsp": "4"},
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotEscaped != "/agent/v1/tokens/a%2Fb+c==" {
		t.Fatalf("expected escaped segment to survive, got %q", gotEscaped)
	}
	if gotQuery != "4" {
		t.Fatalf("expected query to survive, got %q", gotQuery)
	}
}

func TestRESTAdapter_AbsoluteURLIgnoresBase(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/direct" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), WithBaseURL("http://invalid.example/agent"))
	if _, err := adapter.Do(context.Background(), Request{URL: server.URL + "/direct"}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one hit, got %d", hits)
	}
}

func TestRESTAdapter_RequestLimitOverridesAdapterLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("123456"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), WithResponseLimit(4))
	if _, err := adapter.Do(context.Background(), Request{URL: server.URL}); err == nil {
		t.Fatalf("expected adapter limit to reject a 6 byte body")
	}
	res, err := adapter.Do(context.Background(), Request{URL: server.URL, MaxResponseBodyBytes: 8})
	if err != nil {
		t.Fatalf("expected request limit to allow the body, got %v", err)
	}
	if string(res.Body) != "123456" {
		t.Fatalf("unexpected body %q", res.Body)
	}
}

func TestRESTAdapter_DefaultHeadersAreNotShared(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X-Trace"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), WithHeader("X-Trace", "default"))
	if _, err := adapter.Do(context.Background(), Request{URL: server.URL, Headers: map[string]string{"X-Trace": "first"}}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := adapter.Do(context.Background(), Request{URL: server.URL}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(seen) != 2 || seen[0] != "first" || seen[1] != "default" {
		t.Fatalf("expected per-call override only, got %v", seen)
	}
}
