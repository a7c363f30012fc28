package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestDoJSON_EncodesPayloadAndDecodesSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer server.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	res, err := DoJSON(context.Background(), NewRESTAdapter(server.Client()), Request{
		Method: http.MethodPost,
		URL:    server.URL,
	}, map[string]string{"name": "wallet"}, &out)
	if err != nil {
		t.Fatalf("do json: %v", err)
	}
	if res.StatusCode != http.StatusOK || out.Echo != "wallet" {
		t.Fatalf("unexpected result %d %#v", res.StatusCode, out)
	}
}

func TestDoJSON_NonSuccessSkipsDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code":15003}`))
	}))
	defer server.Close()

	var out map[string]any
	res, err := DoJSON(context.Background(), NewRESTAdapter(server.Client()), Request{URL: server.URL}, nil, &out)
	if err != nil {
		t.Fatalf("expected no error for non-2xx, got %v", err)
	}
	if res.StatusCode != http.StatusNotFound || out != nil {
		t.Fatalf("unexpected result %d %#v", res.StatusCode, out)
	}
}

func TestDoJSON_DecodeFailureIsRich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	var out map[string]any
	_, err := DoJSON(context.Background(), NewRESTAdapter(server.Client()), Request{URL: server.URL}, nil, &out)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ErrorDecodeFailure {
		t.Fatalf("expected decode failure envelope, got %v", err)
	}
}

func TestDoJSON_RequiresAdapter(t *testing.T) {
	if _, err := DoJSON(context.Background(), nil, Request{}, nil, nil); err == nil {
		t.Fatalf("expected missing adapter to fail")
	}
}
