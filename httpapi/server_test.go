package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	provisioning "github.com/goliatone/go-wallet-provisioning"
	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/goliatone/go-wallet-provisioning/walletclient/memory"
	"github.com/goliatone/go-wallet-provisioning/webhooks"
)

type fixedHost string

func (h fixedHost) HostID() string { return string(h) }

type recordingReader struct {
	mu      sync.Mutex
	filters []core.ActivityFilter
	page    core.ActivityPage
}

func (r *recordingReader) List(_ context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, filter)
	return r.page, nil
}

func TestRouter_GetActiveWalletID(t *testing.T) {
	router, _ := newTestRouter(t, memory.WithActiveWallet("wallet-1"))

	res := do(t, router, http.MethodGet, "/v1/wallet/active", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]string
	decode(t, res, &body)
	if body["wallet_id"] != "wallet-1" {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestRouter_TokenStatusNotFoundRendersEnvelope(t *testing.T) {
	router, _ := newTestRouter(t)

	res := do(t, router, http.MethodGet, "/v1/tokens/T-404/status", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.Code, res.Body.String())
	}
	var body errorBody
	decode(t, res, &body)
	if body.Error.TextCode != core.ErrorTokenStatus {
		t.Fatalf("expected token status error kind, got %#v", body.Error)
	}
	if body.Error.Metadata[core.MetadataStatusTag] != core.TagTokenNotFound {
		t.Fatalf("expected not found status tag, got %#v", body.Error.Metadata)
	}
}

func TestRouter_TokenStatusActive(t *testing.T) {
	router, _ := newTestRouter(t, memory.WithToken("T-1", core.TokenInfo{TokenState: int(core.TokenStateActive)}))

	res := do(t, router, http.MethodGet, "/v1/tokens/T-1/status", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]string
	decode(t, res, &body)
	if body["status"] != core.TagTokenStateActive || body["token_reference"] != "T-1" {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestRouter_TokenRoutesDecodeEscapedReferences(t *testing.T) {
	router, _ := newTestRouter(t, memory.WithToken("T/1", core.TokenInfo{
		IssuerTokenID: "I/1",
		TokenState:    int(core.TokenStateActive),
	}))

	res := do(t, router, http.MethodGet, "/v1/tokens/T%2F1/status", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]string
	decode(t, res, &body)
	if body["status"] != core.TagTokenStateActive || body["token_reference"] != "T/1" {
		t.Fatalf("unexpected body %#v", body)
	}

	res = do(t, router, http.MethodGet, "/v1/tokens/I%2F1/can-add", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var canAdd map[string]bool
	decode(t, res, &canAdd)
	if canAdd["can_add"] {
		t.Fatalf("expected existing issuer token to block add, got %#v", canAdd)
	}
}

func TestRouter_PushProvisionDispatches(t *testing.T) {
	router, wallet := newTestRouter(t)

	res := do(t, router, http.MethodPost, "/v1/push-provision",
		`{"opc":"opc-data","name":"Ada","last_digits":"4242","city":"Austin","country_code":"US"}`)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	pushes := wallet.Pushes()
	if len(pushes) != 1 {
		t.Fatalf("expected one push, got %d", len(pushes))
	}
	if string(pushes[0].OpaquePaymentCard) != "opc-data" || pushes[0].UserAddress.Locality != "Austin" {
		t.Fatalf("unexpected push payload %#v", pushes[0])
	}
}

func TestRouter_PushProvisionValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	res := do(t, router, http.MethodPost, "/v1/push-provision", `{"name":"Ada"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body errorBody
	decode(t, res, &body)
	if len(body.Error.Validation) == 0 || body.Error.Validation[0].Field != "opc" {
		t.Fatalf("expected opc validation error, got %#v", body.Error)
	}

	res = do(t, router, http.MethodPost, "/v1/push-provision", `{"opc":"x","unknown":1}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown field to be rejected, got %d", res.Code)
	}
}

func TestRouter_ActivityResultRecordsEntry(t *testing.T) {
	router, _ := newTestRouter(t)

	res := do(t, router, http.MethodPost, "/v1/activity-results",
		`{"request_code":3,"result_code":0,"metadata":{"opc":"leak"}}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var entry activityEntryJSON
	decode(t, res, &entry)
	if entry.Operation != "push_provision.completed" || entry.Status != string(core.ActivityStatusCancelled) {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry.Metadata["opc"] != core.RedactedValue {
		t.Fatalf("expected redacted opc, got %#v", entry.Metadata["opc"])
	}

	res = do(t, router, http.MethodPost, "/v1/activity-results", `{"request_code":99,"result_code":-1}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown request code to be bad input, got %d", res.Code)
	}
}

func TestRouter_ListActivityParsesFilter(t *testing.T) {
	reader := &recordingReader{page: core.ActivityPage{
		Items: []core.ActivityEntry{{Operation: "get_token_status", Status: core.ActivityStatusOK}},
		Total: 1,
	}}
	router := mustRouter(t, reader, memory.New())

	res := do(t, router, http.MethodGet,
		"/v1/activity?operation=get_token_status&status=ok&error_kind=TOKEN_STATUS_ERROR&page=2&per_page=5&from=2026-01-01T00:00:00Z", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var page activityPageJSON
	decode(t, res, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %#v", page)
	}
	if len(reader.filters) != 1 {
		t.Fatalf("expected one list call")
	}
	filter := reader.filters[0]
	if filter.Operation != "get_token_status" || filter.Status != core.ActivityStatusOK || filter.Page != 2 || filter.PerPage != 5 {
		t.Fatalf("unexpected filter %#v", filter)
	}
	if filter.ErrorKind != core.ErrorTokenStatus {
		t.Fatalf("expected error kind filter, got %q", filter.ErrorKind)
	}
	if filter.From == nil || filter.From.Year() != 2026 {
		t.Fatalf("expected from timestamp, got %#v", filter.From)
	}

	res = do(t, router, http.MethodGet, "/v1/activity?page=abc", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid page to fail, got %d", res.Code)
	}
	res = do(t, router, http.MethodGet, "/v1/activity?per_page=-1", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected negative per_page to fail, got %d", res.Code)
	}
}

func TestRouter_CanAddTokenAndHardwareID(t *testing.T) {
	router, _ := newTestRouter(t,
		memory.WithHardwareID("hw-7"),
		memory.WithToken("T-1", core.TokenInfo{IssuerTokenID: "I-1"}),
	)

	res := do(t, router, http.MethodGet, "/v1/tokens/I-1/can-add", "")
	var canAdd map[string]bool
	decode(t, res, &canAdd)
	if res.Code != http.StatusOK || canAdd["can_add"] {
		t.Fatalf("expected existing token to block add, got %d %#v", res.Code, canAdd)
	}

	res = do(t, router, http.MethodGet, "/v1/device/hardware-id", "")
	var hw map[string]string
	decode(t, res, &hw)
	if hw["hardware_id"] != "hw-7" {
		t.Fatalf("unexpected hardware id %#v", hw)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	wallet := memory.New()
	svc := newService(t, wallet)
	facade, err := provisioning.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("provisioning_operations_total 1\n"))
	})
	router, err := NewRouter(facade, WithMetricsHandler(metrics))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	if res := do(t, router, http.MethodGet, "/healthz", ""); res.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", res.Code)
	}
	res := do(t, router, http.MethodGet, "/metrics", "")
	if !strings.Contains(res.Body.String(), "provisioning_operations_total") {
		t.Fatalf("expected metrics body, got %q", res.Body.String())
	}
}

func TestNewRouter_RequiresFacade(t *testing.T) {
	if _, err := NewRouter(nil); err == nil {
		t.Fatalf("expected nil facade to fail")
	}
}

func newTestRouter(t *testing.T, opts ...memory.Option) (http.Handler, *memory.Wallet) {
	t.Helper()
	wallet := memory.New(opts...)
	return mustRouter(t, nil, wallet), wallet
}

func mustRouter(t *testing.T, reader *recordingReader, wallet *memory.Wallet) http.Handler {
	t.Helper()
	svc := newService(t, wallet)
	var facadeOpts []provisioning.FacadeOption
	if reader != nil {
		facadeOpts = append(facadeOpts, provisioning.WithActivityReader(reader))
	}
	facade, err := provisioning.NewFacade(svc, facadeOpts...)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	router, err := NewRouter(facade)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func newService(t *testing.T, wallet core.WalletClient) *core.Service {
	t.Helper()
	svc, err := core.NewService(core.Config{},
		core.WithWalletClient(wallet),
		core.WithUIHostProvider(core.UIHostProviderFunc(func() core.UIHost { return fixedHost("main") })),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(res.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
}

func TestRouter_WebhookActivityResult(t *testing.T) {
	wallet := memory.New()
	svc := newService(t, wallet)
	facade, err := provisioning.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	template := webhooks.NewWalletAgentTemplate("agent-a", "hook-secret")
	processor := template.NewProcessor(webhooks.NewMemoryLedger(), webhooks.NewActivityResultHandler(svc))
	router, err := NewRouter(facade, WithWebhookProcessor(template.Source, processor))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	body := `{"request_code":3,"result_code":-1,"token_reference":"T-9"}`
	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/activity-results", strings.NewReader(body))
		req.Header.Set(webhooks.HeaderSignature, signature)
		req.Header.Set(webhooks.HeaderDeliveryID, "delivery-1")
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res
	}

	if res := send(webhooks.Sign("wrong", []byte(body))); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d: %s", res.Code, res.Body.String())
	}
	res := send(webhooks.Sign("hook-secret", []byte(body)))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	res = send(webhooks.Sign("hook-secret", []byte(body)))
	if res.Code != http.StatusOK {
		t.Fatalf("expected deduped 200, got %d: %s", res.Code, res.Body.String())
	}
	var payload map[string]any
	decode(t, res, &payload)
	metadata, _ := payload["metadata"].(map[string]any)
	if metadata["deduped"] != true {
		t.Fatalf("expected deduped metadata, got %#v", payload)
	}

	anonymous := httptest.NewRequest(http.MethodPost, "/v1/webhooks/activity-results", strings.NewReader(body))
	anonymous.Header.Set(webhooks.HeaderSignature, webhooks.Sign("hook-secret", []byte(body)))
	res = httptest.NewRecorder()
	router.ServeHTTP(res, anonymous)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a delivery without id, got %d: %s", res.Code, res.Body.String())
	}
}

func TestRouter_WebhookRouteAbsentWithoutProcessor(t *testing.T) {
	router, _ := newTestRouter(t)
	res := do(t, router, http.MethodPost, "/v1/webhooks/activity-results", "{}")
	if res.Code != http.StatusNotFound && res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected webhook route to be unmounted, got %d", res.Code)
	}
}
