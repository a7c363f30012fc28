// Package httpapi exposes the provisioning operations as JSON endpoints. Each
// handler validates its message and runs the matching command or query from
// the provisioning facade.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	provisioning "github.com/goliatone/go-wallet-provisioning"
	provisioningcommand "github.com/goliatone/go-wallet-provisioning/command"
	"github.com/goliatone/go-wallet-provisioning/core"
	provisioningquery "github.com/goliatone/go-wallet-provisioning/query"
	"github.com/goliatone/go-wallet-provisioning/webhooks"
)

const maxRequestBodyBytes = 1 << 20

type Option func(*server)

func WithLogger(logger glog.Logger) Option {
	return func(s *server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *server) { s.metrics = handler }
}

// WithRequestTimeout bounds how long a handler waits for the wallet.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithWebhookProcessor mounts a signed callback endpoint at
// /v1/webhooks/activity-results.
func WithWebhookProcessor(source string, processor *webhooks.Processor) Option {
	return func(s *server) {
		s.webhook = processor
		s.webhookSource = strings.TrimSpace(source)
	}
}

type server struct {
	commands      provisioning.Commands
	queries       provisioning.Queries
	logger        glog.Logger
	metrics       http.Handler
	timeout       time.Duration
	webhook       *webhooks.Processor
	webhookSource string
}

func NewRouter(facade *provisioning.Facade, opts ...Option) (http.Handler, error) {
	if facade == nil {
		return nil, fmt.Errorf("httpapi: facade is required")
	}
	s := &server{
		commands: facade.Commands(),
		queries:  facade.Queries(),
		logger:   glog.Nop(),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/wallet/active", s.getActiveWalletID)
		r.Post("/wallet", s.createWallet)
		r.Get("/device/hardware-id", s.getStableHardwareID)
		r.Get("/tokens/{reference}/status", s.getTokenStatus)
		r.Post("/tokens/{reference}/refresh", s.refreshTokenStatus)
		r.Get("/tokens/{issuerTokenID}/can-add", s.canAddToken)
		r.Post("/push-provision", s.pushProvision)
		r.Post("/activity-results", s.handleActivityResult)
		r.Get("/activity", s.listActivity)
		if s.webhook != nil {
			r.Post("/webhooks/activity-results", s.receiveWebhook)
		}
	})
	return r, nil
}

func (s *server) getActiveWalletID(w http.ResponseWriter, r *http.Request) {
	msg := provisioningquery.ActiveWalletIDMessage{}
	id, err := runQuery(r.Context(), msg, s.queries.ActiveWalletID.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"wallet_id": id})
}

func (s *server) getStableHardwareID(w http.ResponseWriter, r *http.Request) {
	msg := provisioningquery.StableHardwareIDMessage{}
	id, err := runQuery(r.Context(), msg, s.queries.StableHardwareID.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hardware_id": id})
}

func (s *server) getTokenStatus(w http.ResponseWriter, r *http.Request) {
	value, err := pathParam(r, "reference")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := provisioningquery.TokenStatusMessage{TokenReference: value}
	tag, err := runQuery(r.Context(), msg, s.queries.TokenStatus.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token_reference": msg.TokenReference,
		"status":          tag,
	})
}

func (s *server) canAddToken(w http.ResponseWriter, r *http.Request) {
	value, err := pathParam(r, "issuerTokenID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := provisioningquery.CanAddTokenMessage{IssuerTokenID: value}
	ok, err := runQuery(r.Context(), msg, s.queries.CanAddToken.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_add": ok})
}

func (s *server) listActivity(w http.ResponseWriter, r *http.Request) {
	filter, err := activityFilterFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := runQuery(r.Context(), provisioningquery.ListActivityMessage{Filter: filter}, s.queries.ListActivity.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityPageResponse(page))
}

func (s *server) createWallet(w http.ResponseWriter, r *http.Request) {
	dispatched, err := runCommand[bool](r.Context(), provisioningcommand.CreateWalletMessage{}, s.commands.CreateWallet.Execute)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"dispatched": dispatched})
}

type pushProvisionBody struct {
	OPC         string `json:"opc"`
	Name        string `json:"name"`
	LastDigits  string `json:"last_digits"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	CountryCode string `json:"country_code"`
	PostalCode  string `json:"postal_code"`
	Phone       string `json:"phone"`
}

func (s *server) pushProvision(w http.ResponseWriter, r *http.Request) {
	var body pushProvisionBody
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	msg := provisioningcommand.PushProvisionMessage{Request: core.ProvisioningRequest(body)}
	dispatched, err := runCommand[bool](r.Context(), msg, s.commands.PushProvision.Execute)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"dispatched": dispatched})
}

type activityResultBody struct {
	RequestCode    int            `json:"request_code"`
	ResultCode     int            `json:"result_code"`
	TokenReference string         `json:"token_reference"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *server) handleActivityResult(w http.ResponseWriter, r *http.Request) {
	var body activityResultBody
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	msg := provisioningcommand.HandleActivityResultMessage{Result: core.ActivityResult(body)}
	entry, err := runCommand[core.ActivityEntry](r.Context(), msg, s.commands.HandleActivityResult.Execute)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityEntryResponse(entry))
}

func (s *server) refreshTokenStatus(w http.ResponseWriter, r *http.Request) {
	value, err := pathParam(r, "reference")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := provisioningcommand.RefreshTokenStatusMessage{TokenReference: value}
	tag, err := runCommand[string](r.Context(), msg, s.commands.RefreshTokenStatus.Execute)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token_reference": msg.TokenReference,
		"status":          tag,
	})
}

func (s *server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		s.fail(w, r, badRequest("body", "request body too large"))
		return
	}
	headers := make(map[string]string, len(r.Header))
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}
	source := s.webhookSource
	if source == "" {
		source = "wallet-agent"
	}
	result, err := s.webhook.Process(r.Context(), webhooks.Request{
		Source:  source,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		status := http.StatusServiceUnavailable
		switch {
		case errors.Is(err, webhooks.ErrVerification):
			status = http.StatusUnauthorized
		case errors.Is(err, webhooks.ErrMissingDeliveryID):
			status = http.StatusBadRequest
		}
		s.logger.Warn("webhook delivery failed",
			"status", status,
			"error", err.Error(),
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeJSON(w, status, map[string]any{"accepted": false, "error": err.Error()})
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"accepted": result.Accepted, "metadata": result.Metadata})
}

// pathParam returns the decoded route parameter. chi matches on the escaped
// path, so a reference such as "T%2F1" arrives still encoded.
func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", badRequest(name, "must be a valid path segment")
	}
	return value, nil
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := envelopeFor(err)
	fields := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"text_code", body.Error.TextCode,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("http request failed", fields...)
	} else {
		s.logger.Warn("http request rejected", fields...)
	}
	writeJSON(w, status, body)
}

type validatedMessage interface {
	Validate() error
}

// runQuery validates msg and runs a go-command Querier's Query method.
func runQuery[M validatedMessage, R any](ctx context.Context, msg M, query func(context.Context, M) (R, error)) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	return query(ctx, msg)
}

// runCommand runs a go-command Commander's Execute method and returns the
// value it stored in the result collector.
func runCommand[R any, M validatedMessage](ctx context.Context, msg M, execute func(context.Context, M) error) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	value, _ := collector.Load()
	return value, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return badRequest("body", "invalid json body: "+err.Error())
	}
	return nil
}

func activityFilterFromQuery(r *http.Request) (core.ActivityFilter, error) {
	values := r.URL.Query()
	filter := core.ActivityFilter{
		Operation:      strings.TrimSpace(values.Get("operation")),
		Status:         core.ActivityStatus(strings.TrimSpace(values.Get("status"))),
		TokenReference: strings.TrimSpace(values.Get("token_reference")),
		ErrorKind:      strings.TrimSpace(values.Get("error_kind")),
	}
	var err error
	if filter.Page, err = intParam(values.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.PerPage, err = intParam(values.Get("per_page"), "per_page"); err != nil {
		return filter, err
	}
	if filter.From, err = timeParam(values.Get("from"), "from"); err != nil {
		return filter, err
	}
	if filter.To, err = timeParam(values.Get("to"), "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(field, field+" must be an integer")
	}
	return value, nil
}

func timeParam(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, badRequest(field, field+" must be an RFC3339 timestamp")
	}
	return &value, nil
}
