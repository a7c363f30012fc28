package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Fixed network and token service provider pair for push provisioning.
const (
	CardNetworkVisa   = 4
	TokenProviderVisa = 4
)

// Request codes tagging UI flows started on the host so their results can be
// routed back through HandleActivityResult.
const (
	RequestCodeTokenize           = 1
	RequestCodePushTokenize       = 3
	RequestCodeCreateWallet       = 4
	RequestCodeSetDefaultPayments = 5
)

// Result codes reported by the platform when a UI flow finishes.
const (
	ResultCodeOK       = -1
	ResultCodeCanceled = 0
)

// Completion receives the outcome of an asynchronous wallet call. Clients
// invoke it exactly once, on any goroutine.
type Completion[T any] func(T, error)

// UIHost is the opaque foreground UI surface a wallet flow is launched from.
type UIHost interface {
	HostID() string
}

type UIHostProvider interface {
	CurrentHost() UIHost
}

type UIHostProviderFunc func() UIHost

func (fn UIHostProviderFunc) CurrentHost() UIHost {
	if fn == nil {
		return nil
	}
	return fn()
}

type TokenStatus struct {
	TokenState  int
	IsSelected  bool
	RawMetadata map[string]any
}

type TokenInfo struct {
	IssuerTokenID  string
	IssuerName     string
	DisplayName    string
	TokenState     int
	Network        int
	TokenProvider  int
	FPANLastFour   string
	PortfolioName  string
	ClientTokenRef string
}

type UserAddress struct {
	Name               string `json:"name"`
	Address1           string `json:"address1"`
	Locality           string `json:"locality"`
	AdministrativeArea string `json:"administrative_area"`
	CountryCode        string `json:"country_code"`
	PostalCode         string `json:"postal_code"`
	PhoneNumber        string `json:"phone_number"`
}

// PushTokenizeRequest is the payload handed to the wallet client.
type PushTokenizeRequest struct {
	OpaquePaymentCard    []byte      `json:"opaque_payment_card"`
	Network              int         `json:"network"`
	TokenServiceProvider int         `json:"token_service_provider"`
	DisplayName          string      `json:"display_name"`
	LastDigits           string      `json:"last_digits"`
	UserAddress          UserAddress `json:"user_address"`
}

// ProvisioningRequest carries the host-supplied card and address fields.
// Values are passed through unvalidated.
type ProvisioningRequest struct {
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

// WalletClient is the external wallet service. Query calls complete through
// the supplied Completion; UI calls only report whether dispatch succeeded.
type WalletClient interface {
	GetActiveWalletID(ctx context.Context, done Completion[string])
	CreateWallet(ctx context.Context, host UIHost, requestCode int) error
	GetStableHardwareID(ctx context.Context, done Completion[string])
	GetTokenStatus(ctx context.Context, tokenServiceProvider int, tokenReference string, done Completion[TokenStatus])
	ListTokens(ctx context.Context, done Completion[[]TokenInfo])
	PushTokenize(ctx context.Context, host UIHost, req PushTokenizeRequest, requestCode int) error
}

type HardwareIDCache interface {
	GetOrFetch(ctx context.Context, fetch func(context.Context) (string, error)) (string, error)
}

// ActivityResult is a UI flow result delivered out of band by the host.
type ActivityResult struct {
	RequestCode    int
	ResultCode     int
	TokenReference string
	Metadata       map[string]any
}

type CompletionListener interface {
	OnActivityResult(ctx context.Context, result ActivityResult, entry ActivityEntry)
}

type CompletionListenerFunc func(ctx context.Context, result ActivityResult, entry ActivityEntry)

func (fn CompletionListenerFunc) OnActivityResult(ctx context.Context, result ActivityResult, entry ActivityEntry) {
	if fn != nil {
		fn(ctx, result, entry)
	}
}

type ActivityStatus string

const (
	ActivityStatusOK        ActivityStatus = "ok"
	ActivityStatusFailed    ActivityStatus = "failed"
	ActivityStatusCancelled ActivityStatus = "cancelled"
	ActivityStatusSubmitted ActivityStatus = "submitted"
)

// ActivityEntry records one operation outcome. It never holds card or
// address data.
type ActivityEntry struct {
	ID             string
	Operation      string
	Status         ActivityStatus
	StatusTag      string
	ErrorKind      string
	TokenReference string
	RequestCode    int
	DurationMS     int64
	Metadata       map[string]any
	CreatedAt      time.Time
}

type ActivityFilter struct {
	Operation      string
	Status         ActivityStatus
	TokenReference string
	ErrorKind      string
	From           *time.Time
	To             *time.Time
	Page           int
	PerPage        int
}

type ActivityPage struct {
	Items      []ActivityEntry
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

type ActivityRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type ActivityReader interface {
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}

type ActivityRetentionPruner interface {
	Prune(ctx context.Context, policy ActivityRetentionPolicy) (int, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// ProvisioningService is the host-facing operation set.
type ProvisioningService interface {
	GetActiveWalletID(ctx context.Context) *Promise[string]
	CreateWallet(ctx context.Context) *Promise[bool]
	GetStableHardwareID(ctx context.Context) *Promise[string]
	GetTokenStatus(ctx context.Context, tokenReference string) *Promise[string]
	CanAddToken(ctx context.Context, issuerTokenID string) *Promise[bool]
	PushProvision(ctx context.Context, req ProvisioningRequest) *Promise[bool]
	HandleActivityResult(ctx context.Context, result ActivityResult) (ActivityEntry, error)
}
