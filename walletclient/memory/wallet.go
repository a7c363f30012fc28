// Package memory provides a simulated wallet service for host application
// tests and local runs of the bridge.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/google/uuid"
)

// Operation names accepted by FailNext.
const (
	OpGetActiveWalletID   = "get_active_wallet_id"
	OpCreateWallet        = "create_wallet"
	OpGetStableHardwareID = "get_stable_hardware_id"
	OpGetTokenStatus      = "get_token_status"
	OpListTokens          = "list_tokens"
	OpPushTokenize        = "push_tokenize"
)

// ActivityResultFunc receives the simulated outcome of a UI flow, the way a
// host would forward it to Service.HandleActivityResult.
type ActivityResultFunc func(ctx context.Context, result core.ActivityResult)

type Wallet struct {
	mu sync.Mutex

	walletID         string
	hardwareID       string
	createOnDispatch bool
	approvePushes    bool
	tokens           map[string]core.TokenInfo
	selected         string
	pushes           []core.PushTokenizeRequest
	failures         map[string][]*core.APIError
	onResult         ActivityResultFunc
	async            bool
}

type Option func(*Wallet)

func WithActiveWallet(walletID string) Option {
	return func(w *Wallet) { w.walletID = strings.TrimSpace(walletID) }
}

func WithHardwareID(hardwareID string) Option {
	return func(w *Wallet) { w.hardwareID = strings.TrimSpace(hardwareID) }
}

// WithCreateOnDispatch makes CreateWallet install a wallet immediately, so
// the resolver's repeated lookup succeeds.
func WithCreateOnDispatch(enabled bool) Option {
	return func(w *Wallet) { w.createOnDispatch = enabled }
}

// WithApprovePushes makes PushTokenize add an active token and report an OK
// activity result.
func WithApprovePushes(enabled bool) Option {
	return func(w *Wallet) { w.approvePushes = enabled }
}

func WithToken(reference string, info core.TokenInfo) Option {
	return func(w *Wallet) {
		if strings.TrimSpace(reference) != "" {
			w.tokens[strings.TrimSpace(reference)] = info
		}
	}
}

func WithActivityResults(fn ActivityResultFunc) Option {
	return func(w *Wallet) { w.onResult = fn }
}

// WithAsync delivers query completions on a new goroutine instead of inline.
func WithAsync(enabled bool) Option {
	return func(w *Wallet) { w.async = enabled }
}

func New(opts ...Option) *Wallet {
	w := &Wallet{
		hardwareID:       "hw-" + uuid.NewString(),
		createOnDispatch: true,
		tokens:           map[string]core.TokenInfo{},
		failures:         map[string][]*core.APIError{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// FailNext queues a status failure for the next call of operation.
func (w *Wallet) FailNext(operation string, code core.StatusCode, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[operation] = append(w.failures[operation], core.NewAPIError(code, message))
}

func (w *Wallet) SetTokenState(reference string, state core.TokenState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, ok := w.tokens[reference]
	if !ok {
		return fmt.Errorf("memory: unknown token %q", reference)
	}
	info.TokenState = int(state)
	w.tokens[reference] = info
	return nil
}

// Pushes returns the payloads received by PushTokenize.
func (w *Wallet) Pushes() []core.PushTokenizeRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.PushTokenizeRequest(nil), w.pushes...)
}

func (w *Wallet) GetActiveWalletID(_ context.Context, done core.Completion[string]) {
	w.mu.Lock()
	err := w.popFailureLocked(OpGetActiveWalletID)
	walletID := w.walletID
	w.mu.Unlock()
	if err == nil && walletID == "" {
		err = core.NewAPIError(core.StatusNoActiveWallet, "no active wallet")
	}
	w.complete(func() { done(walletID, err) })
}

func (w *Wallet) CreateWallet(ctx context.Context, host core.UIHost, requestCode int) error {
	if host == nil {
		return fmt.Errorf("memory: ui host is required")
	}
	w.mu.Lock()
	if err := w.popFailureLocked(OpCreateWallet); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.createOnDispatch && w.walletID == "" {
		w.walletID = "wallet-" + uuid.NewString()
	}
	resultCode := core.ResultCodeOK
	if w.walletID == "" {
		resultCode = core.ResultCodeCanceled
	}
	w.mu.Unlock()

	w.report(ctx, core.ActivityResult{RequestCode: requestCode, ResultCode: resultCode})
	return nil
}

func (w *Wallet) GetStableHardwareID(_ context.Context, done core.Completion[string]) {
	w.mu.Lock()
	err := w.popFailureLocked(OpGetStableHardwareID)
	id := w.hardwareID
	w.mu.Unlock()
	w.complete(func() { done(id, err) })
}

func (w *Wallet) GetTokenStatus(_ context.Context, _ int, tokenReference string, done core.Completion[core.TokenStatus]) {
	w.mu.Lock()
	err := w.popFailureLocked(OpGetTokenStatus)
	info, ok := w.tokens[tokenReference]
	selected := w.selected == tokenReference
	w.mu.Unlock()
	if err == nil && !ok {
		err = core.NewAPIError(core.StatusTokenNotFound, "token not found")
	}
	status := core.TokenStatus{}
	if err == nil {
		status = core.TokenStatus{TokenState: info.TokenState, IsSelected: selected}
	}
	w.complete(func() { done(status, err) })
}

func (w *Wallet) ListTokens(_ context.Context, done core.Completion[[]core.TokenInfo]) {
	w.mu.Lock()
	err := w.popFailureLocked(OpListTokens)
	refs := make([]string, 0, len(w.tokens))
	for ref := range w.tokens {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	tokens := make([]core.TokenInfo, 0, len(refs))
	for _, ref := range refs {
		tokens = append(tokens, w.tokens[ref])
	}
	w.mu.Unlock()
	if err != nil {
		tokens = nil
	}
	w.complete(func() { done(tokens, err) })
}

func (w *Wallet) PushTokenize(ctx context.Context, host core.UIHost, req core.PushTokenizeRequest, requestCode int) error {
	if host == nil {
		return fmt.Errorf("memory: ui host is required")
	}
	w.mu.Lock()
	if err := w.popFailureLocked(OpPushTokenize); err != nil {
		w.mu.Unlock()
		return err
	}
	w.pushes = append(w.pushes, req)
	if !w.approvePushes {
		w.mu.Unlock()
		return nil
	}
	reference := "tok-" + uuid.NewString()
	w.tokens[reference] = core.TokenInfo{
		IssuerTokenID:  reference,
		DisplayName:    req.DisplayName,
		TokenState:     int(core.TokenStateActive),
		Network:        req.Network,
		TokenProvider:  req.TokenServiceProvider,
		FPANLastFour:   req.LastDigits,
		ClientTokenRef: reference,
	}
	if w.selected == "" {
		w.selected = reference
	}
	w.mu.Unlock()

	w.report(ctx, core.ActivityResult{
		RequestCode:    requestCode,
		ResultCode:     core.ResultCodeOK,
		TokenReference: reference,
	})
	return nil
}

func (w *Wallet) popFailureLocked(operation string) error {
	queue := w.failures[operation]
	if len(queue) == 0 {
		return nil
	}
	w.failures[operation] = queue[1:]
	return queue[0]
}

func (w *Wallet) complete(fn func()) {
	if w.async {
		go fn()
		return
	}
	fn()
}

func (w *Wallet) report(ctx context.Context, result core.ActivityResult) {
	if w.onResult == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	onResult := w.onResult
	go onResult(context.WithoutCancel(ctx), result)
}

var _ core.WalletClient = (*Wallet)(nil)
