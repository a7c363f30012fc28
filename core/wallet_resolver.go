package core

import "context"

// GetActiveWalletID resolves the active wallet id. When the wallet service
// reports no active wallet, wallet creation is started without waiting for
// it and the lookup is repeated once; a second failure is terminal.
//
// The repeated lookup may run before the creation flow finishes. That race is
// kept on purpose: creation reports its outcome through HandleActivityResult.
func (s *Service) GetActiveWalletID(ctx context.Context) *Promise[string] {
	p := NewPromise[string]()
	if s == nil || s.client == nil {
		p.Reject(newInternalError(ErrWalletClientRequired.Error()))
		return p
	}
	op := s.begin(ctx, "get_active_wallet_id", nil)
	s.queryActiveWallet(op, p, 1)
	return p
}

func (s *Service) queryActiveWallet(op *operation, p *Promise[string], attempt int) {
	op.fields["attempt"] = attempt
	dispatch(s, op, p, func() {
		s.client.GetActiveWalletID(op.ctx, guard(s, op, p, func(walletID string, err error) {
			if err == nil {
				resolve(s, op, p, walletID)
				return
			}
			if hasStatus(err, StatusNoActiveWallet) {
				if attempt == 1 {
					s.startWalletCreation(op)
					s.queryActiveWallet(op, p, attempt+1)
					return
				}
				failure := operationFailure(ErrorActiveWallet, op.name, activeWalletMessage(err), err)
				withReason(failure, ErrorReasonRetryLimit)
				reject(s, op, p, failure)
				return
			}
			reject(s, op, p, operationFailure(ErrorActiveWallet, op.name, activeWalletMessage(err), err))
		}))
	})
}

// startWalletCreation fires the platform wallet creation flow. Its outcome is
// not observed here.
func (s *Service) startWalletCreation(op *operation) {
	op.fields["wallet_creation_started"] = true
	host := s.currentHost()
	if err := s.client.CreateWallet(op.ctx, host, RequestCodeCreateWallet); err != nil {
		s.logWarn(op.ctx, "wallet creation dispatch failed", map[string]any{
			"operation": op.name,
			"error":     err.Error(),
		})
		s.recordCounter(op.ctx, MetricWalletCreations, 1, map[string]string{"trigger": "no_active_wallet", "status": "failure"})
		return
	}
	s.recordCounter(op.ctx, MetricWalletCreations, 1, map[string]string{"trigger": "no_active_wallet", "status": "success"})
}

// CreateWallet launches the wallet creation flow on its own and resolves true
// once the flow is dispatched.
func (s *Service) CreateWallet(ctx context.Context) *Promise[bool] {
	p := NewPromise[bool]()
	if s == nil || s.client == nil {
		p.Reject(newInternalError(ErrWalletClientRequired.Error()))
		return p
	}
	op := s.begin(ctx, "create_wallet", map[string]any{"request_code": RequestCodeCreateWallet})
	op.requestCode = RequestCodeCreateWallet
	op.successStatus = ActivityStatusSubmitted
	dispatch(s, op, p, func() {
		host := s.currentHost()
		if host == nil {
			failure := operationFailure(ErrorActiveWallet, op.name, "Could not create wallet: no ui host available", nil)
			withReason(failure, ErrorReasonNoUIHost)
			reject(s, op, p, failure)
			return
		}
		if err := s.client.CreateWallet(op.ctx, host, RequestCodeCreateWallet); err != nil {
			s.recordCounter(op.ctx, MetricWalletCreations, 1, map[string]string{"trigger": "explicit", "status": "failure"})
			failure := operationFailure(ErrorActiveWallet, op.name, "Could not create wallet", err)
			withReason(failure, ErrorReasonDispatch)
			reject(s, op, p, failure)
			return
		}
		s.recordCounter(op.ctx, MetricWalletCreations, 1, map[string]string{"trigger": "explicit", "status": "success"})
		resolve(s, op, p, true)
	})
	return p
}

func activeWalletMessage(err error) string {
	_, message, _ := StatusOf(err)
	if message == "" && err != nil {
		message = err.Error()
	}
	return "Could not get active wallet id: " + message
}
