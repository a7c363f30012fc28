package core

import "context"

// PushProvision starts the push tokenization flow for a card on the current
// UI host. It resolves true once the flow is dispatched; the user's decision
// arrives later through HandleActivityResult.
func (s *Service) PushProvision(ctx context.Context, req ProvisioningRequest) *Promise[bool] {
	p := NewPromise[bool]()
	if s == nil || s.client == nil {
		p.Reject(newInternalError(ErrWalletClientRequired.Error()))
		return p
	}
	op := s.begin(ctx, "push_provision", map[string]any{
		"network":                CardNetworkVisa,
		"token_service_provider": TokenProviderVisa,
		"request_code":           RequestCodePushTokenize,
	})
	op.requestCode = RequestCodePushTokenize
	op.successStatus = ActivityStatusSubmitted

	dispatch(s, op, p, func() {
		host := s.currentHost()
		if host == nil {
			failure := operationFailure(ErrorPushProvision, op.name, "Could not push provision: no ui host available", nil)
			withReason(failure, ErrorReasonNoUIHost)
			reject(s, op, p, failure)
			return
		}
		op.fields["ui_host"] = host.HostID()
		if err := s.client.PushTokenize(op.ctx, host, BuildPushTokenizeRequest(req), RequestCodePushTokenize); err != nil {
			failure := operationFailure(ErrorPushProvision, op.name, "Could not push provision: "+err.Error(), err)
			withReason(failure, ErrorReasonDispatch)
			reject(s, op, p, failure)
			return
		}
		resolve(s, op, p, true)
	})
	return p
}

// BuildPushTokenizeRequest maps host fields onto the wallet payload. The
// opaque payment card is carried as its raw UTF-8 bytes.
func BuildPushTokenizeRequest(req ProvisioningRequest) PushTokenizeRequest {
	return PushTokenizeRequest{
		OpaquePaymentCard:    []byte(req.OPC),
		Network:              CardNetworkVisa,
		TokenServiceProvider: TokenProviderVisa,
		DisplayName:          req.Name,
		LastDigits:           req.LastDigits,
		UserAddress:          BuildUserAddress(req),
	}
}

func BuildUserAddress(req ProvisioningRequest) UserAddress {
	return UserAddress{
		Name:               req.Name,
		Address1:           req.Address,
		Locality:           req.City,
		AdministrativeArea: req.State,
		CountryCode:        req.CountryCode,
		PostalCode:         req.PostalCode,
		PhoneNumber:        req.Phone,
	}
}
