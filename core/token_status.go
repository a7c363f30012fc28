package core

import (
	"context"
	"strings"
)

const tokenNotFoundMessage = "Token not found"

// GetTokenStatus resolves the translated state tag of a provisioned token.
// Token references are always looked up against the Visa token provider.
func (s *Service) GetTokenStatus(ctx context.Context, tokenReference string) *Promise[string] {
	p := NewPromise[string]()
	if s == nil || s.client == nil {
		p.Reject(newInternalError(ErrWalletClientRequired.Error()))
		return p
	}
	op := s.begin(ctx, "get_token_status", map[string]any{"token_service_provider": TokenProviderVisa})
	op.tokenReference = tokenReference
	dispatch(s, op, p, func() {
		s.client.GetTokenStatus(op.ctx, TokenProviderVisa, tokenReference, guard(s, op, p, func(status TokenStatus, err error) {
			if err != nil {
				reject(s, op, p, operationFailure(ErrorTokenStatus, op.name, tokenStatusMessage(err), err))
				return
			}
			tag := Translate(status.TokenState, DomainTokenState)
			op.fields["result_tag"] = tag
			op.fields["token_state"] = status.TokenState
			op.fields["is_selected"] = status.IsSelected
			resolve(s, op, p, tag)
		}))
	})
	return p
}

func tokenStatusMessage(err error) string {
	if hasStatus(err, StatusTokenNotFound) {
		return tokenNotFoundMessage
	}
	_, message, ok := StatusOf(err)
	if !ok && err != nil {
		message = err.Error()
	}
	return "Could not get token status: " + message
}

// CanAddToken resolves true when no token in the wallet carries the given
// issuer token id.
func (s *Service) CanAddToken(ctx context.Context, issuerTokenID string) *Promise[bool] {
	p := NewPromise[bool]()
	if s == nil || s.client == nil {
		p.Reject(newInternalError(ErrWalletClientRequired.Error()))
		return p
	}
	op := s.begin(ctx, "can_add_token", nil)
	op.tokenReference = issuerTokenID
	dispatch(s, op, p, func() {
		s.client.ListTokens(op.ctx, guard(s, op, p, func(tokens []TokenInfo, err error) {
			if err != nil {
				_, message, ok := StatusOf(err)
				if !ok {
					message = err.Error()
				}
				reject(s, op, p, operationFailure(ErrorCanAddToken, op.name, "Could not list tokens: "+message, err))
				return
			}
			op.fields["token_count"] = len(tokens)
			canAdd := !containsIssuerToken(tokens, issuerTokenID)
			if !canAdd {
				op.fields["result_tag"] = "TOKEN_ALREADY_PROVISIONED"
			}
			resolve(s, op, p, canAdd)
		}))
	})
	return p
}

func containsIssuerToken(tokens []TokenInfo, issuerTokenID string) bool {
	target := strings.TrimSpace(issuerTokenID)
	if target == "" {
		return false
	}
	for _, token := range tokens {
		if strings.TrimSpace(token.IssuerTokenID) == target {
			return true
		}
	}
	return false
}
