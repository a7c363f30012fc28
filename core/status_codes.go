package core

import "sort"

// CodeDomain selects which wallet vocabulary a raw numeric code belongs to.
type CodeDomain int

const (
	DomainTokenState CodeDomain = iota
	DomainStatusCode
)

func (d CodeDomain) String() string {
	switch d {
	case DomainTokenState:
		return "token_state"
	case DomainStatusCode:
		return "status_code"
	default:
		return "unknown"
	}
}

// UnknownStatusTag is returned for any code outside the known vocabulary.
const UnknownStatusTag = "UNKNOWN_STATUS"

type TokenState int

const (
	TokenStateUntokenized               TokenState = 1
	TokenStatePending                   TokenState = 2
	TokenStateNeedsIdentityVerification TokenState = 3
	TokenStateSuspended                 TokenState = 4
	TokenStateActive                    TokenState = 5
	TokenStateFelicaPendingProvisioning TokenState = 6
)

const (
	TagTokenStateUntokenized               = "TOKEN_STATE_UNTOKENIZED"
	TagTokenStatePending                   = "TOKEN_STATE_PENDING"
	TagTokenStateNeedsIdentityVerification = "TOKEN_STATE_NEEDS_IDENTITY_VERIFICATION"
	TagTokenStateSuspended                 = "TOKEN_STATE_SUSPENDED"
	TagTokenStateActive                    = "TOKEN_STATE_ACTIVE"
	TagTokenStateFelicaPendingProvisioning = "TOKEN_STATE_FELICA_PENDING_PROVISIONING"
)

type StatusCode int

const (
	StatusNoActiveWallet    StatusCode = 15002
	StatusTokenNotFound     StatusCode = 15003
	StatusInvalidTokenState StatusCode = 15004
	StatusAttestationError  StatusCode = 15005
	StatusUnavailable       StatusCode = 15009
)

const (
	TagNoActiveWallet    = "TAP_AND_PAY_NO_ACTIVE_WALLET"
	TagTokenNotFound     = "TAP_AND_PAY_TOKEN_NOT_FOUND"
	TagInvalidTokenState = "TAP_AND_PAY_INVALID_TOKEN_STATE"
	TagAttestationError  = "TAP_AND_PAY_ATTESTATION_ERROR"
	TagUnavailable       = "TAP_AND_PAY_UNAVAILABLE"
)

// Built once at init and never written afterwards, so concurrent reads need
// no synchronization.
var (
	tokenStateTags = map[int]string{
		int(TokenStateUntokenized):               TagTokenStateUntokenized,
		int(TokenStatePending):                   TagTokenStatePending,
		int(TokenStateNeedsIdentityVerification): TagTokenStateNeedsIdentityVerification,
		int(TokenStateSuspended):                 TagTokenStateSuspended,
		int(TokenStateActive):                    TagTokenStateActive,
		int(TokenStateFelicaPendingProvisioning): TagTokenStateFelicaPendingProvisioning,
	}
	statusCodeTags = map[int]string{
		int(StatusNoActiveWallet):    TagNoActiveWallet,
		int(StatusTokenNotFound):     TagTokenNotFound,
		int(StatusInvalidTokenState): TagInvalidTokenState,
		int(StatusAttestationError):  TagAttestationError,
		int(StatusUnavailable):       TagUnavailable,
	}
)

// Translate maps a raw wallet code to its tag. The requested domain is
// consulted first and the other domain second; anything left unmatched
// resolves to UnknownStatusTag.
func Translate(code int, domain CodeDomain) string {
	primary, secondary := tokenStateTags, statusCodeTags
	if domain == DomainStatusCode {
		primary, secondary = statusCodeTags, tokenStateTags
	}
	if tag, ok := primary[code]; ok {
		return tag
	}
	if tag, ok := secondary[code]; ok {
		return tag
	}
	return UnknownStatusTag
}

func TokenStateTag(code int) string {
	return Translate(code, DomainTokenState)
}

func StatusCodeTag(code int) string {
	return Translate(code, DomainStatusCode)
}

func (s TokenState) Tag() string {
	return TokenStateTag(int(s))
}

func (s TokenState) Known() bool {
	return IsKnownTokenState(int(s))
}

func (c StatusCode) Tag() string {
	return StatusCodeTag(int(c))
}

func (c StatusCode) Known() bool {
	return IsKnownStatusCode(int(c))
}

func IsKnownTokenState(code int) bool {
	_, ok := tokenStateTags[code]
	return ok
}

func IsKnownStatusCode(code int) bool {
	_, ok := statusCodeTags[code]
	return ok
}

// KnownTokenStates returns the token state vocabulary ordered by code.
func KnownTokenStates() []TokenState {
	codes := sortedCodes(tokenStateTags)
	out := make([]TokenState, 0, len(codes))
	for _, code := range codes {
		out = append(out, TokenState(code))
	}
	return out
}

// KnownStatusCodes returns the status code vocabulary ordered by code.
func KnownStatusCodes() []StatusCode {
	codes := sortedCodes(statusCodeTags)
	out := make([]StatusCode, 0, len(codes))
	for _, code := range codes {
		out = append(out, StatusCode(code))
	}
	return out
}

func sortedCodes(table map[int]string) []int {
	codes := make([]int, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
