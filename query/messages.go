package query

import (
	"strings"

	"github.com/goliatone/go-wallet-provisioning/core"
)

const (
	TypeActiveWalletID   = "provisioning.query.wallet.active_id"
	TypeStableHardwareID = "provisioning.query.hardware_id"
	TypeTokenStatus      = "provisioning.query.token_status"
	TypeCanAddToken      = "provisioning.query.can_add_token"
	TypeListActivity     = "provisioning.query.activity.list"
)

type ActiveWalletIDMessage struct{}

func (ActiveWalletIDMessage) Type() string { return TypeActiveWalletID }

func (ActiveWalletIDMessage) Validate() error { return nil }

type StableHardwareIDMessage struct{}

func (StableHardwareIDMessage) Type() string { return TypeStableHardwareID }

func (StableHardwareIDMessage) Validate() error { return nil }

type TokenStatusMessage struct {
	TokenReference string
}

func (TokenStatusMessage) Type() string { return TypeTokenStatus }

func (m TokenStatusMessage) Validate() error {
	if strings.TrimSpace(m.TokenReference) == "" {
		return core.InvalidField("query", "token_reference", "token reference is required")
	}
	return nil
}

type CanAddTokenMessage struct {
	IssuerTokenID string
}

func (CanAddTokenMessage) Type() string { return TypeCanAddToken }

func (m CanAddTokenMessage) Validate() error {
	if strings.TrimSpace(m.IssuerTokenID) == "" {
		return core.InvalidField("query", "issuer_token_id", "issuer token id is required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return core.InvalidField("query", "page", "page must not be negative")
	}
	if m.Filter.PerPage < 0 {
		return core.InvalidField("query", "per_page", "per_page must not be negative")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return core.InvalidField("query", "to", "to must not be before from")
	}
	return nil
}
