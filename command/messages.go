package command

import (
	"strings"

	"github.com/goliatone/go-wallet-provisioning/core"
)

const (
	TypeCreateWallet         = "provisioning.command.wallet.create"
	TypePushProvision        = "provisioning.command.push_provision"
	TypeHandleActivityResult = "provisioning.command.activity_result.handle"
	TypeRefreshTokenStatus   = "provisioning.command.token_status.refresh"
)

type CreateWalletMessage struct{}

func (CreateWalletMessage) Type() string { return TypeCreateWallet }

func (CreateWalletMessage) Validate() error { return nil }

// PushProvisionMessage forwards host supplied card fields. Only the opaque
// payment card is required; the wallet validates the rest.
type PushProvisionMessage struct {
	Request core.ProvisioningRequest
}

func (PushProvisionMessage) Type() string { return TypePushProvision }

func (m PushProvisionMessage) Validate() error {
	if strings.TrimSpace(m.Request.OPC) == "" {
		return core.InvalidField("command", "opc", "opaque payment card is required")
	}
	return nil
}

type HandleActivityResultMessage struct {
	Result core.ActivityResult
}

func (HandleActivityResultMessage) Type() string { return TypeHandleActivityResult }

func (m HandleActivityResultMessage) Validate() error {
	if m.Result.RequestCode <= 0 {
		return core.InvalidField("command", "request_code", "request code is required")
	}
	return nil
}

type RefreshTokenStatusMessage struct {
	TokenReference string
}

func (RefreshTokenStatusMessage) Type() string { return TypeRefreshTokenStatus }

func (m RefreshTokenStatusMessage) Validate() error {
	if strings.TrimSpace(m.TokenReference) == "" {
		return core.InvalidField("command", "token_reference", "token reference is required")
	}
	return nil
}
