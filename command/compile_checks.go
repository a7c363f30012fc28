package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-wallet-provisioning/core"
)

var (
	_ gocmd.Commander[CreateWalletMessage]         = (*CreateWalletCommand)(nil)
	_ gocmd.Commander[PushProvisionMessage]        = (*PushProvisionCommand)(nil)
	_ gocmd.Commander[HandleActivityResultMessage] = (*HandleActivityResultCommand)(nil)
	_ gocmd.Commander[RefreshTokenStatusMessage]   = (*RefreshTokenStatusCommand)(nil)

	_ MutatingService      = (*core.Service)(nil)
	_ TokenStatusRefresher = (*core.Service)(nil)
)
