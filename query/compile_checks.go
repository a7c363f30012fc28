package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-wallet-provisioning/core"
)

var (
	_ gocmd.Querier[ActiveWalletIDMessage, string]          = (*ActiveWalletIDQuery)(nil)
	_ gocmd.Querier[StableHardwareIDMessage, string]        = (*StableHardwareIDQuery)(nil)
	_ gocmd.Querier[TokenStatusMessage, string]             = (*TokenStatusQuery)(nil)
	_ gocmd.Querier[CanAddTokenMessage, bool]               = (*CanAddTokenQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage] = (*ListActivityQuery)(nil)

	_ WalletReader   = (*core.Service)(nil)
	_ ActivityReader = (*core.BufferedActivitySink)(nil)
)
