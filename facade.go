package provisioning

import (
	"fmt"

	provisioningcommand "github.com/goliatone/go-wallet-provisioning/command"
	"github.com/goliatone/go-wallet-provisioning/core"
	provisioningquery "github.com/goliatone/go-wallet-provisioning/query"
)

type CommandQueryService interface {
	provisioningcommand.MutatingService
	provisioningcommand.TokenStatusRefresher
	provisioningquery.WalletReader
}

type Commands struct {
	CreateWallet         *provisioningcommand.CreateWalletCommand
	PushProvision        *provisioningcommand.PushProvisionCommand
	HandleActivityResult *provisioningcommand.HandleActivityResultCommand
	RefreshTokenStatus   *provisioningcommand.RefreshTokenStatusCommand
}

type Queries struct {
	ActiveWalletID   *provisioningquery.ActiveWalletIDQuery
	StableHardwareID *provisioningquery.StableHardwareIDQuery
	TokenStatus      *provisioningquery.TokenStatusQuery
	CanAddToken      *provisioningquery.CanAddTokenQuery
	ListActivity     *provisioningquery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader provisioningquery.ActivityReader
}

func WithActivityReader(reader provisioningquery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("provisioning: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateWallet:         provisioningcommand.NewCreateWalletCommand(service),
		PushProvision:        provisioningcommand.NewPushProvisionCommand(service),
		HandleActivityResult: provisioningcommand.NewHandleActivityResultCommand(service),
		RefreshTokenStatus:   provisioningcommand.NewRefreshTokenStatusCommand(service),
	}
	facade.queries = Queries{
		ActiveWalletID:   provisioningquery.NewActiveWalletIDQuery(service),
		StableHardwareID: provisioningquery.NewStableHardwareIDQuery(service),
		TokenStatus:      provisioningquery.NewTokenStatusQuery(service),
		CanAddToken:      provisioningquery.NewCanAddTokenQuery(service),
		ListActivity:     provisioningquery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader falls back to the service's activity sink when that
// sink can also list entries.
func resolveActivityReader(service CommandQueryService) provisioningquery.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(provisioningquery.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	reader, ok := provider.Dependencies().ActivitySink.(provisioningquery.ActivityReader)
	if !ok {
		return nil
	}
	return reader
}
