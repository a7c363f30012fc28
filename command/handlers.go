package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-wallet-provisioning/core"
)

type MutatingService interface {
	CreateWallet(ctx context.Context) *core.Promise[bool]
	PushProvision(ctx context.Context, req core.ProvisioningRequest) *core.Promise[bool]
	HandleActivityResult(ctx context.Context, result core.ActivityResult) (core.ActivityEntry, error)
}

type TokenStatusRefresher interface {
	RunTokenStatusRefresh(ctx context.Context, msg *core.JobExecutionMessage) (string, error)
}

type CreateWalletCommand struct {
	service MutatingService
}

func NewCreateWalletCommand(service MutatingService) *CreateWalletCommand {
	return &CreateWalletCommand{service: service}
}

func (c *CreateWalletCommand) Execute(ctx context.Context, _ CreateWalletMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency("command", "create wallet service")
	}
	out, err := c.service.CreateWallet(ctx).Await(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PushProvisionCommand struct {
	service MutatingService
}

func NewPushProvisionCommand(service MutatingService) *PushProvisionCommand {
	return &PushProvisionCommand{service: service}
}

func (c *PushProvisionCommand) Execute(ctx context.Context, msg PushProvisionMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency("command", "push provision service")
	}
	out, err := c.service.PushProvision(ctx, msg.Request).Await(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type HandleActivityResultCommand struct {
	service MutatingService
}

func NewHandleActivityResultCommand(service MutatingService) *HandleActivityResultCommand {
	return &HandleActivityResultCommand{service: service}
}

func (c *HandleActivityResultCommand) Execute(ctx context.Context, msg HandleActivityResultMessage) error {
	if c == nil || c.service == nil {
		return core.MissingDependency("command", "activity result service")
	}
	out, err := c.service.HandleActivityResult(ctx, msg.Result)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// RefreshTokenStatusCommand runs the token status refresh job inline.
type RefreshTokenStatusCommand struct {
	refresher TokenStatusRefresher
}

func NewRefreshTokenStatusCommand(refresher TokenStatusRefresher) *RefreshTokenStatusCommand {
	return &RefreshTokenStatusCommand{refresher: refresher}
}

func (c *RefreshTokenStatusCommand) Execute(ctx context.Context, msg RefreshTokenStatusMessage) error {
	if c == nil || c.refresher == nil {
		return core.MissingDependency("command", "token status refresher")
	}
	out, err := c.refresher.RunTokenStatusRefresh(ctx, &core.JobExecutionMessage{
		JobID: core.JobIDTokenStatusRefresh,
		Parameters: map[string]any{
			core.JobParamTokenReference: msg.TokenReference,
		},
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
