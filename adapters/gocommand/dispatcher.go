package gocommand

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	provisioning "github.com/goliatone/go-wallet-provisioning"
)

const queueResolverKey = "provisioning.queue"

type typedMessage interface {
	Type() string
}

// Dispatcher binds the provisioning facade to the go-command dispatcher.
// Commands are also recorded in a go-command registry so resolvers, such as
// the go-job queue mirror, see them. Queries are only subscribed.
type Dispatcher struct {
	mu       sync.Mutex
	registry *command.Registry
	queue    *jobqueuecommand.Registry
	subs     []commanddispatcher.Subscription
	commands []string
	queries  []string
	bound    bool
}

type Option func(*Dispatcher)

// WithRegistry replaces the command registry the dispatcher initializes.
func WithRegistry(registry *command.Registry) Option {
	return func(d *Dispatcher) {
		if registry != nil {
			d.registry = registry
		}
	}
}

// WithQueueRegistry mirrors every provisioning command into a go-job queue
// registry, keyed by message type.
func WithQueueRegistry(registry *jobqueuecommand.Registry) Option {
	return func(d *Dispatcher) {
		d.queue = registry
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: command.NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Bind subscribes every facade command and query and initializes the
// registry. A dispatcher binds once. On failure nothing stays subscribed.
func (d *Dispatcher) Bind(facade *provisioning.Facade, runnerOpts ...runner.Option) error {
	if d == nil || d.registry == nil {
		return fmt.Errorf("gocommand: dispatcher is not configured")
	}
	if facade == nil {
		return fmt.Errorf("gocommand: provisioning facade is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound {
		return fmt.Errorf("gocommand: dispatcher already bound")
	}

	if d.queue != nil {
		if err := d.registry.AddResolver(queueResolverKey, jobqueuecommand.QueueResolver(d.queue)); err != nil {
			return fmt.Errorf("gocommand: queue resolver: %w", err)
		}
	}

	commands := facade.Commands()
	queries := facade.Queries()
	steps := []func() error{
		func() error { return bindCommand(d, commands.CreateWallet, runnerOpts) },
		func() error { return bindCommand(d, commands.PushProvision, runnerOpts) },
		func() error { return bindCommand(d, commands.HandleActivityResult, runnerOpts) },
		func() error { return bindCommand(d, commands.RefreshTokenStatus, runnerOpts) },
		func() error { return bindQuery(d, queries.ActiveWalletID, runnerOpts) },
		func() error { return bindQuery(d, queries.StableHardwareID, runnerOpts) },
		func() error { return bindQuery(d, queries.TokenStatus, runnerOpts) },
		func() error { return bindQuery(d, queries.CanAddToken, runnerOpts) },
		func() error { return bindQuery(d, queries.ListActivity, runnerOpts) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			d.release()
			return err
		}
	}
	if err := d.registry.Initialize(); err != nil {
		d.release()
		return fmt.Errorf("gocommand: initialize registry: %w", err)
	}
	d.bound = true
	return nil
}

// Commands lists the bound command message types in bind order.
func (d *Dispatcher) Commands() []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.commands)
}

// Queries lists the bound query message types in bind order.
func (d *Dispatcher) Queries() []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.queries)
}

// Close drops every subscription. The registry stays initialized, so a
// closed dispatcher cannot be bound again.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release()
}

func (d *Dispatcher) release() {
	for _, sub := range d.subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	d.subs = nil
	d.commands = nil
	d.queries = nil
}

func bindCommand[T typedMessage](d *Dispatcher, cmd command.Commander[T], runnerOpts []runner.Option) error {
	var msg T
	if cmd == nil {
		return fmt.Errorf("gocommand: %s handler is required", msg.Type())
	}
	sub := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	d.subs = append(d.subs, sub)
	if err := d.registry.RegisterCommand(cmd); err != nil {
		return fmt.Errorf("gocommand: register %s: %w", msg.Type(), err)
	}
	d.commands = append(d.commands, msg.Type())
	return nil
}

func bindQuery[T typedMessage, R any](d *Dispatcher, qry command.Querier[T, R], runnerOpts []runner.Option) error {
	var msg T
	if qry == nil {
		return fmt.Errorf("gocommand: %s handler is required", msg.Type())
	}
	d.subs = append(d.subs, commanddispatcher.SubscribeQuery(qry, runnerOpts...))
	d.queries = append(d.queries, msg.Type())
	return nil
}

// Dispatch sends msg to its subscribed command handler.
func Dispatch[T typedMessage](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query returns the subscribed query handler's result for msg.
func Query[T typedMessage, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}
