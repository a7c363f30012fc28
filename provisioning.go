package provisioning

import "github.com/goliatone/go-wallet-provisioning/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type WalletClient = core.WalletClient
type UIHost = core.UIHost
type UIHostProvider = core.UIHostProvider
type HardwareIDCache = core.HardwareIDCache
type ActivitySink = core.ActivitySink
type CompletionListener = core.CompletionListener

type ProvisioningRequest = core.ProvisioningRequest

type ActivityResult = core.ActivityResult

type ActivityEntry = core.ActivityEntry

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithWalletClient       = core.WithWalletClient
	WithUIHostProvider     = core.WithUIHostProvider
	WithActivitySink       = core.WithActivitySink
	WithHardwareIDCache    = core.WithHardwareIDCache
	WithJobEnqueuer        = core.WithJobEnqueuer
	WithCompletionListener = core.WithCompletionListener
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
