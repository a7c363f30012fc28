package core

import (
	"context"
	"errors"
	"maps"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrWalletClientRequired = errors.New("core: wallet client is required")

type Service struct {
	config          Config
	configSources   map[string]string
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	client          WalletClient
	hostProvider    UIHostProvider
	activitySink    ActivitySink
	hardwareIDCache HardwareIDCache
	jobEnqueuer     JobEnqueuer
	listeners       []CompletionListener
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	WalletClient    WalletClient
	UIHostProvider  UIHostProvider
	ActivitySink    ActivitySink
	HardwareIDCache HardwareIDCache
	JobEnqueuer     JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("provisioning", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("provisioning"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.walletClient == nil {
		return nil, mapBuildError(builder.errorMapper, ErrWalletClientRequired)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	var sources map[string]string
	if reporter, ok := builder.optionsResolver.(ConfigSourceReporter); ok {
		if sources, err = reporter.Sources(defaults, loaded, builder.runtimeConfig); err != nil {
			logger.Warn("provisioning config sources unavailable", "error", err.Error())
		} else {
			logger.Debug("provisioning config resolved", "service_name", finalConfig.ServiceName, "sources", sources)
		}
	}

	svc := &Service{
		config:          finalConfig,
		configSources:   sources,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		client:          builder.walletClient,
		hostProvider:    builder.hostProvider,
		listeners:       append([]CompletionListener(nil), builder.listeners...),
	}
	if finalConfig.Activity.Enabled {
		svc.activitySink = builder.activitySink
	}
	if finalConfig.HardwareIDCache.Enabled {
		svc.hardwareIDCache = builder.hardwareIDCache
	}
	if finalConfig.Jobs.TokenStatusRefresh {
		svc.jobEnqueuer = builder.jobEnqueuer
	}
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// ConfigSources names the layer that supplied each setting, keyed by setting
// path. It is empty when the resolver cannot report sources.
func (s *Service) ConfigSources() map[string]string {
	if s == nil {
		return nil
	}
	return maps.Clone(s.configSources)
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		WalletClient:    s.client,
		UIHostProvider:  s.hostProvider,
		ActivitySink:    s.activitySink,
		HardwareIDCache: s.hardwareIDCache,
		JobEnqueuer:     s.jobEnqueuer,
	}
}

func (s *Service) currentHost() UIHost {
	if s == nil || s.hostProvider == nil {
		return nil
	}
	return s.hostProvider.CurrentHost()
}

// dispatch runs a wallet call and turns a panic inside it into a rejection of
// the promise the call was meant to settle.
func dispatch[T any](s *Service, op *operation, p *Promise[T], call func()) {
	defer func() {
		if r := recover(); r != nil {
			err := newInternalError("core: wallet client panicked")
			err.WithMetadata(map[string]any{MetadataOperation: op.name, "panic": r})
			reject(s, op, p, err)
		}
	}()
	call()
}

// guard wraps a completion so a panic raised while handling the result is
// still reported through the promise.
func guard[T any, R any](s *Service, op *operation, p *Promise[R], fn Completion[T]) Completion[T] {
	return func(value T, err error) {
		defer func() {
			if r := recover(); r != nil {
				rich := newInternalError("core: wallet completion panicked")
				rich.WithMetadata(map[string]any{MetadataOperation: op.name, "panic": r})
				reject(s, op, p, rich)
			}
		}()
		fn(value, err)
	}
}
