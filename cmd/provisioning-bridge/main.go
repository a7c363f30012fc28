// Command provisioning-bridge serves the wallet push provisioning operations
// over HTTP, backed by a REST wallet agent or the in-memory simulated wallet.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	provisioning "github.com/goliatone/go-wallet-provisioning"
	"github.com/goliatone/go-wallet-provisioning/adapters/gocommand"
	"github.com/goliatone/go-wallet-provisioning/adapters/gojob"
	"github.com/goliatone/go-wallet-provisioning/adapters/gologger"
	promadapter "github.com/goliatone/go-wallet-provisioning/adapters/prometheus"
	"github.com/goliatone/go-wallet-provisioning/cache"
	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/goliatone/go-wallet-provisioning/httpapi"
	"github.com/goliatone/go-wallet-provisioning/ratelimit"
	"github.com/goliatone/go-wallet-provisioning/security"
	sqlstore "github.com/goliatone/go-wallet-provisioning/store/sql"
	"github.com/goliatone/go-wallet-provisioning/walletclient/memory"
	"github.com/goliatone/go-wallet-provisioning/walletclient/rest"
	"github.com/goliatone/go-wallet-provisioning/webhooks"
)

var version = "dev"

type staticHost string

func (h staticHost) HostID() string { return string(h) }

func main() {
	configPath := flag.String("config", "", "Path to the bridge YAML config")
	versionFlag := flag.Bool("version", false, "Print version information and exit")
	sealValue := flag.String("seal", "", "Seal a secret with the configured app key, print it and exit")
	sealField := flag.String("seal-field", string(security.FieldWalletAPIKey), "Config field the sealed secret is bound to (wallet.api_key or webhooks.secret)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("provisioning-bridge %s\n", version)
		return
	}

	cfg, err := loadBridgeConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "provisioning-bridge: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *sealValue != "" {
		sealed, err := sealSecret(cfg.Secrets, security.Field(*sealField), *sealValue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "provisioning-bridge: seal: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(sealed)
		return
	}
	if err := cfg.openSecrets(); err != nil {
		fmt.Fprintf(os.Stderr, "provisioning-bridge: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("provisioning-bridge stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg bridgeConfig) error {
	loggers := gologger.Resolve(gologger.NewSlogProvider(slog.New(cfg.Log.handler())), nil)
	logger := loggers.For(gologger.ComponentBridge)

	configProvider := core.NewCfgxConfigProvider(core.NewStaticConfigLoader(cfg.Provisioning))
	coreCfg, err := configProvider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return fmt.Errorf("load provisioning config: %w", err)
	}

	recorder, err := promadapter.NewRecorder(promadapter.WithNamespace(cfg.Metrics.Namespace))
	if err != nil {
		return fmt.Errorf("metrics recorder: %w", err)
	}

	client, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer client.Close()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}
	policy := core.ActivityRetentionPolicy{TTL: cfg.Retention.TTL, RowCap: cfg.Retention.RowCap}
	activity, err := core.NewBufferedActivitySink(factory.ActivityStore(), nil, policy, 256)
	if err != nil {
		return err
	}
	defer activity.Close()

	cacheService, err := cache.NewCacheService(coreCfg.HardwareIDCache.TTL)
	if err != nil {
		return fmt.Errorf("hardware id cache: %w", err)
	}

	results := &activityResultRelay{}
	wallet, scope, err := buildWalletClient(cfg.Wallet, factory.RateLimitStateStore(), logger, results)
	if err != nil {
		return err
	}
	hardwareIDs, err := cache.NewHardwareIDCache(cacheService, scope)
	if err != nil {
		return err
	}

	jobs := gojob.NewLocalQueue()
	opts := loggers.ServiceOptions()
	opts = append(opts,
		core.WithConfigProvider(configProvider),
		core.WithMetricsRecorder(recorder),
		core.WithWalletClient(wallet),
		core.WithUIHostProvider(core.UIHostProviderFunc(func() core.UIHost {
			return staticHost(cfg.Wallet.HostID)
		})),
		core.WithActivitySink(activity),
		core.WithHardwareIDCache(hardwareIDs),
		core.WithJobEnqueuer(gojob.NewEnqueuerAdapter(jobs)),
	)
	svc, err := provisioning.NewService(coreCfg, opts...)
	if err != nil {
		return err
	}
	results.bind(svc, logger)

	facade, err := provisioning.NewFacade(svc, provisioning.WithActivityReader(activity))
	if err != nil {
		return err
	}
	dispatcher := gocommand.NewDispatcher()
	if err := dispatcher.Bind(facade); err != nil {
		return fmt.Errorf("bind commands: %w", err)
	}
	defer dispatcher.Close()
	logger.Debug("command dispatcher bound", "commands", dispatcher.Commands(), "queries", dispatcher.Queries())

	routerOpts := []httpapi.Option{
		httpapi.WithLogger(loggers.For(gologger.ComponentHTTP)),
		httpapi.WithMetricsHandler(recorder.Handler()),
		httpapi.WithRequestTimeout(cfg.HTTP.RequestTimeout),
	}
	var webhookStore *sqlstore.WebhookDeliveryStore
	if secret := strings.TrimSpace(cfg.Webhooks.Secret); secret != "" {
		template := webhooks.NewWalletAgentTemplate(cfg.Webhooks.Source, secret)
		var ledger webhooks.DeliveryLedger
		if strings.EqualFold(strings.TrimSpace(cfg.Webhooks.Ledger), ledgerMemory) {
			memoryLedger := webhooks.NewMemoryLedger()
			if cfg.Webhooks.Retention > 0 {
				memoryLedger.Retention = cfg.Webhooks.Retention
			}
			ledger = memoryLedger
		} else {
			webhookStore = factory.WebhookDeliveryStore()
			ledger = webhookStore
		}
		processor := template.NewProcessor(ledger, webhooks.NewActivityResultHandler(svc),
			webhooks.WithMaxAttempts(cfg.Webhooks.MaxAttempts),
		)
		routerOpts = append(routerOpts, httpapi.WithWebhookProcessor(template.Source, processor))
	}
	router, err := httpapi.NewRouter(facade, routerOpts...)
	if err != nil {
		return err
	}

	worker, err := gojob.NewWorker(svc,
		gojob.NewDequeuerAdapter(jobs, gojob.RetryPolicy{
			MaxAttempts:     cfg.Worker.MaxAttempts,
			MaxDelay:        cfg.Worker.MaxDelay,
			DeadLetterOnMax: true,
		}),
		gojob.WithPollInterval(cfg.Worker.PollInterval),
		gojob.WithWorkerHooks(gojob.NewActivityHook(activity)),
		gojob.WithWorkerLogger(loggers.For(gologger.ComponentWorker)),
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "wallet_mode", cfg.Wallet.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go enforceRetention(ctx, retentionTargets{
		activity:        activity,
		webhooks:        webhookStore,
		webhookRetained: cfg.Webhooks.Retention,
	}, cfg.Retention.Interval, logger)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("bridge component failed", "error", err.Error())
		shutdown(server, cfg.HTTP.ShutdownTimeout)
		return err
	}
	logger.Info("shutting down")
	shutdown(server, cfg.HTTP.ShutdownTimeout)
	return nil
}

func buildWalletClient(
	cfg walletConfig,
	throttles ratelimit.StateStore,
	logger core.Logger,
	results *activityResultRelay,
) (core.WalletClient, string, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Mode), walletModeREST) {
		opts := []rest.Option{
			rest.WithRequestTimeout(cfg.Timeout),
			rest.WithLogger(logger),
		}
		if throttles == nil {
			throttles = ratelimit.NewMemoryStateStore()
		}
		opts = append(opts, rest.WithRateLimitPolicy(ratelimit.NewAdaptivePolicy(throttles)))
		signer, err := cfg.signer()
		if err != nil {
			return nil, "", err
		}
		if signer != nil {
			opts = append(opts, rest.WithSigner(signer))
		}
		client, err := rest.NewClient(cfg.BaseURL, nil, opts...)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.BaseURL, nil
	}
	wallet := memory.New(
		memory.WithCreateOnDispatch(true),
		memory.WithApprovePushes(true),
		memory.WithAsync(true),
		memory.WithActivityResults(results.forward),
	)
	return wallet, walletModeMemory, nil
}

type retentionTargets struct {
	activity        *core.BufferedActivitySink
	webhooks        *sqlstore.WebhookDeliveryStore
	webhookRetained time.Duration
}

func enforceRetention(ctx context.Context, targets retentionTargets, interval time.Duration, logger core.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := targets.activity.EnforceRetention(ctx)
			if err != nil {
				logger.Warn("activity retention failed", "error", err.Error())
			} else if deleted > 0 {
				logger.Info("activity retention pruned entries", "deleted", deleted)
			}
			if stats := targets.activity.Stats(); stats.Dropped > 0 || stats.Failed > 0 {
				logger.Warn("activity writes lost",
					"written", stats.Written, "failed", stats.Failed, "dropped", stats.Dropped)
			}
			if targets.webhooks == nil || targets.webhookRetained <= 0 {
				continue
			}
			pruned, err := targets.webhooks.Prune(ctx, time.Now().UTC().Add(-targets.webhookRetained))
			if err != nil {
				logger.Warn("webhook delivery retention failed", "error", err.Error())
				continue
			}
			if pruned > 0 {
				logger.Info("webhook delivery retention pruned entries", "deleted", pruned)
			}
		}
	}
}

func shutdown(server *http.Server, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = server.Shutdown(ctx)
}
