package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-wallet-provisioning/auth"
	"github.com/goliatone/go-wallet-provisioning/security"
	sqlstore "github.com/goliatone/go-wallet-provisioning/store/sql"
	"gopkg.in/yaml.v3"
)

const (
	walletModeMemory = "memory"
	walletModeREST   = "rest"
)

type bridgeConfig struct {
	HTTP         httpConfig              `yaml:"http"`
	Log          logConfig               `yaml:"log"`
	Database     sqlstore.DatabaseConfig `yaml:"database"`
	Wallet       walletConfig            `yaml:"wallet"`
	Metrics      metricsConfig           `yaml:"metrics"`
	Worker       workerConfig            `yaml:"worker"`
	Retention    retentionConfig         `yaml:"retention"`
	Webhooks     webhooksConfig          `yaml:"webhooks"`
	Secrets      secretsConfig           `yaml:"secrets"`
	Provisioning map[string]any          `yaml:"provisioning"`
}

type httpConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type walletConfig struct {
	Mode    string           `yaml:"mode"`
	BaseURL string           `yaml:"base_url"`
	APIKey  string           `yaml:"api_key"`
	Auth    walletAuthConfig `yaml:"auth"`
	Timeout time.Duration    `yaml:"timeout"`
	HostID  string           `yaml:"host_id"`
}

// walletAuthConfig picks how api_key is presented to the agent: bearer,
// api_key (Header), hmac or service_jwt.
type walletAuthConfig struct {
	Kind     string        `yaml:"kind"`
	Header   string        `yaml:"header"`
	KeyID    string        `yaml:"key_id"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type metricsConfig struct {
	Namespace string `yaml:"namespace"`
}

type workerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type retentionConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	RowCap   int           `yaml:"row_cap"`
	Interval time.Duration `yaml:"interval"`
}

const (
	ledgerSQL    = "sql"
	ledgerMemory = "memory"
)

// webhooksConfig enables the signed callback endpoint when Secret is set.
// Ledger selects where delivery claims live: sql (default) or memory.
type webhooksConfig struct {
	Source      string        `yaml:"source"`
	Ledger      string        `yaml:"ledger"`
	Secret      string        `yaml:"secret"`
	MaxAttempts int           `yaml:"max_attempts"`
	Retention   time.Duration `yaml:"retention"`
}

// secretsConfig holds the app key that opens sealed values in wallet.api_key
// and webhooks.secret. AppKeyEnv is read when AppKey is empty.
type secretsConfig struct {
	AppKey    string `yaml:"app_key"`
	AppKeyEnv string `yaml:"app_key_env"`
}

func defaultBridgeConfig() bridgeConfig {
	return bridgeConfig{
		HTTP: httpConfig{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logConfig{Level: "info", Format: "json"},
		Database: sqlstore.DatabaseConfig{
			Driver:         sqlstore.DriverSQLite,
			DSN:            "file:provisioning.db?cache=shared&_foreign_keys=on",
			OtelIdentifier: "provisioning-bridge",
		},
		Wallet: walletConfig{
			Mode:    walletModeMemory,
			Timeout: 15 * time.Second,
			HostID:  "provisioning-bridge",
		},
		Metrics: metricsConfig{Namespace: "provisioning"},
		Worker: workerConfig{
			PollInterval: time.Second,
			MaxAttempts:  5,
			MaxDelay:     5 * time.Minute,
		},
		Retention: retentionConfig{
			TTL:      30 * 24 * time.Hour,
			RowCap:   100000,
			Interval: time.Hour,
		},
		Secrets: secretsConfig{AppKeyEnv: "PROVISIONING_APP_KEY"},
		Webhooks: webhooksConfig{
			Source:      "wallet-agent",
			Ledger:      ledgerSQL,
			MaxAttempts: 8,
			Retention:   24 * time.Hour,
		},
	}
}

// loadBridgeConfig overlays the YAML file at path onto the defaults. An empty
// path runs on defaults alone.
func loadBridgeConfig(path string) (bridgeConfig, error) {
	cfg := defaultBridgeConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c bridgeConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Wallet.Mode)) {
	case walletModeMemory:
	case walletModeREST:
		if strings.TrimSpace(c.Wallet.BaseURL) == "" {
			return fmt.Errorf("wallet.base_url is required in rest mode")
		}
	default:
		return fmt.Errorf("unsupported wallet.mode %q", c.Wallet.Mode)
	}
	if _, err := c.Wallet.signer(); err != nil {
		return err
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Webhooks.Ledger)) {
	case "", ledgerSQL, ledgerMemory:
	default:
		return fmt.Errorf("unsupported webhooks.ledger %q", c.Webhooks.Ledger)
	}
	if c.Retention.RowCap < 0 || c.Retention.TTL < 0 {
		return fmt.Errorf("retention values must not be negative")
	}
	return nil
}

func (c walletConfig) signer() (auth.Signer, error) {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(c.Auth.Kind)) {
	case "", "bearer":
		return auth.APIKeySigner{Header: "Authorization", Prefix: "Bearer", Key: key}, nil
	case auth.KindAPIKey:
		return auth.APIKeySigner{Header: c.Auth.Header, Key: key}, nil
	case auth.KindHMAC:
		return auth.HMACSigner{Secret: key, KeyID: c.Auth.KeyID}, nil
	case auth.KindServiceJWT:
		return &auth.ServiceJWTSigner{
			Issuer:     c.Auth.Issuer,
			Audience:   c.Auth.Audience,
			KeyID:      c.Auth.KeyID,
			SigningKey: key,
			TokenTTL:   c.Auth.TokenTTL,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported wallet.auth.kind %q", c.Auth.Kind)
	}
}

// sealer returns nil when no app key is configured.
func (c secretsConfig) sealer() (*security.Sealer, error) {
	key := strings.TrimSpace(c.AppKey)
	if key == "" && strings.TrimSpace(c.AppKeyEnv) != "" {
		key = strings.TrimSpace(os.Getenv(strings.TrimSpace(c.AppKeyEnv)))
	}
	if key == "" {
		return nil, nil
	}
	return security.NewSealer(key)
}

// sealSecret seals value for one of the sealable config fields.
func sealSecret(c secretsConfig, field security.Field, value string) (string, error) {
	switch field {
	case security.FieldWalletAPIKey, security.FieldWebhookSecret:
	default:
		return "", fmt.Errorf("field %q cannot hold a sealed secret", field)
	}
	sealer, err := c.sealer()
	if err != nil {
		return "", err
	}
	if sealer == nil {
		return "", errors.New("no app key configured")
	}
	return sealer.Seal(field, value)
}

// openSecrets replaces sealed credentials with their plaintext.
func (c *bridgeConfig) openSecrets() error {
	sealer, err := c.Secrets.sealer()
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if c.Wallet.APIKey, err = sealer.Open(security.FieldWalletAPIKey, c.Wallet.APIKey); err != nil {
		return err
	}
	if c.Webhooks.Secret, err = sealer.Open(security.FieldWebhookSecret, c.Webhooks.Secret); err != nil {
		return err
	}
	return nil
}

func (c logConfig) level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c logConfig) handler() slog.Handler {
	opts := &slog.HandlerOptions{Level: c.level()}
	if strings.EqualFold(strings.TrimSpace(c.Format), "text") {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}
