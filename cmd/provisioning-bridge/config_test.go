package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-wallet-provisioning/auth"
	"github.com/goliatone/go-wallet-provisioning/security"
	sqlstore "github.com/goliatone/go-wallet-provisioning/store/sql"
)

func TestLoadBridgeConfig_DefaultsWithoutPath(t *testing.T) {
	cfg, err := loadBridgeConfig("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Wallet.Mode != walletModeMemory {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.Database.GetDriver() != sqlstore.DriverSQLite {
		t.Fatalf("expected sqlite default driver, got %q", cfg.Database.GetDriver())
	}
}

func TestLoadBridgeConfig_OverlaysYAML(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
  request_timeout: 5s
wallet:
  mode: rest
  base_url: http://wallet-agent:7000
  timeout: 2s
worker:
  max_attempts: 3
webhooks:
  secret: hook-secret
provisioning:
  service_name: bridge
  hardware_id_cache:
    enabled: false
`)
	cfg, err := loadBridgeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.HTTP.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected http config %#v", cfg.HTTP)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected untouched default shutdown timeout, got %s", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.Wallet.Mode != walletModeREST || cfg.Wallet.Timeout != 2*time.Second {
		t.Fatalf("unexpected wallet config %#v", cfg.Wallet)
	}
	if cfg.Worker.MaxAttempts != 3 || cfg.Worker.PollInterval != time.Second {
		t.Fatalf("unexpected worker config %#v", cfg.Worker)
	}
	if cfg.Webhooks.Secret != "hook-secret" || cfg.Webhooks.Source != "wallet-agent" || cfg.Webhooks.Ledger != ledgerSQL {
		t.Fatalf("unexpected webhooks config %#v", cfg.Webhooks)
	}
	if cfg.Provisioning["service_name"] != "bridge" {
		t.Fatalf("expected raw provisioning section, got %#v", cfg.Provisioning)
	}
}

func TestLoadBridgeConfig_Validation(t *testing.T) {
	cases := map[string]string{
		"rest without url": "wallet:\n  mode: rest\n",
		"unknown mode":     "wallet:\n  mode: nfc\n",
		"negative cap":     "retention:\n  row_cap: -1\n",
		"empty addr":       "http:\n  addr: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadBridgeConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
	if _, err := loadBridgeConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestLogConfig_Level(t *testing.T) {
	if (logConfig{Level: "warn"}).level() != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
	if (logConfig{Level: "bogus"}).level() != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
}

func TestBridgeConfig_OpenSecrets(t *testing.T) {
	t.Setenv("PROVISIONING_TEST_APP_KEY", "bridge-app-key")
	secrets := secretsConfig{AppKeyEnv: "PROVISIONING_TEST_APP_KEY"}
	sealed, err := sealSecret(secrets, security.FieldWalletAPIKey, "agent-key")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	cfg := defaultBridgeConfig()
	cfg.Secrets = secrets
	cfg.Wallet.APIKey = sealed
	cfg.Webhooks.Secret = "plain-hook"
	if err := cfg.openSecrets(); err != nil {
		t.Fatalf("open secrets: %v", err)
	}
	if cfg.Wallet.APIKey != "agent-key" || cfg.Webhooks.Secret != "plain-hook" {
		t.Fatalf("unexpected opened secrets %q %q", cfg.Wallet.APIKey, cfg.Webhooks.Secret)
	}

	cfg = defaultBridgeConfig()
	cfg.Secrets = secrets
	cfg.Webhooks.Secret = sealed
	if err := cfg.openSecrets(); err == nil {
		t.Fatalf("expected an api key sealed value to be refused as the webhook secret")
	}

	cfg = defaultBridgeConfig()
	cfg.Secrets.AppKeyEnv = ""
	cfg.Wallet.APIKey = sealed
	if err := cfg.openSecrets(); err == nil {
		t.Fatalf("expected sealed secret without app key to fail")
	}
}

func TestSealSecret_RejectsUnknownField(t *testing.T) {
	if _, err := sealSecret(secretsConfig{AppKey: "bridge-app-key"}, "database.dsn", "x"); err == nil {
		t.Fatalf("expected unsealable field to be rejected")
	}
	if _, err := sealSecret(secretsConfig{}, security.FieldWebhookSecret, "x"); err == nil {
		t.Fatalf("expected missing app key to be rejected")
	}
}

func TestWalletConfig_Signer(t *testing.T) {
	cases := map[string]string{
		"":            auth.KindAPIKey,
		"bearer":      auth.KindAPIKey,
		"api_key":     auth.KindAPIKey,
		"hmac":        auth.KindHMAC,
		"service_jwt": auth.KindServiceJWT,
	}
	for kind, want := range cases {
		signer, err := walletConfig{APIKey: "k", Auth: walletAuthConfig{Kind: kind}}.signer()
		if err != nil {
			t.Fatalf("%q: %v", kind, err)
		}
		if signer.Kind() != want {
			t.Fatalf("%q: expected %s signer, got %s", kind, want, signer.Kind())
		}
	}
	if signer, err := (walletConfig{}).signer(); err != nil || signer != nil {
		t.Fatalf("expected no signer without api key")
	}
	if _, err := (walletConfig{APIKey: "k", Auth: walletAuthConfig{Kind: "sigv4"}}).signer(); err == nil {
		t.Fatalf("expected unsupported kind to fail")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
