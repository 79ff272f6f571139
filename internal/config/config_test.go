package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
database:
  dsn: "postgres://guildpay:pw@localhost:5432/guildpay"
redis:
  addr: "redis:6379"
stripe:
  secret-key: "sk_test_x"
  webhook-secret: "whsec_x"
  success-url: "https://pay.example/success"
  cancel-url: "https://pay.example/cancel"
coinpayments:
  endpoint: "https://coin.example/api.php"
jwt:
  secret: "topsecret"
  expire-hours: 48
logging:
  level: "debug"
  file: "/var/log/guildpay.log"
`)

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":9090" || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("addresses: %+v", cfg)
	}
	if cfg.Stripe.WebhookSecret != "whsec_x" || cfg.CoinPayments.Endpoint != "https://coin.example/api.php" {
		t.Fatalf("gateway settings: %+v", cfg)
	}
	if cfg.JWT.Expiry() != 48*time.Hour {
		t.Fatalf("jwt expiry: got %s", cfg.JWT.Expiry())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level: got %s", cfg.Logging.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "guildpay.db"
jwt:
  secret: "topsecret"
`)

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr: got %s", cfg.Server.Addr)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("default redis addr: got %s", cfg.Redis.Addr)
	}
	if cfg.JWT.Expiry() != 24*time.Hour {
		t.Fatalf("default jwt expiry: got %s", cfg.JWT.Expiry())
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	noDSN := writeConfig(t, "jwt:\n  secret: \"x\"\n")
	if _, errLoad := Load(noDSN); errLoad == nil {
		t.Fatal("want error for missing dsn")
	}

	noSecret := writeConfig(t, "database:\n  dsn: \"guildpay.db\"\n")
	if _, errLoad := Load(noSecret); errLoad == nil {
		t.Fatal("want error for missing jwt secret")
	}
}
