package app

import (
	"os"
	"path/filepath"
	"testing"

	coreconfig "github.com/liraku/lirabot/core/config"
	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/rates"
)

func baseConfig() Config {
	return Config{
		Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t", AdminID: 7}},
		FX:     FXConfig{APIKey: "k"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Fatalf("listen = %q", cfg.HTTP.Listen)
	}
	if cfg.ratePolicy != rates.PolicyFailStep {
		t.Fatalf("policy = %q", cfg.ratePolicy)
	}
	if cfg.pricing.Margin.String() != "0.035" {
		t.Fatalf("margin = %s", cfg.pricing.Margin)
	}
	if fee := cfg.pricing.Fees[order.MethodVA]; fee.Flat.IntPart() != 4400 {
		t.Fatalf("va fee = %+v", fee)
	}
	if cfg.minBuy.IntPart() != 100000 || cfg.minSell.IntPart() != 100 {
		t.Fatalf("minimums = %s, %s", cfg.minBuy, cfg.minSell)
	}
	if len(cfg.methods) != 3 {
		t.Fatalf("methods = %v", cfg.methods)
	}
	if cfg.Session.Store != "memory" || cfg.Session.TTLMinutes != 30 || cfg.Session.SweepSchedule != "@every 5m" {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if cfg.Order.IDPrefix != order.DefaultIDPrefix || cfg.Order.AdminChatID != 7 {
		t.Fatalf("order = %+v", cfg.Order)
	}
	if cfg.ledgerLoc == nil {
		t.Fatalf("ledger location not set")
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing fx key", func(c *Config) { c.FX.APIKey = " " }},
		{"unknown rate policy", func(c *Config) { c.FX.OnUnavailable = "guess" }},
		{"margin not a number", func(c *Config) { c.Pricing.Margin = "abc" }},
		{"margin too large", func(c *Config) { c.Pricing.Margin = "1.5" }},
		{"unknown rounding", func(c *Config) { c.Pricing.Rounding = "ceil" }},
		{"fee for unknown method", func(c *Config) { c.Pricing.Fees = map[string]FeeConfig{"paypal": {Flat: "1"}} }},
		{"bad fee", func(c *Config) { c.Pricing.Fees = map[string]FeeConfig{"qris": {Percent: "x"}} }},
		{"unknown payment method", func(c *Config) { c.Payment.Methods = []string{"qris", "cash"} }},
		{"payment without key", func(c *Config) { c.Payment.Enabled = true }},
		{"ledger without sheet", func(c *Config) { c.Ledger = LedgerConfig{Enabled: true, CredentialsFile: "sa.json"} }},
		{"ledger without credentials", func(c *Config) { c.Ledger = LedgerConfig{Enabled: true, SpreadsheetID: "s"} }},
		{"bad timezone", func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" }},
		{"events without url", func(c *Config) { c.Events.Enabled = true }},
		{"redis sessions without redis", func(c *Config) { c.Session.Store = "redis" }},
		{"unknown session store", func(c *Config) { c.Session.Store = "disk" }},
		{"bad sweep schedule", func(c *Config) { c.Session.SweepSchedule = "every now and then" }},
		{"prefix with underscore", func(c *Config) { c.Order.IDPrefix = "LIRA_X" }},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			if err := Normalize(&cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizePaymentEnablesHTTP(t *testing.T) {
	cfg := baseConfig()
	cfg.Payment = PaymentConfig{Enabled: true, ServerKey: "SB-Mid-server-x", Methods: []string{" QRIS "}}
	cfg.Redis.Enabled = true
	cfg.Session.Store = "Redis"
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HTTP.Enabled {
		t.Fatalf("http listener must be on when payment is enabled")
	}
	if len(cfg.methods) != 1 || cfg.methods[0] != order.MethodQRIS {
		t.Fatalf("methods = %v", cfg.methods)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Session.Store != "redis" {
		t.Fatalf("redis = %+v, session = %+v", cfg.Redis, cfg.Session)
	}
}

func TestNormalizeFeeOverride(t *testing.T) {
	cfg := baseConfig()
	cfg.Pricing.Fees = map[string]FeeConfig{"QRIS": {Percent: "0.7"}}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.pricing.Fees[order.MethodQRIS].Percent.String(); got != "0.7" {
		t.Fatalf("qris percent = %s", got)
	}
	if cfg.pricing.Fees[order.MethodVA].Flat.IntPart() != 4400 {
		t.Fatalf("va fee lost on partial override")
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "telegram:\n  token: from-file\n  admin_id: 5\n" +
		"fx:\n  api_key: file-key\n  on_unavailable: last_known\n" +
		"pricing:\n  margin: \"0.02\"\n  fees:\n    virtual_account:\n      flat: \"5000\"\n" +
		"contact:\n  telegram: \"@liraku_admin\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("EXCHANGE_RATE_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.FX.APIKey != "env-key" {
		t.Fatalf("env did not override: token=%q key=%q", cfg.Telegram.Token, cfg.FX.APIKey)
	}
	if cfg.ratePolicy != rates.PolicyLastKnown {
		t.Fatalf("policy = %q", cfg.ratePolicy)
	}
	if cfg.pricing.Margin.String() != "0.02" {
		t.Fatalf("margin = %s", cfg.pricing.Margin)
	}
	if cfg.pricing.Fees[order.MethodVA].Flat.IntPart() != 5000 {
		t.Fatalf("va fee = %+v", cfg.pricing.Fees[order.MethodVA])
	}
	if cfg.Contact.Telegram != "@liraku_admin" || cfg.Order.AdminChatID != 5 {
		t.Fatalf("contact = %+v, order = %+v", cfg.Contact, cfg.Order)
	}
	if cfg.CoreConfig() != &cfg.Config {
		t.Fatalf("CoreConfig must expose the embedded config")
	}
}
