// Package app loads the bot configuration and wires every component together.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	coreconfig "github.com/liraku/lirabot/core/config"
	coredatabase "github.com/liraku/lirabot/core/database"
	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/pricing"
	"github.com/liraku/lirabot/internal/rates"
)

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"HTTP_ENABLED"`
	Listen  string `yaml:"listen" envconfig:"HTTP_LISTEN"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"REDIS_ENABLED"`
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

type FXConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"FX_BASE_URL"`
	APIKey         string `yaml:"api_key" envconfig:"EXCHANGE_RATE_API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"FX_TIMEOUT_SECONDS"`
	Retries        int    `yaml:"retries" envconfig:"FX_RETRIES"`
	// OnUnavailable is fail_step or last_known.
	OnUnavailable    string `yaml:"on_unavailable" envconfig:"FX_ON_UNAVAILABLE"`
	LastKnownMaxAgeM int    `yaml:"last_known_max_age_minutes" envconfig:"FX_LAST_KNOWN_MAX_AGE_MINUTES"`
}

// FeeConfig is a per-method fee; decimals are strings so YAML keeps them exact.
type FeeConfig struct {
	Percent string `yaml:"percent"`
	Flat    string `yaml:"flat"`
}

type PricingConfig struct {
	Margin          string               `yaml:"margin" envconfig:"PRICING_MARGIN"`
	Rounding        string               `yaml:"rounding" envconfig:"PRICING_ROUNDING"`
	QuoteTTLSeconds int                  `yaml:"quote_ttl_seconds" envconfig:"QUOTE_TTL_SECONDS"`
	MinBuyIDR       string               `yaml:"min_buy_idr" envconfig:"MIN_BUY_IDR"`
	MinSellTRY      string               `yaml:"min_sell_try" envconfig:"MIN_SELL_TRY"`
	Fees            map[string]FeeConfig `yaml:"fees" ignored:"true"`
}

type PaymentConfig struct {
	Enabled        bool     `yaml:"enabled" envconfig:"MIDTRANS_ENABLED"`
	ServerKey      string   `yaml:"server_key" envconfig:"MIDTRANS_SERVER_KEY"`
	Production     bool     `yaml:"production" envconfig:"MIDTRANS_IS_PRODUCTION"`
	BaseURL        string   `yaml:"base_url" envconfig:"MIDTRANS_BASE_URL"`
	QRISAcquirer   string   `yaml:"qris_acquirer" envconfig:"MIDTRANS_QRIS_ACQUIRER"`
	VABank         string   `yaml:"va_bank" envconfig:"MIDTRANS_VA_BANK"`
	TimeoutSeconds int      `yaml:"timeout_seconds" envconfig:"MIDTRANS_TIMEOUT_SECONDS"`
	Methods        []string `yaml:"methods" envconfig:"PAYMENT_METHODS"`
}

type LedgerConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"LEDGER_ENABLED"`
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"GOOGLE_SHEETS_ID"`
	Sheet           string `yaml:"sheet" envconfig:"GOOGLE_SHEETS_TAB"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"GOOGLE_CREDENTIALS_FILE"`
	CredentialsJSON string `yaml:"credentials_json" envconfig:"GOOGLE_CREDENTIALS_JSON"`
	Timezone        string `yaml:"timezone" envconfig:"LEDGER_TIMEZONE"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" envconfig:"LEDGER_TIMEOUT_SECONDS"`
}

type EventsConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"EVENTS_ENABLED"`
	URL      string `yaml:"url" envconfig:"RABBITMQ_URL"`
	Exchange string `yaml:"exchange" envconfig:"EVENTS_EXCHANGE"`
}

type SettlementConfig struct {
	BankName      string `yaml:"bank_name" envconfig:"SETTLEMENT_BANK_NAME"`
	AccountNumber string `yaml:"account_number" envconfig:"SETTLEMENT_ACCOUNT_NUMBER"`
	AccountHolder string `yaml:"account_holder" envconfig:"SETTLEMENT_ACCOUNT_HOLDER"`
	IBAN          string `yaml:"iban" envconfig:"SETTLEMENT_IBAN"`
	IBANHolder    string `yaml:"iban_holder" envconfig:"SETTLEMENT_IBAN_HOLDER"`
}

type ContactConfig struct {
	Telegram string `yaml:"telegram" envconfig:"ADMIN_TELEGRAM"`
	WhatsApp string `yaml:"whatsapp" envconfig:"ADMIN_WHATSAPP"`
	Channel  string `yaml:"channel" envconfig:"TELEGRAM_CHANNEL"`
	Hours    string `yaml:"hours" envconfig:"CONTACT_HOURS"`
}

type SessionConfig struct {
	// Store is memory or redis.
	Store      string `yaml:"store" envconfig:"SESSION_STORE"`
	TTLMinutes int    `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
	// SweepSchedule is a cron spec for pruning idle memory sessions.
	SweepSchedule string `yaml:"sweep_schedule" envconfig:"SESSION_SWEEP_SCHEDULE"`
}

type OrderConfig struct {
	IDPrefix    string `yaml:"id_prefix" envconfig:"ORDER_ID_PREFIX"`
	SellEnabled bool   `yaml:"sell_enabled" envconfig:"SELL_ENABLED"`
	// AdminChatID receives order notices; defaults to telegram.admin_id.
	AdminChatID int64 `yaml:"admin_chat_id" envconfig:"ADMIN_CHAT_ID"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	HTTP       HTTPConfig          `yaml:"http"`
	Database   coredatabase.Config `yaml:"database"`
	Redis      RedisConfig         `yaml:"redis"`
	FX         FXConfig            `yaml:"fx"`
	Pricing    PricingConfig       `yaml:"pricing"`
	Payment    PaymentConfig       `yaml:"payment"`
	Ledger     LedgerConfig        `yaml:"ledger"`
	Events     EventsConfig        `yaml:"events"`
	Settlement SettlementConfig    `yaml:"settlement"`
	Contact    ContactConfig       `yaml:"contact"`
	Session    SessionConfig       `yaml:"session"`
	Order      OrderConfig         `yaml:"order"`

	// parsed by Normalize
	pricing    pricing.Config
	minBuy     decimal.Decimal
	minSell    decimal.Decimal
	methods    []order.Method
	ratePolicy rates.Policy
	ledgerLoc  *time.Location
}

// CoreConfig implements core/cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads path (optional), .env and the environment, then normalizes.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var defaultFees = map[order.Method]pricing.MethodFee{
	order.MethodQRIS:   {Percent: decimal.RequireFromString("0.77")},
	order.MethodVA:     {Flat: decimal.NewFromInt(4400)},
	order.MethodManual: {},
}

func parseDecimal(field, raw string, def decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a number", field, raw)
	}
	return d, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	if cfg.Payment.Enabled {
		if strings.TrimSpace(cfg.Payment.ServerKey) == "" {
			return fmt.Errorf("payment.server_key is required when payment is enabled")
		}
		// notifications need the listener
		cfg.HTTP.Enabled = true
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "lirabot:"
	}

	if strings.TrimSpace(cfg.FX.APIKey) == "" {
		return fmt.Errorf("fx.api_key is required")
	}
	policy, err := rates.ParsePolicy(strings.ToLower(strings.TrimSpace(cfg.FX.OnUnavailable)))
	if err != nil {
		return err
	}
	cfg.ratePolicy = policy

	margin, err := parseDecimal("pricing.margin", cfg.Pricing.Margin, decimal.RequireFromString("0.035"))
	if err != nil {
		return err
	}
	fees := make(map[order.Method]pricing.MethodFee, len(defaultFees))
	for m, f := range defaultFees {
		fees[m] = f
	}
	for name, fc := range cfg.Pricing.Fees {
		m := order.Method(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := defaultFees[m]; !ok {
			return fmt.Errorf("pricing.fees: unknown method %q", name)
		}
		pct, err := parseDecimal("pricing.fees."+name+".percent", fc.Percent, decimal.Zero)
		if err != nil {
			return err
		}
		flat, err := parseDecimal("pricing.fees."+name+".flat", fc.Flat, decimal.Zero)
		if err != nil {
			return err
		}
		fees[m] = pricing.MethodFee{Percent: pct, Flat: flat}
	}
	cfg.pricing = pricing.Config{
		Margin:   margin,
		Fees:     fees,
		Rounding: pricing.Rounding(strings.ToLower(strings.TrimSpace(cfg.Pricing.Rounding))),
		QuoteTTL: time.Duration(cfg.Pricing.QuoteTTLSeconds) * time.Second,
	}
	if _, err := pricing.NewEngine(cfg.pricing); err != nil {
		return err
	}
	if cfg.minBuy, err = parseDecimal("pricing.min_buy_idr", cfg.Pricing.MinBuyIDR, decimal.NewFromInt(100000)); err != nil {
		return err
	}
	if cfg.minSell, err = parseDecimal("pricing.min_sell_try", cfg.Pricing.MinSellTRY, decimal.NewFromInt(100)); err != nil {
		return err
	}

	names := cfg.Payment.Methods
	if len(names) == 0 {
		names = []string{string(order.MethodQRIS), string(order.MethodVA), string(order.MethodManual)}
	}
	cfg.methods = cfg.methods[:0]
	for _, n := range names {
		m := order.Method(strings.ToLower(strings.TrimSpace(n)))
		if _, ok := defaultFees[m]; !ok {
			return fmt.Errorf("payment.methods: unknown method %q", n)
		}
		cfg.methods = append(cfg.methods, m)
	}

	if cfg.Ledger.Enabled {
		if cfg.Ledger.SpreadsheetID == "" {
			return fmt.Errorf("ledger.spreadsheet_id is required when the ledger is enabled")
		}
		if cfg.Ledger.CredentialsFile == "" && cfg.Ledger.CredentialsJSON == "" {
			return fmt.Errorf("ledger credentials_file or credentials_json is required")
		}
	}
	tz := cfg.Ledger.Timezone
	if tz == "" {
		tz = "Asia/Jakarta"
	}
	if cfg.ledgerLoc, err = time.LoadLocation(tz); err != nil {
		if cfg.Ledger.Timezone != "" {
			return fmt.Errorf("ledger.timezone: %w", err)
		}
		// hosts without tzdata
		cfg.ledgerLoc = time.FixedZone("WIB", 7*3600)
	}

	if cfg.Events.Enabled && cfg.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}

	switch cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store)); cfg.Session.Store {
	case "":
		cfg.Session.Store = "memory"
	case "memory":
	case "redis":
		if !cfg.Redis.Enabled {
			return fmt.Errorf("session.store redis needs redis.enabled")
		}
	default:
		return fmt.Errorf("invalid session.store %q; allowed: memory, redis", cfg.Session.Store)
	}
	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = 30
	}
	if cfg.Session.SweepSchedule == "" {
		cfg.Session.SweepSchedule = "@every 5m"
	}
	if _, err := cron.ParseStandard(cfg.Session.SweepSchedule); err != nil {
		return fmt.Errorf("session.sweep_schedule: %w", err)
	}

	if cfg.Order.IDPrefix == "" {
		cfg.Order.IDPrefix = order.DefaultIDPrefix
	}
	if strings.Contains(cfg.Order.IDPrefix, "_") {
		return fmt.Errorf("order.id_prefix must not contain '_'")
	}
	if cfg.Order.AdminChatID == 0 {
		cfg.Order.AdminChatID = cfg.Telegram.AdminID
	}
	return nil
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(n) * time.Second
}
