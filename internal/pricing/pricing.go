// Package pricing turns a base FX rate into the rate and amounts a customer is quoted.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/money"
	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/rates"
)

// Rounding selects how target amounts are cut to currency precision.
type Rounding string

const (
	RoundFloor  Rounding = "floor"
	RoundHalfUp Rounding = "half_up"
)

const DefaultQuoteTTL = 5 * time.Minute

var (
	ErrInvalidAmount = errors.New("pricing: amount must be positive")
	ErrInvalidRate   = errors.New("pricing: rate must be positive")
)

var hundred = decimal.NewFromInt(100)

// MethodFee is charged in the source currency on top of the principal.
type MethodFee struct {
	Percent decimal.Decimal
	Flat    decimal.Decimal
}

// Config is the pricing policy.
type Config struct {
	// Margin is a fraction, 0.035 for 3.5%.
	Margin   decimal.Decimal
	Fees     map[order.Method]MethodFee
	Rounding Rounding
	QuoteTTL time.Duration
}

// Quote is a point-in-time pricing result. A zero QuotedAt means no quote.
// BaseRate and QuotedRate are TRY per 1 IDR for both flows.
type Quote struct {
	Flow         order.Flow      `json:"flow"`
	Method       order.Method    `json:"method,omitempty"`
	BaseRate     decimal.Decimal `json:"base_rate"`
	QuotedRate   decimal.Decimal `json:"quoted_rate"`
	SourceAmount decimal.Decimal `json:"source_amount"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	Fee          decimal.Decimal `json:"fee"`
	Total        decimal.Decimal `json:"total"`
	QuotedAt     time.Time       `json:"quoted_at"`
	StaleRate    bool            `json:"stale_rate,omitempty"`
}

// IsZero reports whether q holds no quote.
func (q Quote) IsZero() bool { return q.QuotedAt.IsZero() }

// IDRPerTRY is the customer-facing rate: rupiah per one lira.
func (q Quote) IDRPerTRY() decimal.Decimal {
	if q.QuotedRate.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(q.QuotedRate).Round(money.IDR.Precision())
}

// Engine computes quotes. It is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and fills defaults.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Margin.IsNegative() || cfg.Margin.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("pricing: margin %s out of range [0,1)", cfg.Margin)
	}
	switch cfg.Rounding {
	case "":
		cfg.Rounding = RoundFloor
	case RoundFloor, RoundHalfUp:
	default:
		return nil, fmt.Errorf("pricing: unknown rounding %q", cfg.Rounding)
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = DefaultQuoteTTL
	}
	fees := make(map[order.Method]MethodFee, len(cfg.Fees))
	for m, f := range cfg.Fees {
		if f.Percent.IsNegative() || f.Flat.IsNegative() {
			return nil, fmt.Errorf("pricing: negative fee for %s", m)
		}
		fees[m] = f
	}
	cfg.Fees = fees
	return &Engine{cfg: cfg}, nil
}

// QuoteTTL is how long a shown quote may be honored.
func (e *Engine) QuoteTTL() time.Duration { return e.cfg.QuoteTTL }

// Quote prices amount (in the flow's source currency) at rate.
// An empty method quotes without a method fee.
func (e *Engine) Quote(flow order.Flow, method order.Method, amount decimal.Decimal, rate rates.Rate, now time.Time) (Quote, error) {
	if amount.Sign() <= 0 {
		return Quote{}, ErrInvalidAmount
	}
	if rate.Value.Sign() <= 0 {
		return Quote{}, ErrInvalidRate
	}
	one := decimal.NewFromInt(1)
	q := Quote{
		Flow:         flow,
		BaseRate:     rate.Value,
		SourceAmount: amount,
		QuotedAt:     now,
		StaleRate:    rate.Stale,
	}
	switch flow {
	case order.FlowBuy:
		q.QuotedRate = rate.Value.Mul(one.Sub(e.cfg.Margin))
		q.TargetAmount = e.round(amount.Mul(q.QuotedRate), flow.Target())
	case order.FlowSell:
		q.QuotedRate = rate.Value.Mul(one.Add(e.cfg.Margin))
		q.TargetAmount = e.round(amount.Div(q.QuotedRate), flow.Target())
	default:
		return Quote{}, fmt.Errorf("pricing: unknown flow %q", flow)
	}
	return e.WithMethod(q, method), nil
}

// WithMethod recomputes fee and total of q for method without touching the rate.
func (e *Engine) WithMethod(q Quote, method order.Method) Quote {
	q.Method = method
	q.Fee = decimal.Zero
	if f, ok := e.cfg.Fees[method]; ok && method != "" {
		pct := q.SourceAmount.Mul(f.Percent).Div(hundred).Round(q.Flow.Source().Precision())
		q.Fee = pct.Add(f.Flat)
	}
	q.Total = q.SourceAmount.Add(q.Fee)
	return q
}

// Stale reports whether q is too old to be honored at now.
func (e *Engine) Stale(q Quote, now time.Time) bool {
	if q.IsZero() {
		return true
	}
	return now.Sub(q.QuotedAt) > e.cfg.QuoteTTL
}

func (e *Engine) round(d decimal.Decimal, c money.Currency) decimal.Decimal {
	if e.cfg.Rounding == RoundHalfUp {
		return d.Round(c.Precision())
	}
	return d.RoundFloor(c.Precision())
}
