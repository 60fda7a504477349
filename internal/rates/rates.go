// Package rates fetches base FX rates and applies the policy for when the
// upstream source is unavailable.
package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/money"
)

// ErrUnavailable marks every failure to obtain a usable rate.
var ErrUnavailable = errors.New("rates: rate unavailable")

// Rate is the value of one unit of From expressed in To.
type Rate struct {
	From      money.Currency  `json:"from"`
	To        money.Currency  `json:"to"`
	Value     decimal.Decimal `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Source    string          `json:"source"`
	// Stale is set when the rate is a last-known value served during an outage.
	Stale bool `json:"stale,omitempty"`
}

// Provider returns the current rate for a currency pair.
type Provider interface {
	Rate(ctx context.Context, from, to money.Currency) (Rate, error)
}

// UnavailableError carries the reason a provider could not deliver.
type UnavailableError struct {
	Source string
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rates: %s unavailable: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("rates: %s unavailable: %s", e.Source, e.Reason)
}

func (e *UnavailableError) Code() string { return "RATE_UNAVAILABLE" }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }
