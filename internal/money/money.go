// Package money holds the currencies the bot trades and their display rules.
package money

import (
	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code.
type Currency string

const (
	IDR Currency = "IDR"
	TRY Currency = "TRY"
)

// Precision is the number of minor digits amounts are kept at.
func (c Currency) Precision() int32 {
	if c == TRY {
		return 2
	}
	return 0
}

var formatters = map[Currency]accounting.Accounting{
	IDR: {Symbol: "Rp", Precision: 0, Thousand: ".", Decimal: ",", Format: "%s%v"},
	TRY: {Symbol: "TRY", Precision: 2, Thousand: ",", Decimal: ".", Format: "%s %v"},
}

// Format renders amount for chat messages and the ledger, e.g. Rp1.000.000 or TRY 9.37.
func Format(c Currency, amount decimal.Decimal) string {
	ac, ok := formatters[c]
	if !ok {
		return amount.StringFixed(c.Precision()) + " " + string(c)
	}
	return ac.FormatMoneyFloat64(amount.Round(c.Precision()).InexactFloat64())
}
