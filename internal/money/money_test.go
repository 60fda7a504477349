package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		cur  Currency
		in   string
		want string
	}{
		{IDR, "1000000", "Rp1.000.000"},
		{IDR, "100000", "Rp100.000"},
		{IDR, "999", "Rp999"},
		{TRY, "1234.5", "TRY 1,234.50"},
		{TRY, "9.37", "TRY 9.37"},
	}
	for _, tc := range cases {
		got := Format(tc.cur, decimal.RequireFromString(tc.in))
		if got != tc.want {
			t.Errorf("Format(%s, %s) = %q, want %q", tc.cur, tc.in, got, tc.want)
		}
	}
}

func TestPrecision(t *testing.T) {
	if IDR.Precision() != 0 || TRY.Precision() != 2 {
		t.Fatalf("unexpected precision")
	}
}
