package validate

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/money"
	"github.com/liraku/lirabot/internal/order"
)

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Message == "" {
		t.Fatalf("validation error without user message")
	}
	return ve.Kind
}

func TestAmountIDR(t *testing.T) {
	min := decimal.NewFromInt(100000)
	cases := []struct {
		in   string
		want string
		kind Kind
	}{
		{"1000000", "1000000", ""},
		{"1.000.000", "1000000", ""},
		{"Rp 1.000.000", "1000000", ""},
		{"rp250,000", "250000", ""},
		{"100000", "100000", ""},
		{"99999", "", TooSmall},
		{"0", "", TooSmall},
		{"", "", BadFormat},
		{"satu juta", "", BadFormat},
		{"-500000", "", BadFormat},
		{"1e6", "", BadFormat},
		{"150.000,00", "150000", ""},
		{"Rp 150.000,0", "150000", ""},
		{"150000.00", "150000", ""},
		{"500.000,50", "", BadFormat},
		{"Rp 500.000,50", "", BadFormat},
		{"150000,5", "", BadFormat},
	}
	for _, tc := range cases {
		got, err := Amount(tc.in, money.IDR, min)
		if tc.kind != "" {
			if k := kindOf(t, err); k != tc.kind {
				t.Errorf("Amount(%q) kind = %s, want %s", tc.in, k, tc.kind)
			}
			continue
		}
		if err != nil {
			t.Errorf("Amount(%q) unexpected error %v", tc.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("Amount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestAmountTRY(t *testing.T) {
	min := decimal.NewFromInt(100)
	cases := []struct {
		in   string
		want string
		kind Kind
	}{
		{"1500", "1500", ""},
		{"1500,50", "1500.5", ""},
		{"1500.5", "1500.5", ""},
		{"1.500", "1500", ""},
		{"1,500", "1500", ""},
		{"1.500,25", "1500.25", ""},
		{"1,500.25", "1500.25", ""},
		{"₺ 250", "250", ""},
		{"250 TRY", "250", ""},
		{"100", "100", ""},
		{"99,99", "", TooSmall},
		{"12.345,678", "", BadFormat},
		{"150.", "", BadFormat},
		{"abc", "", BadFormat},
		{"", "", BadFormat},
	}
	for _, tc := range cases {
		got, err := Amount(tc.in, money.TRY, min)
		if tc.kind != "" {
			if k := kindOf(t, err); k != tc.kind {
				t.Errorf("Amount(%q) kind = %s, want %s", tc.in, k, tc.kind)
			}
			continue
		}
		if err != nil {
			t.Errorf("Amount(%q) unexpected error %v", tc.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("Amount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestName(t *testing.T) {
	if got, err := Name("  Budi   Santoso "); err != nil || got != "Budi Santoso" {
		t.Fatalf("Name = %q, %v", got, err)
	}
	for _, in := range []string{"", " ", "A", " b "} {
		_, err := Name(in)
		if k := kindOf(t, err); k != TooShort {
			t.Errorf("Name(%q) kind = %s", in, k)
		}
	}
}

func TestAccountIBAN(t *testing.T) {
	got, err := Account("tr33 0006 1005 1978 6457 8413 26", order.FlowBuy)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got.Number != "TR330006100519786457841326" || got.Kind != order.AccountIBAN {
		t.Fatalf("unexpected account %+v", got)
	}
	cases := []struct {
		in   string
		kind Kind
	}{
		{"TR1", TooShort},
		{"", TooShort},
		{"DE89370400440532013000", BadFormat},
		{"TR33000610051978645784132", BadFormat},
		{"TR3300061005197864578413AB", BadFormat},
	}
	for _, tc := range cases {
		_, err := Account(tc.in, order.FlowBuy)
		if k := kindOf(t, err); k != tc.kind {
			t.Errorf("Account(%q) kind = %s, want %s", tc.in, k, tc.kind)
		}
	}
}

func TestAccountBank(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BCA - 1234567890", "BCA - 1234567890"},
		{"bca:1234567890", "BCA - 1234567890"},
		{"Mandiri / 123 456 7890", "MANDIRI - 1234567890"},
		{"BCA 1234567890", "BCA - 1234567890"},
		{"Bank Jago | 100200", "BANK JAGO - 100200"},
	}
	for _, tc := range cases {
		got, err := Account(tc.in, order.FlowSell)
		if err != nil {
			t.Errorf("Account(%q) unexpected error %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("Account(%q) = %q, want %q", tc.in, got.String(), tc.want)
		}
		again, err := Account(got.String(), order.FlowSell)
		if err != nil || again != got {
			t.Errorf("normalized %q did not validate to itself: %+v, %v", got.String(), again, err)
		}
	}
	for _, in := range []string{"BCA", "1234"} {
		if k := kindOf(t, mustFail(Account(in, order.FlowSell))); k != TooShort {
			t.Errorf("Account(%q) kind = %s", in, k)
		}
	}
	for _, in := range []string{"1234567890", "BCA - 12ab34", "- 1234567", "B2A - 1234567"} {
		if k := kindOf(t, mustFail(Account(in, order.FlowSell))); k != BadFormat {
			t.Errorf("Account(%q) kind = %s", in, k)
		}
	}
}

func mustFail(_ order.Account, err error) error { return err }
