// Package validate parses and checks user input. Every function is pure.
package validate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/money"
	"github.com/liraku/lirabot/internal/order"
)

// Kind classifies a validation failure.
type Kind string

const (
	TooSmall  Kind = "too_small"
	BadFormat Kind = "bad_format"
	TooShort  Kind = "too_short"
)

// Field names the input that failed.
type Field string

const (
	FieldAmount  Field = "amount"
	FieldName    Field = "name"
	FieldAccount Field = "account"
)

// ValidationError describes rejected input. Message is shown to the user.
type ValidationError struct {
	Field   Field
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Field, e.Kind)
}

// Code is used by handler logs.
func (e *ValidationError) Code() string {
	return "INVALID_" + strings.ToUpper(string(e.Field))
}

const (
	minNameRunes    = 2
	minAccountChars = 5
	ibanLength      = 26
)

// Amount parses raw as an amount in currency and checks it against min.
// IDR accepts whole numbers with optional "Rp" and thousands separators; a
// trailing ",00" is allowed but any non-zero decimal part is rejected.
// TRY accepts up to two decimals; when both '.' and ',' appear the last one
// is the decimal separator, and a single separator followed by exactly three
// digits is read as a thousands separator.
func Amount(raw string, currency money.Currency, min decimal.Decimal) (decimal.Decimal, error) {
	var (
		amount decimal.Decimal
		ok     bool
	)
	switch currency {
	case money.IDR:
		amount, ok = parseIDR(raw)
	default:
		amount, ok = parseTRY(raw)
	}
	if !ok {
		return decimal.Zero, &ValidationError{
			Field:   FieldAmount,
			Kind:    BadFormat,
			Message: badAmountMessage(currency),
		}
	}
	if amount.LessThan(min) {
		return decimal.Zero, &ValidationError{
			Field:   FieldAmount,
			Kind:    TooSmall,
			Message: "Minimal transaksi adalah " + money.Format(currency, min) + ".",
		}
	}
	return amount, nil
}

func badAmountMessage(c money.Currency) string {
	if c == money.IDR {
		return "Format nominal tidak valid. Kirim angka saja, contoh: 1000000 atau 1.000.000."
	}
	return "Format nominal tidak valid. Kirim angka dengan maksimal 2 desimal, contoh: 1500 atau 1500,50."
}

func parseIDR(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.EqualFold(s[:2], "rp") {
		s = s[2:]
	}
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	// "150.000,00": a last separator followed by one or two digits starts a
	// decimal part, which must be zero since rupiah have no cents.
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		if frac := s[i+1:]; len(frac) > 0 && len(frac) <= 2 && allDigits(frac) {
			if strings.Trim(frac, "0") != "" {
				return decimal.Zero, false
			}
			s = s[:i]
		}
	}
	s = strings.Map(func(r rune) rune {
		if r == '.' || r == ',' {
			return -1
		}
		return r
	}, s)
	if !allDigits(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseTRY(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "₺"), "₺")
	if len(s) >= 3 && strings.EqualFold(s[len(s)-3:], "try") {
		s = s[:len(s)-3]
	}
	if len(s) >= 3 && strings.EqualFold(s[:3], "try") {
		s = s[3:]
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}

	intPart, frac := s, ""
	lastDot, lastComma := strings.LastIndexByte(s, '.'), strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep := lastDot
		if lastComma > lastDot {
			sep = lastComma
		}
		intPart, frac = s[:sep], s[sep+1:]
	case lastDot >= 0 || lastComma >= 0:
		sep, ch := lastDot, "."
		if lastComma >= 0 {
			sep, ch = lastComma, ","
		}
		tail := s[sep+1:]
		if strings.Count(s, ch) > 1 || (len(tail) == 3 && allDigits(tail)) {
			// thousands grouping only
			intPart = s
		} else {
			intPart, frac = s[:sep], tail
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if !allDigits(intPart) || (frac != "" && !allDigits(frac)) || len(frac) > 2 {
		return decimal.Zero, false
	}
	if frac == "" && strings.ContainsAny(s[len(s)-1:], ".,") {
		return decimal.Zero, false
	}
	num := intPart
	if frac != "" {
		num += "." + frac
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Name trims raw and requires at least two characters.
func Name(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(name) < minNameRunes {
		return "", &ValidationError{
			Field:   FieldName,
			Kind:    TooShort,
			Message: "Nama terlalu pendek. Masukkan nama lengkap penerima.",
		}
	}
	return name, nil
}

// Account checks the payout account for flow. Buy orders are paid out to a
// Turkish IBAN; sell orders to an Indonesian bank account written as
// "BANK - NUMBER". The normalized result validates to itself.
func Account(raw string, flow order.Flow) (order.Account, error) {
	if flow == order.FlowBuy {
		return iban(raw)
	}
	return bankAccount(raw)
}

func iban(raw string) (order.Account, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if len(s) < minAccountChars {
		return order.Account{}, &ValidationError{
			Field:   FieldAccount,
			Kind:    TooShort,
			Message: "IBAN terlalu pendek. IBAN Turki terdiri dari 26 karakter, diawali TR.",
		}
	}
	if len(s) != ibanLength || !strings.HasPrefix(s, "TR") || !allDigits(s[2:]) {
		return order.Account{}, &ValidationError{
			Field:   FieldAccount,
			Kind:    BadFormat,
			Message: "Format IBAN tidak valid. Contoh: TR330006100519786457841326.",
		}
	}
	return order.Account{Kind: order.AccountIBAN, Number: s}, nil
}

func bankAccount(raw string) (order.Account, error) {
	s := strings.TrimSpace(raw)
	if utf8.RuneCountInString(s) < minAccountChars {
		return order.Account{}, &ValidationError{
			Field:   FieldAccount,
			Kind:    TooShort,
			Message: "Data rekening terlalu pendek. Contoh: BCA - 1234567890.",
		}
	}
	bad := &ValidationError{
		Field:   FieldAccount,
		Kind:    BadFormat,
		Message: "Format rekening tidak valid. Kirim nama bank dan nomor rekening, contoh: BCA - 1234567890.",
	}
	sep := strings.IndexAny(s, "-:/|,")
	if sep < 0 {
		// "BCA 1234567890"
		fields := strings.Fields(s)
		if len(fields) < 2 {
			return order.Account{}, bad
		}
		sep = strings.LastIndex(s, fields[len(fields)-1]) - 1
	}
	bank := strings.Join(strings.Fields(s[:sep]), " ")
	number := strings.Join(strings.Fields(s[sep+1:]), "")
	if bank == "" || !allDigits(number) {
		return order.Account{}, bad
	}
	for _, r := range bank {
		if !unicode.IsLetter(r) && r != ' ' {
			return order.Account{}, bad
		}
	}
	return order.Account{Kind: order.AccountBank, Bank: strings.ToUpper(bank), Number: number}, nil
}
