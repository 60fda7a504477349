package sink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/liraku/lirabot/core/telegram/format"
	"github.com/liraku/lirabot/internal/money"
	"github.com/liraku/lirabot/internal/order"
)

func userLabel(o order.Order) string {
	id := strconv.FormatInt(o.UserID, 10)
	if o.Username == "" {
		return id
	}
	return "@" + format.EscapeHTML(o.Username) + " (" + id + ")"
}

func newOrderNotice(o order.Order) string {
	src, dst := o.Flow.Source(), o.Flow.Target()
	var b strings.Builder
	b.WriteString("🆕 <b>Pesanan baru</b>\n\n")
	fmt.Fprintf(&b, "ID: <code>%s</code>\n", o.ID)
	fmt.Fprintf(&b, "User: %s\n", userLabel(o))
	fmt.Fprintf(&b, "Arah: %s → %s\n", src, dst)
	fmt.Fprintf(&b, "Nominal: %s\n", money.Format(src, o.SourceAmount))
	fmt.Fprintf(&b, "Diterima: %s\n", money.Format(dst, o.TargetAmount))
	fmt.Fprintf(&b, "Biaya: %s\n", money.Format(src, o.Fee))
	fmt.Fprintf(&b, "Total bayar: <b>%s</b>\n", money.Format(src, o.Total))
	fmt.Fprintf(&b, "Kurs: %s (dasar %s)\n", o.QuotedRate.String(), o.BaseRate.String())
	fmt.Fprintf(&b, "Penerima: %s\n", format.EscapeHTML(o.RecipientName))
	fmt.Fprintf(&b, "Rekening: <code>%s</code>\n", format.EscapeHTML(o.Account.String()))
	fmt.Fprintf(&b, "Metode: %s\n", o.Method.Label())
	fmt.Fprintf(&b, "Status: %s", o.Status)
	return b.String()
}

func statusNotice(o order.Order, prev order.Status, source string) string {
	return fmt.Sprintf("🔔 Pesanan <code>%s</code>: %s → <b>%s</b>\nSumber: %s",
		o.ID, prev, o.Status, format.EscapeHTML(source))
}

// userNotice returns the message sent to the customer, if the status warrants one.
func userNotice(o order.Order) (string, bool) {
	switch o.Status {
	case order.StatusPaid:
		return fmt.Sprintf("✅ Pembayaran untuk pesanan <code>%s</code> sudah kami terima.\n%s akan segera dikirim ke rekening tujuan.",
			o.ID, money.Format(o.Flow.Target(), o.TargetAmount)), true
	case order.StatusFailed:
		return fmt.Sprintf("❌ Pembayaran untuk pesanan <code>%s</code> gagal atau kedaluwarsa.\nKetik /start untuk membuat pesanan baru.", o.ID), true
	default:
		return "", false
	}
}
