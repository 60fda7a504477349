package flow

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/core/telegram/format"
	"github.com/liraku/lirabot/internal/money"
	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/pricing"
)

// Button is one inline button of a Reply. URL buttons ignore Action.
type Button struct {
	Text    string
	Action  Action
	Payload string
	URL     string
}

// Reply is what the bot shows the user. Text is HTML.
type Reply struct {
	Text    string
	Buttons [][]Button
}

const (
	msgSessionNotFound = "⌛ Sesi tidak ditemukan atau sudah berakhir. Ketik /start untuk memulai lagi."
	msgRateUnavailable = "⚠️ Maaf, kurs sedang tidak dapat diambil. Silakan coba lagi beberapa saat lagi."
	msgStaleRate       = "⚠️ Kurs live sedang tidak tersedia. Perhitungan memakai kurs terakhir yang diketahui dan dapat berubah saat verifikasi admin."
	msgUseButtons      = "Silakan pilih menggunakan tombol di bawah."
	msgUnexpected      = "Tombol ini sudah tidak berlaku untuk langkah saat ini."
	msgCancelled       = "❌ Transaksi dibatalkan."
	msgNoSession       = "Tidak ada transaksi yang sedang berjalan."
	msgInternal        = "⚠️ Maaf, terjadi gangguan. Silakan coba lagi atau hubungi admin."
	msgChargeFailed    = "⚠️ Maaf, pembayaran belum dapat dibuat. Silakan coba konfirmasi lagi atau pilih metode lain."
	msgRequoted        = "🔄 Kurs telah diperbarui karena penawaran sebelumnya sudah kedaluwarsa. Periksa kembali lalu konfirmasi."
)

func btn(text string, a Action) Button { return Button{Text: text, Action: a} }

var navRow = []Button{btn("⬅️ Kembali", ActionBack), btn("❌ Batal", ActionCancel)}

func (m *Machine) mainMenu(text string) Reply {
	if text == "" {
		text = "👋 Selamat datang di <b>LiraKu</b>!\n\nTukar Rupiah ke Lira Turki (dan sebaliknya) dengan kurs kompetitif.\nSilakan pilih menu:"
	}
	rows := [][]Button{{btn("🇹🇷 Beli Lira (IDR → TRY)", ActionBuy)}}
	if m.opts.SellEnabled {
		rows = append(rows, []Button{btn("🇮🇩 Jual Lira (TRY → IDR)", ActionSell)})
	}
	rows = append(rows,
		[]Button{btn("🧮 Simulasi kurs", ActionSimulate)},
		[]Button{btn("📞 Hubungi admin", ActionContact)},
	)
	return Reply{Text: text, Buttons: rows}
}

func backToMenu() [][]Button {
	return [][]Button{{btn("🏠 Menu utama", ActionMainMenu)}}
}

// prompt renders the question for s.Step from the fields s holds.
// The same session always renders the same reply.
func (m *Machine) prompt(s Session) Reply {
	switch s.Step {
	case StepAmount:
		return Reply{Text: m.amountPrompt(s.Flow), Buttons: [][]Button{navRow}}
	case StepName:
		text := quoteBlock(s.Quote) + "\n\n👤 Masukkan <b>nama lengkap penerima</b> sesuai rekening."
		return Reply{Text: text, Buttons: [][]Button{navRow}}
	case StepAccount:
		var b strings.Builder
		b.WriteString("👤 Penerima: <b>" + format.EscapeHTML(s.Name) + "</b>\n\n")
		if s.Flow == order.FlowBuy {
			b.WriteString("🏦 Masukkan <b>IBAN Turki</b> penerima (26 karakter, diawali TR).\nContoh: <code>TR330006100519786457841326</code>")
		} else {
			b.WriteString("🏦 Masukkan <b>nama bank dan nomor rekening</b> penerima.\nContoh: <code>BCA - 1234567890</code>")
		}
		return Reply{Text: b.String(), Buttons: [][]Button{navRow}}
	case StepMethod:
		return m.methodPrompt(s)
	case StepConfirm:
		return m.confirmPrompt(s)
	default:
		return m.mainMenu("")
	}
}

func (m *Machine) amountPrompt(f order.Flow) string {
	min := money.Format(f.Source(), m.opts.MinAmount[f])
	if f == order.FlowSell {
		return "💱 <b>Jual Lira (TRY → IDR)</b>\n\nMasukkan nominal Lira yang ingin ditukar.\nMinimal: " + min + "\nContoh: <code>1500</code> atau <code>1500,50</code>"
	}
	return "💱 <b>Beli Lira (IDR → TRY)</b>\n\nMasukkan nominal Rupiah yang ingin ditukar.\nMinimal: " + min + "\nContoh: <code>500000</code>"
}

func quoteBlock(q pricing.Quote) string {
	var b strings.Builder
	b.WriteString("📊 <b>Perhitungan</b>\n")
	fmt.Fprintf(&b, "Nominal: %s\n", money.Format(q.Flow.Source(), q.SourceAmount))
	fmt.Fprintf(&b, "Kurs: 1 TRY = %s\n", money.Format(money.IDR, q.IDRPerTRY()))
	fmt.Fprintf(&b, "Diterima: <b>%s</b>", money.Format(q.Flow.Target(), q.TargetAmount))
	if q.StaleRate {
		b.WriteString("\n\n" + msgStaleRate)
	}
	return b.String()
}

var methodActions = map[order.Method]Action{
	order.MethodQRIS:   ActionMethodQRIS,
	order.MethodVA:     ActionMethodVA,
	order.MethodManual: ActionMethodManual,
}

func (m *Machine) methodPrompt(s Session) Reply {
	var b strings.Builder
	b.WriteString("💳 <b>Pilih metode pembayaran</b>\n")
	rows := make([][]Button, 0, len(m.opts.Methods)+1)
	for _, method := range m.methods(s.Flow) {
		q := m.pricing.WithMethod(s.Quote, method)
		fee := "tanpa biaya"
		if !q.Fee.IsZero() {
			fee = "biaya " + money.Format(s.Flow.Source(), q.Fee)
		}
		fmt.Fprintf(&b, "\n• %s: %s", method.Label(), fee)
		rows = append(rows, []Button{btn(method.Label(), methodActions[method])})
	}
	rows = append(rows, navRow)
	return Reply{Text: b.String(), Buttons: rows}
}

func (m *Machine) confirmPrompt(s Session) Reply {
	q := s.Quote
	src := s.Flow.Source()
	var b strings.Builder
	b.WriteString("🧾 <b>Konfirmasi pesanan</b>\n\n")
	if s.Flow == order.FlowBuy {
		b.WriteString("Jenis: Beli Lira (IDR → TRY)\n")
	} else {
		b.WriteString("Jenis: Jual Lira (TRY → IDR)\n")
	}
	fmt.Fprintf(&b, "Nama penerima: %s\n", format.EscapeHTML(s.Name))
	if s.Account.Kind == order.AccountIBAN {
		fmt.Fprintf(&b, "IBAN: <code>%s</code>\n", s.Account.Number)
	} else {
		fmt.Fprintf(&b, "Rekening: <code>%s</code>\n", format.EscapeHTML(s.Account.String()))
	}
	fmt.Fprintf(&b, "Nominal: %s\n", money.Format(src, q.SourceAmount))
	fmt.Fprintf(&b, "Kurs: 1 TRY = %s\n", money.Format(money.IDR, q.IDRPerTRY()))
	fmt.Fprintf(&b, "Diterima: %s\n", money.Format(s.Flow.Target(), q.TargetAmount))
	fmt.Fprintf(&b, "Metode: %s\n", s.Method.Label())
	fmt.Fprintf(&b, "Biaya: %s\n", money.Format(src, q.Fee))
	fmt.Fprintf(&b, "<b>Total bayar: %s</b>\n\n", money.Format(src, q.Total))
	fmt.Fprintf(&b, "Kurs berlaku %d menit sejak ditampilkan.", int(m.pricing.QuoteTTL().Minutes()))
	if q.StaleRate {
		b.WriteString("\n\n" + msgStaleRate)
	}
	return Reply{Text: b.String(), Buttons: [][]Button{
		{btn("✅ Konfirmasi", ActionConfirm)},
		{btn("✏️ Data salah", ActionEdit)},
		navRow,
	}}
}

// withNotice prefixes the prompt for s with a notice line.
func (m *Machine) withNotice(notice string, s Session) Reply {
	r := m.prompt(s)
	r.Text = notice + "\n\n" + r.Text
	return r
}

func (m *Machine) orderPlaced(o order.Order) Reply {
	src := o.Flow.Source()
	var b strings.Builder
	b.WriteString("✅ <b>Pesanan diterima</b>\n\n")
	fmt.Fprintf(&b, "ID pesanan: <code>%s</code>\n", o.ID)
	fmt.Fprintf(&b, "Total bayar: <b>%s</b>\n\n", money.Format(src, o.Total))

	rows := [][]Button{}
	switch o.Method {
	case order.MethodQRIS:
		b.WriteString("Silakan scan QRIS melalui tombol di bawah. Status akan diperbarui otomatis setelah pembayaran berhasil.")
		if o.Payment.Reference != "" {
			rows = append(rows, []Button{{Text: "📷 Buka QRIS", URL: o.Payment.Reference}})
		}
	case order.MethodVA:
		bank := strings.ToUpper(o.Payment.Bank)
		fmt.Fprintf(&b, "Transfer ke Virtual Account %s:\n<code>%s</code>\n\n", bank, o.Payment.Reference)
		b.WriteString("Status akan diperbarui otomatis setelah pembayaran berhasil.")
	default:
		st := m.opts.Settlement
		if o.Flow == order.FlowSell {
			fmt.Fprintf(&b, "Transfer ke IBAN berikut:\n<code>%s</code>\na.n. %s\n\n", st.IBAN, format.EscapeHTML(st.IBANHolder))
		} else {
			fmt.Fprintf(&b, "Transfer ke rekening berikut:\n%s <code>%s</code>\na.n. %s\n\n",
				format.EscapeHTML(st.BankName), st.AccountNumber, format.EscapeHTML(st.AccountHolder))
		}
		b.WriteString("Setelah transfer, tekan tombol di bawah agar admin memverifikasi.")
		rows = append(rows, []Button{{Text: "💸 Saya sudah bayar", Action: ActionPaid, Payload: o.ID}})
	}
	rows = append(rows, backToMenu()...)
	return Reply{Text: b.String(), Buttons: rows}
}

func (m *Machine) simulationText(quotes []pricing.Quote) string {
	var b strings.Builder
	b.WriteString("🧮 <b>Simulasi kurs (IDR → TRY)</b>\n")
	if len(quotes) > 0 {
		fmt.Fprintf(&b, "Kurs: 1 TRY = %s\n", money.Format(money.IDR, quotes[0].IDRPerTRY()))
	}
	b.WriteString("\n")
	stale := false
	for _, q := range quotes {
		fmt.Fprintf(&b, "%s → <b>%s</b>\n", money.Format(money.IDR, q.SourceAmount), money.Format(money.TRY, q.TargetAmount))
		stale = stale || q.StaleRate
	}
	b.WriteString("\nBiaya metode pembayaran dihitung saat konfirmasi.")
	if stale {
		b.WriteString("\n\n" + msgStaleRate)
	}
	return b.String()
}

func (m *Machine) contactText() string {
	c := m.opts.Contact
	var b strings.Builder
	b.WriteString("📞 <b>Hubungi admin</b>\n")
	if c.Telegram != "" {
		fmt.Fprintf(&b, "\nTelegram: %s", format.EscapeHTML(c.Telegram))
	}
	if c.WhatsApp != "" {
		fmt.Fprintf(&b, "\nWhatsApp: %s", format.EscapeHTML(c.WhatsApp))
	}
	if c.Channel != "" {
		fmt.Fprintf(&b, "\nChannel: %s", format.EscapeHTML(c.Channel))
	}
	if c.Hours != "" {
		fmt.Fprintf(&b, "\n\nJam operasional: %s", format.EscapeHTML(c.Hours))
	}
	return b.String()
}

var defaultSimulation = []decimal.Decimal{
	decimal.NewFromInt(100_000),
	decimal.NewFromInt(500_000),
	decimal.NewFromInt(1_000_000),
	decimal.NewFromInt(2_000_000),
}
