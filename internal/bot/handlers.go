// Package bot connects the exchange flow to Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/liraku/lirabot/core/logger"
	tg "github.com/liraku/lirabot/core/telegram"
	"github.com/liraku/lirabot/core/telegram/callbacks"
	"github.com/liraku/lirabot/core/telegram/format"
	tghelpers "github.com/liraku/lirabot/core/telegram/helpers"
	"github.com/liraku/lirabot/core/telegram/keyboard"
	"github.com/liraku/lirabot/internal/flow"
	"github.com/liraku/lirabot/internal/order"

	tele "gopkg.in/telebot.v4"
)

// Flow is the conversation engine behind the bot.
type Flow interface {
	Start(ctx context.Context, u flow.User) (flow.Reply, error)
	Cancel(ctx context.Context, u flow.User) (flow.Reply, error)
	Text(ctx context.Context, u flow.User, text string) (flow.Reply, error)
	Press(ctx context.Context, u flow.User, a flow.Action, payload string) (flow.Reply, error)
}

// Orders applies admin status overrides.
type Orders interface {
	Transition(ctx context.Context, orderID string, next order.Status, source string) (order.Order, error)
}

const (
	msgAdminOnly   = "⛔ Perintah ini khusus admin."
	msgTooFast     = "⏳ Terlalu cepat, coba lagi sebentar."
	msgTextOnly    = "Silakan kirim teks atau gunakan tombol menu."
	msgUnknownBtn  = "Tombol tidak dikenali. Ketik /start untuk memulai lagi."
	msgStatusUsage = "Format: <code>/status ORDER_ID paid|failed|cancelled</code>"
)

// Handlers owns the Telegram handlers of the bot.
type Handlers struct {
	flow   Flow
	orders Orders
}

// New returns Handlers. orders may be nil, which disables /status.
func New(f Flow, orders Orders) *Handlers {
	return &Handlers{flow: f, orders: orders}
}

// Register adds commands, one callback per flow action and the text fallback.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := map[string]tg.Command{
		"/start":  {Handler: h.start, Description: "Mulai atau kembali ke menu utama"},
		"/cancel": {Handler: h.cancel, Description: "Batalkan transaksi yang sedang berjalan"},
	}
	if h.orders != nil {
		cmds["/status"] = tg.Command{Handler: h.status, Description: "Ubah status pesanan", AdminOnly: true}
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return err
		}
	}
	for _, a := range flow.Actions() {
		if err := reg.RegisterCallback(string(a), h.press); err != nil {
			return err
		}
	}
	reg.SetTextFallback(h.text)
	reg.SetCallbackNotFound(func(c tele.Context) error {
		_ = c.Respond(&tele.CallbackResponse{Text: "Tombol tidak dikenali"})
		return tghelpers.SendHTML(c, msgUnknownBtn, nil)
	})
	return nil
}

func userOf(c tele.Context) flow.User {
	s := c.Sender()
	if s == nil {
		return flow.User{}
	}
	return flow.User{ID: s.ID, Username: s.Username}
}

// Markup converts reply buttons into an inline keyboard.
func Markup(r flow.Reply) *tele.ReplyMarkup {
	if len(r.Buttons) == 0 {
		return nil
	}
	rows := make([][]keyboard.InlineBtn, 0, len(r.Buttons))
	for _, row := range r.Buttons {
		out := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			out = append(out, keyboard.InlineBtn{Text: b.Text, Unique: string(b.Action), Data: b.Payload, URL: b.URL})
		}
		rows = append(rows, out)
	}
	return keyboard.InlineButtonsRows(rows...)
}

// reply sends r and passes err through so the handler summary records it.
func reply(c tele.Context, edit bool, r flow.Reply, err error) error {
	send := tghelpers.SendHTML
	if edit {
		send = tghelpers.EditOrSendHTML
	}
	if r.Text != "" {
		if sendErr := send(c, r.Text, Markup(r)); sendErr != nil {
			return errors.Join(err, sendErr)
		}
	}
	return err
}

func (h *Handlers) start(c tele.Context) error {
	r, err := h.flow.Start(tghelpers.BuildContext(c), userOf(c))
	return reply(c, false, r, err)
}

func (h *Handlers) cancel(c tele.Context) error {
	r, err := h.flow.Cancel(tghelpers.BuildContext(c), userOf(c))
	return reply(c, false, r, err)
}

func (h *Handlers) text(c tele.Context) error {
	r, err := h.flow.Text(tghelpers.BuildContext(c), userOf(c), c.Text())
	return reply(c, false, r, err)
}

func (h *Handlers) press(c tele.Context) error {
	key, payload := callbacks.Parse(c.Callback())
	a, err := flow.ParseAction(key)
	if err != nil {
		return reply(c, false, flow.Reply{Text: msgUnknownBtn}, err)
	}
	r, err := h.flow.Press(tghelpers.BuildContext(c), userOf(c), a, payload)
	return reply(c, true, r, err)
}

// OnAdminReject answers non-admins who try an admin command.
func OnAdminReject(c tele.Context) error {
	return tghelpers.SendHTML(c, msgAdminOnly, nil)
}

// OnRateLimited answers updates dropped by the rate limiter.
func OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgTooFast})
	}
	return nil
}

// OnOther answers media messages.
func OnOther(c tele.Context) error {
	return tghelpers.SendHTML(c, msgTextOnly, nil)
}

var adminStatuses = map[string]order.Status{
	"paid":      order.StatusPaid,
	"failed":    order.StatusFailed,
	"cancelled": order.StatusCancelled,
	"verify":    order.StatusAwaitingVerification,
}

func parseStatusArgs(payload string) (string, order.Status, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", "", errors.New("bot: /status takes an order id and a status")
	}
	st, ok := adminStatuses[strings.ToLower(fields[1])]
	if !ok {
		return "", "", fmt.Errorf("bot: unknown status %q", fields[1])
	}
	return fields[0], st, nil
}

func (h *Handlers) status(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id, next, err := parseStatusArgs(c.Message().Payload)
	if err != nil {
		return reply(c, false, flow.Reply{Text: msgStatusUsage}, err)
	}
	ctx = logger.WithOrderID(ctx, id)
	o, err := h.orders.Transition(ctx, id, next, "admin")
	var sinkErr *order.SinkError
	switch {
	case err == nil:
	case errors.As(err, &sinkErr):
		logger.Warn(ctx, logger.CompTG, "admin.status", slog.String("status", "fail"), logger.Err(err))
		return tghelpers.SendHTML(c, fmt.Sprintf("⚠️ Status <code>%s</code> menjadi <b>%s</b>, tetapi sebagian notifikasi gagal: %s",
			id, o.Status, format.EscapeHTML(logger.SanitizeLimit(err.Error(), 300))), nil)
	case errors.Is(err, order.ErrNotFound), errors.Is(err, order.ErrMalformedID):
		return reply(c, false, flow.Reply{Text: "Pesanan <code>" + format.EscapeHTML(id) + "</code> tidak ditemukan."}, err)
	case errors.Is(err, order.ErrInvalidTransition):
		return reply(c, false, flow.Reply{Text: "Status pesanan tidak dapat diubah ke " + string(next) + "."}, err)
	default:
		return reply(c, false, flow.Reply{Text: "⚠️ Gagal mengubah status."}, err)
	}
	return tghelpers.SendHTML(c, fmt.Sprintf("✅ Pesanan <code>%s</code> sekarang <b>%s</b>.", id, o.Status), nil)
}
