package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	tg "github.com/liraku/lirabot/core/telegram"
	"github.com/liraku/lirabot/internal/flow"
	"github.com/liraku/lirabot/internal/order"

	tele "gopkg.in/telebot.v4"
)

func TestMarkup(t *testing.T) {
	if Markup(flow.Reply{Text: "x"}) != nil {
		t.Fatalf("reply without buttons must not carry a keyboard")
	}
	r := flow.Reply{Buttons: [][]flow.Button{
		{{Text: "Beli", Action: flow.ActionBuy}, {Text: "Jual", Action: flow.ActionSell}},
		{{Text: "Sudah bayar", Action: flow.ActionPaid, Payload: "LIRA_42_1777626000"}},
		{{Text: "QRIS", URL: "https://qr.example/x"}},
	}}
	m := Markup(r)
	if len(m.InlineKeyboard) != 3 || len(m.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected layout %+v", m.InlineKeyboard)
	}
	if b := m.InlineKeyboard[0][1]; b.Unique != "sell" || b.Text != "Jual" {
		t.Fatalf("button = %+v", b)
	}
	if b := m.InlineKeyboard[1][0]; b.Unique != "paid" || b.Data != "LIRA_42_1777626000" {
		t.Fatalf("payload lost: %+v", b)
	}
	if b := m.InlineKeyboard[2][0]; b.URL != "https://qr.example/x" {
		t.Fatalf("url button = %+v", b)
	}
}

func TestRegisterCoversEveryAction(t *testing.T) {
	reg := tg.NewRegistry()
	if err := New(nil, nil).Register(reg); err != nil {
		t.Fatal(err)
	}
	for _, a := range flow.Actions() {
		if _, ok := reg.Callback(string(a)); !ok {
			t.Errorf("no callback for %s", a)
		}
	}
	cmds := reg.Commands()
	if _, ok := cmds["/status"]; ok {
		t.Fatalf("/status registered without an order updater")
	}
	if reg.TextFallback() == nil {
		t.Fatalf("text fallback not set")
	}

	reg = tg.NewRegistry()
	if err := New(nil, fakeOrders{}).Register(reg); err != nil {
		t.Fatal(err)
	}
	if cmd, ok := reg.Commands()["/status"]; !ok || !cmd.AdminOnly {
		t.Fatalf("/status must be admin only")
	}
}

type fakeOrders struct{}

func (fakeOrders) Transition(context.Context, string, order.Status, string) (order.Order, error) {
	return order.Order{}, nil
}

func TestParseStatusArgs(t *testing.T) {
	cases := []struct {
		in     string
		id     string
		status order.Status
		ok     bool
	}{
		{"LIRA_42_1777626000 paid", "LIRA_42_1777626000", order.StatusPaid, true},
		{"  LIRA_42_1777626000   FAILED ", "LIRA_42_1777626000", order.StatusFailed, true},
		{"LIRA_42_1777626000 cancelled", "LIRA_42_1777626000", order.StatusCancelled, true},
		{"LIRA_42_1777626000", "", "", false},
		{"LIRA_42_1777626000 refunded", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		id, st, err := parseStatusArgs(tc.in)
		if (err == nil) != tc.ok || id != tc.id || st != tc.status {
			t.Errorf("parseStatusArgs(%q) = %q, %q, %v", tc.in, id, st, err)
		}
	}
}

type sent struct {
	to   string
	text string
}

type fakeSender struct {
	sent  []sent
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sent{to: to.Recipient(), text: what.(string)})
	return &tele.Message{}, nil
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{}
	n := NewNotifier(s, -100123)
	if err := n.NotifyAdmin(ctx, "new order"); err != nil {
		t.Fatal(err)
	}
	if err := n.NotifyUser(ctx, 42, "paid"); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 2 || s.sent[0].to != "-100123" || s.sent[1].to != "42" {
		t.Fatalf("sent = %+v", s.sent)
	}

	if err := NewNotifier(s, 0).NotifyAdmin(ctx, "x"); !errors.Is(err, ErrNoAdminChat) {
		t.Fatalf("expected ErrNoAdminChat, got %v", err)
	}

	slow := NewNotifier(&fakeSender{delay: 200 * time.Millisecond}, 1)
	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := slow.NotifyAdmin(tctx, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
