package bot

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ErrNoAdminChat is returned by NotifyAdmin when no admin chat is configured.
var ErrNoAdminChat = errors.New("bot: admin chat is not configured")

// Notifier pushes HTML messages outside of an update, e.g. to the admin
// chat or to a user whose payment settled.
type Notifier struct {
	bot         Sender
	adminChatID int64
}

// NewNotifier returns a notifier sending through bot.
func NewNotifier(bot Sender, adminChatID int64) *Notifier {
	return &Notifier{bot: bot, adminChatID: adminChatID}
}

func (n *Notifier) NotifyAdmin(ctx context.Context, text string) error {
	if n.adminChatID == 0 {
		return ErrNoAdminChat
	}
	return n.send(ctx, n.adminChatID, text)
}

func (n *Notifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	return n.send(ctx, userID, text)
}

// send gives up when ctx ends; the HTTP client bounds the request itself.
func (n *Notifier) send(ctx context.Context, chatID int64, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{ParseMode: tele.ModeHTML})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
