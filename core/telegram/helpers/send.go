package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher installs the async sender used by the helpers; nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

func deliver(c tele.Context, action string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompTG, "sender.fallback",
			slog.String("status", "retry"),
			slog.String("action", action),
			logger.Err(err),
		)
		return run()
	}
	return err
}

// SendHTML sends an HTML message with optional markup to the current chat.
func SendHTML(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: markup}
	return deliver(c, "send", func() error { return c.Send(text, opts) })
}

// EditOrSendHTML edits the message behind a callback, or sends a new one.
func EditOrSendHTML(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: markup}
	return deliver(c, "edit_or_send", func() error { return c.EditOrSend(text, opts) })
}
