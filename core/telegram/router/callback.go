package router

import (
	"log/slog"

	tg "github.com/liraku/lirabot/core/telegram"
	"github.com/liraku/lirabot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute dispatches inline button presses through the registry by button unique.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.Key(c)
		h, ok := reg.Callback(key)
		if !ok {
			return handleWithSummary(c, "callback.not_found", func() error {
				return reg.CallbackNotFound()(c)
			}, slog.String("cb_key", key))
		}
		// stop the client-side spinner before doing any slow work
		_ = c.Respond()
		return handleWithSummary(c, handlerName("callback.", key), func() error {
			return h(c)
		}, slog.String("cb_key", key))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
