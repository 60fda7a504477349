package router

import (
	"log/slog"

	tg "github.com/liraku/lirabot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextRoutes routes free text to the registry's text fallback, which is where
// conversational flows consume user input. Non-text messages get onOther.
func TextRoutes(reg *tg.Registry, onOther tele.HandlerFunc) []tg.Route {
	text := func(c tele.Context) error {
		fb := reg.TextFallback()
		if fb == nil {
			return handleWithSummary(c, "text.unhandled", func() error { return nil }, slog.String("status", "skip"))
		}
		return handleWithSummary(c, "text", func() error { return fb(c) })
	}
	routes := []tg.Route{{Endpoint: tele.OnText, Handler: text}}
	if onOther != nil {
		other := func(c tele.Context) error {
			return handleWithSummary(c, "media.unexpected", func() error { return onOther(c) })
		}
		for _, ep := range []string{tele.OnPhoto, tele.OnDocument, tele.OnSticker, tele.OnVoice} {
			routes = append(routes, tg.Route{Endpoint: ep, Handler: other})
		}
	}
	return routes
}
