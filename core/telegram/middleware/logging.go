package middleware

import (
	"log/slog"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/core/telegram/callbacks"
	tghelpers "github.com/liraku/lirabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware builds the per-update logging context (rid, update/user/chat ids)
// and writes one debug line per received update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if ctx != nil && logger.FromContext(ctx).Enabled(ctx, slog.LevelDebug) {
			upd := c.Update()
			attrs := []slog.Attr{slog.String("status", "ok")}
			if u := c.Sender(); u != nil && u.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.Parse(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 64)),
					slog.String("payload", logger.SanitizeLimit(payload, 128)),
				)
			case upd.Message != nil:
				// message text may hold bank details; log only its size
				attrs = append(attrs, slog.Int("text_len", len([]rune(c.Text()))))
			}
			logger.Debug(ctx, logger.CompTG, "update.received", attrs...)
		}
		return next(c)
	}
}
