package router

import (
	"context"
	"log/slog"

	"github.com/liraku/lirabot/core/logger"
	tg "github.com/liraku/lirabot/core/telegram"
	"github.com/liraku/lirabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandOptions configures CommandRoutes.
type CommandOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes turns registered commands into routes, guarding admin-only ones.
func CommandRoutes(reg *tg.Registry, opts CommandOptions) []tg.Route {
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, cmd := range cmds {
		name, h := name, cmd.Handler
		if cmd.AdminOnly {
			h = adminOnly(h)
		}
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler: func(c tele.Context) error {
				return handleWithSummary(c, handlerName("cmd.", name), func() error { return h(c) })
			},
		})
	}

	logger.Info(context.Background(), logger.CompTGWire, "routes.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.CallbackKeys())),
	)
	return routes
}
