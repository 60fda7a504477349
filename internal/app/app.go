package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/core/bootstrap"
	corecmd "github.com/liraku/lirabot/core/cmd"
	"github.com/liraku/lirabot/core/logger"
	tg "github.com/liraku/lirabot/core/telegram"
	"github.com/liraku/lirabot/core/telegram/router"
	"github.com/liraku/lirabot/internal/bot"
	"github.com/liraku/lirabot/internal/cache"
	"github.com/liraku/lirabot/internal/events"
	"github.com/liraku/lirabot/internal/flow"
	"github.com/liraku/lirabot/internal/ledger"
	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/payment"
	"github.com/liraku/lirabot/internal/pricing"
	"github.com/liraku/lirabot/internal/rates"
	"github.com/liraku/lirabot/internal/sink"
	"github.com/liraku/lirabot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// App holds the wired components between bootstrap and shutdown.
type App struct {
	cfg *Config

	db     *sqlx.DB
	redis  *redis.Client
	events events.Publisher

	bot      *tele.Bot
	handlers *bot.Handlers
	sessions flow.SessionStore
	http     *payment.Server
	cron     *cron.Cron
}

// Options returns the runner options for the bot binary.
func Options() corecmd.Options {
	return corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			c, ok := cfg.(*Config)
			if !ok {
				return nil, fmt.Errorf("app: unexpected config type %T", cfg)
			}
			return Bootstrap(ctx, c)
		},
	}
}

// Bootstrap initializes logging and the database, then builds every component.
func Bootstrap(ctx context.Context, cfg *Config) (_ *App, err error) {
	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, db: res.DB}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	var kv *cache.Cache
	if cfg.Redis.Enabled {
		if a.redis, err = cache.Connect(ctx, cache.Options{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, Prefix: cfg.Redis.Prefix,
		}); err != nil {
			return nil, err
		}
		kv = cache.New(a.redis, cfg.Redis.Prefix)
	}

	provider, err := a.rateProvider(kv)
	if err != nil {
		return nil, err
	}
	engine, err := pricing.NewEngine(cfg.pricing)
	if err != nil {
		return nil, err
	}

	var repo order.Repository
	if a.db != nil {
		repo = store.NewPostgres(a.db)
	} else {
		logger.Warn(ctx, logger.CompDB, "orders.store", slog.String("status", "skip"), slog.String("mode", "memory"))
		repo = store.NewMemory()
	}

	var sheets sink.Ledger
	if cfg.Ledger.Enabled {
		s, err := ledger.NewSheets(ctx, ledger.Options{
			SpreadsheetID:   cfg.Ledger.SpreadsheetID,
			Sheet:           cfg.Ledger.Sheet,
			CredentialsFile: cfg.Ledger.CredentialsFile,
			CredentialsJSON: cfg.Ledger.CredentialsJSON,
			Location:        cfg.ledgerLoc,
		})
		if err != nil {
			return nil, err
		}
		sheets = s
	}

	a.events = events.Noop{}
	if cfg.Events.Enabled {
		p, err := events.Dial(events.ProducerOptions{URL: cfg.Events.URL, Exchange: cfg.Events.Exchange})
		if err != nil {
			return nil, err
		}
		a.events = p
	}

	if a.bot, err = tg.NewBot(&cfg.Config); err != nil {
		return nil, err
	}
	ids := order.IDCodec{Prefix: cfg.Order.IDPrefix}
	orders := sink.New(repo, sheets, bot.NewNotifier(a.bot, cfg.Order.AdminChatID), a.events, sink.Options{
		LedgerTimeout: seconds(cfg.Ledger.TimeoutSeconds, 15),
		IDs:           ids,
	})

	var charger flow.Charger
	if cfg.Payment.Enabled {
		client, err := payment.NewClient(payment.ClientOptions{
			ServerKey:    cfg.Payment.ServerKey,
			Production:   cfg.Payment.Production,
			BaseURL:      cfg.Payment.BaseURL,
			QRISAcquirer: cfg.Payment.QRISAcquirer,
			VABank:       cfg.Payment.VABank,
			Timeout:      seconds(cfg.Payment.TimeoutSeconds, 30),
		})
		if err != nil {
			return nil, err
		}
		charger = client
	}
	if cfg.HTTP.Enabled {
		h := payment.NewHandler(orders, payment.HandlerOptions{
			ServerKey: cfg.Payment.ServerKey,
			IDs:       ids,
			Health:    a.health,
		})
		a.http = payment.NewServer(cfg.HTTP.Listen, h.Routes())
	}

	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	if cfg.Session.Store == "redis" {
		a.sessions = flow.NewRedisStore(kv, ttl)
	} else {
		a.sessions = flow.NewMemoryStore()
	}

	machine, err := flow.NewMachine(flow.Deps{
		Store:   a.sessions,
		Rates:   provider,
		Pricing: engine,
		Sink:    orders,
		Charger: charger,
		Orders:  orders,
	}, flow.Options{
		MinAmount:     map[order.Flow]decimal.Decimal{order.FlowBuy: cfg.minBuy, order.FlowSell: cfg.minSell},
		SellEnabled:   cfg.Order.SellEnabled,
		Methods:       cfg.methods,
		Settlement:    flow.Settlement(cfg.Settlement),
		Contact:       flow.Contact(cfg.Contact),
		IDs:           ids,
		RateTimeout:   seconds(cfg.FX.TimeoutSeconds, 10),
		ChargeTimeout: seconds(cfg.Payment.TimeoutSeconds, 30),
	})
	if err != nil {
		return nil, err
	}
	a.handlers = bot.New(machine, orders)
	return a, nil
}

func (a *App) rateProvider(kv *cache.Cache) (rates.Provider, error) {
	api := rates.NewExchangeRateAPI(rates.ExchangeRateOptions{
		BaseURL: a.cfg.FX.BaseURL,
		APIKey:  a.cfg.FX.APIKey,
		Timeout: seconds(a.cfg.FX.TimeoutSeconds, 10),
		Retries: a.cfg.FX.Retries,
	})
	maxAge := time.Duration(a.cfg.FX.LastKnownMaxAgeM) * time.Minute
	var last rates.LastKnownStore = rates.NewMemoryLastKnown()
	if kv != nil {
		keep := maxAge
		if keep <= 0 {
			keep = rates.DefaultLastKnownMaxAge
		}
		last = rates.NewRedisLastKnown(kv, keep)
	}
	return rates.NewFallback(api, rates.FallbackOptions{Policy: a.cfg.ratePolicy, MaxAge: maxAge, Store: last})
}

func (a *App) health(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.PingContext(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Ping(ctx).Err())
	}
	return errors.Join(errs...)
}

// TelegramRunOptions implements core/cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	if err := a.handlers.Register(reg); err != nil {
		return tg.RunOptions{}, err
	}
	routes := []tg.Route{router.CallbackRoute(reg)}
	routes = append(routes, router.CommandRoutes(reg, router.CommandOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: bot.OnAdminReject,
	})...)
	routes = append(routes, router.TextRoutes(reg, bot.OnOther)...)

	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Bot:         a.bot,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, bot.OnRateLimited),
		Routes:      routes,
		OnStart:     a.start,
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			return a.close(ctx)
		},
	}, nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	if a.http != nil {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("app: http listener: %w", err)
		}
	}
	if mem, ok := a.sessions.(*flow.MemoryStore); ok {
		cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Component(logger.CompSessions).Handler(), slog.LevelWarn))
		a.cron = cron.New(cron.WithChain(cron.Recover(cronLog)))
		if _, err := a.cron.AddFunc(a.cfg.Session.SweepSchedule, func() { sweep(mem, a.cfg.Session.TTLMinutes) }); err != nil {
			return fmt.Errorf("app: session sweeper: %w", err)
		}
		a.cron.Start()
	}
	return nil
}

func sweep(mem *flow.MemoryStore, ttlMinutes int) {
	start := time.Now()
	n := mem.Sweep(start.Add(-time.Duration(ttlMinutes) * time.Minute))
	logger.Info(context.Background(), logger.CompSessions, "sessions.sweep",
		slog.String("status", "ok"),
		slog.Int("removed", n),
		slog.Int("active", mem.Len()),
		slog.Duration("duration", logger.Took(start)))
}

// close releases everything Bootstrap opened; it is safe on a partial App.
func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.http != nil {
		errs = append(errs, a.http.Shutdown(ctx))
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Warn(ctx, logger.CompApp, "app.close", slog.String("status", "fail"), logger.Err(err))
	}
	return err
}
