// Package sink hands confirmed orders to storage, the ledger, the admin and
// the event bus, and drives later status changes through the same targets.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/internal/events"
	"github.com/liraku/lirabot/internal/order"
)

// Step names reported in order.StepFailure.
const (
	StepPersist     = "persist"
	StepLedger      = "ledger"
	StepNotifyAdmin = "notify_admin"
	StepNotifyUser  = "notify_user"
	StepPublish     = "publish"
)

// Ledger records orders in the bookkeeping spreadsheet.
type Ledger interface {
	Append(ctx context.Context, o order.Order) error
	UpdateStatus(ctx context.Context, o order.Order) error
}

// Notifier delivers HTML messages to the admin chat and to users.
type Notifier interface {
	NotifyAdmin(ctx context.Context, text string) error
	NotifyUser(ctx context.Context, userID int64, text string) error
}

// Options tune step timeouts. Zero values use the defaults.
type Options struct {
	PersistTimeout time.Duration
	LedgerTimeout  time.Duration
	NotifyTimeout  time.Duration
	PublishTimeout time.Duration
	IDs            order.IDCodec
	Now            func() time.Time
}

func (o *Options) normalize() {
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.LedgerTimeout <= 0 {
		o.LedgerTimeout = 15 * time.Second
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 10 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	if o.IDs.Prefix == "" {
		o.IDs.Prefix = order.DefaultIDPrefix
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service implements order.Sink. Ledger, Notifier and Publisher are optional;
// a nil target is skipped without being reported as a failure.
type Service struct {
	repo     order.Repository
	ledger   Ledger
	notifier Notifier
	events   events.Publisher
	opts     Options
}

// New builds a Service around repo.
func New(repo order.Repository, ledger Ledger, notifier Notifier, pub events.Publisher, opts Options) *Service {
	opts.normalize()
	return &Service{repo: repo, ledger: ledger, notifier: notifier, events: pub, opts: opts}
}

var _ order.Sink = (*Service)(nil)

type step struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	done    *bool
}

// runParallel runs steps concurrently, each under its own timeout.
func runParallel(ctx context.Context, steps ...step) []order.StepFailure {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []order.StepFailure
	)
	for _, st := range steps {
		wg.Add(1)
		go func(st step) {
			defer wg.Done()
			err := runStep(ctx, st)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, order.StepFailure{Step: st.name, Err: err})
			} else if st.done != nil {
				*st.done = true
			}
		}(st)
	}
	wg.Wait()
	return failures
}

func runStep(ctx context.Context, st step) error {
	stepCtx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()
	start := time.Now()
	err := st.run(stepCtx)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	logger.Event(ctx, logger.CompSink, level, "sink."+st.name,
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err))
	return err
}

// Submit stores o, then records it in the ledger and notifies the admin
// concurrently, and finally publishes order.created.
func (s *Service) Submit(ctx context.Context, o order.Order) (order.Receipt, error) {
	ctx = logger.WithOrderID(ctx, o.ID)
	receipt := order.Receipt{OrderID: o.ID}
	var failures []order.StepFailure

	persist := step{name: StepPersist, timeout: s.opts.PersistTimeout,
		run: func(ctx context.Context) error { return s.repo.Create(ctx, o) }}
	if err := runStep(ctx, persist); err != nil {
		failures = append(failures, order.StepFailure{Step: StepPersist, Err: err})
	} else {
		receipt.Persisted = true
	}

	var side []step
	if s.ledger != nil {
		side = append(side, step{name: StepLedger, timeout: s.opts.LedgerTimeout, done: &receipt.Ledgered,
			run: func(ctx context.Context) error { return s.ledger.Append(ctx, o) }})
	}
	if s.notifier != nil {
		text := newOrderNotice(o)
		side = append(side, step{name: StepNotifyAdmin, timeout: s.opts.NotifyTimeout, done: &receipt.AdminNotified,
			run: func(ctx context.Context) error { return s.notifier.NotifyAdmin(ctx, text) }})
	}
	failures = append(failures, runParallel(ctx, side...)...)

	if s.events != nil {
		ev := events.OrderCreated(o, s.opts.Now())
		pub := step{name: StepPublish, timeout: s.opts.PublishTimeout,
			run: func(ctx context.Context) error { return s.events.Publish(ctx, ev) }}
		if err := runStep(ctx, pub); err != nil {
			failures = append(failures, order.StepFailure{Step: StepPublish, Err: err})
		} else {
			receipt.Published = true
		}
	}

	logger.Info(ctx, logger.CompSink, "sink.submit",
		slog.String("status", logger.Status(errOf(failures))),
		slog.Bool("persisted", receipt.Persisted),
		slog.Bool("ledgered", receipt.Ledgered),
		slog.Bool("admin_notified", receipt.AdminNotified),
		slog.Bool("published", receipt.Published))
	if len(failures) > 0 {
		return receipt, &order.SinkError{OrderID: o.ID, Failures: failures}
	}
	return receipt, nil
}

// Transition moves the order to next and propagates the change. A repeated
// transition to the current status is a no-op and returns the stored order.
// Repository errors are returned as is; side-effect failures come back as
// *order.SinkError together with the updated order.
func (s *Service) Transition(ctx context.Context, orderID string, next order.Status, source string) (order.Order, error) {
	ctx = logger.WithOrderID(ctx, orderID)
	parts, err := s.opts.IDs.Parse(orderID)
	if err != nil {
		return order.Order{}, err
	}

	prev, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	o, changed, err := s.repo.UpdateStatus(ctx, orderID, next, s.opts.Now())
	if err != nil {
		logger.Warn(ctx, logger.CompSink, "sink.transition",
			slog.String("status", "fail"),
			slog.String("order_status", string(next)),
			slog.String("source", source),
			logger.Err(err))
		return o, err
	}
	if !changed {
		logger.Info(ctx, logger.CompSink, "sink.transition",
			slog.String("status", "skip"),
			slog.String("order_status", string(next)),
			slog.String("source", source))
		return o, nil
	}

	var side []step
	if s.ledger != nil {
		side = append(side, step{name: StepLedger, timeout: s.opts.LedgerTimeout,
			run: func(ctx context.Context) error { return s.ledger.UpdateStatus(ctx, o) }})
	}
	if s.notifier != nil {
		adminText := statusNotice(o, prev.Status, source)
		side = append(side, step{name: StepNotifyAdmin, timeout: s.opts.NotifyTimeout,
			run: func(ctx context.Context) error { return s.notifier.NotifyAdmin(ctx, adminText) }})
		if userText, ok := userNotice(o); ok {
			side = append(side, step{name: StepNotifyUser, timeout: s.opts.NotifyTimeout,
				run: func(ctx context.Context) error { return s.notifier.NotifyUser(ctx, parts.UserID, userText) }})
		}
	}
	failures := runParallel(ctx, side...)

	if s.events != nil {
		ev := events.StatusChanged(o, prev.Status, source, s.opts.Now())
		pub := step{name: StepPublish, timeout: s.opts.PublishTimeout,
			run: func(ctx context.Context) error { return s.events.Publish(ctx, ev) }}
		if err := runStep(ctx, pub); err != nil {
			failures = append(failures, order.StepFailure{Step: StepPublish, Err: err})
		}
	}

	logger.Info(ctx, logger.CompSink, "sink.transition",
		slog.String("status", logger.Status(errOf(failures))),
		slog.String("order_status", string(o.Status)),
		slog.String("from", string(prev.Status)),
		slog.String("source", source))
	if len(failures) > 0 {
		return o, &order.SinkError{OrderID: o.ID, Failures: failures}
	}
	return o, nil
}

func errOf(failures []order.StepFailure) error {
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Step, f.Err))
	}
	return errors.Join(errs...)
}
