package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/pricing"
	"github.com/liraku/lirabot/internal/rates"
	"github.com/liraku/lirabot/internal/validate"
)

// Charger creates gateway payments for automated methods.
type Charger interface {
	Charge(ctx context.Context, o order.Order) (order.Payment, error)
}

// StatusUpdater moves persisted orders between statuses.
type StatusUpdater interface {
	Transition(ctx context.Context, orderID string, next order.Status, source string) (order.Order, error)
}

// User identifies who sent an event.
type User struct {
	ID       int64
	Username string
}

// Settlement is where customers send money for manual transfers.
type Settlement struct {
	BankName      string
	AccountNumber string
	AccountHolder string
	IBAN          string
	IBANHolder    string
}

// Contact is shown by the contact menu.
type Contact struct {
	Telegram string
	WhatsApp string
	Channel  string
	Hours    string
}

// Deps are the collaborators of a Machine. Charger and Orders may be nil.
type Deps struct {
	Store   SessionStore
	Rates   rates.Provider
	Pricing *pricing.Engine
	Sink    order.Sink
	Charger Charger
	Orders  StatusUpdater
}

// Options tune a Machine.
type Options struct {
	MinAmount   map[order.Flow]decimal.Decimal
	SellEnabled bool
	// Methods are the buy settlement methods in display order. Automated
	// methods are dropped when no Charger is configured.
	Methods         []order.Method
	Settlement      Settlement
	Contact         Contact
	SimulateAmounts []decimal.Decimal
	IDs             order.IDCodec
	RateTimeout     time.Duration
	ChargeTimeout   time.Duration
	Now             func() time.Time
}

// Machine runs the order conversation. Events of one user are handled one
// at a time; different users proceed concurrently.
type Machine struct {
	store   SessionStore
	rates   rates.Provider
	pricing *pricing.Engine
	sink    order.Sink
	charger Charger
	orders  StatusUpdater
	opts    Options
	locks   *userLocks
}

func NewMachine(deps Deps, opts Options) (*Machine, error) {
	if deps.Store == nil || deps.Rates == nil || deps.Pricing == nil || deps.Sink == nil {
		return nil, errors.New("flow: store, rates, pricing and sink are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RateTimeout <= 0 {
		opts.RateTimeout = 10 * time.Second
	}
	if opts.ChargeTimeout <= 0 {
		opts.ChargeTimeout = 30 * time.Second
	}
	if len(opts.SimulateAmounts) == 0 {
		opts.SimulateAmounts = defaultSimulation
	}
	for _, f := range []order.Flow{order.FlowBuy, order.FlowSell} {
		if opts.MinAmount[f].IsNegative() {
			return nil, fmt.Errorf("flow: negative minimum for %s", f)
		}
	}

	methods := make([]order.Method, 0, len(opts.Methods))
	seen := map[order.Method]bool{}
	for _, m := range opts.Methods {
		if _, ok := methodActions[m]; !ok {
			return nil, fmt.Errorf("flow: unknown method %q", m)
		}
		if seen[m] || (m.Automated() && deps.Charger == nil) {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		methods = []order.Method{order.MethodManual}
	}
	opts.Methods = methods

	return &Machine{
		store:   deps.Store,
		rates:   deps.Rates,
		pricing: deps.Pricing,
		sink:    deps.Sink,
		charger: deps.Charger,
		orders:  deps.Orders,
		opts:    opts,
		locks:   newUserLocks(),
	}, nil
}

// methods returns the settlement methods offered for f.
func (m *Machine) methods(f order.Flow) []order.Method {
	if f == order.FlowSell {
		return []order.Method{order.MethodManual}
	}
	return m.opts.Methods
}

// Start discards any session and shows the main menu.
func (m *Machine) Start(ctx context.Context, u User) (Reply, error) {
	defer m.locks.lock(u.ID)()
	if _, err := m.store.Delete(ctx, u.ID); err != nil {
		return Reply{Text: msgInternal}, err
	}
	return m.mainMenu(""), nil
}

// Cancel discards the session without creating an order.
func (m *Machine) Cancel(ctx context.Context, u User) (Reply, error) {
	defer m.locks.lock(u.ID)()
	return m.cancel(ctx, u)
}

func (m *Machine) cancel(ctx context.Context, u User) (Reply, error) {
	removed, err := m.store.Delete(ctx, u.ID)
	if err != nil {
		return Reply{Text: msgInternal}, err
	}
	if !removed {
		return m.mainMenu(msgNoSession), nil
	}
	logger.Info(ctx, logger.CompFlow, "flow.cancelled", slog.String("status", "ok"))
	return m.mainMenu(msgCancelled), nil
}

// Text handles free text for the current step.
func (m *Machine) Text(ctx context.Context, u User, text string) (Reply, error) {
	defer m.locks.lock(u.ID)()
	s, ok, err := m.store.Get(ctx, u.ID)
	if err != nil {
		return Reply{Text: msgInternal}, err
	}
	if !ok {
		return Reply{Text: msgSessionNotFound}, ErrSessionNotFound
	}
	if u.Username != "" {
		s.Username = u.Username
	}

	switch s.Step {
	case StepAmount:
		return m.enterAmount(ctx, s, text)
	case StepName:
		name, err := validate.Name(text)
		if err != nil {
			return m.rejected(s, err)
		}
		s.Name = name
		return m.advance(ctx, s, StepAccount)
	case StepAccount:
		acc, err := validate.Account(text, s.Flow)
		if err != nil {
			return m.rejected(s, err)
		}
		s.Account = acc
		if methods := m.methods(s.Flow); len(methods) == 1 {
			s.Method = methods[0]
			s.Quote = m.pricing.WithMethod(s.Quote, s.Method)
			return m.advance(ctx, s, StepConfirm)
		}
		return m.advance(ctx, s, StepMethod)
	default:
		return m.withNotice(msgUseButtons, s), nil
	}
}

func (m *Machine) enterAmount(ctx context.Context, s Session, text string) (Reply, error) {
	amount, err := validate.Amount(text, s.Flow.Source(), m.opts.MinAmount[s.Flow])
	if err != nil {
		return m.rejected(s, err)
	}
	q, err := m.quote(ctx, s.Flow, s.Method, amount)
	if err != nil {
		return m.withNotice(msgRateUnavailable, s), err
	}
	s.Amount = amount
	s.Quote = q
	return m.advance(ctx, s, StepName)
}

// rejected re-prompts the same step. The session is left untouched.
func (m *Machine) rejected(s Session, err error) (Reply, error) {
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return m.withNotice("❗ "+ve.Message, s), err
	}
	return m.withNotice(msgInternal, s), err
}

func (m *Machine) advance(ctx context.Context, s Session, next Step) (Reply, error) {
	from := s.Step
	s.Step = next
	s.UpdatedAt = m.opts.Now()
	if err := m.store.Put(ctx, s); err != nil {
		return Reply{Text: msgInternal}, err
	}
	logger.Info(ctx, logger.CompFlow, "flow.step",
		slog.String("status", "ok"),
		slog.String("flow", string(s.Flow)),
		slog.String("from", string(from)),
		slog.String("step", string(next)),
	)
	return m.prompt(s), nil
}

func (m *Machine) quote(ctx context.Context, f order.Flow, method order.Method, amount decimal.Decimal) (pricing.Quote, error) {
	rctx, cancel := context.WithTimeout(ctx, m.opts.RateTimeout)
	defer cancel()
	r, err := m.rates.Rate(rctx, order.FlowBuy.Source(), order.FlowBuy.Target())
	if err != nil {
		return pricing.Quote{}, err
	}
	return m.pricing.Quote(f, method, amount, r, m.opts.Now())
}

// Press handles a button press. payload is only used by ActionPaid.
func (m *Machine) Press(ctx context.Context, u User, a Action, payload string) (Reply, error) {
	defer m.locks.lock(u.ID)()

	switch a {
	case ActionBuy:
		return m.begin(ctx, u, order.FlowBuy)
	case ActionSell:
		return m.begin(ctx, u, order.FlowSell)
	case ActionSimulate:
		return m.simulate(ctx)
	case ActionContact:
		return Reply{Text: m.contactText(), Buttons: backToMenu()}, nil
	case ActionMainMenu:
		if _, err := m.store.Delete(ctx, u.ID); err != nil {
			return Reply{Text: msgInternal}, err
		}
		return m.mainMenu(""), nil
	case ActionBack:
		return m.back(ctx, u)
	case ActionCancel:
		return m.cancel(ctx, u)
	case ActionMethodQRIS:
		return m.chooseMethod(ctx, u, order.MethodQRIS)
	case ActionMethodVA:
		return m.chooseMethod(ctx, u, order.MethodVA)
	case ActionMethodManual:
		return m.chooseMethod(ctx, u, order.MethodManual)
	case ActionConfirm:
		return m.confirm(ctx, u)
	case ActionEdit:
		return m.edit(ctx, u)
	case ActionPaid:
		return m.paid(ctx, u, payload)
	default:
		return Reply{Text: msgUnexpected, Buttons: backToMenu()}, fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
}

func (m *Machine) begin(ctx context.Context, u User, f order.Flow) (Reply, error) {
	if f == order.FlowSell && !m.opts.SellEnabled {
		return m.mainMenu("Layanan jual Lira sedang tidak tersedia."), nil
	}
	s := Session{UserID: u.ID, Username: u.Username, Flow: f}
	return m.advance(ctx, s, StepAmount)
}

// load fetches the session for a step event. The reply is set when the
// caller must stop.
func (m *Machine) load(ctx context.Context, u User, want ...Step) (Session, *Reply, error) {
	s, ok, err := m.store.Get(ctx, u.ID)
	if err != nil {
		return Session{}, &Reply{Text: msgInternal}, err
	}
	if !ok {
		return Session{}, &Reply{Text: msgSessionNotFound}, ErrSessionNotFound
	}
	if len(want) == 0 {
		return s, nil, nil
	}
	for _, st := range want {
		if s.Step == st {
			return s, nil, nil
		}
	}
	r := m.withNotice(msgUnexpected, s)
	return s, &r, fmt.Errorf("%w: step %s", ErrUnexpectedAction, s.Step)
}

func (m *Machine) back(ctx context.Context, u User) (Reply, error) {
	s, stop, err := m.load(ctx, u)
	if stop != nil {
		return *stop, err
	}
	var prev Step
	switch s.Step {
	case StepAmount:
		if _, err := m.store.Delete(ctx, u.ID); err != nil {
			return Reply{Text: msgInternal}, err
		}
		return m.mainMenu(""), nil
	case StepName:
		prev = StepAmount
	case StepAccount:
		prev = StepName
	case StepMethod:
		prev = StepAccount
	case StepConfirm:
		prev = StepAccount
		if len(m.methods(s.Flow)) > 1 {
			prev = StepMethod
		}
	default:
		return m.mainMenu(""), nil
	}
	return m.advance(ctx, s, prev)
}

func (m *Machine) edit(ctx context.Context, u User) (Reply, error) {
	s, stop, err := m.load(ctx, u, StepConfirm, StepMethod)
	if stop != nil {
		return *stop, err
	}
	s = Session{UserID: s.UserID, Username: s.Username, Flow: s.Flow}
	return m.advance(ctx, s, StepAmount)
}

func (m *Machine) chooseMethod(ctx context.Context, u User, method order.Method) (Reply, error) {
	s, stop, err := m.load(ctx, u, StepMethod)
	if stop != nil {
		return *stop, err
	}
	offered := false
	for _, mm := range m.methods(s.Flow) {
		offered = offered || mm == method
	}
	if !offered {
		return m.withNotice(msgUnexpected, s), fmt.Errorf("%w: method %s not offered", ErrUnexpectedAction, method)
	}
	s.Method = method
	s.Quote = m.pricing.WithMethod(s.Quote, method)
	return m.advance(ctx, s, StepConfirm)
}

func (m *Machine) confirm(ctx context.Context, u User) (Reply, error) {
	s, stop, err := m.load(ctx, u, StepConfirm)
	if stop != nil {
		return *stop, err
	}

	now := m.opts.Now()
	if m.pricing.Stale(s.Quote, now) {
		q, err := m.quote(ctx, s.Flow, s.Method, s.Amount)
		if err != nil {
			return m.withNotice(msgRateUnavailable, s), err
		}
		s.Quote = q
		if _, err := m.advance(ctx, s, StepConfirm); err != nil {
			return Reply{Text: msgInternal}, err
		}
		logger.Info(ctx, logger.CompFlow, "flow.requoted",
			slog.String("status", "ok"),
			slog.String("quoted_rate", q.QuotedRate.String()),
		)
		return m.withNotice(msgRequoted, s), nil
	}

	// one-shot: only the caller that removes the session may place the order
	removed, err := m.store.Delete(ctx, u.ID)
	if err != nil {
		return Reply{Text: msgInternal}, err
	}
	if !removed {
		return Reply{Text: msgSessionNotFound}, ErrSessionNotFound
	}

	o := m.buildOrder(s, now)
	ctx = logger.WithOrderID(ctx, o.ID)

	if o.Method.Automated() {
		cctx, cancel := context.WithTimeout(ctx, m.opts.ChargeTimeout)
		payment, err := m.charger.Charge(cctx, o)
		cancel()
		if err != nil {
			s.UpdatedAt = now
			if perr := m.store.Put(ctx, s); perr != nil {
				err = errors.Join(err, perr)
			}
			logger.Warn(ctx, logger.CompFlow, "flow.charge",
				slog.String("status", "fail"),
				slog.String("method", string(o.Method)),
				logger.Err(err),
			)
			return m.withNotice(msgChargeFailed, s), fmt.Errorf("%w: %w", ErrChargeFailed, err)
		}
		o.Payment = payment
	}

	receipt, err := m.sink.Submit(ctx, o)
	if err != nil {
		// the order stands; failed side effects are reconciled by operators
		logger.Warn(ctx, logger.CompFlow, "flow.submit",
			slog.String("status", "fail"),
			slog.Bool("persisted", receipt.Persisted),
			slog.Bool("ledgered", receipt.Ledgered),
			slog.Bool("admin_notified", receipt.AdminNotified),
			logger.Err(err),
		)
	}
	logger.Info(ctx, logger.CompFlow, "flow.order_placed",
		slog.String("status", "ok"),
		slog.String("flow", string(o.Flow)),
		slog.String("method", string(o.Method)),
	)
	return m.orderPlaced(o), nil
}

func (m *Machine) buildOrder(s Session, now time.Time) order.Order {
	q := s.Quote
	return order.Order{
		ID:            m.opts.IDs.New(s.UserID, now),
		UserID:        s.UserID,
		Username:      s.Username,
		Flow:          s.Flow,
		SourceAmount:  q.SourceAmount,
		TargetAmount:  q.TargetAmount,
		Fee:           q.Fee,
		Total:         q.Total,
		BaseRate:      q.BaseRate,
		QuotedRate:    q.QuotedRate,
		RecipientName: s.Name,
		Account:       s.Account,
		Method:        s.Method,
		Status:        order.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (m *Machine) simulate(ctx context.Context) (Reply, error) {
	rctx, cancel := context.WithTimeout(ctx, m.opts.RateTimeout)
	defer cancel()
	r, err := m.rates.Rate(rctx, order.FlowBuy.Source(), order.FlowBuy.Target())
	if err != nil {
		return Reply{Text: msgRateUnavailable, Buttons: backToMenu()}, err
	}
	now := m.opts.Now()
	quotes := make([]pricing.Quote, 0, len(m.opts.SimulateAmounts))
	for _, amount := range m.opts.SimulateAmounts {
		q, err := m.pricing.Quote(order.FlowBuy, "", amount, r, now)
		if err != nil {
			return Reply{Text: msgInternal, Buttons: backToMenu()}, err
		}
		quotes = append(quotes, q)
	}
	return Reply{
		Text:    m.simulationText(quotes),
		Buttons: [][]Button{{btn("🇹🇷 Beli Lira", ActionBuy)}, backToMenu()[0]},
	}, nil
}

func (m *Machine) paid(ctx context.Context, u User, orderID string) (Reply, error) {
	menu := backToMenu()
	parts, err := m.opts.IDs.Parse(orderID)
	if err != nil {
		return Reply{Text: "Pesanan tidak dikenal.", Buttons: menu}, err
	}
	if parts.UserID != u.ID {
		return Reply{Text: "Pesanan tidak dikenal.", Buttons: menu}, order.ErrNotOwner
	}
	if m.orders == nil {
		return Reply{Text: msgInternal, Buttons: menu}, errors.New("flow: order status updates not configured")
	}
	ctx = logger.WithOrderID(ctx, orderID)
	_, err = m.orders.Transition(ctx, orderID, order.StatusAwaitingVerification, "user")
	var sinkErr *order.SinkError
	switch {
	case err == nil, errors.As(err, &sinkErr):
	case errors.Is(err, order.ErrNotFound):
		return Reply{Text: "Pesanan tidak ditemukan. Hubungi admin bila sudah membayar.", Buttons: menu}, err
	case errors.Is(err, order.ErrInvalidTransition):
		return Reply{Text: "Pesanan ini sudah diproses.", Buttons: menu}, err
	default:
		return Reply{Text: msgInternal, Buttons: menu}, err
	}
	return Reply{
		Text:    "🙏 Terima kasih! Pembayaran untuk pesanan <code>" + orderID + "</code> akan segera diverifikasi admin.",
		Buttons: menu,
	}, nil
}
