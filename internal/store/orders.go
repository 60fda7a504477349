// Package store persists orders.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/order"
)

// orderRow mirrors the orders table.
type orderRow struct {
	ID            string          `db:"id"`
	UserID        int64           `db:"user_id"`
	Username      string          `db:"username"`
	Flow          string          `db:"flow"`
	SourceAmount  decimal.Decimal `db:"source_amount"`
	TargetAmount  decimal.Decimal `db:"target_amount"`
	Fee           decimal.Decimal `db:"fee"`
	Total         decimal.Decimal `db:"total"`
	BaseRate      decimal.Decimal `db:"base_rate"`
	QuotedRate    decimal.Decimal `db:"quoted_rate"`
	RecipientName string          `db:"recipient_name"`
	AccountKind   string          `db:"account_kind"`
	AccountBank   string          `db:"account_bank"`
	AccountNumber string          `db:"account_number"`
	Method        string          `db:"method"`
	Status        string          `db:"status"`
	PaymentRef    string          `db:"payment_ref"`
	PaymentBank   string          `db:"payment_bank"`
	PaymentExpiry sql.NullTime    `db:"payment_expires_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func toRow(o order.Order) orderRow {
	r := orderRow{
		ID:            o.ID,
		UserID:        o.UserID,
		Username:      o.Username,
		Flow:          string(o.Flow),
		SourceAmount:  o.SourceAmount,
		TargetAmount:  o.TargetAmount,
		Fee:           o.Fee,
		Total:         o.Total,
		BaseRate:      o.BaseRate,
		QuotedRate:    o.QuotedRate,
		RecipientName: o.RecipientName,
		AccountKind:   string(o.Account.Kind),
		AccountBank:   o.Account.Bank,
		AccountNumber: o.Account.Number,
		Method:        string(o.Method),
		Status:        string(o.Status),
		PaymentRef:    o.Payment.Reference,
		PaymentBank:   o.Payment.Bank,
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
	if !o.Payment.ExpiresAt.IsZero() {
		r.PaymentExpiry = sql.NullTime{Time: o.Payment.ExpiresAt.UTC(), Valid: true}
	}
	return r
}

func (r orderRow) toOrder() order.Order {
	o := order.Order{
		ID:            r.ID,
		UserID:        r.UserID,
		Username:      r.Username,
		Flow:          order.Flow(r.Flow),
		SourceAmount:  r.SourceAmount,
		TargetAmount:  r.TargetAmount,
		Fee:           r.Fee,
		Total:         r.Total,
		BaseRate:      r.BaseRate,
		QuotedRate:    r.QuotedRate,
		RecipientName: r.RecipientName,
		Account:       order.Account{Kind: order.AccountKind(r.AccountKind), Bank: r.AccountBank, Number: r.AccountNumber},
		Method:        order.Method(r.Method),
		Status:        order.Status(r.Status),
		Payment:       order.Payment{Reference: r.PaymentRef, Bank: r.PaymentBank},
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.PaymentExpiry.Valid {
		o.Payment.ExpiresAt = r.PaymentExpiry.Time
	}
	return o
}

const orderColumns = `id, user_id, username, flow, source_amount, target_amount, fee, total,
	base_rate, quoted_rate, recipient_name, account_kind, account_bank, account_number,
	method, status, payment_ref, payment_bank, payment_expires_at, created_at, updated_at`

// Postgres stores orders in the orders table.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Create(ctx context.Context, o order.Order) error {
	query := `
	INSERT INTO orders (` + orderColumns + `) VALUES (
		:id, :user_id, :username, :flow, :source_amount, :target_amount, :fee, :total,
		:base_rate, :quoted_rate, :recipient_name, :account_kind, :account_bank, :account_number,
		:method, :status, :payment_ref, :payment_bank, :payment_expires_at, :created_at, :updated_at
	)`
	if _, err := p.db.NamedExecContext(ctx, query, toRow(o)); err != nil {
		return fmt.Errorf("store: insert order %s: %w", o.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (order.Order, error) {
	var row orderRow
	err := p.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("store: get order %s: %w", id, err)
	}
	return row.toOrder(), nil
}

// UpdateStatus locks the row, checks the transition and writes it in one transaction.
func (p *Postgres) UpdateStatus(ctx context.Context, id string, next order.Status, at time.Time) (order.Order, bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return order.Order{}, false, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row orderRow
	err = tx.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, false, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, false, fmt.Errorf("store: lock order %s: %w", id, err)
	}

	current := row.toOrder()
	if current.Status == next {
		return current, false, nil
	}
	if !current.Status.CanTransition(next) {
		return current, false, fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, current.Status, next)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, string(next), at.UTC(), id); err != nil {
		return order.Order{}, false, fmt.Errorf("store: update order %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return order.Order{}, false, fmt.Errorf("store: commit: %w", err)
	}
	current.Status = next
	current.UpdatedAt = at.UTC()
	return current, true, nil
}

// Memory keeps orders in process, for deployments without a database.
type Memory struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func NewMemory() *Memory {
	return &Memory{orders: make(map[string]order.Order)}
}

func (m *Memory) Create(_ context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("store: order %s already exists", o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, next order.Status, at time.Time) (order.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, false, order.ErrNotFound
	}
	if o.Status == next {
		return o, false, nil
	}
	if !o.Status.CanTransition(next) {
		return o, false, fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	m.orders[id] = o
	return o, true, nil
}
