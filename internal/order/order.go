// Package order defines the exchange order, its lifecycle, and the contracts
// of the components that store and route orders.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/money"
)

// Flow is the direction of an exchange.
type Flow string

const (
	// FlowBuy exchanges IDR for TRY.
	FlowBuy Flow = "buy"
	// FlowSell exchanges TRY for IDR.
	FlowSell Flow = "sell"
)

// Source is the currency the customer pays in.
func (f Flow) Source() money.Currency {
	if f == FlowSell {
		return money.TRY
	}
	return money.IDR
}

// Target is the currency the customer receives.
func (f Flow) Target() money.Currency {
	if f == FlowSell {
		return money.IDR
	}
	return money.TRY
}

// Valid reports whether f is a known flow.
func (f Flow) Valid() bool { return f == FlowBuy || f == FlowSell }

// Method is how the customer settles the source amount.
type Method string

const (
	MethodQRIS   Method = "qris"
	MethodVA     Method = "virtual_account"
	MethodManual Method = "manual_transfer"
)

// Automated reports whether settlement goes through the payment gateway.
func (m Method) Automated() bool { return m == MethodQRIS || m == MethodVA }

// Label is the customer-facing method name.
func (m Method) Label() string {
	switch m {
	case MethodQRIS:
		return "QRIS"
	case MethodVA:
		return "Virtual Account"
	case MethodManual:
		return "Transfer manual"
	default:
		return string(m)
	}
}

// Status is the settlement state of an order.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusPaid                 Status = "paid"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusAwaitingVerification || next.Terminal()
	case StatusAwaitingVerification:
		return next.Terminal()
	default:
		return false
	}
}

// AccountKind tells IBANs from domestic bank accounts.
type AccountKind string

const (
	AccountIBAN AccountKind = "iban"
	AccountBank AccountKind = "bank"
)

// Account is where the target amount is paid out.
type Account struct {
	Kind AccountKind `json:"kind"`
	// Bank is the bank name for domestic accounts; empty for IBANs.
	Bank   string `json:"bank,omitempty"`
	Number string `json:"number"`
}

// String renders the account the way it is shown and recorded.
func (a Account) String() string {
	if a.Kind == AccountBank {
		return a.Bank + " - " + a.Number
	}
	return a.Number
}

// Payment carries gateway instructions for automated methods.
type Payment struct {
	// Reference is the QR image URL or the virtual account number.
	Reference string    `json:"reference"`
	Bank      string    `json:"bank,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Order is a confirmed exchange request. Amounts are in the flow's
// source and target currencies; Fee and Total in the source currency.
type Order struct {
	ID            string
	UserID        int64
	Username      string
	Flow          Flow
	SourceAmount  decimal.Decimal
	TargetAmount  decimal.Decimal
	Fee           decimal.Decimal
	Total         decimal.Decimal
	BaseRate      decimal.Decimal
	QuotedRate    decimal.Decimal
	RecipientName string
	Account       Account
	Method        Method
	Status        Status
	Payment       Payment
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	// ErrNotFound is returned for unknown order ids.
	ErrNotFound = errors.New("order: not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrNotOwner is returned when a user acts on someone else's order.
	ErrNotOwner = errors.New("order: not owned by user")
)

// Repository stores orders. UpdateStatus must apply the change atomically
// and only when the stored status may transition to next; a same-status
// update returns the order unchanged with changed=false.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	UpdateStatus(ctx context.Context, id string, next Status, at time.Time) (o Order, changed bool, err error)
}

// Receipt reports which sink steps succeeded.
type Receipt struct {
	OrderID       string
	Persisted     bool
	Ledgered      bool
	AdminNotified bool
	Published     bool
}

// Sink takes ownership of a confirmed order.
// A non-nil *SinkError comes with a usable Receipt: the order is accepted
// even if some side effects failed.
type Sink interface {
	Submit(ctx context.Context, o Order) (Receipt, error)
}

// StepFailure names a failed sink step.
type StepFailure struct {
	Step string
	Err  error
}

// SinkError aggregates the failed steps of one submission or transition.
type SinkError struct {
	OrderID  string
	Failures []StepFailure
}

func (e *SinkError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Step+": "+f.Err.Error())
	}
	return fmt.Sprintf("order %s: sink failures: %s", e.OrderID, strings.Join(parts, "; "))
}

// Code is used by handler logs.
func (e *SinkError) Code() string { return "SINK_PARTIAL_FAILURE" }

// Unwrap exposes the step errors to errors.Is and errors.As.
func (e *SinkError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
