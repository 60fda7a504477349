// Package flow drives a user through an exchange order conversation.
package flow

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/order"
	"github.com/liraku/lirabot/internal/pricing"
)

// Step is the position of a session in the conversation.
type Step string

const (
	// StepIdle means no session exists.
	StepIdle    Step = "idle"
	StepAmount  Step = "await_amount"
	StepName    Step = "await_name"
	StepAccount Step = "await_account"
	StepMethod  Step = "await_method"
	StepConfirm Step = "await_confirm"
)

var (
	// ErrSessionNotFound is returned for step events that arrive without an active session.
	ErrSessionNotFound = errors.New("flow: session not found")
	// ErrUnknownAction is returned for button tokens outside the action set.
	ErrUnknownAction = errors.New("flow: unknown action")
	// ErrUnexpectedAction is returned for a known action pressed in the wrong step.
	ErrUnexpectedAction = errors.New("flow: action not valid for current step")
	// ErrChargeFailed is returned when the payment gateway refused to create a charge.
	ErrChargeFailed = errors.New("flow: payment charge failed")
)

// Session is the in-progress order of one user.
type Session struct {
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username,omitempty"`
	Flow      order.Flow      `json:"flow"`
	Step      Step            `json:"step"`
	Amount    decimal.Decimal `json:"amount"`
	Name      string          `json:"name,omitempty"`
	Account   order.Account   `json:"account"`
	Method    order.Method    `json:"method,omitempty"`
	Quote     pricing.Quote   `json:"quote"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Fields returns the collected values keyed by field name.
func (s Session) Fields() map[string]string {
	f := make(map[string]string, 6)
	if !s.Amount.IsZero() {
		f["amount"] = s.Amount.String()
	}
	if s.Name != "" {
		f["name"] = s.Name
	}
	if s.Account.Number != "" {
		f["account"] = s.Account.String()
	}
	if s.Method != "" {
		f["method"] = string(s.Method)
	}
	if !s.Quote.IsZero() {
		f["quoted_rate"] = s.Quote.QuotedRate.String()
		f["target_amount"] = s.Quote.TargetAmount.String()
	}
	return f
}

// SessionStore holds sessions by user id. Implementations copy values in and
// out; callers never share a Session with the store.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (Session, bool, error)
	Put(ctx context.Context, s Session) error
	// Delete removes the session and reports whether one existed.
	Delete(ctx context.Context, userID int64) (bool, error)
}
