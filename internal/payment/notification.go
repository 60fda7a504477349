package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/liraku/lirabot/internal/order"
)

// ErrSignatureInvalid is returned for notifications whose signature_key does
// not match the server key.
var ErrSignatureInvalid = errors.New("payment: invalid notification signature")

// Notification is the body Midtrans posts on every transaction change.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id,omitempty"`
}

// Signature computes hex(sha512(order_id + status_code + gross_amount + server_key)).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify checks n.SignatureKey in constant time.
func Verify(n Notification, serverKey string) error {
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// MapStatus translates a gateway status into an order status. ok is false
// for statuses the bot does not act on.
func MapStatus(transactionStatus, fraudStatus string) (order.Status, bool) {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return order.StatusPaid, true
	case "capture":
		if strings.EqualFold(fraudStatus, "accept") {
			return order.StatusPaid, true
		}
		// challenge or unknown fraud verdicts wait for review
		return order.StatusPending, true
	case "cancel", "deny", "expire":
		return order.StatusFailed, true
	case "pending":
		return order.StatusPending, true
	default:
		return "", false
	}
}
