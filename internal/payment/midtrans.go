// Package payment talks to the Midtrans Core API: it creates QRIS and
// virtual account charges and accepts payment notifications.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/core/netutil"
	"github.com/liraku/lirabot/internal/order"
)

const (
	SandboxBaseURL    = "https://api.sandbox.midtrans.com/v2"
	ProductionBaseURL = "https://api.midtrans.com/v2"

	defaultChargeTimeout = 30 * time.Second
	expiryLayout         = "2006-01-02 15:04:05"
)

// ErrCharge wraps every failed charge attempt.
var ErrCharge = errors.New("payment: charge failed")

// ClientOptions configure a Midtrans client.
type ClientOptions struct {
	ServerKey  string
	Production bool
	// BaseURL overrides the environment endpoint.
	BaseURL      string
	QRISAcquirer string
	VABank       string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client creates Midtrans charges.
type Client struct {
	serverKey string
	baseURL   string
	acquirer  string
	vaBank    string
	http      *http.Client
	wib       *time.Location
}

// NewClient returns a Midtrans client. Charges are never retried: a
// repeated charge with the same order id is rejected by the gateway.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.ServerKey) == "" {
		return nil, errors.New("payment: server key is required")
	}
	base := opts.BaseURL
	if base == "" {
		base = SandboxBaseURL
		if opts.Production {
			base = ProductionBaseURL
		}
	}
	if opts.QRISAcquirer == "" {
		opts.QRISAcquirer = "gopay"
	}
	if opts.VABank == "" {
		opts.VABank = "bca"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultChargeTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = netutil.NewClient(netutil.ClientOptions{Timeout: opts.Timeout})
	}
	return &Client{
		serverKey: opts.ServerKey,
		baseURL:   strings.TrimRight(base, "/"),
		acquirer:  opts.QRISAcquirer,
		vaBank:    strings.ToLower(opts.VABank),
		http:      hc,
		wib:       time.FixedZone("WIB", 7*3600),
	}, nil
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type customerDetails struct {
	FirstName string `json:"first_name"`
}

type chargeRequest struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	QRIS               *struct {
		Acquirer string `json:"acquirer"`
	} `json:"qris,omitempty"`
	BankTransfer *struct {
		Bank string `json:"bank"`
	} `json:"bank_transfer,omitempty"`
	CustomerDetails customerDetails `json:"customer_details"`
}

type chargeResponse struct {
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Actions       []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"actions"`
	VANumbers []struct {
		Bank     string `json:"bank"`
		VANumber string `json:"va_number"`
	} `json:"va_numbers"`
	ExpiryTime string `json:"expiry_time"`
}

func (c *Client) request(o order.Order) (chargeRequest, error) {
	req := chargeRequest{
		TransactionDetails: transactionDetails{OrderID: o.ID, GrossAmount: o.Total.Round(0).IntPart()},
		CustomerDetails:    customerDetails{FirstName: o.RecipientName},
	}
	switch o.Method {
	case order.MethodQRIS:
		req.PaymentType = "qris"
		req.QRIS = &struct {
			Acquirer string `json:"acquirer"`
		}{Acquirer: c.acquirer}
	case order.MethodVA:
		req.PaymentType = "bank_transfer"
		req.BankTransfer = &struct {
			Bank string `json:"bank"`
		}{Bank: c.vaBank}
	default:
		return req, fmt.Errorf("%w: method %q is not automated", ErrCharge, o.Method)
	}
	if req.TransactionDetails.GrossAmount <= 0 {
		return req, fmt.Errorf("%w: non-positive amount", ErrCharge)
	}
	return req, nil
}

// Charge creates the gateway payment for o and returns the QR link or the
// virtual account number.
func (c *Client) Charge(ctx context.Context, o order.Order) (order.Payment, error) {
	payload, err := c.request(o)
	if err != nil {
		return order.Payment{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return order.Payment{}, fmt.Errorf("%w: encode: %v", ErrCharge, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charge", bytes.NewReader(body))
	if err != nil {
		return order.Payment{}, fmt.Errorf("%w: %v", ErrCharge, err)
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, logger.CompPayment, "payment.charge",
			slog.String("status", "fail"),
			slog.String("method", string(o.Method)),
			slog.Duration("duration", logger.Took(start)),
			logger.Err(err))
		return order.Payment{}, fmt.Errorf("%w: %v", ErrCharge, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return order.Payment{}, fmt.Errorf("%w: read body: %v", ErrCharge, err)
	}
	var out chargeResponse
	decodeErr := json.Unmarshal(raw, &out)

	logger.Info(ctx, logger.CompPayment, "payment.charge",
		slog.String("status", logger.Status(decodeErr)),
		slog.String("method", string(o.Method)),
		slog.Int("http_code", resp.StatusCode),
		slog.String("gateway_code", out.StatusCode),
		slog.Duration("duration", logger.Took(start)))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return order.Payment{}, fmt.Errorf("%w: http %d: %s", ErrCharge, resp.StatusCode, logger.SanitizeLimit(string(raw), 200))
	}
	if decodeErr != nil {
		return order.Payment{}, fmt.Errorf("%w: decode: %v", ErrCharge, decodeErr)
	}
	// Midtrans reports business errors in the body with HTTP 200.
	if out.StatusCode != "" && out.StatusCode != "200" && out.StatusCode != "201" {
		return order.Payment{}, fmt.Errorf("%w: gateway %s: %s", ErrCharge, out.StatusCode, out.StatusMessage)
	}

	p := order.Payment{}
	if t, err := time.ParseInLocation(expiryLayout, out.ExpiryTime, c.wib); err == nil {
		p.ExpiresAt = t
	}
	switch o.Method {
	case order.MethodQRIS:
		for _, a := range out.Actions {
			if a.Name == "generate-qr-code" || p.Reference == "" {
				p.Reference = a.URL
			}
		}
	case order.MethodVA:
		if len(out.VANumbers) > 0 {
			p.Reference = out.VANumbers[0].VANumber
			p.Bank = out.VANumbers[0].Bank
		}
	}
	if p.Reference == "" {
		return order.Payment{}, fmt.Errorf("%w: response carries no payment reference", ErrCharge)
	}
	return p, nil
}
