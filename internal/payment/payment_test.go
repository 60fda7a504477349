package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/internal/order"
)

const serverKey = "SB-Mid-server-test"

func chargeOrder(method order.Method) order.Order {
	return order.Order{
		ID:            "LIRA_42_1777626000",
		UserID:        42,
		Total:         decimal.NewFromInt(503850),
		RecipientName: "Ahmet Yilmaz",
		Method:        method,
	}
}

func TestChargeQRIS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != serverKey || pass != "" {
			t.Errorf("missing basic auth")
		}
		if r.URL.Path != "/charge" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req chargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.PaymentType != "qris" || req.QRIS == nil || req.QRIS.Acquirer != "gopay" || req.TransactionDetails.GrossAmount != 503850 {
			t.Errorf("unexpected request %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status_code":"201","actions":[{"name":"generate-qr-code","url":"https://api.midtrans.com/qr.png"},{"name":"deeplink-redirect","url":"gojek://x"}],"expiry_time":"2026-05-01 09:15:00"}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{ServerKey: serverKey, BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	p, err := c.Charge(context.Background(), chargeOrder(order.MethodQRIS))
	if err != nil {
		t.Fatal(err)
	}
	if p.Reference != "https://api.midtrans.com/qr.png" {
		t.Fatalf("reference = %q", p.Reference)
	}
	if p.ExpiresAt.UTC().Hour() != 2 {
		t.Fatalf("expiry not read as WIB: %v", p.ExpiresAt)
	}
}

func TestChargeVA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PaymentType != "bank_transfer" || req.BankTransfer == nil || req.BankTransfer.Bank != "bca" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"status_code":"201","va_numbers":[{"bank":"bca","va_number":"12345678901"}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{ServerKey: serverKey, BaseURL: srv.URL})
	p, err := c.Charge(context.Background(), chargeOrder(order.MethodVA))
	if err != nil {
		t.Fatal(err)
	}
	if p.Reference != "12345678901" || p.Bank != "bca" {
		t.Fatalf("payment = %+v", p)
	}
}

func TestChargeFailures(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		body   string
		method order.Method
	}{
		{"http error", http.StatusUnauthorized, `{"status_message":"unauthorized"}`, order.MethodQRIS},
		{"gateway error in body", http.StatusOK, `{"status_code":"406","status_message":"duplicate order id"}`, order.MethodQRIS},
		{"no reference", http.StatusCreated, `{"status_code":"201"}`, order.MethodVA},
		{"garbage", http.StatusCreated, `not json`, order.MethodVA},
		{"manual method", http.StatusCreated, `{}`, order.MethodManual},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			c, _ := NewClient(ClientOptions{ServerKey: serverKey, BaseURL: srv.URL})
			if _, err := c.Charge(context.Background(), chargeOrder(tc.method)); !errors.Is(err, ErrCharge) {
				t.Fatalf("expected ErrCharge, got %v", err)
			}
		})
	}
}

func TestNewClientBaseURL(t *testing.T) {
	if _, err := NewClient(ClientOptions{}); err == nil {
		t.Fatalf("missing server key accepted")
	}
	c, _ := NewClient(ClientOptions{ServerKey: "k"})
	if c.baseURL != SandboxBaseURL {
		t.Fatalf("base = %s", c.baseURL)
	}
	c, _ = NewClient(ClientOptions{ServerKey: "k", Production: true})
	if c.baseURL != ProductionBaseURL {
		t.Fatalf("base = %s", c.baseURL)
	}
}

func signed(orderID, status, fraud string) Notification {
	n := Notification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       "503850.00",
		TransactionStatus: status,
		FraudStatus:       fraud,
		PaymentType:       "qris",
	}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return n
}

func TestVerify(t *testing.T) {
	n := signed("LIRA_42_1777626000", "settlement", "")
	if err := Verify(n, serverKey); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	n.SignatureKey = strings.ToUpper(n.SignatureKey)
	if err := Verify(n, serverKey); err != nil {
		t.Fatalf("upper-case hex rejected: %v", err)
	}
	n.GrossAmount = "1.00"
	if err := Verify(n, serverKey); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered amount accepted")
	}
	if err := Verify(signed("LIRA_42_1777626000", "settlement", ""), "other-key"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("wrong key accepted")
	}
}

func TestVerifyRejectsAnySingleCharMutation(t *testing.T) {
	base := signed("LIRA_42_1777626000", "settlement", "")
	fields := []func(*Notification) *string{
		func(n *Notification) *string { return &n.OrderID },
		func(n *Notification) *string { return &n.StatusCode },
		func(n *Notification) *string { return &n.GrossAmount },
	}
	for fi, field := range fields {
		orig := *field(&base)
		for i := range orig {
			n := base
			b := []byte(orig)
			b[i] ^= 0x01
			*field(&n) = string(b)
			if err := Verify(n, serverKey); !errors.Is(err, ErrSignatureInvalid) {
				t.Fatalf("field %d, index %d: mutated payload accepted", fi, i)
			}
		}
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status, fraud string
		want          order.Status
		ok            bool
	}{
		{"settlement", "", order.StatusPaid, true},
		{"capture", "accept", order.StatusPaid, true},
		{"capture", "challenge", order.StatusPending, true},
		{"capture", "", order.StatusPending, true},
		{"pending", "", order.StatusPending, true},
		{"cancel", "", order.StatusFailed, true},
		{"deny", "", order.StatusFailed, true},
		{"expire", "", order.StatusFailed, true},
		{"refund", "", "", false},
	}
	for _, tc := range cases {
		got, ok := MapStatus(tc.status, tc.fraud)
		if got != tc.want || ok != tc.ok {
			t.Errorf("MapStatus(%q, %q) = %q, %v", tc.status, tc.fraud, got, ok)
		}
	}
}

type transition struct {
	id     string
	status order.Status
	source string
}

type fakeOrders struct {
	calls []transition
	err   error
}

func (f *fakeOrders) Transition(_ context.Context, id string, next order.Status, source string) (order.Order, error) {
	f.calls = append(f.calls, transition{id, next, source})
	return order.Order{ID: id, Status: next}, f.err
}

func post(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, NotificationPath, strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNotificationHandler(t *testing.T) {
	cases := []struct {
		name     string
		body     Notification
		repoErr  error
		wantCode int
		wantBody string
		calls    int
	}{
		{"paid", signed("LIRA_42_1777626000", "settlement", ""), nil, http.StatusOK, "ok", 1},
		{"failed", signed("LIRA_42_1777626000", "expire", ""), nil, http.StatusOK, "ok", 1},
		{"partial sink failure", signed("LIRA_42_1777626000", "settlement", ""), &order.SinkError{OrderID: "x"}, http.StatusOK, "ok", 1},
		{"bad signature", func() Notification { n := signed("LIRA_42_1777626000", "settlement", ""); n.SignatureKey = "00"; return n }(), nil, http.StatusBadRequest, "invalid signature", 0},
		{"malformed id", signed("ORDER-42", "settlement", ""), nil, http.StatusOK, "ignored", 0},
		{"pending", signed("LIRA_42_1777626000", "pending", ""), nil, http.StatusOK, "ignored", 0},
		{"unknown status", signed("LIRA_42_1777626000", "refund", ""), nil, http.StatusOK, "ignored", 0},
		{"unknown order", signed("LIRA_42_1777626000", "settlement", ""), order.ErrNotFound, http.StatusOK, "ignored", 1},
		{"already final", signed("LIRA_42_1777626000", "expire", ""), order.ErrInvalidTransition, http.StatusOK, "ignored", 1},
		{"store down", signed("LIRA_42_1777626000", "settlement", ""), errors.New("db down"), http.StatusInternalServerError, "retry", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &fakeOrders{err: tc.repoErr}
			h := NewHandler(orders, HandlerOptions{ServerKey: serverKey}).Routes()
			rec := post(t, h, tc.body)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			var resp map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp["status"] != tc.wantBody {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
			if len(orders.calls) != tc.calls {
				t.Fatalf("transitions = %d, want %d", len(orders.calls), tc.calls)
			}
			if tc.calls == 1 && orders.calls[0].source != "midtrans" {
				t.Fatalf("source = %q", orders.calls[0].source)
			}
		})
	}
}

func TestNotificationRejectsInvalidJSON(t *testing.T) {
	h := NewHandler(&fakeOrders{}, HandlerOptions{ServerKey: serverKey}).Routes()
	req := httptest.NewRequest(http.MethodPost, NotificationPath, strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestNotificationNeedsServerKey(t *testing.T) {
	orders := &fakeOrders{}
	h := NewHandler(orders, HandlerOptions{}).Routes()
	n := signed("LIRA_42_1777626000", "settlement", "")
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, "")
	if rec := post(t, h, n); rec.Code == http.StatusOK || len(orders.calls) != 0 {
		t.Fatalf("notification accepted without a server key: %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	down := errors.New("db down")
	for _, tc := range []struct {
		check func(context.Context) error
		code  int
	}{
		{nil, http.StatusOK},
		{func(context.Context) error { return nil }, http.StatusOK},
		{func(context.Context) error { return down }, http.StatusServiceUnavailable},
	} {
		h := NewHandler(&fakeOrders{}, HandlerOptions{Health: tc.check}).Routes()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != tc.code {
			t.Fatalf("code = %d, want %d", rec.Code, tc.code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("missing request id")
		}
	}
}
