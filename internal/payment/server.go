package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liraku/lirabot/core/logger"
	"github.com/liraku/lirabot/internal/order"
)

// NotificationPath is where Midtrans posts payment notifications.
const NotificationPath = "/payments/midtrans/notification"

// Transitioner applies order status changes.
type Transitioner interface {
	Transition(ctx context.Context, orderID string, next order.Status, source string) (order.Order, error)
}

// HandlerOptions configure the HTTP handlers.
type HandlerOptions struct {
	ServerKey string
	IDs       order.IDCodec
	// Health reports readiness of backing services; nil means always healthy.
	Health func(ctx context.Context) error
}

// Handler serves the notification and health endpoints.
type Handler struct {
	orders Transitioner
	opts   HandlerOptions
}

// NewHandler returns a Handler that forwards verified notifications to orders.
func NewHandler(orders Transitioner, opts HandlerOptions) *Handler {
	return &Handler{orders: orders, opts: opts}
}

// Routes mounts the endpoints on a chi router. Without a server key no
// notification can be verified, so only /health is served.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/health", h.health)
	if h.opts.ServerKey != "" {
		r.Post(NotificationPath, h.notification)
	}
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(logger.WithRID(r.Context(), rid)))
	})
}

func writeJSON(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Health(ctx); err != nil {
			logger.Warn(ctx, logger.CompHTTP, "http.health", slog.String("status", "fail"), logger.Err(err))
			writeJSON(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, "ok")
}

func (h *Handler) notification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		logger.Warn(ctx, logger.CompPayment, "payment.notification",
			slog.String("status", "fail"),
			slog.String("reason", "decode"),
			logger.Err(err))
		writeJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx = logger.WithOrderID(ctx, n.OrderID)

	if err := Verify(n, h.opts.ServerKey); err != nil {
		logger.Warn(ctx, logger.CompPayment, "security.signature_mismatch",
			slog.String("status", "fail"),
			slog.String("remote", remoteIP(r)),
			slog.String("transaction_status", n.TransactionStatus),
			slog.String("err_code", "SIGNATURE_INVALID"))
		writeJSON(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if _, err := h.opts.IDs.Parse(n.OrderID); err != nil {
		logger.Warn(ctx, logger.CompPayment, "payment.notification",
			slog.String("status", "skip"),
			slog.String("reason", "malformed_order_id"),
			slog.String("raw_order_id", logger.SanitizeLimit(n.OrderID, 64)))
		writeJSON(w, http.StatusOK, "ignored")
		return
	}

	next, ok := MapStatus(n.TransactionStatus, n.FraudStatus)
	if !ok || next == order.StatusPending {
		logger.Info(ctx, logger.CompPayment, "payment.notification",
			slog.String("status", "skip"),
			slog.String("transaction_status", n.TransactionStatus),
			slog.String("fraud_status", n.FraudStatus))
		writeJSON(w, http.StatusOK, "ignored")
		return
	}

	_, err = h.orders.Transition(ctx, n.OrderID, next, "midtrans")
	var sinkErr *order.SinkError
	switch {
	case err == nil, errors.As(err, &sinkErr):
		logger.Info(ctx, logger.CompPayment, "payment.notification",
			slog.String("status", "ok"),
			slog.String("order_status", string(next)),
			slog.String("payment_type", n.PaymentType),
			slog.Duration("duration", logger.Took(start)))
		writeJSON(w, http.StatusOK, "ok")
	case errors.Is(err, order.ErrNotFound), errors.Is(err, order.ErrInvalidTransition):
		logger.Warn(ctx, logger.CompPayment, "payment.notification",
			slog.String("status", "skip"),
			slog.String("order_status", string(next)),
			logger.Err(err))
		writeJSON(w, http.StatusOK, "ignored")
	default:
		// a non-2xx answer makes Midtrans redeliver later
		logger.Error(ctx, logger.CompPayment, "payment.notification",
			slog.String("status", "fail"),
			slog.String("order_status", string(next)),
			logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, "retry")
	}
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return logger.SanitizeLimit(fwd, 64)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Server runs the callback HTTP listener.
type Server struct {
	srv *http.Server
}

// NewServer binds h to addr.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Start listens in the background. Listen errors are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.CompHTTP, "http.listen", slog.String("status", "ok"), slog.String("listen", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, logger.CompHTTP, "http.serve", slog.String("status", "fail"), logger.Err(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
