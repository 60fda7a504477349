package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liraku/lirabot/core/netutil"
	"github.com/liraku/lirabot/internal/money"
)

const (
	DefaultExchangeRateBaseURL = "https://v6.exchangerate-api.com"
	DefaultTimeout             = 10 * time.Second

	sourceExchangeRateAPI = "exchangerate-api"
	maxBody               = 64 << 10
)

// ExchangeRateAPI reads pair rates from exchangerate-api.com v6.
type ExchangeRateAPI struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// ExchangeRateOptions configure the client. Zero values select defaults.
type ExchangeRateOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
	// HTTPClient overrides the client built from Timeout and Retries.
	HTTPClient *http.Client
}

func NewExchangeRateAPI(opts ExchangeRateOptions) *ExchangeRateAPI {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = DefaultExchangeRateBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = netutil.NewClient(netutil.ClientOptions{Timeout: opts.Timeout, Retries: opts.Retries})
	}
	return &ExchangeRateAPI{baseURL: base, apiKey: opts.APIKey, httpClient: client, now: time.Now}
}

type pairResponse struct {
	Result         string          `json:"result"`
	ErrorType      string          `json:"error-type"`
	ConversionRate json.RawMessage `json:"conversion_rate"`
}

// Rate implements Provider. Every failure is an *UnavailableError.
func (c *ExchangeRateAPI) Rate(ctx context.Context, from, to money.Currency) (Rate, error) {
	fail := func(reason string, err error) (Rate, error) {
		return Rate{}, &UnavailableError{Source: sourceExchangeRateAPI, Reason: reason, Err: err}
	}
	if c.apiKey == "" {
		return fail("api key not configured", nil)
	}

	url := fmt.Sprintf("%s/v6/%s/pair/%s/%s", c.baseURL, c.apiKey, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the request URL carries the key
		return fail("request failed", redactKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fail("read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Sprintf("http status %d", resp.StatusCode), nil)
	}

	var payload pairResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return fail("decode body", err)
	}
	if payload.Result != "success" {
		reason := "result " + payload.Result
		if payload.ErrorType != "" {
			reason += ": " + payload.ErrorType
		}
		return fail(reason, nil)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(string(payload.ConversionRate)))
	if err != nil {
		return fail("conversion_rate is not numeric", err)
	}
	if value.Sign() <= 0 {
		return fail("conversion_rate not positive", nil)
	}
	return Rate{From: from, To: to, Value: value, FetchedAt: c.now(), Source: sourceExchangeRateAPI}, nil
}

// redactedError hides the key in the message but keeps the cause reachable
// for errors.Is and errors.As.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "***"), err: err}
}
