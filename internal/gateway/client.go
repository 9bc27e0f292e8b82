// Package gateway is the adapter for the hosted payment gateway (Cashfree PG
// API shape). Two single-shot operations: create an order to obtain a
// checkout handle, and verify settlement after the browser returns. No
// webhooks, no retries; idempotency of order creation for a given order id
// is the gateway's responsibility.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	sandboxBase    = "https://sandbox.cashfree.com/pg"
	productionBase = "https://api.cashfree.com/pg"
	apiVersion     = "2022-09-01"

	// StatusPaid is the only order_status that counts as settled.
	StatusPaid = "PAID"
)

type Config struct {
	AppID        string
	SecretKey    string
	Currency     string
	ReturnURL    string // our endpoint the gateway redirects the browser to
	NotifyURL    string
	IsProduction bool
	BaseURL      string // overrides the environment default, used by tests
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
	}
}

// Configured reports whether credentials are present. Callers check this to
// avoid offering the hosted-gateway channel when it can only fail.
func (c *Client) Configured() bool {
	return c.cfg.AppID != "" && c.cfg.SecretKey != ""
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return strings.TrimRight(c.cfg.BaseURL, "/")
	}
	if c.cfg.IsProduction {
		return productionBase
	}
	return sandboxBase
}

// returnURL appends the placeholders the gateway substitutes on redirect.
// They come back to us as ordinary query params and are advisory only.
func (c *Client) returnURL() string {
	base := strings.TrimRight(c.cfg.ReturnURL, "?&")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "order_id={order_id}&order_status={order_status}"
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", apiVersion)
	req.Header.Set("x-client-id", c.cfg.AppID)
	req.Header.Set("x-client-secret", c.cfg.SecretKey)
}

// decodeError turns a non-2xx response into a *GatewayError, keeping the
// provider message so it can be shown to the shopper.
func decodeError(status int, raw []byte) error {
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		return &GatewayError{Status: status, Message: strings.TrimSpace(string(raw))}
	}
	return &GatewayError{Status: status, Message: body.Message, Details: body.Code}
}

// CreateOrder registers the order with the gateway and returns the checkout
// handle (payment_session_id). Fails fast with ErrNotConfigured before any
// network traffic when credentials are absent.
func (c *Client) CreateOrder(ctx context.Context, orderID string, amount float64, customer Customer) (Order, error) {
	if !c.Configured() {
		return Order{}, ErrNotConfigured
	}

	payload := map[string]any{
		"order_id":       orderID,
		"order_amount":   amount,
		"order_currency": c.cfg.Currency,
		"customer_details": map[string]string{
			"customer_id":    customer.ID,
			"customer_name":  customer.Name,
			"customer_email": customer.Email,
			"customer_phone": customer.Phone,
		},
		"order_meta": map[string]string{
			"return_url": c.returnURL(),
			"notify_url": c.cfg.NotifyURL,
		},
	}

	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/orders", bytes.NewBuffer(body))
	if err != nil {
		return Order{}, fmt.Errorf("gateway create order request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Order{}, fmt.Errorf("gateway create order: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Order{}, decodeError(resp.StatusCode, raw)
	}

	var res struct {
		OrderID          string `json:"order_id"`
		PaymentSessionID string `json:"payment_session_id"`
		OrderToken       string `json:"order_token"`
		CFOrderID        string `json:"cf_order_id"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return Order{}, fmt.Errorf("gateway create order decode: %w body=%s", err, string(raw))
	}
	if res.PaymentSessionID == "" {
		return Order{}, fmt.Errorf("gateway create order: response missing payment_session_id body=%s", string(raw))
	}

	return Order{
		OrderID:          res.OrderID,
		PaymentSessionID: res.PaymentSessionID,
		OrderToken:       res.OrderToken,
		CFOrderID:        res.CFOrderID,
	}, nil
}

// VerifyPayment asks the gateway for the order status. This is the source of
// truth after a redirect return; the status embedded in the return URL is
// never trusted.
func (c *Client) VerifyPayment(ctx context.Context, orderID string) (Verification, error) {
	if !c.Configured() {
		return Verification{}, ErrNotConfigured
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/orders/"+orderID, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("gateway verify request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Verification{}, fmt.Errorf("gateway verify: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Verification{}, decodeError(resp.StatusCode, raw)
	}

	var res struct {
		OrderStatus string  `json:"order_status"`
		CFOrderID   string  `json:"cf_order_id"`
		OrderAmount float64 `json:"order_amount"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return Verification{}, fmt.Errorf("gateway verify decode: %w body=%s", err, string(raw))
	}

	status := strings.TrimSpace(res.OrderStatus)

	return Verification{
		Settled:   strings.EqualFold(status, StatusPaid),
		RawStatus: status,
		CFOrderID: res.CFOrderID,
		Amount:    res.OrderAmount,
	}, nil
}
