// Package gateway starts hosted payment sessions with an SSLCommerz style
// payment provider.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/emart-orders/internal/domain/payment"
)

// Config holds the merchant credentials and redirect URLs.
type Config struct {
	Endpoint      string        `yaml:"endpoint"`
	StoreID       string        `yaml:"storeId"`
	StorePassword string        `yaml:"storePassword"`
	Currency      string        `yaml:"currency" default:"BDT"`
	SuccessURL    string        `yaml:"successUrl"`
	FailURL       string        `yaml:"failUrl"`
	CancelURL     string        `yaml:"cancelUrl"`
	Timeout       time.Duration `yaml:"timeout" default:"10s"`
}

// Client is a payment.Gateway backed by the provider's session API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ payment.Gateway = (*Client)(nil)

// New creates a Client. Outgoing requests are traced with tp.
func New(cfg Config, tp trace.TracerProvider) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
		},
	}
}

// InitPayment opens a session for amount and returns the page the customer
// must be redirected to. Every failure wraps payment.ErrGatewayFailure.
func (c *Client) InitPayment(ctx context.Context, amount decimal.Decimal, transactionID string) (string, error) {
	form := url.Values{
		"store_id":         {c.cfg.StoreID},
		"store_passwd":     {c.cfg.StorePassword},
		"total_amount":     {amount.StringFixed(2)},
		"currency":         {c.cfg.Currency},
		"tran_id":          {transactionID},
		"success_url":      {c.cfg.SuccessURL},
		"fail_url":         {c.cfg.FailURL},
		"cancel_url":       {c.cfg.CancelURL},
		"shipping_method":  {"Courier"},
		"product_name":     {"EMart order"},
		"product_category": {"General"},
		"product_profile":  {"general"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", failure(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", failure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", failure(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", failure(errors.Errorf("unexpected status %d", resp.StatusCode))
	}

	session, err := decodeSession(body)
	if err != nil {
		return "", failure(errors.Wrap(err, "decode session"))
	}
	if !strings.EqualFold(session.Status, "SUCCESS") {
		return "", failure(errors.Errorf("session status %q: %s", session.Status, session.Reason))
	}
	if session.GatewayPageURL == "" {
		return "", failure(errors.New("missing gateway page url"))
	}
	return session.GatewayPageURL, nil
}

func failure(err error) error {
	return fmt.Errorf("%w: %w", payment.ErrGatewayFailure, err)
}

type session struct {
	Status         string
	Reason         string
	GatewayPageURL string
}

func decodeSession(body []byte) (session, error) {
	var s session
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "status":
			s.Status, err = d.Str()
		case "failedreason":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s.Reason, err = d.Str()
		case "GatewayPageURL":
			s.GatewayPageURL, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return s, err
}

// Noop is a development gateway that never leaves the process.
type Noop struct {
	BaseURL string
}

var _ payment.Gateway = Noop{}

// InitPayment returns a deterministic sandbox URL for transactionID.
func (n Noop) InitPayment(_ context.Context, amount decimal.Decimal, transactionID string) (string, error) {
	base := n.BaseURL
	if base == "" {
		base = "https://sandbox.payment.local/pay"
	}
	return base + "?" + url.Values{
		"tran_id": {transactionID},
		"amount":  {amount.StringFixed(2)},
	}.Encode(), nil
}
