// Package pricing is the HTTP client of the external pricing engine.
package pricing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/order-lifecycle/internal/domain/pricing"
)

const (
	calculatePath  = "/pricing/calculate"
	maxErrorBody   = 4 << 10
	maxSummaryBody = 4 << 20
)

var _ pricing.Calculator = (*Client)(nil)

// Options configures a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
}

// Client calls the pricing engine over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a Client for the engine at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("pricing base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	var transportOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	return &Client{
		endpoint: base + calculatePath,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, transportOpts...),
		},
	}, nil
}

// Calculate returns the engine's summary for the items. Every failure is a
// *pricing.EngineError; the engine is never second-guessed.
func (c *Client) Calculate(ctx context.Context, items []pricing.Item, pc pricing.Context) (*pricing.Summary, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeRequest(e, items, pc)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, &pricing.EngineError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &pricing.EngineError{Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg, ok := decodeMessage(body)
		if !ok {
			msg = strings.TrimSpace(string(body))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &pricing.EngineError{StatusCode: resp.StatusCode, Message: msg}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSummaryBody))
	if err != nil {
		return nil, &pricing.EngineError{Message: "read response", Err: err}
	}
	summary, err := decodeSummary(jx.DecodeBytes(body))
	if err != nil {
		return nil, &pricing.EngineError{Message: "invalid response", Err: err}
	}
	return summary, nil
}
