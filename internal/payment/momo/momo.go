// Package momo is the MoMo e-wallet payment gateway.
package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
)

const (
	createPath  = "/v2/gateway/api/create"
	requestType = "captureWallet"
	maxBody     = 64 << 10
)

// Result codes that mean the money was taken.
const (
	codeSuccess    = 0
	codeAuthorized = 9000
)

var (
	// ErrSignature is returned for callbacks with a wrong signature.
	ErrSignature = errors.New("momo: signature mismatch")
	// ErrPartner is returned for callbacks addressed to another partner.
	ErrPartner = errors.New("momo: unexpected partner code")
)

var _ payment.Gateway = (*Client)(nil)

// Config holds merchant credentials and callback URLs.
type Config struct {
	Endpoint    string        `yaml:"endpoint" default:"https://test-payment.momo.vn"`
	PartnerCode string        `yaml:"partner_code"`
	AccessKey   string        `yaml:"access_key"`
	SecretKey   string        `yaml:"secret_key"`
	RedirectURL string        `yaml:"redirect_url"`
	IPNURL      string        `yaml:"ipn_url"`
	Lang        string        `yaml:"lang" default:"vi"`
	Timeout     time.Duration `yaml:"timeout" default:"10s"`
}

// Enabled reports whether credentials are configured.
func (c Config) Enabled() bool {
	return c.PartnerCode != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Client creates MoMo payments and verifies their callbacks.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client. tp may be nil.
func NewClient(cfg Config, tp trace.TracerProvider) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("momo credentials are required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("momo endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}, nil
}

// CreatePayment registers a wallet payment and returns its pay URL. Each
// attempt gets its own MoMo order id; the order number travels in extraData.
func (c *Client) CreatePayment(ctx context.Context, req payment.Request) (*payment.Link, error) {
	p := createParams{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   req.RequestID,
		Amount:      req.Amount.Round(0).IntPart(),
		OrderID:     attemptID(req.OrderNumber, req.RequestID),
		OrderInfo:   "Payment for order " + req.OrderNumber,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		ExtraData:   base64.StdEncoding.EncodeToString([]byte(req.OrderNumber)),
		RequestType: requestType,
		Lang:        c.cfg.Lang,
	}
	p.Signature = c.sign(p.raw(c.cfg.AccessKey))

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	p.encode(e)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+createPath, bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	link, err := decodeCreateResponse(body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode response (status %d)", resp.StatusCode)
	}
	if link.ResultCode != codeSuccess {
		return nil, errors.Errorf("create payment: code %d: %s", link.ResultCode, link.Message)
	}
	link.OrderID = req.OrderNumber
	return link, nil
}

// ParseIPN verifies an instant payment notification and converts it into
// a payment result.
func (c *Client) ParseIPN(body []byte) (payment.Result, error) {
	n, err := decodeIPN(body)
	if err != nil {
		return payment.Result{}, errors.Wrap(err, "decode ipn")
	}
	if n.PartnerCode != c.cfg.PartnerCode {
		return payment.Result{}, ErrPartner
	}
	want := c.sign(n.raw(c.cfg.AccessKey))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(n.Signature))) {
		return payment.Result{}, ErrSignature
	}

	number, err := base64.StdEncoding.DecodeString(n.ExtraData)
	if err != nil || len(number) == 0 {
		return payment.Result{}, errors.Errorf("ipn for %s carries no order number", n.OrderID)
	}
	return payment.Result{
		Method:      order.PaymentMoMo,
		OrderNumber: string(number),
		Success:     n.ResultCode == codeSuccess || n.ResultCode == codeAuthorized,
		Amount:      decimal.NewFromInt(n.Amount),
		Reference:   strconv.FormatInt(n.TransID, 10),
		Message:     n.Message,
	}, nil
}

func (c *Client) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	_, _ = mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// attemptID makes the MoMo order id unique per attempt.
func attemptID(number, requestID string) string {
	suffix := requestID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return number + "-" + suffix
}
