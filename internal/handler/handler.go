// Package handler is the HTTP transport of the order API.
package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
)

const maxBody = 1 << 20

// Orders is the order service as used by the transport.
type Orders interface {
	Create(ctx context.Context, req order.CreateRequest, requester *auth.Requester) (*order.Order, error)
	FindOne(ctx context.Context, id int64, requester *auth.Requester) (*order.Order, error)
	Update(ctx context.Context, id int64, req order.UpdateRequest, requester *auth.Requester) (*order.Order, error)
	RequestCancellation(ctx context.Context, orderNumber string, reason *string, requester *auth.Requester) (*order.CancellationResult, error)
}

// Payments starts payments and applies gateway callbacks.
type Payments interface {
	Initiate(ctx context.Context, orderID int64, requester *auth.Requester) (*payment.Link, error)
	Start(ctx context.Context, o *order.Order) (*payment.Link, error)
	Complete(ctx context.Context, res payment.Result) error
}

// IPNVerifier checks MoMo instant payment notifications.
type IPNVerifier interface {
	ParseIPN(body []byte) (payment.Result, error)
}

// WebhookVerifier checks Stripe webhook events.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (payment.Result, error)
}

// Options wires the Handler. MoMo and Stripe are optional; their callback
// routes answer 404 when unset.
type Options struct {
	Orders   Orders
	Payments Payments
	Security *Security
	MoMo     IPNVerifier
	Stripe   WebhookVerifier
}

// Handler serves the order API.
type Handler struct {
	orders   Orders
	payments Payments
	security *Security
	momo     IPNVerifier
	stripe   WebhookVerifier
}

// New creates a Handler.
func New(opts Options) *Handler {
	return &Handler{
		orders:   opts.Orders,
		payments: opts.Payments,
		security: opts.Security,
		momo:     opts.MoMo,
		stripe:   opts.Stripe,
	}
}

// Routes returns the API router. Paths are relative to /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.security.Middleware)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}", h.updateOrder)
		r.Post("/orders/{orderNumber}/cancellation", h.cancelOrder)
		r.Post("/orders/{id}/payment", h.initiatePayment)
	})

	if h.momo != nil {
		r.Post("/payments/momo/ipn", h.momoIPN)
	}
	if h.stripe != nil {
		r.Post("/payments/stripe/webhook", h.stripeWebhook)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func requester(r *http.Request) *auth.Requester {
	req, _ := auth.RequesterFromContext(r.Context())
	return req
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid order id %q", raw)
	}
	return id, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, badRequest("read body: %s", err)
	}
	return body, nil
}

// decode reads a JSON object body with fn. An empty body is an empty object
// when allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, allowEmpty bool, fn func(d *jx.Decoder) error) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		return badRequest("request body is required")
	}
	if err := fn(jx.DecodeBytes(body)); err != nil {
		return badRequest("invalid body: %s", err)
	}
	return nil
}

func writeEncoded(w http.ResponseWriter, code int, enc func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	enc(e)
	writeJSON(w, code, e.Bytes())
}

func writeErrorCode(w http.ResponseWriter, code int, msg string) {
	writeEncoded(w, code, func(e *jx.Encoder) { encodeError(e, code, msg) })
}
