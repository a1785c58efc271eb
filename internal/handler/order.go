package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
)

// createOrder places the order and, for online payment methods, opens a
// payment at the gateway. A failed payment start does not fail the request;
// the client retries through the payment endpoint.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := decode(w, r, false, func(d *jx.Decoder) error {
		var err error
		req, err = decodeCreate(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), req, requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var link *payment.Link
	if o.PaymentMethod.Online() && h.payments != nil {
		link, err = h.payments.Start(r.Context(), o)
		if err != nil {
			zctx.From(r.Context()).Warn("Payment start failed",
				zap.String("order_number", o.Number),
				zap.Error(err),
			)
			link = nil
		}
	}
	writeEncoded(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o, link) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.FindOne(r.Context(), id, requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEncoded(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil) })
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req order.UpdateRequest
	if err := decode(w, r, false, func(d *jx.Decoder) error {
		var err error
		req, err = decodeUpdate(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Update(r.Context(), id, req, requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEncoded(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, nil) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var reason *string
	if err := decode(w, r, true, func(d *jx.Decoder) error {
		var err error
		reason, err = decodeReason(d)
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.RequestCancellation(r.Context(), chi.URLParam(r, "orderNumber"), reason, requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEncoded(w, http.StatusOK, func(e *jx.Encoder) { encodeCancellation(e, res) })
}
