package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
)

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	link, err := h.payments.Initiate(r.Context(), id, requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEncoded(w, http.StatusOK, func(e *jx.Encoder) { encodeLink(e, link) })
}

// momoIPN answers 204 once the notification is verified and applied. MoMo
// retries on any other status.
func (h *Handler) momoIPN(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.momo.ParseIPN(body)
	if err != nil {
		zctx.From(r.Context()).Warn("MoMo IPN rejected", zap.Error(err))
		writeErrorCode(w, http.StatusBadRequest, "invalid notification")
		return
	}
	if err := h.payments.Complete(r.Context(), res); err != nil {
		h.callbackFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.stripe.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		zctx.From(r.Context()).Warn("Stripe webhook rejected", zap.Error(err))
		writeErrorCode(w, http.StatusBadRequest, "invalid event")
		return
	}
	if err := h.payments.Complete(r.Context(), res); err != nil {
		h.callbackFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// callbackFailed acknowledges callbacks the order cannot accept, so the
// gateway stops retrying, and fails the rest.
func (h *Handler) callbackFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, order.ErrBadRequest) || errors.Is(err, order.ErrNotFound) {
		zctx.From(r.Context()).Warn("Payment callback not applied", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}
	writeError(w, r, err)
}
