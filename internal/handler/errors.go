package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
	"github.com/xenking/order-lifecycle/internal/domain/pricing"
)

// statusOf maps an error returned by the domain to an HTTP status and the
// message shown to the client.
func statusOf(err error) (int, string) {
	var engErr *pricing.EngineError
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &engErr):
		if engErr.Rejected() {
			return http.StatusBadRequest, engErr.Message
		}
		return http.StatusBadGateway, "pricing engine unavailable"
	case errors.Is(err, payment.ErrGateway):
		return http.StatusBadGateway, "payment gateway unavailable"
	case errors.Is(err, order.ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusOf(err)
	lg := zctx.From(r.Context())
	switch {
	case code >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Int("status", code), zap.Error(err))
	case code != http.StatusUnauthorized:
		lg.Debug("Request rejected", zap.Int("status", code), zap.Error(err))
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeError(e, code, msg)
	writeJSON(w, code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", order.ErrBadRequest, fmt.Sprintf(format, args...))
}
