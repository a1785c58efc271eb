package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
	"github.com/xenking/order-lifecycle/internal/domain/pricing"
)

// --- Mock implementations ---

type mockOrders struct {
	created   order.CreateRequest
	updated   order.UpdateRequest
	cancelled string
	reason    *string
	requester *auth.Requester

	order  *order.Order
	result *order.CancellationResult
	err    error
}

func (m *mockOrders) Create(_ context.Context, req order.CreateRequest, r *auth.Requester) (*order.Order, error) {
	m.created, m.requester = req, r
	return m.order, m.err
}

func (m *mockOrders) FindOne(_ context.Context, _ int64, r *auth.Requester) (*order.Order, error) {
	m.requester = r
	return m.order, m.err
}

func (m *mockOrders) Update(_ context.Context, _ int64, req order.UpdateRequest, r *auth.Requester) (*order.Order, error) {
	m.updated, m.requester = req, r
	return m.order, m.err
}

func (m *mockOrders) RequestCancellation(_ context.Context, number string, reason *string, r *auth.Requester) (*order.CancellationResult, error) {
	m.cancelled, m.reason, m.requester = number, reason, r
	return m.result, m.err
}

type mockPayments struct {
	link      *payment.Link
	startErr  error
	completed []payment.Result
	err       error
}

func (m *mockPayments) Initiate(context.Context, int64, *auth.Requester) (*payment.Link, error) {
	return m.link, m.err
}

func (m *mockPayments) Start(context.Context, *order.Order) (*payment.Link, error) {
	return m.link, m.startErr
}

func (m *mockPayments) Complete(_ context.Context, res payment.Result) error {
	m.completed = append(m.completed, res)
	return m.err
}

type mockIPN struct {
	res payment.Result
	err error
}

func (m *mockIPN) ParseIPN([]byte) (payment.Result, error) { return m.res, m.err }

type mockWebhook struct {
	res payment.Result
	err error
}

func (m *mockWebhook) ParseWebhook([]byte, string) (payment.Result, error) { return m.res, m.err }

// --- Helpers ---

const testSecret = "test-secret"

func newSecurity(t *testing.T) *Security {
	t.Helper()
	s, err := NewSecurity(SecurityConfig{Secret: []byte(testSecret), Issuer: "orders"})
	require.NoError(t, err)
	return s
}

func token(t *testing.T, s *Security, sub int64, role auth.Role, branch *int64) string {
	t.Helper()
	tok, err := s.Sign(Claims{
		Role:     string(role),
		BranchID: branch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(sub),
			Issuer:    "orders",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	security *Security
	orders   *mockOrders
	payments *mockPayments
}

func newTestServer(t *testing.T, orders *mockOrders, payments *mockPayments, opts ...func(*Options)) *testServer {
	t.Helper()
	sec := newSecurity(t)
	o := Options{Orders: orders, Payments: payments, Security: sec}
	for _, fn := range opts {
		fn(&o)
	}
	srv := httptest.NewServer(New(o).Routes())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, security: sec, orders: orders, payments: payments}
}

func (s *testServer) do(method, path, body string, role auth.Role) (int, []byte) {
	s.t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(s.t, err)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(s.t, s.security, 7, role, nil))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

func errorBody(t *testing.T, data []byte) (code int, msg string) {
	t.Helper()
	require.NoError(t, jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			msg, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	return code, msg
}

func fields(t *testing.T, data []byte) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		out[key] = raw.String()
		return err
	}))
	return out
}

func sampleOrder(method order.PaymentMethod) *order.Order {
	branch := int64(1)
	return &order.Order{
		ID:            42,
		Number:        "ORD-20250314-000042",
		UserID:        7,
		BranchID:      &branch,
		Status:        order.StatusPending,
		PaymentMethod: method,
		SubTotal:      decimal.NewFromInt(300),
		DiscountTotal: decimal.NewFromInt(120),
		TotalAmount:   decimal.NewFromInt(180),
		CreatedAt:     time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Items: []order.Item{
			{ID: 1, VariantID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(100), SubTotal: decimal.NewFromInt(200),
				DiscountTotal: decimal.NewFromInt(20), TotalAmount: decimal.NewFromInt(180)},
			{ID: 2, VariantID: 99, Quantity: 1, UnitPrice: decimal.NewFromInt(100), SubTotal: decimal.NewFromInt(100),
				DiscountTotal: decimal.NewFromInt(100), TotalAmount: decimal.Zero, IsGift: true},
		},
	}
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	orders := &mockOrders{order: sampleOrder(order.PaymentCOD)}
	s := newTestServer(t, orders, &mockPayments{})

	code, data := s.do(http.MethodPost, "/orders", `{
		"branchId": 1, "addressId": null, "cartId": 5, "paymentMethod": "cod",
		"couponCode": "SPRING", "note": "ring twice",
		"items": [{"variantId": 1, "quantity": 2}]
	}`, auth.RoleCustomer)
	require.Equal(t, http.StatusCreated, code, string(data))

	req := orders.created
	assert.Zero(t, req.UserID)
	require.NotNil(t, req.BranchID)
	assert.Equal(t, int64(1), *req.BranchID)
	assert.Nil(t, req.AddressID)
	require.NotNil(t, req.CartID)
	assert.Equal(t, order.PaymentCOD, req.PaymentMethod)
	assert.Equal(t, "SPRING", *req.CouponCode)
	assert.Equal(t, []pricing.Item{{VariantID: 1, Quantity: 2}}, req.Items)
	assert.Equal(t, &auth.Requester{ID: 7, Role: auth.RoleCustomer}, orders.requester)

	f := fields(t, data)
	assert.Equal(t, `"ORD-20250314-000042"`, f["orderNumber"])
	assert.Equal(t, "180", f["totalAmount"])
	assert.Equal(t, "null", f["paidAt"])
	assert.NotContains(t, f, "payment")
	assert.Contains(t, f["items"], `"isGift":true`)
}

func TestCreateOrder_StartsOnlinePayment(t *testing.T) {
	orders := &mockOrders{order: sampleOrder(order.PaymentMoMo)}
	payments := &mockPayments{link: &payment.Link{PayURL: "https://pay.example/42", OrderID: "ORD-20250314-000042"}}
	s := newTestServer(t, orders, payments)

	code, data := s.do(http.MethodPost, "/orders",
		`{"paymentMethod": "MOMO", "items": [{"variantId": 1, "quantity": 2}]}`, auth.RoleCustomer)
	require.Equal(t, http.StatusCreated, code)
	assert.Contains(t, fields(t, data)["payment"], "https://pay.example/42")

	// A gateway failure still returns the created order.
	payments.startErr = errors.New("gateway down")
	code, data = s.do(http.MethodPost, "/orders",
		`{"paymentMethod": "MOMO", "items": [{"variantId": 1, "quantity": 2}]}`, auth.RoleCustomer)
	require.Equal(t, http.StatusCreated, code)
	assert.NotContains(t, fields(t, data), "payment")
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "nope"},
		{"unknown payment method", `{"paymentMethod": "CASH", "items": []}`},
		{"wrong type", `{"items": [{"variantId": "one", "quantity": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &mockOrders{}, &mockPayments{})
			code, data := s.do(http.MethodPost, "/orders", tt.body, auth.RoleCustomer)
			assert.Equal(t, http.StatusBadRequest, code)
			c, _ := errorBody(t, data)
			assert.Equal(t, http.StatusBadRequest, c)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"bad request", fmt.Errorf("%w: items must not be empty", order.ErrBadRequest), http.StatusBadRequest, ""},
		{"gift unavailable", fmt.Errorf("%w: %w", order.ErrBadRequest, errors.New("gift missing")), http.StatusBadRequest, ""},
		{"not found", order.ErrNotFound, http.StatusNotFound, ""},
		{"forbidden", fmt.Errorf("%w: not your order", order.ErrForbidden), http.StatusForbidden, ""},
		{"engine rejects", &pricing.EngineError{StatusCode: 422, Message: "coupon expired"}, http.StatusBadRequest, "coupon expired"},
		{"engine down", &pricing.EngineError{Message: "request failed", Err: errors.New("dial")}, http.StatusBadGateway, "pricing engine unavailable"},
		{"gateway", fmt.Errorf("%w: momo: timeout", payment.ErrGateway), http.StatusBadGateway, "payment gateway unavailable"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &mockOrders{err: tt.err}, &mockPayments{})
			code, data := s.do(http.MethodGet, "/orders/42", "", auth.RoleAdmin)
			assert.Equal(t, tt.code, code)
			c, msg := errorBody(t, data)
			assert.Equal(t, tt.code, c)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, msg)
			}
		})
	}
}

func TestGetOrder_InvalidID(t *testing.T) {
	s := newTestServer(t, &mockOrders{}, &mockPayments{})
	code, _ := s.do(http.MethodGet, "/orders/abc", "", auth.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodGet, "/orders/0", "", auth.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUpdateOrder(t *testing.T) {
	orders := &mockOrders{order: sampleOrder(order.PaymentCOD)}
	s := newTestServer(t, orders, &mockPayments{})

	code, _ := s.do(http.MethodPatch, "/orders/42",
		`{"status": "confirmed", "note": null, "paymentMethod": "stripe", "addressId": 31}`, auth.RoleStaff)
	require.Equal(t, http.StatusOK, code)

	req := orders.updated
	require.NotNil(t, req.Status)
	assert.Equal(t, order.StatusConfirmed, *req.Status)
	assert.Nil(t, req.Note)
	require.NotNil(t, req.PaymentMethod)
	assert.Equal(t, order.PaymentStripe, *req.PaymentMethod)
	assert.Equal(t, int64(31), *req.AddressID)

	code, _ = s.do(http.MethodPatch, "/orders/42", `{"status": "LOST"}`, auth.RoleStaff)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCancelOrder(t *testing.T) {
	orders := &mockOrders{result: &order.CancellationResult{
		OrderNumber: "ORD-20250314-000042",
		Status:      order.StatusCancelled,
		Message:     order.MessageCancelled,
	}}
	s := newTestServer(t, orders, &mockPayments{})

	code, data := s.do(http.MethodPost, "/orders/ORD-20250314-000042/cancellation",
		`{"reason": "changed my mind"}`, auth.RoleCustomer)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ORD-20250314-000042", orders.cancelled)
	require.NotNil(t, orders.reason)
	assert.Equal(t, "changed my mind", *orders.reason)

	f := fields(t, data)
	assert.Equal(t, `"CANCELLED"`, f["status"])
	assert.Equal(t, `"`+order.MessageCancelled+`"`, f["message"])

	// The body is optional.
	code, _ = s.do(http.MethodPost, "/orders/ORD-20250314-000042/cancellation", "", auth.RoleCustomer)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, orders.reason)
}

func TestInitiatePayment(t *testing.T) {
	payments := &mockPayments{link: &payment.Link{PayURL: "https://pay.example/42", RequestID: "r1"}}
	s := newTestServer(t, &mockOrders{}, payments)

	code, data := s.do(http.MethodPost, "/orders/42/payment", "", auth.RoleCustomer)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, `"https://pay.example/42"`, fields(t, data)["payUrl"])

	payments.err = fmt.Errorf("%w: order is paid on delivery", order.ErrBadRequest)
	code, _ = s.do(http.MethodPost, "/orders/42/payment", "", auth.RoleCustomer)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMoMoIPN(t *testing.T) {
	res := payment.Result{Method: order.PaymentMoMo, OrderNumber: "ORD-20250314-000042", Success: true}
	ipn := &mockIPN{res: res}
	payments := &mockPayments{}
	s := newTestServer(t, &mockOrders{}, payments, func(o *Options) { o.MoMo = ipn })

	code, _ := s.do(http.MethodPost, "/payments/momo/ipn", `{}`, "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, []payment.Result{res}, payments.completed)

	ipn.err = errors.New("signature mismatch")
	code, _ = s.do(http.MethodPost, "/payments/momo/ipn", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Len(t, payments.completed, 1)
}

func TestStripeWebhook(t *testing.T) {
	res := payment.Result{Method: order.PaymentStripe, OrderNumber: "ORD-20250314-000042", Success: true}
	wh := &mockWebhook{res: res}
	payments := &mockPayments{}
	s := newTestServer(t, &mockOrders{}, payments, func(o *Options) { o.Stripe = wh })

	code, _ := s.do(http.MethodPost, "/payments/stripe/webhook", `{}`, "")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, payments.completed, 1)

	// Orders that cannot take the payment are acknowledged.
	payments.err = fmt.Errorf("%w: order is cancelled", order.ErrBadRequest)
	code, _ = s.do(http.MethodPost, "/payments/stripe/webhook", `{}`, "")
	assert.Equal(t, http.StatusOK, code)

	payments.err = errors.New("db down")
	code, _ = s.do(http.MethodPost, "/payments/stripe/webhook", `{}`, "")
	assert.Equal(t, http.StatusInternalServerError, code)

	wh.err = payment.ErrIgnoredEvent
	code, _ = s.do(http.MethodPost, "/payments/stripe/webhook", `{}`, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, payments.completed, 3)
}

func TestCallbackRoutesDisabled(t *testing.T) {
	s := newTestServer(t, &mockOrders{}, &mockPayments{})
	code, data := s.do(http.MethodPost, "/payments/momo/ipn", `{}`, "")
	assert.Equal(t, http.StatusNotFound, code)
	c, _ := errorBody(t, data)
	assert.Equal(t, http.StatusNotFound, c)
}
