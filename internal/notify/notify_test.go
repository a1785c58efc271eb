package notify

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/mailer"
)

type published struct {
	key  string
	body string
}

type mockPublisher struct {
	sent []published
	fail map[string]bool
}

func (m *mockPublisher) Publish(_ context.Context, key string, body []byte) error {
	if m.fail[key] {
		return errors.Errorf("publish %s: channel closed", key)
	}
	m.sent = append(m.sent, published{key: key, body: string(body)})
	return nil
}

type mockUsers struct {
	admins   []int64
	adminErr error
	users    map[int64]*auth.User
}

func (m *mockUsers) AdminIDs(context.Context) ([]int64, error) { return m.admins, m.adminErr }

func (m *mockUsers) GetByID(_ context.Context, id int64) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

type mockMailer struct {
	sent []mailer.StatusEmail
	err  error
}

func (m *mockMailer) SendStatusChanged(_ context.Context, e mailer.StatusEmail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func createdNotice() order.OrderCreatedNotice {
	return order.OrderCreatedNotice{
		OrderID:     42,
		OrderNumber: "ORD-20250314-000042",
		UserID:      7,
		TotalAmount: decimal.NewFromInt(180),
		ItemCount:   2,
		GiftCount:   1,
	}
}

func TestNotifyAdminsOrderCreated(t *testing.T) {
	pub := &mockPublisher{}
	svc := New(pub, &mockUsers{admins: []int64{1, 2}}, nil)

	res := svc.NotifyAdminsOrderCreated(context.Background(), createdNotice())

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TargetedReceivers)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Zero(t, res.FailureCount)
	assert.True(t, res.TopicSent)

	require.Len(t, pub.sent, 3)
	assert.Equal(t, "user.1", pub.sent[0].key)
	assert.Equal(t, "user.2", pub.sent[1].key)
	assert.Equal(t, TopicOrderCreated, pub.sent[2].key)
	assert.JSONEq(t, `{
		"type": "order_created",
		"orderId": 42,
		"orderNumber": "ORD-20250314-000042",
		"userId": 7,
		"branchId": null,
		"totalAmount": "180.00",
		"itemCount": 2,
		"giftCount": 1
	}`, pub.sent[2].body)
}

func TestNotifyAdminsOrderCreated_PartialFailure(t *testing.T) {
	pub := &mockPublisher{fail: map[string]bool{"user.2": true}}
	svc := New(pub, &mockUsers{admins: []int64{1, 2, 3}}, nil)

	res := svc.NotifyAdminsOrderCreated(context.Background(), createdNotice())

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.TargetedReceivers)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.True(t, res.TopicSent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "user.2")
}

func TestNotifyAdminsOrderCreated_AdminLookupFails(t *testing.T) {
	pub := &mockPublisher{}
	svc := New(pub, &mockUsers{adminErr: errors.New("db down")}, nil)

	res := svc.NotifyAdminsOrderCreated(context.Background(), createdNotice())

	assert.False(t, res.Success)
	assert.Zero(t, res.TargetedReceivers)
	assert.True(t, res.TopicSent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "db down")
}

func TestNotifyUserOrderStatusChanged(t *testing.T) {
	pub := &mockPublisher{}
	mail := &mockMailer{}
	users := &mockUsers{users: map[int64]*auth.User{
		7: {ID: 7, Email: "ana@example.com", FullName: "Ana", Locale: "vi"},
	}}
	svc := New(pub, users, mail)

	reason := "out of stock"
	res := svc.NotifyUserOrderStatusChanged(context.Background(), order.StatusChangedNotice{
		OrderID:     42,
		OrderNumber: "ORD-20250314-000042",
		UserID:      7,
		From:        order.StatusPending,
		To:          order.StatusCancelled,
		Reason:      &reason,
		TotalAmount: decimal.NewFromInt(180),
	})

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.TargetedReceivers)
	assert.Equal(t, 1, res.SuccessCount)
	assert.True(t, res.TopicSent)

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "user.7", pub.sent[0].key)
	assert.Equal(t, TopicOrderStatus, pub.sent[1].key)
	assert.JSONEq(t, `{
		"type": "order_status_changed",
		"orderId": 42,
		"orderNumber": "ORD-20250314-000042",
		"userId": 7,
		"from": "PENDING",
		"status": "CANCELLED",
		"reason": "out of stock",
		"totalAmount": "180.00"
	}`, pub.sent[0].body)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "ana@example.com", mail.sent[0].To)
	assert.Equal(t, "vi", mail.sent[0].Locale)
	assert.Equal(t, "CANCELLED", mail.sent[0].Status)
	assert.Equal(t, reason, mail.sent[0].Reason)
}

func TestNotifyUserOrderStatusChanged_Failures(t *testing.T) {
	pub := &mockPublisher{fail: map[string]bool{TopicOrderStatus: true}}
	mail := &mockMailer{err: errors.New("smtp: 550 mailbox unavailable")}
	users := &mockUsers{users: map[int64]*auth.User{7: {ID: 7, Email: "ana@example.com"}}}
	svc := New(pub, users, mail)

	res := svc.NotifyUserOrderStatusChanged(context.Background(), order.StatusChangedNotice{
		OrderNumber: "ORD-1", UserID: 7, From: order.StatusPending, To: order.StatusConfirmed,
	})

	assert.False(t, res.Success)
	assert.False(t, res.TopicSent)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Len(t, res.Errors, 2)
}
