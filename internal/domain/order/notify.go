package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderCreatedNotice is sent to shop administrators when an order is placed.
type OrderCreatedNotice struct {
	OrderID     int64
	OrderNumber string
	UserID      int64
	BranchID    *int64
	TotalAmount decimal.Decimal
	ItemCount   int
	GiftCount   int
}

// StatusChangedNotice is sent to the order owner when the status changes.
type StatusChangedNotice struct {
	OrderID     int64
	OrderNumber string
	UserID      int64
	From        Status
	To          Status
	Reason      *string
	TotalAmount decimal.Decimal
}

// NotificationResult summarizes a best-effort fan-out.
type NotificationResult struct {
	Success           bool
	TargetedReceivers int
	SuccessCount      int
	FailureCount      int
	Errors            []string
	TopicSent         bool
}

// Notifier dispatches order notifications. Implementations never return
// errors; delivery problems are reported in the result.
type Notifier interface {
	NotifyAdminsOrderCreated(ctx context.Context, n OrderCreatedNotice) NotificationResult
	NotifyUserOrderStatusChanged(ctx context.Context, n StatusChangedNotice) NotificationResult
}

type nopNotifier struct{}

func (nopNotifier) NotifyAdminsOrderCreated(context.Context, OrderCreatedNotice) NotificationResult {
	return NotificationResult{Success: true}
}

func (nopNotifier) NotifyUserOrderStatusChanged(context.Context, StatusChangedNotice) NotificationResult {
	return NotificationResult{Success: true}
}
