// Package notify fans order notifications out to the message broker and, for
// customers, to e-mail.
package notify

import (
	"context"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/mailer"
)

// Routing keys.
const (
	TopicOrderCreated = "orders.created"
	TopicOrderStatus  = "orders.status"
)

// UserRoutingKey is the routing key of the personal queue of a user.
func UserRoutingKey(userID int64) string {
	return "user." + strconv.FormatInt(userID, 10)
}

// Publisher sends a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Users resolves notification recipients.
type Users interface {
	AdminIDs(ctx context.Context) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// Mailer sends customer e-mails.
type Mailer interface {
	SendStatusChanged(ctx context.Context, e mailer.StatusEmail) error
}

var _ order.Notifier = (*Service)(nil)

// Service implements order.Notifier.
type Service struct {
	pub   Publisher
	users Users
	mail  Mailer
}

// New creates a Service. A nil mailer disables e-mail.
func New(pub Publisher, users Users, mail Mailer) *Service {
	return &Service{pub: pub, users: users, mail: mail}
}

// NotifyAdminsOrderCreated sends the notice to every admin and shop owner and
// broadcasts it on the order created topic.
func (s *Service) NotifyAdminsOrderCreated(ctx context.Context, n order.OrderCreatedNotice) order.NotificationResult {
	var res order.NotificationResult
	body := encodeCreated(n)

	ids, err := s.users.AdminIDs(ctx)
	if err != nil {
		res.Errors = append(res.Errors, "list admins: "+err.Error())
	}
	res.TargetedReceivers = len(ids)
	for _, id := range ids {
		s.deliver(ctx, &res, UserRoutingKey(id), body)
	}
	s.broadcast(ctx, &res, TopicOrderCreated, body)

	res.Success = err == nil && res.FailureCount == 0 && res.TopicSent
	return res
}

// NotifyUserOrderStatusChanged tells the order owner about a status change
// through the broker and, when configured, by e-mail.
func (s *Service) NotifyUserOrderStatusChanged(ctx context.Context, n order.StatusChangedNotice) order.NotificationResult {
	res := order.NotificationResult{TargetedReceivers: 1}
	body := encodeStatusChanged(n)

	s.deliver(ctx, &res, UserRoutingKey(n.UserID), body)
	s.broadcast(ctx, &res, TopicOrderStatus, body)
	if s.mail != nil {
		if err := s.email(ctx, n); err != nil {
			res.FailureCount++
			res.Errors = append(res.Errors, "email: "+err.Error())
		}
	}

	res.Success = res.FailureCount == 0 && res.TopicSent
	return res
}

func (s *Service) deliver(ctx context.Context, res *order.NotificationResult, key string, body []byte) {
	if err := s.pub.Publish(ctx, key, body); err != nil {
		res.FailureCount++
		res.Errors = append(res.Errors, err.Error())
		return
	}
	res.SuccessCount++
}

func (s *Service) broadcast(ctx context.Context, res *order.NotificationResult, topic string, body []byte) {
	if err := s.pub.Publish(ctx, topic, body); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return
	}
	res.TopicSent = true
}

func (s *Service) email(ctx context.Context, n order.StatusChangedNotice) error {
	u, err := s.users.GetByID(ctx, n.UserID)
	if err != nil {
		return err
	}
	if u.Email == "" {
		return nil
	}
	e := mailer.StatusEmail{
		To:          u.Email,
		Name:        u.FullName,
		Locale:      u.Locale,
		OrderNumber: n.OrderNumber,
		From:        string(n.From),
		Status:      string(n.To),
		Total:       n.TotalAmount,
	}
	if n.Reason != nil {
		e.Reason = *n.Reason
	}
	return s.mail.SendStatusChanged(ctx, e)
}

func encodeCreated(n order.OrderCreatedNotice) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str("order_created") })
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(n.OrderID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(n.OrderNumber) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(n.UserID) })
		e.Field("branchId", func(e *jx.Encoder) {
			if n.BranchID == nil {
				e.Null()
				return
			}
			e.Int64(*n.BranchID)
		})
		e.Field("totalAmount", func(e *jx.Encoder) { e.Str(n.TotalAmount.StringFixed(2)) })
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(n.ItemCount) })
		e.Field("giftCount", func(e *jx.Encoder) { e.Int(n.GiftCount) })
	})
	return e.Bytes()
}

func encodeStatusChanged(n order.StatusChangedNotice) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str("order_status_changed") })
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(n.OrderID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(n.OrderNumber) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(n.UserID) })
		e.Field("from", func(e *jx.Encoder) { e.Str(string(n.From)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(n.To)) })
		if n.Reason != nil {
			e.Field("reason", func(e *jx.Encoder) { e.Str(*n.Reason) })
		}
		e.Field("totalAmount", func(e *jx.Encoder) { e.Str(n.TotalAmount.StringFixed(2)) })
	})
	return e.Bytes()
}
