package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
	"github.com/xenking/order-lifecycle/internal/domain/pricing"
	"github.com/xenking/order-lifecycle/internal/domain/promotion"
)

const instrumentationName = "github.com/xenking/order-lifecycle/internal/domain/order"

// Messages returned by RequestCancellation.
const (
	MessageCancelled        = "Order cancelled successfully"
	MessageAlreadyCancelled = "Order has already been cancelled"
)

const notifyTimeout = 10 * time.Second

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	// UserID is the owner. Zero means the requester itself.
	UserID        int64
	BranchID      *int64
	AddressID     *int64
	CartID        *int64
	PaymentMethod PaymentMethod
	Note          *string
	CouponCode    *string
	Items         []pricing.Item
}

// UpdateRequest lists the fields to change. Nil fields are left untouched.
type UpdateRequest struct {
	UserID             *int64
	BranchID           *int64
	AddressID          *int64
	Note               *string
	PaymentMethod      *PaymentMethod
	Status             *Status
	CancellationReason *string
}

// CancellationResult is the outcome of RequestCancellation.
type CancellationResult struct {
	OrderNumber      string
	Status           Status
	Message          string
	AlreadyCancelled bool
}

// Deps bundles collaborators required to construct the Service.
type Deps struct {
	Orders     Repository
	References References
	Carts      Carts
	UnitOfWork UnitOfWork
	Pricing    pricing.Calculator
	Gifts      GiftReconciler
	Numbers    NumberSequence
	Notifier   Notifier
	Clock      func() time.Time

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service implements the order lifecycle: placement with gift reconciliation,
// authorized reads and writes, cancellation and payment confirmation.
type Service struct {
	orders   Repository
	refs     References
	carts    Carts
	uow      UnitOfWork
	pricing  pricing.Calculator
	gifts    GiftReconciler
	numbers  NumberSequence
	notifier Notifier
	clock    func() time.Time
	text     *bluemonday.Policy

	tracer         trace.Tracer
	created        metric.Int64Counter
	cancelled      metric.Int64Counter
	notifyFailures metric.Int64Counter
}

// NewService creates a Service. Orders, References, Carts, Pricing, Gifts and
// Numbers are required; the rest fall back to no-op implementations.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order repository is required")
	case deps.References == nil:
		return nil, errors.New("reference checker is required")
	case deps.Carts == nil:
		return nil, errors.New("cart repository is required")
	case deps.Pricing == nil:
		return nil, errors.New("pricing calculator is required")
	case deps.Gifts == nil:
		return nil, errors.New("gift reconciler is required")
	case deps.Numbers == nil:
		return nil, errors.New("order number sequence is required")
	}

	s := &Service{
		orders:   deps.Orders,
		refs:     deps.References,
		carts:    deps.Carts,
		uow:      deps.UnitOfWork,
		pricing:  deps.Pricing,
		gifts:    deps.Gifts,
		numbers:  deps.Numbers,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		text:     bluemonday.StrictPolicy(),
	}
	if s.uow == nil {
		s.uow = noopUnitOfWork{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	mp := deps.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	s.tracer = tp.Tracer(instrumentationName)

	meter := mp.Meter(instrumentationName)
	var err error
	if s.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	if s.cancelled, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	if s.notifyFailures, err = meter.Int64Counter("orders.notification.failures",
		metric.WithDescription("Notification deliveries that failed"),
	); err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return s, nil
}

// Create prices the requested items, reconciles auto-gifts and persists the
// order with all of its lines in one transaction. Admins are notified after
// commit.
func (s *Service) Create(ctx context.Context, req CreateRequest, requester *auth.Requester) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() { endSpan(span, rerr) }()

	userID, err := ownerOf(req.UserID, requester)
	if err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentCOD
	}
	if _, ok := ParsePaymentMethod(string(method)); !ok {
		return nil, badRequest("unsupported payment method %q", method)
	}

	var o *Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkOwner(ctx, userID); err != nil {
			return err
		}
		if err := s.checkLocation(ctx, req.BranchID, req.AddressID); err != nil {
			return err
		}
		if err := s.checkVariants(ctx, req.Items); err != nil {
			return err
		}

		summary, err := s.pricing.Calculate(ctx, req.Items, pricing.Context{
			UserID:     userID,
			BranchID:   req.BranchID,
			AddressID:  req.AddressID,
			CouponCode: req.CouponCode,
		})
		if err != nil {
			return err
		}

		gifts, err := s.gifts.Reconcile(ctx, summary.AppliedPromotions)
		if err != nil {
			var (
				unavailable *promotion.GiftUnavailableError
				invalid     *promotion.InvalidSuggestionError
			)
			if errors.As(err, &unavailable) || errors.As(err, &invalid) {
				return asBadRequest(err)
			}
			return errors.Wrap(err, "reconcile gifts")
		}

		now := s.clock()
		seq, err := s.numbers.Next(ctx, now)
		if err != nil {
			return errors.Wrap(err, "next order number")
		}

		o = assemble(summary, gifts)
		o.Number = formatNumber(now, seq)
		o.UserID = userID
		o.BranchID = req.BranchID
		o.AddressID = req.AddressID
		o.Status = StatusPending
		o.PaymentMethod = method
		o.Note = s.sanitize(req.Note)
		o.CreatedAt = now
		o.UpdatedAt = now
		s.checkTotals(ctx, o, summary.Totals)

		if err := s.orders.Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if req.CartID != nil {
			if err := s.carts.ClearItems(ctx, *req.CartID, userID); err != nil {
				return errors.Wrapf(err, "clear cart %d", *req.CartID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", o.Number))
	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))

	notice := OrderCreatedNotice{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		BranchID:    o.BranchID,
		TotalAmount: o.TotalAmount,
		ItemCount:   len(o.Items),
	}
	for _, it := range o.Items {
		if it.IsGift {
			notice.GiftCount++
		}
	}
	s.dispatch(ctx, "order_created", o.Number, func(ctx context.Context) NotificationResult {
		return s.notifier.NotifyAdminsOrderCreated(ctx, notice)
	})
	return o, nil
}

// FindOne returns the order if the requester may view it.
func (s *Service) FindOne(ctx context.Context, id int64, requester *auth.Requester) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.FindOne", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, rerr) }()

	if id <= 0 {
		return nil, badRequest("invalid order id %d", id)
	}
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(requester, o, ActionView); err != nil {
		return nil, err
	}
	return o, nil
}

// Update merges the requested changes into the order. A status change is
// additionally gated by the status policy and the lifecycle graph, and the
// owner is notified about it after the write.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest, requester *auth.Requester) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, rerr) }()

	if id <= 0 {
		return nil, badRequest("invalid order id %d", id)
	}

	var (
		o    *Order
		prev Status
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.FindByID(ctx, id); err != nil {
			return err
		}
		if err := Authorize(requester, o, ActionUpdate); err != nil {
			return err
		}
		prev = o.Status

		if req.Status != nil {
			if err := Authorize(requester, o, ActionSetStatus); err != nil {
				return err
			}
			if *req.Status != o.Status {
				if err := CanTransition(requester.Role, o.Status, *req.Status); err != nil {
					return asBadRequest(err)
				}
			}
		}
		if req.UserID != nil && *req.UserID != o.UserID {
			if !requester.Role.Privileged() {
				return forbidden("not allowed to reassign order %s", o.Number)
			}
			if err := s.checkOwner(ctx, *req.UserID); err != nil {
				return err
			}
			o.UserID = *req.UserID
		}
		if err := s.checkLocation(ctx, changed(o.BranchID, req.BranchID), changed(o.AddressID, req.AddressID)); err != nil {
			return err
		}
		if req.BranchID != nil {
			o.BranchID = req.BranchID
		}
		if req.AddressID != nil {
			o.AddressID = req.AddressID
		}
		if req.PaymentMethod != nil && *req.PaymentMethod != o.PaymentMethod {
			if _, ok := ParsePaymentMethod(string(*req.PaymentMethod)); !ok {
				return badRequest("unsupported payment method %q", *req.PaymentMethod)
			}
			if o.PaidAt != nil {
				return badRequest("order %s is already paid", o.Number)
			}
			o.PaymentMethod = *req.PaymentMethod
		}
		if req.Note != nil {
			o.Note = s.sanitize(req.Note)
		}
		if req.CancellationReason != nil {
			o.CancellationReason = s.sanitize(req.CancellationReason)
		}
		if req.Status != nil {
			o.Status = *req.Status
		}
		o.UpdatedAt = s.clock()

		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	if o.Status != prev {
		if o.Status == StatusCancelled {
			s.cancelled.Add(ctx, 1)
		}
		s.notifyStatus(ctx, o, prev)
	}
	return o, nil
}

// RequestCancellation cancels the order identified by its number. Cancelling
// an already cancelled order succeeds without writing anything.
func (s *Service) RequestCancellation(
	ctx context.Context,
	orderNumber string,
	reason *string,
	requester *auth.Requester,
) (_ *CancellationResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.RequestCancellation",
		trace.WithAttributes(attribute.String("order.number", orderNumber)),
	)
	defer func() { endSpan(span, rerr) }()

	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, badRequest("order number is required")
	}
	o, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := Authorize(requester, o, ActionCancel); err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return &CancellationResult{
			OrderNumber:      o.Number,
			Status:           StatusCancelled,
			Message:          MessageAlreadyCancelled,
			AlreadyCancelled: true,
		}, nil
	}
	if !Cancellable(cancelRole(requester, o), o.Status) {
		return nil, badRequest("order %s cannot be cancelled in status %s", o.Number, o.Status)
	}

	prev := o.Status
	o.Status = StatusCancelled
	o.CancellationReason = s.sanitize(reason)
	o.UpdatedAt = s.clock()
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	s.cancelled.Add(ctx, 1)
	s.notifyStatus(ctx, o, prev)
	return &CancellationResult{
		OrderNumber: o.Number,
		Status:      o.Status,
		Message:     MessageCancelled,
	}, nil
}

// ConfirmPayment records a successful payment reported by a gateway. A
// pending order becomes CONFIRMED; repeated confirmations are ignored.
func (s *Service) ConfirmPayment(ctx context.Context, orderNumber string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmPayment",
		trace.WithAttributes(attribute.String("order.number", orderNumber)),
	)
	defer func() { endSpan(span, rerr) }()

	o, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o.PaidAt != nil {
		return o, nil
	}
	if o.Status == StatusCancelled {
		return nil, badRequest("order %s is cancelled", o.Number)
	}

	prev := o.Status
	now := s.clock()
	o.PaidAt = &now
	if o.Status == StatusPending {
		o.Status = StatusConfirmed
	}
	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	if o.Status != prev {
		s.notifyStatus(ctx, o, prev)
	}
	return o, nil
}

// ownerOf decides whose order is being placed. Customers always order for
// themselves; other roles must name the customer.
func ownerOf(userID int64, r *auth.Requester) (int64, error) {
	if userID < 0 {
		return 0, badRequest("invalid user id %d", userID)
	}
	if r != nil && r.Role == auth.RoleCustomer {
		switch userID {
		case 0, r.ID:
			return r.ID, nil
		default:
			return 0, forbidden("customers can only place their own orders")
		}
	}
	if userID == 0 {
		return 0, badRequest("user id is required")
	}
	return userID, nil
}

func validateItems(items []pricing.Item) error {
	if len(items) == 0 {
		return badRequest("items required")
	}
	for i, it := range items {
		if it.VariantID <= 0 {
			return badRequest("item %d: invalid variant id %d", i, it.VariantID)
		}
		if it.Quantity < 1 {
			return badRequest("item %d: quantity must be at least 1", i)
		}
	}
	return nil
}

func (s *Service) checkOwner(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return badRequest("invalid user id %d", userID)
	}
	ok, err := s.refs.UserExists(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "check user")
	}
	if !ok {
		return asBadRequest(&MissingReferenceError{Entity: "user", IDs: []int64{userID}})
	}
	return nil
}

// checkLocation validates the branch and address when set.
func (s *Service) checkLocation(ctx context.Context, branchID, addressID *int64) error {
	if branchID != nil {
		if *branchID <= 0 {
			return badRequest("invalid branch id %d", *branchID)
		}
		ok, err := s.refs.BranchExists(ctx, *branchID)
		if err != nil {
			return errors.Wrap(err, "check branch")
		}
		if !ok {
			return asBadRequest(&MissingReferenceError{Entity: "branch", IDs: []int64{*branchID}})
		}
	}
	if addressID != nil {
		if *addressID <= 0 {
			return badRequest("invalid address id %d", *addressID)
		}
		ok, err := s.refs.AddressExists(ctx, *addressID)
		if err != nil {
			return errors.Wrap(err, "check address")
		}
		if !ok {
			return asBadRequest(&MissingReferenceError{Entity: "address", IDs: []int64{*addressID}})
		}
	}
	return nil
}

func (s *Service) checkVariants(ctx context.Context, items []pricing.Item) error {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.VariantID]; ok {
			continue
		}
		seen[it.VariantID] = struct{}{}
		ids = append(ids, it.VariantID)
	}
	missing, err := s.refs.MissingVariants(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "check variants")
	}
	if len(missing) > 0 {
		return asBadRequest(&MissingReferenceError{Entity: "variant", IDs: missing})
	}
	return nil
}

// assemble builds the order amounts and lines from the pricing summary and the
// reconciled gifts. Gifts add to the subtotal and the discount in equal parts,
// so the payable total stays the one computed by the pricing engine.
func assemble(summary *pricing.Summary, gifts []promotion.Gift) *Order {
	o := &Order{Items: make([]Item, 0, len(summary.Items)+len(gifts))}
	for _, b := range summary.Items {
		o.Items = append(o.Items, Item{
			VariantID:     b.VariantID,
			Quantity:      b.Quantity,
			UnitPrice:     b.UnitPrice.Round(2),
			SubTotal:      b.SubTotal.Round(2),
			DiscountTotal: b.DiscountTotal.Round(2),
			TotalAmount:   b.TotalAmount.Round(2),
		})
	}
	for _, g := range gifts {
		o.Items = append(o.Items, Item{
			VariantID:     g.VariantID,
			Quantity:      g.Quantity,
			UnitPrice:     g.UnitPrice,
			SubTotal:      g.SubTotal,
			DiscountTotal: g.DiscountTotal,
			TotalAmount:   decimal.Zero,
			IsGift:        true,
		})
	}

	giftSub, giftDiscount := promotion.Totals(gifts)
	o.SubTotal = summary.Totals.SubTotal.Add(giftSub).Round(2)
	o.DiscountTotal = summary.Totals.DiscountTotal.Add(giftDiscount).Round(2)
	o.TotalAmount = summary.Totals.TotalAmount.Round(2)
	return o
}

// checkTotals logs when the pricing totals do not add up. The summary is
// authoritative, so the order is still placed.
func (s *Service) checkTotals(ctx context.Context, o *Order, t pricing.Totals) {
	expected := o.SubTotal.Sub(o.DiscountTotal).Add(t.ShippingFee).Add(t.TaxTotal).Round(2)
	if expected.Equal(o.TotalAmount) {
		return
	}
	zctx.From(ctx).Warn("Pricing totals mismatch",
		zap.String("order_number", o.Number),
		zap.String("expected", expected.StringFixed(2)),
		zap.String("total_amount", o.TotalAmount.StringFixed(2)),
	)
}

func formatNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", day.Format("20060102"), seq)
}

// sanitize strips markup from free text. Blank input clears the field.
func (s *Service) sanitize(v *string) *string {
	if v == nil {
		return nil
	}
	clean := strings.TrimSpace(s.text.Sanitize(*v))
	if clean == "" {
		return nil
	}
	return &clean
}

// changed returns next when it differs from the current value.
func changed(current, next *int64) *int64 {
	if next == nil || (current != nil && *current == *next) {
		return nil
	}
	return next
}

// cancelRole is the role whose cancellation window applies. Staff acting on
// their own order outside their branch are treated as customers.
func cancelRole(r *auth.Requester, o *Order) auth.Role {
	if r.Role == auth.RoleStaff && !r.InBranch(o.BranchID) {
		return auth.RoleCustomer
	}
	return r.Role
}

func (s *Service) notifyStatus(ctx context.Context, o *Order, from Status) {
	notice := StatusChangedNotice{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		From:        from,
		To:          o.Status,
		Reason:      o.CancellationReason,
		TotalAmount: o.TotalAmount,
	}
	s.dispatch(ctx, "order_status_changed", o.Number, func(ctx context.Context) NotificationResult {
		return s.notifier.NotifyUserOrderStatusChanged(ctx, notice)
	})
}

// dispatch runs a notification after the primary write. Nothing it does can
// fail the caller: problems are logged and counted.
func (s *Service) dispatch(ctx context.Context, event, number string, send func(context.Context) NotificationResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	lg := zctx.From(ctx).With(zap.String("event", event), zap.String("order_number", number))
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Notification panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
		}
	}()

	res := send(ctx)
	if res.Success && res.FailureCount == 0 {
		return
	}
	lg.Warn("Notification delivery incomplete",
		zap.Int("targeted", res.TargetedReceivers),
		zap.Int("succeeded", res.SuccessCount),
		zap.Int("failed", res.FailureCount),
		zap.Bool("topic_sent", res.TopicSent),
		zap.Strings("errors", res.Errors),
	)
	s.notifyFailures.Add(ctx, int64(max(res.FailureCount, 1)), metric.WithAttributes(attribute.String("event", event)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
