package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
	"github.com/xenking/order-lifecycle/internal/domain/pricing"
)

func decodeCreate(d *jx.Decoder) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			var id *int64
			id, err = optInt64(d)
			if id != nil {
				req.UserID = *id
			}
		case "branchId":
			req.BranchID, err = optInt64(d)
		case "addressId":
			req.AddressID, err = optInt64(d)
		case "cartId":
			req.CartID, err = optInt64(d)
		case "paymentMethod":
			var s *string
			if s, err = optStr(d); err == nil && s != nil {
				m, ok := order.ParsePaymentMethod(*s)
				if !ok {
					return errors.Errorf("unknown payment method %q", *s)
				}
				req.PaymentMethod = m
			}
		case "note":
			req.Note, err = optStr(d)
		case "couponCode":
			req.CouponCode, err = optStr(d)
		case "items":
			req.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		return field(key, err)
	})
	return req, err
}

func decodeItems(d *jx.Decoder) ([]pricing.Item, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	items := []pricing.Item{}
	err := d.Arr(func(d *jx.Decoder) error {
		var it pricing.Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "variantId":
				it.VariantID, err = d.Int64()
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return field(key, err)
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodeUpdate(d *jx.Decoder) (order.UpdateRequest, error) {
	var req order.UpdateRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = optInt64(d)
		case "branchId":
			req.BranchID, err = optInt64(d)
		case "addressId":
			req.AddressID, err = optInt64(d)
		case "note":
			req.Note, err = optStr(d)
		case "cancellationReason":
			req.CancellationReason, err = optStr(d)
		case "paymentMethod":
			var s *string
			if s, err = optStr(d); err == nil && s != nil {
				m, ok := order.ParsePaymentMethod(*s)
				if !ok {
					return errors.Errorf("unknown payment method %q", *s)
				}
				req.PaymentMethod = &m
			}
		case "status":
			var s *string
			if s, err = optStr(d); err == nil && s != nil {
				st, ok := order.ParseStatus(*s)
				if !ok {
					return errors.Errorf("unknown status %q", *s)
				}
				req.Status = &st
			}
		default:
			err = d.Skip()
		}
		return field(key, err)
	})
	return req, err
}

// decodeReason reads the optional {"reason": "..."} cancellation body.
func decodeReason(d *jx.Decoder) (*string, error) {
	var reason *string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "reason" {
			return d.Skip()
		}
		var err error
		reason, err = optStr(d)
		return field(key, err)
	})
	return reason, err
}

func optInt64(d *jx.Decoder) (*int64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func field(key string, err error) error {
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

func encodeOrder(e *jx.Encoder, o *order.Order, link *payment.Link) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("branchId", func(e *jx.Encoder) { encodeOptInt64(e, o.BranchID) })
		e.Field("addressId", func(e *jx.Encoder) { encodeOptInt64(e, o.AddressID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("note", func(e *jx.Encoder) { encodeOptStr(e, o.Note) })
		e.Field("subTotal", func(e *jx.Encoder) { encodeMoney(e, o.SubTotal) })
		e.Field("discountTotal", func(e *jx.Encoder) { encodeMoney(e, o.DiscountTotal) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.TotalAmount) })
		e.Field("cancellationReason", func(e *jx.Encoder) { encodeOptStr(e, o.CancellationReason) })
		e.Field("paidAt", func(e *jx.Encoder) { encodeOptTime(e, o.PaidAt) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					encodeItem(e, it)
				}
			})
		})
		if link != nil {
			e.Field("payment", func(e *jx.Encoder) { encodeLink(e, link) })
		}
	})
}

func encodeItem(e *jx.Encoder, it order.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("variantId", func(e *jx.Encoder) { e.Int64(it.VariantID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
		e.Field("subTotal", func(e *jx.Encoder) { encodeMoney(e, it.SubTotal) })
		e.Field("discountTotal", func(e *jx.Encoder) { encodeMoney(e, it.DiscountTotal) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, it.TotalAmount) })
		e.Field("isGift", func(e *jx.Encoder) { e.Bool(it.IsGift) })
	})
}

func encodeLink(e *jx.Encoder, l *payment.Link) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("payUrl", func(e *jx.Encoder) { e.Str(l.PayURL) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(l.OrderID) })
		e.Field("requestId", func(e *jx.Encoder) { e.Str(l.RequestID) })
		e.Field("resultCode", func(e *jx.Encoder) { e.Int(l.ResultCode) })
		e.Field("message", func(e *jx.Encoder) { e.Str(l.Message) })
	})
}

func encodeCancellation(e *jx.Encoder, res *order.CancellationResult) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(res.OrderNumber) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(res.Status)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(res.Message) })
	})
}

func encodeError(e *jx.Encoder, code int, msg string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Float64(d.InexactFloat64())
}

func encodeOptInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}

func encodeOptStr(e *jx.Encoder, v *string) {
	if v == nil {
		e.Null()
		return
	}
	e.Str(*v)
}

func encodeOptTime(e *jx.Encoder, v *time.Time) {
	if v == nil {
		e.Null()
		return
	}
	e.Str(v.UTC().Format(time.RFC3339))
}
