package pricing

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-lifecycle/internal/domain/pricing"
)

func encodeRequest(e *jx.Encoder, items []pricing.Item, pc pricing.Context) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("variantId", func(e *jx.Encoder) { e.Int64(it.VariantID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		e.Field("context", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("userId", func(e *jx.Encoder) { e.Int64(pc.UserID) })
				if pc.BranchID != nil {
					e.Field("branchId", func(e *jx.Encoder) { e.Int64(*pc.BranchID) })
				}
				if pc.AddressID != nil {
					e.Field("addressId", func(e *jx.Encoder) { e.Int64(*pc.AddressID) })
				}
				if pc.CouponCode != nil {
					e.Field("couponCode", func(e *jx.Encoder) { e.Str(*pc.CouponCode) })
				}
			})
		})
	})
}

func decodeSummary(d *jx.Decoder) (*pricing.Summary, error) {
	var s pricing.Summary
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				s.Items = append(s.Items, it)
				return nil
			})
		case "totals":
			return decodeTotals(d, &s.Totals)
		case "appliedPromotions":
			promos, err := decodePromotions(d)
			s.AppliedPromotions = promos
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode pricing summary")
	}
	return &s, nil
}

func decodeItem(d *jx.Decoder) (pricing.ItemBreakdown, error) {
	var it pricing.ItemBreakdown
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "variantId":
			it.VariantID, err = d.Int64()
		case "quantity":
			it.Quantity, err = d.Int()
		case "unitPrice":
			it.UnitPrice, err = decodeMoney(d)
		case "subTotal":
			it.SubTotal, err = decodeMoney(d)
		case "discountTotal":
			it.DiscountTotal, err = decodeMoney(d)
		case "totalAmount":
			it.TotalAmount, err = decodeMoney(d)
		case "isInCombo":
			it.IsInCombo, err = decodeBool(d)
		case "appliedPromotions":
			it.AppliedPromotions, err = decodePromotions(d)
		default:
			err = d.Skip()
		}
		return field(key, err)
	})
	return it, err
}

func decodeTotals(d *jx.Decoder, t *pricing.Totals) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "subTotal":
			t.SubTotal, err = decodeMoney(d)
		case "autoDiscountTotal":
			t.AutoDiscountTotal, err = decodeMoney(d)
		case "couponDiscountTotal":
			t.CouponDiscountTotal, err = decodeMoney(d)
		case "discountTotal":
			t.DiscountTotal, err = decodeMoney(d)
		case "shippingFee":
			t.ShippingFee, err = decodeMoney(d)
		case "taxTotal":
			t.TaxTotal, err = decodeMoney(d)
		case "totalAmount":
			t.TotalAmount, err = decodeMoney(d)
		default:
			err = d.Skip()
		}
		return field(key, err)
	})
}

func decodePromotions(d *jx.Decoder) ([]pricing.AppliedPromotion, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []pricing.AppliedPromotion
	err := d.Arr(func(d *jx.Decoder) error {
		var p pricing.AppliedPromotion
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "promotionId":
				p.PromotionID, err = d.Int64()
			case "name":
				p.Name, err = decodeString(d)
			case "promotionType":
				p.PromotionType, err = decodeString(d)
			case "comboType":
				p.ComboType, err = decodeString(d)
			case "level":
				p.Level, err = decodeString(d)
			case "discountAmount":
				p.DiscountAmount, err = decodeMoney(d)
			case "suggestions":
				p.Suggestions, err = decodeSuggestions(d)
			default:
				err = d.Skip()
			}
			return field(key, err)
		}); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func decodeSuggestions(d *jx.Decoder) ([]pricing.Suggestion, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []pricing.Suggestion
	err := d.Arr(func(d *jx.Decoder) error {
		var s pricing.Suggestion
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				s.ProductID, err = d.Int64()
			case "requiredQuantity":
				s.RequiredQuantity, err = d.Int()
			case "missingQuantity":
				s.MissingQuantity, err = d.Int()
			case "productPrice":
				s.ProductPrice, err = decodeMoney(d)
			case "autoAdd":
				s.AutoAdd, err = decodeBool(d)
			default:
				err = d.Skip()
			}
			return field(key, err)
		}); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func field(key string, err error) error {
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

// decodeMoney accepts numbers and numeric strings. Null is zero.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeBool(d *jx.Decoder) (bool, error) {
	if d.Next() == jx.Null {
		return false, d.Null()
	}
	return d.Bool()
}

// decodeMessage extracts the "message" field of an error body.
func decodeMessage(data []byte) (string, bool) {
	var msg string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "message" || d.Next() != jx.String {
			return d.Skip()
		}
		var err error
		msg, err = d.Str()
		return err
	})
	return msg, err == nil && msg != ""
}
