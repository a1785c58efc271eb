package momo

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-lifecycle/internal/domain/payment"
)

type createParams struct {
	PartnerCode string
	RequestID   string
	Amount      int64
	OrderID     string
	OrderInfo   string
	RedirectURL string
	IPNURL      string
	ExtraData   string
	RequestType string
	Lang        string
	Signature   string
}

// raw is the signed string, keys in alphabetical order.
func (p createParams) raw(accessKey string) string {
	return joinPairs(
		"accessKey", accessKey,
		"amount", strconv.FormatInt(p.Amount, 10),
		"extraData", p.ExtraData,
		"ipnUrl", p.IPNURL,
		"orderId", p.OrderID,
		"orderInfo", p.OrderInfo,
		"partnerCode", p.PartnerCode,
		"redirectUrl", p.RedirectURL,
		"requestId", p.RequestID,
		"requestType", p.RequestType,
	)
}

func (p createParams) encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("partnerCode", func(e *jx.Encoder) { e.Str(p.PartnerCode) })
		e.Field("requestId", func(e *jx.Encoder) { e.Str(p.RequestID) })
		e.Field("amount", func(e *jx.Encoder) { e.Int64(p.Amount) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(p.OrderID) })
		e.Field("orderInfo", func(e *jx.Encoder) { e.Str(p.OrderInfo) })
		e.Field("redirectUrl", func(e *jx.Encoder) { e.Str(p.RedirectURL) })
		e.Field("ipnUrl", func(e *jx.Encoder) { e.Str(p.IPNURL) })
		e.Field("extraData", func(e *jx.Encoder) { e.Str(p.ExtraData) })
		e.Field("requestType", func(e *jx.Encoder) { e.Str(p.RequestType) })
		e.Field("lang", func(e *jx.Encoder) { e.Str(p.Lang) })
		e.Field("signature", func(e *jx.Encoder) { e.Str(p.Signature) })
	})
}

func decodeCreateResponse(data []byte) (*payment.Link, error) {
	var l payment.Link
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "payUrl":
			l.PayURL, err = d.Str()
		case "requestId":
			l.RequestID, err = d.Str()
		case "resultCode":
			l.ResultCode, err = d.Int()
		case "message":
			l.Message, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

type ipn struct {
	PartnerCode  string
	OrderID      string
	RequestID    string
	Amount       int64
	OrderInfo    string
	OrderType    string
	TransID      int64
	ResultCode   int
	Message      string
	PayType      string
	ResponseTime int64
	ExtraData    string
	Signature    string
}

func (n ipn) raw(accessKey string) string {
	return joinPairs(
		"accessKey", accessKey,
		"amount", strconv.FormatInt(n.Amount, 10),
		"extraData", n.ExtraData,
		"message", n.Message,
		"orderId", n.OrderID,
		"orderInfo", n.OrderInfo,
		"orderType", n.OrderType,
		"partnerCode", n.PartnerCode,
		"payType", n.PayType,
		"requestId", n.RequestID,
		"responseTime", strconv.FormatInt(n.ResponseTime, 10),
		"resultCode", strconv.Itoa(n.ResultCode),
		"transId", strconv.FormatInt(n.TransID, 10),
	)
}

func decodeIPN(data []byte) (ipn, error) {
	var n ipn
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "partnerCode":
			n.PartnerCode, err = d.Str()
		case "orderId":
			n.OrderID, err = d.Str()
		case "requestId":
			n.RequestID, err = d.Str()
		case "amount":
			n.Amount, err = d.Int64()
		case "orderInfo":
			n.OrderInfo, err = d.Str()
		case "orderType":
			n.OrderType, err = d.Str()
		case "transId":
			n.TransID, err = d.Int64()
		case "resultCode":
			n.ResultCode, err = d.Int()
		case "message":
			n.Message, err = d.Str()
		case "payType":
			n.PayType, err = d.Str()
		case "responseTime":
			n.ResponseTime, err = d.Int64()
		case "extraData":
			n.ExtraData, err = d.Str()
		case "signature":
			n.Signature, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return n, err
}

func joinPairs(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	return b.String()
}
