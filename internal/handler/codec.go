package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/scent-shop/internal/domain/order"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("invalid request body")

type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return errBadRequest.Error() + ": " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return errBadRequest }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest(err)
	}
	return body, nil
}

// decodePlaceOrder parses
//
//	{"orderItems":[{"product":"id","qty":1}],"shippingAddress":{...},
//	 "billingAddress":{...},"paymentMethod":"card"}
//
// Unknown fields, including a client-supplied price, are ignored.
func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "orderItems":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		case "shippingAddress":
			return decodeAddress(d, &req.ShippingAddress)
		case "billingAddress":
			return decodeAddress(d, &req.BillingAddress)
		case "paymentMethod":
			return decodeOptStr(d, &req.PaymentMethod)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, badRequest(err)
	}
	return req, nil
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var line order.LineRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product":
			return decodeOptStr(d, &line.ProductID)
		case "qty":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "qty")
			}
			line.Quantity = v
			return nil
		default:
			return d.Skip()
		}
	})
	return line, err
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "street":
			return decodeOptStr(d, &a.Street)
		case "city":
			return decodeOptStr(d, &a.City)
		case "state":
			return decodeOptStr(d, &a.State)
		case "country":
			return decodeOptStr(d, &a.Country)
		case "postalCode":
			return decodeOptStr(d, &a.PostalCode)
		default:
			return d.Skip()
		}
	})
}

func decodeOptStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// decodeStatus parses {"status":"shipped"}.
func decodeStatus(data []byte) (string, error) {
	var status string
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "status" {
			return decodeOptStr(d, &status)
		}
		return d.Skip()
	})
	if err != nil {
		return "", badRequest(err)
	}
	return status, nil
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("user")
	e.Str(o.UserID)

	e.FieldStart("orderItems")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("product")
		e.Str(l.ProductID)
		e.FieldStart("qty")
		e.Int(l.Quantity)
		e.FieldStart("price")
		e.Num(jx.Num(l.UnitPrice.String()))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("shippingAddress")
	encodeAddress(e, o.ShippingAddress)
	e.FieldStart("billingAddress")
	encodeAddress(e, o.BillingAddress)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("totalPrice")
	e.Num(jx.Num(o.TotalPrice.String()))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.ObjStart()
	e.FieldStart("street")
	e.Str(a.Street)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("state")
	e.Str(a.State)
	e.FieldStart("country")
	e.Str(a.Country)
	e.FieldStart("postalCode")
	e.Str(a.PostalCode)
	e.ObjEnd()
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
