package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

const maxBodySize = 1 << 20

// requestError is a Validation error describing a bad field.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// Kind implements apperr.Classified.
func (e *requestError) Kind() apperr.Kind { return apperr.KindValidation }

func badField(field, reason string) error {
	return &requestError{msg: field + ": " + reason}
}

func malformed(err error) error {
	return &requestError{msg: "malformed request body: " + err.Error()}
}

// decodeBody decodes a JSON object, calling field for each key.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return malformed(err)
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return reqErr
		}
		return malformed(err)
	}
	return nil
}

// decodeDecimal accepts a JSON number or numeric string.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, badField(field, "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badField(field, "must be a number")
	}
	return v, nil
}

func decodeTime(d *jx.Decoder, field string) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, badField(field, "must be an RFC 3339 timestamp")
	}
	return v, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}
