package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// writeEnvelope writes {"success", "message", "data"}. data may be nil.
func writeEnvelope(w http.ResponseWriter, status int, msg string, data func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(status < http.StatusBadRequest)
	if msg != "" {
		e.FieldStart("message")
		e.Str(msg)
	}
	if data != nil {
		e.FieldStart("data")
		data(e)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeData(w http.ResponseWriter, status int, data func(e *jx.Encoder)) {
	writeEnvelope(w, status, "", data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeEnvelope(w, status, msg, nil)
}

// writeError maps a domain error to its status. Unclassified errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if kind == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeMessage(w, status, "internal server error")
		return
	}
	zctx.From(r.Context()).Debug("Request rejected",
		zap.String("kind", kind.String()),
		zap.Error(err),
	)
	writeMessage(w, status, err.Error())
}
