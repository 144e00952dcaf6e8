// Package apperr classifies domain errors so that transports can map them
// to user-facing responses without knowing every concrete error type.
package apperr

import (
	"net/http"

	"github.com/go-faster/errors"
)

// Kind is the category of a domain error.
type Kind uint8

const (
	// KindInternal is an unexpected failure (storage, encoding, bugs).
	KindInternal Kind = iota
	// KindNotFound means the referenced cart, product, order or promotion is absent.
	KindNotFound
	// KindValidation means the input is malformed or a required field is missing.
	KindValidation
	// KindStateConflict means the entity is not in a state that permits the operation.
	KindStateConflict
	// KindBusinessRule means the input is well-formed but violates a business rule
	// such as insufficient stock or an exhausted promotion.
	KindBusinessRule
	// KindPermissionDenied means the caller does not own the entity.
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindBusinessRule:
		return "business_rule"
	case KindPermissionDenied:
		return "permission_denied"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code a transport should respond with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict:
		return http.StatusConflict
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	case KindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Classified is implemented by errors that carry a Kind.
type Classified interface {
	error
	Kind() Kind
}

// Error is a classified sentinel error. Compare instances with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

// New returns a classified sentinel error.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind implements Classified.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the Kind of the first classified error in err's chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
