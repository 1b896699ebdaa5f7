package docs

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stevemurr/docsvc/store"
)

// Kind classifies why a document operation failed.
type Kind uint8

const (
	KindUnknown       Kind = iota // 0: no error, or not produced by this package.
	KindPrecondition              // 1: missing or empty argument, invalid document.
	KindNotFound                  // 2: no live document with the given id.
	KindConflict                  // 3: revision mismatch detected by the store.
	KindConfiguration             // 4: unusable store handle or service setup.
	KindStore                     // 5: any other store failure.
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is returned by every failed document operation. It carries the
// failure Kind, the operation name and, when known, the document id.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error of the given kind for op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, KindUnknown if err is nil or was
// not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// classify maps a store error onto a Kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, store.ErrMissingID),
		errors.Is(err, store.ErrInvalidRev),
		errors.Is(err, store.ErrInvalidDocument):
		return KindPrecondition
	case errors.Is(err, store.ErrClosed):
		return KindConfiguration
	default:
		return KindStore
	}
}

// fail logs a failed operation and returns it as an *Error.
func fail(op, id string, kind Kind, err error) *Error {
	e := &Error{Kind: kind, Op: op, ID: id, Err: err}
	log := logrus.WithFields(logrus.Fields{
		"op":          op,
		"document_id": id,
		"kind":        kind.String(),
	}).WithError(err)
	switch kind {
	case KindPrecondition, KindNotFound, KindConflict:
		log.Warn("Document operation failed")
	default:
		log.Error("Document operation failed")
	}
	return e
}
