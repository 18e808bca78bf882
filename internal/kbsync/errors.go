package kbsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/course-assistant-backend/internal/store"
)

type Kind string

const (
	KindFetch        Kind = "fetch"
	KindSave         Kind = "save"
	KindDelete       Kind = "delete"
	KindSubscription Kind = "subscription"
)

var (
	ErrInFlight      = errors.New("operation already in progress")
	ErrInvalidRecord = errors.New("invalid course record")
)

// Error is returned by every Reconciler and Listener operation that touches the store.
// Cause is the human-readable explanation shown to the user.
type Error struct {
	Kind  Kind
	Cause string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Cause
}

func (e *Error) Unwrap() error { return e.Err }

func IsKind(err error, kind Kind) bool {
	var ke *Error
	return errors.As(err, &ke) && ke.Kind == kind
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Cause: describe(kind, err), Err: err}
}

func describe(kind Kind, err error) string {
	var prefix string
	switch kind {
	case KindFetch:
		prefix = "could not load the knowledge base"
	case KindSave:
		prefix = "could not save course"
	case KindDelete:
		prefix = "could not delete course"
	case KindSubscription:
		prefix = "realtime updates unavailable"
	default:
		prefix = "knowledge base error"
	}
	if err == nil {
		return prefix
	}

	var se *store.Error
	if errors.As(err, &se) {
		return fmt.Sprintf("%s: %s", prefix, se.Describe())
	}
	return fmt.Sprintf("%s: %s", prefix, strings.TrimSpace(err.Error()))
}
