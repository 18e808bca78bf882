package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Code classifies a knowledge store failure.
type Code string

const (
	CodeUnavailable Code = "unavailable"
	CodeConstraint  Code = "constraint"
	CodePolicy      Code = "policy"
	CodeNotReturned Code = "not_returned"
	CodeInvalid     Code = "invalid"
	CodeUnknown     Code = "unknown"
)

// Error is what every Store method returns on failure.
type Error struct {
	Code    Code
	Op      string
	Message string
	Details string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// Describe renders the message with details and hint, one block per line group.
func (e *Error) Describe() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.Message))
	if d := strings.TrimSpace(e.Details); d != "" {
		b.WriteString("\n\nDetails: ")
		b.WriteString(d)
	}
	if h := strings.TrimSpace(e.Hint); h != "" {
		b.WriteString("\n\nHint: ")
		b.WriteString(h)
	}
	return b.String()
}

func NewError(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: strings.TrimSpace(message), Cause: cause, Hint: hintFor(code)}
}

func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if err == nil {
		return ""
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// MapError classifies a driver or transport error into a *Error.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out := &Error{Op: op, Message: pgErr.Message, Details: pgErr.Detail, Hint: pgErr.Hint, Cause: err}
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == "42501":
			out.Code = CodePolicy // insufficient_privilege
		case strings.HasPrefix(code, "23"):
			out.Code = CodeConstraint // integrity_constraint_violation class
		case strings.HasPrefix(code, "08"), code == "57P01", code == "53300":
			out.Code = CodeUnavailable // connection exception, admin shutdown, too many connections
		default:
			out.Code = CodeUnknown
		}
		if out.Hint == "" {
			out.Hint = hintFor(out.Code)
		}
		return out
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return NewError(CodeUnavailable, op, err.Error(), err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "constraint failed"), strings.Contains(msg, "not null constraint"):
		return NewError(CodeConstraint, op, err.Error(), err)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "database is closed"), strings.Contains(msg, "sql: database is closed"):
		return NewError(CodeUnavailable, op, err.Error(), err)
	default:
		return NewError(CodeUnknown, op, err.Error(), err)
	}
}

func hintFor(code Code) string {
	switch code {
	case CodeUnavailable:
		return "check DATABASE_URL / POSTGRES_* settings and that the database accepts connections"
	case CodeConstraint:
		return "course names must be unique and non-empty in the knowledge_bases table"
	case CodePolicy:
		return "grant SELECT, INSERT, UPDATE and DELETE on knowledge_bases to the role the service connects as"
	case CodeNotReturned:
		return "the store accepted the write but did not return the saved row; reload the list"
	default:
		return ""
	}
}
