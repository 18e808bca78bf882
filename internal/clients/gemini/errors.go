package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindUnsupported  Kind = "unsupported"
	KindAuth         Kind = "auth"
	KindTransport    Kind = "transport"
	KindUpstream     Kind = "upstream"
	KindEmpty        Kind = "empty"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Status is the upstream HTTP status, zero when the call never got a response.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("gemini %s: %s (%s)", e.Op, msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatusCode() int { return e.Status }

func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}

	if code, msg, ok := apiError(err); ok {
		var out *Error
		switch {
		case code == 401 || code == 403 || strings.Contains(msg, "API key not valid"):
			out = NewError(KindAuth, op, msg, err)
		case code == 429 || code >= 500:
			out = NewError(KindUpstream, op, msg, err)
		case code >= 400:
			out = NewError(KindInvalidInput, op, msg, err)
		default:
			out = NewError(KindUpstream, op, msg, err)
		}
		out.Status = code
		return out
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(KindTransport, op, err.Error(), err)
	}
	return NewError(KindUpstream, op, err.Error(), err)
}

func apiError(err error) (int, string, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code, v.Message, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code, p.Message, true
	}
	return 0, "", false
}

const errorPrefix = "Error:"

// UserMessage renders err as text fit to show in the conversation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *Error
	if !errors.As(err, &ge) {
		return errorPrefix + " Sorry, something unexpected went wrong. Please try again."
	}
	switch ge.Kind {
	case KindAuth:
		return errorPrefix + " The Gemini API key is not valid.\n\n" +
			"ACTION REQUIRED: make sure GEMINI_API_KEY holds a valid key from Google AI Studio."
	case KindTransport:
		return errorPrefix + " Could not reach the Gemini API.\n\n" +
			"Check the server's network access and, if the key has application restrictions, that this server is allowed to use it."
	case KindEmpty:
		return errorPrefix + " The assistant returned an empty answer. Please rephrase your question."
	case KindUnsupported, KindInvalidInput:
		return errorPrefix + " " + ge.Message
	default:
		return errorPrefix + " Something went wrong talking to the Gemini API: " + ge.Message
	}
}
