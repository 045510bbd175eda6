// Package push sends device push messages and classifies provider errors.
package push

import (
	"context"
	"errors"
	"fmt"
)

// Provider error codes. The two token codes are the only ones that cause a
// token to be pruned.
const (
	CodeInvalidRegistrationToken  = "messaging/invalid-registration-token"
	CodeRegistrationTokenNotFound = "messaging/registration-token-not-registered"
	CodeInvalidArgument           = "messaging/invalid-argument"
	CodeMismatchedCredential      = "messaging/mismatched-credential"
	CodeMessageRateExceeded       = "messaging/message-rate-exceeded"
	CodeServerUnavailable         = "messaging/server-unavailable"
	CodeInternalError             = "messaging/internal-error"
	CodeThirdPartyAuthError       = "messaging/third-party-auth-error"
	CodeTimeout                   = "messaging/timeout"
	CodeUnknown                   = "messaging/unknown-error"
)

// Class groups provider codes by how delivery reacts to them.
type Class string

const (
	ClassNone         Class = ""
	ClassInvalidToken Class = "invalid_token"
	ClassTransient    Class = "transient"
	ClassOther        Class = "other"
)

// Message is one push addressed to one device token.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a single push message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SendError is a provider rejection carrying a normalized code.
type SendError struct {
	Code string
	Err  error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewSendError wraps err with code.
func NewSendError(code string, err error) *SendError {
	return &SendError{Code: code, Err: err}
}

// Code returns the normalized provider code of err, or "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout
	}
	return CodeUnknown
}

// Classify maps err onto a delivery reaction.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	switch Code(err) {
	case CodeInvalidRegistrationToken, CodeRegistrationTokenNotFound:
		return ClassInvalidToken
	case CodeMessageRateExceeded, CodeServerUnavailable, CodeInternalError, CodeTimeout:
		return ClassTransient
	default:
		return ClassOther
	}
}

// Redact shortens a token for logs.
func Redact(token string) string {
	const keep = 12
	if len(token) <= keep {
		return token
	}
	return token[:keep] + "..."
}
