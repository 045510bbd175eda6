package push

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/v4/messaging"
)

// messagingClient is the subset of *messaging.Client used here.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender sends through Firebase Cloud Messaging.
type FCMSender struct {
	client messagingClient
}

var _ Sender = (*FCMSender)(nil)

// NewFCMSender wraps an initialized messaging client.
func NewFCMSender(client *messaging.Client) *FCMSender {
	return &FCMSender{client: client}
}

// Send implements Sender. Provider failures are returned as *SendError.
func (s *FCMSender) Send(ctx context.Context, msg Message) (string, error) {
	id, err := s.client.Send(ctx, toFCM(msg))
	if err != nil {
		return "", NewSendError(fcmCode(err), err)
	}
	return id, nil
}

func toFCM(msg Message) *messaging.Message {
	return &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
}

// fcmCode maps HTTP v1 API errors onto the codes mobile clients and
// operators already know from the Admin SDK.
func fcmCode(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return CodeRegistrationTokenNotFound
	case messaging.IsInvalidArgument(err):
		// FCM reports oversized or malformed payloads with the same code.
		if namesRegistrationToken(err) {
			return CodeInvalidRegistrationToken
		}
		return CodeInvalidArgument
	case messaging.IsSenderIDMismatch(err):
		return CodeMismatchedCredential
	case messaging.IsQuotaExceeded(err):
		return CodeMessageRateExceeded
	case messaging.IsUnavailable(err):
		return CodeServerUnavailable
	case messaging.IsInternal(err):
		return CodeInternalError
	case messaging.IsThirdPartyAuthError(err):
		return CodeThirdPartyAuthError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

func namesRegistrationToken(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "registration token")
}
