package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	firebase "firebase.google.com/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fcmErrorBody renders an HTTP v1 error response with an FcmError detail.
func fcmErrorBody(code int, status, fcmCode, message string) string {
	return fmt.Sprintf(`{"error":{"code":%d,"message":%q,"status":%q,"details":[`+
		`{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":%q}]}}`,
		code, message, status, fcmCode)
}

// newFakeFCMSender returns an FCMSender whose requests are answered by handler.
func newFakeFCMSender(t *testing.T, handler http.HandlerFunc) *FCMSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: "koinonia-test"},
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	client, err := app.Messaging(ctx)
	require.NoError(t, err)
	return NewFCMSender(client)
}

func TestFCMSender_ProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  string
		wantClass Class
	}{
		{
			"unregistered token",
			http.StatusNotFound,
			fcmErrorBody(404, "NOT_FOUND", "UNREGISTERED", "Requested entity was not found."),
			CodeRegistrationTokenNotFound, ClassInvalidToken,
		},
		{
			"malformed token",
			http.StatusBadRequest,
			fcmErrorBody(400, "INVALID_ARGUMENT", "INVALID_ARGUMENT", "The registration token is not a valid FCM registration token"),
			CodeInvalidRegistrationToken, ClassInvalidToken,
		},
		{
			"payload too big",
			http.StatusBadRequest,
			fcmErrorBody(400, "INVALID_ARGUMENT", "INVALID_ARGUMENT", "Message is too big"),
			CodeInvalidArgument, ClassOther,
		},
		{
			"sender id mismatch",
			http.StatusForbidden,
			fcmErrorBody(403, "PERMISSION_DENIED", "SENDER_ID_MISMATCH", "SenderId mismatch"),
			CodeMismatchedCredential, ClassOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newFakeFCMSender(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := sender.Send(context.Background(), Message{Token: "tok", Title: "t", Body: "b"})
			require.Error(t, err)

			assert.Equal(t, tt.wantCode, Code(err))
			assert.Equal(t, tt.wantClass, Classify(err))
		})
	}
}

func TestFCMSender_SendsToProjectEndpoint(t *testing.T) {
	var gotPath, gotBody string
	sender := newFakeFCMSender(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"projects/koinonia-test/messages/42"}`))
	})

	id, err := sender.Send(context.Background(), Message{
		Token: "tok",
		Title: "새로운 기도제목",
		Body:  "기도 부탁드립니다",
		Data:  map[string]string{"screen": "/(app)/(prayerRequests)"},
	})
	require.NoError(t, err)

	assert.Equal(t, "projects/koinonia-test/messages/42", id)
	assert.Equal(t, "/projects/koinonia-test/messages:send", gotPath)
	assert.Contains(t, gotBody, `"token":"tok"`)
	assert.Contains(t, gotBody, "기도 부탁드립니다")
}
