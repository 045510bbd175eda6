package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebase "firebase.google.com/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"koinonia.app/notifier/internal/push"
	"koinonia.app/notifier/internal/store/memstore"
)

func TestEngine_OversizedPayloadKeepsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Message is too big","status":"INVALID_ARGUMENT",` +
			`"details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"INVALID_ARGUMENT"}]}}`))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: "koinonia-test"},
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	client, err := app.Messaging(ctx)
	require.NoError(t, err)

	st := memstore.New()
	addMember(st, "u1", "phone")
	engine := newTestEngine(st, push.NewFCMSender(client), EngineConfig{Concurrency: 1})

	event := boardEvent()
	event.Body = strings.Repeat("기도", 1000)
	report := engine.Deliver(ctx, event, []string{"u1"})

	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.TokensPruned)
	u, ok := st.User("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"phone"}, u.Tokens())
}
