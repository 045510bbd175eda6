package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koinonia.app/notifier/internal/api/middleware"
	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/feed"
	"koinonia.app/notifier/internal/notification"
	apperrors "koinonia.app/notifier/internal/pkg/errors"
	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/pkg/worker"
	"koinonia.app/notifier/internal/push"
	"koinonia.app/notifier/internal/push/pushtest"
	"koinonia.app/notifier/internal/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubBroadcaster struct {
	got *notification.BroadcastRequest
	err error
}

func (s *stubBroadcaster) Broadcast(_ context.Context, req notification.BroadcastRequest) (*notification.BroadcastResult, error) {
	s.got = &req
	if s.err != nil {
		return nil, s.err
	}
	return &notification.BroadcastResult{Success: true}, nil
}

type stubFeeds struct {
	userID string
	req    feed.Request
	resp   *feed.Response
	err    error
}

func (s *stubFeeds) GetUserFeeds(_ context.Context, userID string, req feed.Request) (*feed.Response, error) {
	s.userID, s.req = userID, req
	return s.resp, s.err
}

type recordingPools struct {
	pool  string
	tasks []worker.Task
	err   error
}

func (r *recordingPools) SubmitDetached(poolName string, task worker.Task) error {
	if r.err != nil {
		return r.err
	}
	r.pool = poolName
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingPools) runAll() {
	for _, t := range r.tasks {
		t(context.Background())
	}
}

// newTestRouter mounts the handlers behind an identity injector instead of JWT.
func newTestRouter(s *Server, userID string) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.ErrorHandler())
	router.Use(func(c *gin.Context) {
		if userID != "" {
			c.Request = c.Request.WithContext(middleware.SetUserContext(c.Request.Context(), userID, "", nil))
		}
		c.Next()
	})
	router.GET("/health/live", s.GetLiveness)
	router.GET("/health/ready", s.GetReadiness)
	router.POST("/callable/broadcast", s.SendBroadcast)
	router.POST("/callable/getUserFeeds", s.GetUserFeeds)
	router.POST("/events/entity-created", s.IngestEntityCreated)
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func TestHealth(t *testing.T) {
	w, body := do(t, newTestRouter(NewServer(ServerDeps{}), ""), http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	tests := []struct {
		name       string
		store      Pinger
		wantStatus int
		wantCheck  string
	}{
		{"reachable", stubPinger{}, http.StatusOK, "ok"},
		{"unreachable", stubPinger{err: errors.New("dial")}, http.StatusServiceUnavailable, "error"},
		{"unconfigured", nil, http.StatusServiceUnavailable, "unconfigured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(NewServer(ServerDeps{Store: tt.store}), "")
			w, body := do(t, router, http.MethodGet, "/health/ready", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCheck, body["checks"].(map[string]any)["firestore"])
		})
	}
}

func TestSendBroadcast(t *testing.T) {
	b := &stubBroadcaster{}
	router := newTestRouter(NewServer(ServerDeps{Broadcaster: b}), "admin")

	w, body := do(t, router, http.MethodPost, "/callable/broadcast", `{"title":"공지","body":"예배 시간 변경","screen":"/(app)/(tabs)/news"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	require.NotNil(t, b.got)
	assert.Equal(t, notification.BroadcastRequest{Title: "공지", Body: "예배 시간 변경", Screen: "/(app)/(tabs)/news"}, *b.got)
}

func TestSendBroadcast_Errors(t *testing.T) {
	t.Run("validation error surfaces as invalid argument", func(t *testing.T) {
		b := &stubBroadcaster{err: apperrors.InvalidArgument("title", `The function must be called with two arguments, "title" and "body".`)}
		w, body := do(t, newTestRouter(NewServer(ServerDeps{Broadcaster: b}), "admin"), http.MethodPost, "/callable/broadcast", `{"body":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperrors.CodeInvalidArgument, body["code"])
	})

	t.Run("malformed body", func(t *testing.T) {
		b := &stubBroadcaster{}
		w, body := do(t, newTestRouter(NewServer(ServerDeps{Broadcaster: b}), "admin"), http.MethodPost, "/callable/broadcast", `[1,2`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apperrors.CodeInvalidArgument, body["code"])
		assert.Nil(t, b.got)
	})
}

func TestReadiness_ReportsPools(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{DeliveryPoolSize: 3, EventsPoolSize: 2})
	require.NoError(t, err)
	defer pools.Shutdown()

	router := newTestRouter(NewServer(ServerDeps{Store: stubPinger{}, Pools: pools}), "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, []worker.PoolStats{
		{Name: worker.PoolDelivery, Free: 3, Capacity: 3},
		{Name: worker.PoolEvents, Free: 2, Capacity: 2},
	}, health.Pools)
}

// hangUpSender cancels the caller's request context after its first push.
type hangUpSender struct {
	*pushtest.Sender
	once   sync.Once
	hangUp context.CancelFunc
}

func (h *hangUpSender) Send(ctx context.Context, msg push.Message) (string, error) {
	defer h.once.Do(h.hangUp)
	return h.Sender.Send(ctx, msg)
}

func TestSendBroadcast_CompletesAfterCallerDisconnects(t *testing.T) {
	st := memstore.New()
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		st.PutUser(domain.User{ID: id, FCMTokens: []string{id + "-phone"}})
	}
	reqCtx, hangUp := context.WithCancel(context.Background())
	defer hangUp()
	sender := &hangUpSender{Sender: pushtest.New(), hangUp: hangUp}

	engine := notification.NewEngine(st, st, notification.NewPreferenceFilter(st), sender, nil, nil, notification.EngineConfig{Concurrency: 1})
	triggers := notification.NewTriggers(st, st, notification.NewResolver(st, st), engine)
	router := newTestRouter(NewServer(ServerDeps{Broadcaster: triggers}), "admin")

	req := httptest.NewRequest(http.MethodPost, "/callable/broadcast",
		bytes.NewReader([]byte(`{"title":"공지","body":"예배 시간 변경"}`))).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Error(t, reqCtx.Err())
	assert.Len(t, sender.Sent(), 5)
}

func TestGetUserFeeds(t *testing.T) {
	last := int64(1_700_000_000_000)
	f := &stubFeeds{resp: &feed.Response{
		Feeds: []domain.FeedItem{{
			Identifier: domain.FeedIdentifier{ID: "p1", GroupID: "g1"},
			Metadata:   domain.FeedMetadata{Type: domain.FeedPosts, Timestamp: last},
		}},
		LastVisible: &last,
		HasMore:     true,
	}}
	router := newTestRouter(NewServer(ServerDeps{Feeds: f}), "u-1")

	w, body := do(t, router, http.MethodPost, "/callable/getUserFeeds", `{"limit":5,"lastVisible":1700000001000}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", f.userID)
	require.NotNil(t, f.req.Limit)
	assert.Equal(t, 5, *f.req.Limit)
	require.NotNil(t, f.req.LastVisible)
	assert.Equal(t, int64(1700000001000), *f.req.LastVisible)
	assert.Equal(t, true, body["hasMore"])
	assert.Len(t, body["feeds"], 1)
}

func TestGetUserFeeds_EmptyBodyUsesDefaults(t *testing.T) {
	f := &stubFeeds{resp: &feed.Response{Feeds: []domain.FeedItem{}}}
	router := newTestRouter(NewServer(ServerDeps{Feeds: f}), "u-1")

	w, body := do(t, router, http.MethodPost, "/callable/getUserFeeds", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.req.Limit)
	assert.Nil(t, f.req.LastVisible)
	assert.Nil(t, body["lastVisible"])
	assert.Equal(t, []any{}, body["feeds"])
}

func TestGetUserFeeds_Errors(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		w, body := do(t, newTestRouter(NewServer(ServerDeps{Feeds: &stubFeeds{}}), ""), http.MethodPost, "/callable/getUserFeeds", `{}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apperrors.CodeUnauthenticated, body["code"])
	})

	t.Run("store failure", func(t *testing.T) {
		f := &stubFeeds{err: apperrors.Internal(errors.New("deadline"), "데이터를 가져오는 중 오류가 발생했습니다.")}
		w, body := do(t, newTestRouter(NewServer(ServerDeps{Feeds: f}), "u-1"), http.MethodPost, "/callable/getUserFeeds", `{}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apperrors.CodeInternal, body["code"])
		assert.Equal(t, "데이터를 가져오는 중 오류가 발생했습니다.", body["message"])
	})
}

func newEventHarness(pools *recordingPools) (*gin.Engine, *[]*domain.EntityCreated) {
	d := domain.NewEntityDispatcher()
	var seen []*domain.EntityCreated
	d.OnEntityCreated("groups/{groupId}/posts/{postId}", func(_ context.Context, e *domain.EntityCreated) error {
		seen = append(seen, e)
		return nil
	})
	deps := ServerDeps{Events: d}
	if pools != nil {
		deps.Pools = pools
	}
	return newTestRouter(NewServer(deps), ""), &seen
}

func TestIngestEntityCreated_DispatchesOnEventsPool(t *testing.T) {
	pools := &recordingPools{}
	router, seen := newEventHarness(pools)

	w, body := do(t, router, http.MethodPost, "/events/entity-created",
		`{"eventId":"evt-1","path":"groups/g1/posts/p1","data":{"title":"주일 광고"}}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, true, body["routed"])
	assert.Equal(t, "evt-1", body["eventId"])
	assert.Equal(t, worker.PoolEvents, pools.pool)
	assert.Empty(t, *seen, "handler must run on the pool, not the request")

	pools.runAll()
	require.Len(t, *seen, 1)
	assert.Equal(t, "p1", (*seen)[0].Param("postId"))
}

func TestIngestEntityCreated_InlineWithoutPools(t *testing.T) {
	router, seen := newEventHarness(nil)

	w, body := do(t, router, http.MethodPost, "/events/entity-created",
		`{"path":"groups/g1/posts/p1","data":{}}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, body["eventId"], "event id defaults to the request id")
	assert.Len(t, *seen, 1)
}

func TestIngestEntityCreated_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		pools      *recordingPools
		wantStatus int
		wantCode   string
		wantRouted any
	}{
		{"unroutable path is accepted", `{"path":"groups/g1/members/m1","data":{}}`, &recordingPools{}, http.StatusAccepted, "", false},
		{"not json", `{`, &recordingPools{}, http.StatusBadRequest, apperrors.CodeEventInvalid, nil},
		{"missing data", `{"path":"groups/g1/posts/p1"}`, &recordingPools{}, http.StatusBadRequest, apperrors.CodeEventInvalid, nil},
		{"pool closed", `{"path":"groups/g1/posts/p1","data":{}}`, &recordingPools{err: worker.ErrPoolClosed}, http.StatusInternalServerError, apperrors.CodeInternal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, seen := newEventHarness(tt.pools)

			w, body := do(t, router, http.MethodPost, "/events/entity-created", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			} else {
				assert.Equal(t, tt.wantRouted, body["routed"])
			}
			assert.Empty(t, tt.pools.tasks)
			assert.Empty(t, *seen)
		})
	}
}

func TestIngestEntityCreated_DetachedFromRequest(t *testing.T) {
	d := domain.NewEntityDispatcher()
	done := make(chan error, 1)
	d.OnEntityCreated("groups/{groupId}/posts/{postId}", func(ctx context.Context, _ *domain.EntityCreated) error {
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	pools, err := worker.NewPools(ctx, worker.PoolConfig{DeliveryPoolSize: 1, EventsPoolSize: 1})
	require.NoError(t, err)
	defer func() {
		cancel()
		pools.Shutdown()
	}()

	router := newTestRouter(NewServer(ServerDeps{Events: d, Pools: pools}), "")
	w, _ := do(t, router, http.MethodPost, "/events/entity-created", `{"path":"groups/g1/posts/p1","data":{}}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case err := <-done:
		assert.NoError(t, err, "handler context must outlive the request")
	case <-time.After(5 * time.Second):
		t.Fatal("event was not handled")
	}
}

func TestIngestEntityCreated_StartedTaskIgnoresShutdown(t *testing.T) {
	d := domain.NewEntityDispatcher()
	var handlerErr error
	d.OnEntityCreated("groups/{groupId}/posts/{postId}", func(ctx context.Context, _ *domain.EntityCreated) error {
		handlerErr = ctx.Err()
		return nil
	})
	pools := &recordingPools{}
	router := newTestRouter(NewServer(ServerDeps{Events: d, Pools: pools}), "")

	w, _ := do(t, router, http.MethodPost, "/events/entity-created", `{"path":"groups/g1/posts/p1","data":{}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, pools.tasks, 1)

	serviceCtx, stop := context.WithCancel(context.Background())
	stop()
	pools.tasks[0](serviceCtx)

	assert.NoError(t, handlerErr)
}
