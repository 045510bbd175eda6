package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"koinonia.app/notifier/internal/api/middleware"
	"koinonia.app/notifier/internal/feed"
	"koinonia.app/notifier/internal/notification"
	apperrors "koinonia.app/notifier/internal/pkg/errors"
	"koinonia.app/notifier/internal/pkg/logger"
)

// SendBroadcast handles POST /callable/broadcast.
//
// The caller must hold the broadcast permission; the router enforces it.
// The call returns once every user has been attempted. Delivery does not
// stop when the caller goes away.
func (s *Server) SendBroadcast(c *gin.Context) {
	var req notification.BroadcastRequest
	if !bindCallable(c, &req) {
		return
	}

	logger.Info("Broadcast requested",
		zap.String("user_id", middleware.GetUserID(c.Request.Context())),
		zap.String("request_id", middleware.GetRequestID(c.Request.Context())),
	)

	result, err := s.broadcaster.Broadcast(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetUserFeeds handles POST /callable/getUserFeeds.
func (s *Server) GetUserFeeds(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		_ = c.Error(apperrors.Unauthenticated())
		return
	}

	var req feed.Request
	if !bindCallable(c, &req) {
		return
	}

	resp, err := s.feeds.GetUserFeeds(ctx, userID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// bindCallable decodes an optional JSON body. An empty body leaves v at its
// zero value.
func bindCallable(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(apperrors.InvalidArgument("body", "request body must be a JSON object"))
		return false
	}
	return true
}
