package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"koinonia.app/notifier/internal/api/middleware"
	"koinonia.app/notifier/internal/domain"
	apperrors "koinonia.app/notifier/internal/pkg/errors"
	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/pkg/worker"
)

// maxEnvelopeBytes caps an ingested envelope.
const maxEnvelopeBytes = 1 << 20

// IngestAccepted is the response to an ingested event.
type IngestAccepted struct {
	Accepted bool   `json:"accepted"`
	Routed   bool   `json:"routed"`
	EventID  string `json:"eventId,omitempty"`
}

// IngestEntityCreated handles POST /events/entity-created.
//
// The envelope is validated synchronously and handled on the events pool,
// detached from the request. Unroutable paths are accepted and dropped.
func (s *Server) IngestEntityCreated(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes+1))
	if err != nil || len(raw) > maxEnvelopeBytes {
		_ = c.Error(apperrors.New(apperrors.CodeEventInvalid, "envelope is unreadable or too large"))
		return
	}

	event, err := domain.ParseEntityCreated(raw)
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.CodeEventInvalid, err.Error()))
		return
	}
	if event.EventID == "" {
		event.EventID = middleware.GetRequestID(c.Request.Context())
	}

	if !s.events.Matches(event.Path) {
		logger.Info("Entity event ignored",
			zap.String("event_id", event.EventID),
			zap.String("path", event.Path),
		)
		c.JSON(http.StatusAccepted, IngestAccepted{Accepted: true, Routed: false, EventID: event.EventID})
		return
	}

	// A started dispatch is not cut short by shutdown.
	task := func(ctx context.Context) {
		if _, err := s.events.Dispatch(context.WithoutCancel(ctx), event); err != nil {
			logger.Warn("Entity event handled with errors",
				zap.String("event_id", event.EventID),
				zap.String("path", event.Path),
				zap.Error(err),
			)
		}
	}

	if s.pools == nil {
		task(context.WithoutCancel(c.Request.Context()))
	} else if err := s.pools.SubmitDetached(worker.PoolEvents, task); err != nil {
		logger.Error("Failed to schedule entity event",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		_ = c.Error(apperrors.Internal(err, "event could not be scheduled"))
		return
	}

	c.JSON(http.StatusAccepted, IngestAccepted{Accepted: true, Routed: true, EventID: event.EventID})
}
