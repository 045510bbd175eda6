// Package handlers implements the notifier's HTTP surface: health probes,
// the callable endpoints used by the mobile app, and the push ingest for
// document-created events. Routes are registered by internal/app.
package handlers

import (
	"context"

	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/feed"
	"koinonia.app/notifier/internal/notification"
	"koinonia.app/notifier/internal/pkg/worker"
)

// Pinger checks a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Broadcaster sends administrative announcements.
type Broadcaster interface {
	Broadcast(ctx context.Context, req notification.BroadcastRequest) (*notification.BroadcastResult, error)
}

// FeedReader serves getUserFeeds.
type FeedReader interface {
	GetUserFeeds(ctx context.Context, userID string, req feed.Request) (*feed.Response, error)
}

// EventRouter routes ingested events to trigger handlers.
type EventRouter interface {
	Matches(path string) bool
	Dispatch(ctx context.Context, event *domain.EntityCreated) (routed bool, err error)
}

// DetachedSubmitter runs work outside the request lifecycle.
type DetachedSubmitter interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// Server holds the handler dependencies.
type Server struct {
	store       Pinger
	broadcaster Broadcaster
	feeds       FeedReader
	events      EventRouter
	pools       DetachedSubmitter
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Store       Pinger
	Broadcaster Broadcaster
	Feeds       FeedReader
	Events      EventRouter
	// Pools runs ingested events. When nil, events are dispatched inline.
	Pools DetachedSubmitter
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		store:       deps.Store,
		broadcaster: deps.Broadcaster,
		feeds:       deps.Feeds,
		events:      deps.Events,
		pools:       deps.Pools,
	}
}
