package modules

import (
	"context"

	"koinonia.app/notifier/internal/api/handlers"
	"koinonia.app/notifier/internal/feed"
)

// FeedModule serves the user feed callable.
type FeedModule struct {
	service *feed.Service
}

func NewFeedModule(infra *Infrastructure) *FeedModule {
	cfg := infra.Config.Feed
	return &FeedModule{
		service: feed.NewService(infra.Store, feed.Config{
			DefaultLimit:  cfg.DefaultLimit,
			MinFetchLimit: cfg.MinFetchLimit,
			MaxLimit:      cfg.MaxLimit,
		}),
	}
}

func (m *FeedModule) Name() string { return "feed" }

func (m *FeedModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Feeds = m.service
}

func (m *FeedModule) Shutdown(context.Context) error { return nil }
