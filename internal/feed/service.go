// Package feed assembles a user's activity feed across their groups.
package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"koinonia.app/notifier/internal/domain"
	apperrors "koinonia.app/notifier/internal/pkg/errors"
	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/store"
)

// groupFanOut bounds concurrent per-group reads within one request.
const groupFanOut = 8

// Config holds paging limits.
type Config struct {
	DefaultLimit int
	// MinFetchLimit is the per-collection floor when querying each group.
	MinFetchLimit int
	MaxLimit      int
}

// Request is the getUserFeeds payload.
type Request struct {
	// LastVisible is the timestamp (epoch ms) of the last item already shown.
	LastVisible *int64 `json:"lastVisible,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
}

// Response is one feed page.
type Response struct {
	Feeds       []domain.FeedItem `json:"feeds"`
	LastVisible *int64            `json:"lastVisible"`
	HasMore     bool              `json:"hasMore"`
}

// Reader is the store surface the feed needs.
type Reader interface {
	store.MembershipStore
	store.GroupStore
	store.FeedStore
}

// Service serves getUserFeeds.
type Service struct {
	store Reader
	cfg   Config
}

// NewService creates a feed service.
func NewService(r Reader, cfg Config) *Service {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 10
	}
	if cfg.MinFetchLimit < 1 {
		cfg.MinFetchLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &Service{store: r, cfg: cfg}
}

// GetUserFeeds returns the newest items across every group userID belongs
// to, strictly older than req.LastVisible when set.
func (s *Service) GetUserFeeds(ctx context.Context, userID string, req Request) (*Response, error) {
	limit := s.cfg.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 1 {
		return nil, apperrors.InvalidArgument("limit", "limit must be positive")
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	var before time.Time
	if req.LastVisible != nil && *req.LastVisible > 0 {
		before = time.UnixMilli(*req.LastVisible)
	}

	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, s.internal(userID, err)
	}
	if len(memberships) == 0 {
		return &Response{Feeds: []domain.FeedItem{}}, nil
	}

	fetchLimit := max(limit, s.cfg.MinFetchLimit)
	perGroup := make([][]domain.FeedItem, len(memberships))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(groupFanOut)
	for i, m := range memberships {
		g.Go(func() error {
			items, err := s.groupFeed(gctx, m.GroupID, before, fetchLimit)
			if err != nil {
				return err
			}
			perGroup[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.internal(userID, err)
	}

	var all []domain.FeedItem
	for _, items := range perGroup {
		all = append(all, items...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Metadata.Timestamp > all[j].Metadata.Timestamp
	})
	if !before.IsZero() {
		cutoff := before.UnixMilli()
		filtered := all[:0]
		for _, item := range all {
			if item.Metadata.Timestamp < cutoff {
				filtered = append(filtered, item)
			}
		}
		all = filtered
	}

	page := all
	if len(page) > limit {
		page = page[:limit]
	}
	resp := &Response{
		Feeds:   append([]domain.FeedItem{}, page...),
		HasMore: len(all) > limit,
	}
	if len(page) > 0 {
		last := page[len(page)-1].Metadata.Timestamp
		resp.LastVisible = &last
	}
	return resp, nil
}

func (s *Service) groupFeed(ctx context.Context, groupID string, before time.Time, fetchLimit int) ([]domain.FeedItem, error) {
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", groupID, err)
	}

	var items []domain.FeedItem
	for _, coll := range domain.FeedCollections {
		page, err := s.store.ListFeedItems(ctx, store.FeedQuery{
			GroupID:    groupID,
			Collection: coll,
			Before:     before,
			Limit:      fetchLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s of %s: %w", coll, groupID, err)
		}
		for _, item := range page {
			item.Members = members
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Service) internal(userID string, err error) error {
	logger.Error("Failed to build user feed",
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return apperrors.Internal(err, "데이터를 가져오는 중 오류가 발생했습니다.")
}
