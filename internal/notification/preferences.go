// Package notification fans domain events out to group members as push
// messages and inbox records.
//
// One Engine serves every event type. Trigger adapters resolve recipients
// and build the NotificationEvent; the engine filters by preference, sends
// per device token, writes at most one record per recipient and prunes
// tokens the provider rejects.
package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/store"
)

// PreferenceFilter decides whether a recipient wants a push for a category.
type PreferenceFilter struct {
	memberships store.MembershipStore
}

// NewPreferenceFilter creates a filter reading users/{uid}/groups.
func NewPreferenceFilter(memberships store.MembershipStore) *PreferenceFilter {
	return &PreferenceFilter{memberships: memberships}
}

// ShouldNotify loads the recipient's membership in groupID and applies Allows.
// Broadcast bypasses preferences without touching the store. A membership
// that is missing or cannot be read yields false.
func (f *PreferenceFilter) ShouldNotify(ctx context.Context, recipientID, groupID string, category domain.Category) bool {
	if category == domain.CategoryBroadcast {
		return true
	}

	membership, err := f.memberships.GetMembership(ctx, recipientID, groupID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to load group membership",
				zap.String("recipient", recipientID),
				zap.String("group_id", groupID),
				zap.Error(err),
			)
		}
		return false
	}
	return Allows(membership.NotificationPreferences, category)
}

// Allows applies the per-category defaults to prefs:
//   - board categories are opt-out: only an explicit false disables them;
//   - prayer requests and fellowship are opt-in: only an explicit true enables them;
//   - broadcast is always allowed.
func Allows(prefs *domain.NotificationPreferences, category domain.Category) bool {
	switch category {
	case domain.CategoryBroadcast:
		return true
	case domain.CategoryBoardActivity, domain.CategoryBoardNewPost:
		if prefs == nil || prefs.Board == nil {
			return true
		}
		flag := prefs.Board.Activity
		if category == domain.CategoryBoardNewPost {
			flag = prefs.Board.NewPost
		}
		return flag == nil || *flag
	case domain.CategoryPrayerRequest:
		return prefs != nil && prefs.PrayerRequest != nil && *prefs.PrayerRequest
	case domain.CategoryFellowship:
		return prefs != nil && prefs.Fellowship != nil && *prefs.Fellowship
	default:
		return false
	}
}
