package notification

import (
	"context"

	"go.uber.org/zap"

	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/store"
)

// Resolver produces candidate recipient sets. Every result excludes the
// sender and contains each id once. Load failures yield an empty set.
type Resolver struct {
	groups store.GroupStore
	users  store.UserStore
}

// NewResolver creates a resolver.
func NewResolver(groups store.GroupStore, users store.UserStore) *Resolver {
	return &Resolver{groups: groups, users: users}
}

// GroupMembers returns the group's members except senderID.
func (r *Resolver) GroupMembers(ctx context.Context, groupID, senderID string) []string {
	members, err := r.groups.ListMembers(ctx, groupID)
	if err != nil {
		logger.Warn("Failed to list group members",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return []string{}
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return exclude(ids, senderID)
}

// FellowshipParticipants narrows the group's members to participantIDs,
// then drops senderID. Participants who are no longer members are ignored.
func (r *Resolver) FellowshipParticipants(ctx context.Context, groupID string, participantIDs []string, senderID string) []string {
	members, err := r.groups.ListMembers(ctx, groupID)
	if err != nil {
		logger.Warn("Failed to list group members for fellowship",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return []string{}
	}
	participants := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		participants[id] = struct{}{}
	}
	ids := make([]string, 0, len(participantIDs))
	for _, m := range members {
		if _, ok := participants[m.ID]; ok {
			ids = append(ids, m.ID)
		}
	}
	return exclude(ids, senderID)
}

// Single returns recipientID alone, or nothing when it is the sender.
func (r *Resolver) Single(recipientID, senderID string) []string {
	return exclude([]string{recipientID}, senderID)
}

// AllUsers returns every user id.
func (r *Resolver) AllUsers(ctx context.Context) []string {
	ids, err := r.users.ListUserIDs(ctx)
	if err != nil {
		logger.Warn("Failed to list users", zap.Error(err))
		return []string{}
	}
	return exclude(ids, "")
}

// exclude drops empty ids, duplicates and senderID, keeping first-seen order.
func exclude(ids []string, senderID string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == senderID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
