// Package store defines the document-store contracts used by the notifier
// and provides a Firestore implementation. The memstore subpackage holds an
// in-memory implementation for tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"koinonia.app/notifier/internal/domain"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// TokenStore reads and prunes device push tokens on user documents.
type TokenStore interface {
	// GetTokens returns the user's tokens, or an empty list for an unknown user.
	GetTokens(ctx context.Context, userID string) ([]string, error)
	// DeleteToken removes exactly token from the user. Absent token or user is a no-op.
	DeleteToken(ctx context.Context, userID, token string) error
}

// UserStore reads user documents.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	// ListUserIDs returns every user id. Used by the broadcast callable.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// MembershipStore reads users/{uid}/groups.
type MembershipStore interface {
	// GetMembership returns ErrNotFound when the user has no membership in groupID.
	GetMembership(ctx context.Context, userID, groupID string) (*domain.GroupMembership, error)
	ListMemberships(ctx context.Context, userID string) ([]domain.GroupMembership, error)
}

// GroupStore reads groups and their nested content.
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*domain.Group, error)
	ListMembers(ctx context.Context, groupID string) ([]domain.Member, error)
	GetPost(ctx context.Context, groupID, postID string) (*domain.Post, error)
}

// NotificationStore writes inbox records.
type NotificationStore interface {
	// CreateNotification writes rec at users/{userID}/notifications/{rec.ID}
	// with a server-assigned timestamp.
	CreateNotification(ctx context.Context, userID string, rec domain.NotificationRecord) error
}

// FeedQuery selects one page of a group subcollection.
type FeedQuery struct {
	GroupID    string
	Collection domain.FeedCollection
	// Before restricts results to items created strictly earlier. Zero means no bound.
	Before time.Time
	Limit  int
}

// FeedStore reads feed items newest first.
type FeedStore interface {
	ListFeedItems(ctx context.Context, q FeedQuery) ([]domain.FeedItem, error)
}

// Store is the full set of collaborators backed by one document database.
type Store interface {
	TokenStore
	UserStore
	MembershipStore
	GroupStore
	NotificationStore
	FeedStore
	// Ping checks the backing database is reachable.
	Ping(ctx context.Context) error
}
