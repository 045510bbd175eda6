package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/pkg/logger"
)

// Collection and field names of the app's Firestore layout.
const (
	colUsers         = "users"
	colGroups        = "groups"
	colMembers       = "members"
	colPosts         = "posts"
	colNotifications = "notifications"

	fieldTokens      = "fcmTokens"
	fieldLegacyToken = "fcmToken"
	fieldGroupID     = "groupId"
)

// FirestoreStore implements Store on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore wraps an initialized client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) user(userID string) *firestore.DocumentRef {
	return s.client.Collection(colUsers).Doc(userID)
}

func (s *FirestoreStore) group(groupID string) *firestore.DocumentRef {
	return s.client.Collection(colGroups).Doc(groupID)
}

// GetTokens implements TokenStore.
func (s *FirestoreStore) GetTokens(ctx context.Context, userID string) ([]string, error) {
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Tokens(), nil
}

// DeleteToken implements TokenStore. The list entry is removed with
// ArrayRemove; the legacy single-token field is cleared only when it holds
// the same token. Both happen in one transaction.
func (s *FirestoreStore) DeleteToken(ctx context.Context, userID, token string) error {
	ref := s.user(userID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		updates := []firestore.Update{{Path: fieldTokens, Value: firestore.ArrayRemove(token)}}
		if legacy, err := snap.DataAt(fieldLegacyToken); err == nil && legacy == token {
			updates = append(updates, firestore.Update{Path: fieldLegacyToken, Value: firestore.Delete})
		}
		return tx.Update(ref, updates)
	})
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete token for user %s: %w", userID, err)
	}
	return nil
}

// GetUser implements UserStore.
func (s *FirestoreStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	snap, err := s.user(userID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	var u domain.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

// ListUserIDs implements UserStore. Only document names are fetched.
func (s *FirestoreStore) ListUserIDs(ctx context.Context) ([]string, error) {
	iter := s.client.Collection(colUsers).Select().Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

// GetMembership implements MembershipStore.
func (s *FirestoreStore) GetMembership(ctx context.Context, userID, groupID string) (*domain.GroupMembership, error) {
	iter := s.user(userID).Collection(colGroups).
		Where(fieldGroupID, "==", groupID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get membership %s/%s: %w", userID, groupID, err)
	}
	var m domain.GroupMembership
	if err := snap.DataTo(&m); err != nil {
		return nil, fmt.Errorf("decode membership %s/%s: %w", userID, groupID, err)
	}
	return &m, nil
}

// ListMemberships implements MembershipStore.
func (s *FirestoreStore) ListMemberships(ctx context.Context, userID string) ([]domain.GroupMembership, error) {
	iter := s.user(userID).Collection(colGroups).Documents(ctx)
	defer iter.Stop()

	var out []domain.GroupMembership
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list memberships of %s: %w", userID, err)
		}
		var m domain.GroupMembership
		if err := snap.DataTo(&m); err != nil {
			logger.Warn("Skipping undecodable membership",
				zap.String("user_id", userID),
				zap.String("doc", snap.Ref.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// GetGroup implements GroupStore.
func (s *FirestoreStore) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	snap, err := s.group(groupID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	var g domain.Group
	if err := snap.DataTo(&g); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	if g.ID == "" {
		g.ID = snap.Ref.ID
	}
	return &g, nil
}

// ListMembers implements GroupStore.
func (s *FirestoreStore) ListMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	iter := s.group(groupID).Collection(colMembers).Documents(ctx)
	defer iter.Stop()

	var out []domain.Member
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", groupID, err)
		}
		var m domain.Member
		if err := snap.DataTo(&m); err != nil {
			return nil, fmt.Errorf("decode member %s/%s: %w", groupID, snap.Ref.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// GetPost implements GroupStore.
func (s *FirestoreStore) GetPost(ctx context.Context, groupID, postID string) (*domain.Post, error) {
	snap, err := s.group(groupID).Collection(colPosts).Doc(postID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s/%s: %w", groupID, postID, err)
	}
	var p domain.Post
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode post %s/%s: %w", groupID, postID, err)
	}
	if p.ID == "" {
		p.ID = snap.Ref.ID
	}
	return &p, nil
}

// CreateNotification implements NotificationStore.
func (s *FirestoreStore) CreateNotification(ctx context.Context, userID string, rec domain.NotificationRecord) error {
	rec.Timestamp = time.Time{}
	_, err := s.user(userID).Collection(colNotifications).Doc(rec.ID).Set(ctx, rec)
	if err != nil {
		return fmt.Errorf("create notification %s for %s: %w", rec.ID, userID, err)
	}
	return nil
}

// ListFeedItems implements FeedStore.
func (s *FirestoreStore) ListFeedItems(ctx context.Context, q FeedQuery) ([]domain.FeedItem, error) {
	field := q.Collection.CreatedAtField()
	query := s.group(q.GroupID).Collection(string(q.Collection)).OrderBy(field, firestore.Desc)
	if !q.Before.IsZero() {
		query = query.Where(field, "<", q.Before)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []domain.FeedItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s of %s: %w", q.Collection, q.GroupID, err)
		}
		out = append(out, domain.FeedItem{
			Identifier: domain.FeedIdentifier{ID: snap.Ref.ID, GroupID: q.GroupID},
			Metadata:   domain.FeedMetadata{Type: q.Collection, Timestamp: millisAt(snap, field)},
			Data:       snap.Data(),
		})
	}
	return out, nil
}

// Ping implements Store by reading at most one group name.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(colGroups).Select().Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

// millisAt reads a timestamp field as epoch millis, 0 when missing.
func millisAt(snap *firestore.DocumentSnapshot, path string) int64 {
	v, err := snap.DataAt(path)
	if err != nil {
		return 0
	}
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli()
	}
	return 0
}
