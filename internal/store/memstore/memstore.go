// Package memstore is an in-memory store.Store used by tests, the seed
// command's dry-run mode, and local development without Firestore.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/store"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpGetTokens          Op = "GetTokens"
	OpDeleteToken        Op = "DeleteToken"
	OpGetUser            Op = "GetUser"
	OpListUserIDs        Op = "ListUserIDs"
	OpGetMembership      Op = "GetMembership"
	OpListMemberships    Op = "ListMemberships"
	OpGetGroup           Op = "GetGroup"
	OpListMembers        Op = "ListMembers"
	OpGetPost            Op = "GetPost"
	OpCreateNotification Op = "CreateNotification"
	OpListFeedItems      Op = "ListFeedItems"
	OpPing               Op = "Ping"
)

type contentDoc struct {
	id        string
	createdAt time.Time
	data      map[string]any
}

type groupDoc struct {
	group   domain.Group
	members []domain.Member
	posts   map[string]domain.Post
	content map[domain.FeedCollection][]contentDoc
}

// Store is a concurrency-safe in-memory store.Store.
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[string]*domain.User
	userOrder     []string
	memberships   map[string][]domain.GroupMembership
	groups        map[string]*groupDoc
	notifications map[string][]domain.NotificationRecord
	faults        map[Op]map[string]error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:           time.Now,
		users:         make(map[string]*domain.User),
		memberships:   make(map[string][]domain.GroupMembership),
		groups:        make(map[string]*groupDoc),
		notifications: make(map[string][]domain.NotificationRecord),
		faults:        make(map[Op]map[string]error),
	}
}

// --- seeding ---

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.userOrder = append(s.userOrder, u.ID)
	}
	cp := u
	cp.FCMTokens = slices.Clone(u.FCMTokens)
	s.users[u.ID] = &cp
}

// PutMembership inserts or replaces the user's membership in m.GroupID.
func (s *Store) PutMembership(userID string, m domain.GroupMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.memberships[userID]
	for i := range list {
		if list[i].GroupID == m.GroupID {
			list[i] = m
			return
		}
	}
	s.memberships[userID] = append(list, m)
}

// PutGroup inserts or replaces a group and its member list.
func (s *Store) PutGroup(g domain.Group, members ...domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.groupLocked(g.ID)
	doc.group = g
	doc.members = slices.Clone(members)
}

// PutPost inserts a post under its group.
func (s *Store) PutPost(groupID string, p domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupLocked(groupID).posts[p.ID] = p
}

// PutContent inserts a feed document under groups/{groupID}/{collection}.
func (s *Store) PutContent(groupID string, collection domain.FeedCollection, id string, createdAt time.Time, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.groupLocked(groupID)
	doc.content[collection] = append(doc.content[collection], contentDoc{id: id, createdAt: createdAt, data: data})
}

// Fail makes op return err. key limits the fault to one user or group id;
// an empty key applies to every call. A nil err clears the fault.
func (s *Store) Fail(op Op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults[op], key)
		return
	}
	if s.faults[op] == nil {
		s.faults[op] = make(map[string]error)
	}
	s.faults[op][key] = err
}

// --- inspection ---

// Notifications returns the records written for userID.
func (s *Store) Notifications(userID string) []domain.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications[userID])
}

// User returns a copy of the stored user, if any.
func (s *Store) User(userID string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, false
	}
	cp := *u
	cp.FCMTokens = slices.Clone(u.FCMTokens)
	return cp, true
}

// --- store.Store ---

// GetTokens implements store.TokenStore.
func (s *Store) GetTokens(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpGetTokens, userID); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return []string{}, nil
	}
	return u.Tokens(), nil
}

// DeleteToken implements store.TokenStore.
func (s *Store) DeleteToken(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpDeleteToken, userID); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	u.FCMTokens = slices.DeleteFunc(u.FCMTokens, func(t string) bool { return t == token })
	if u.FCMToken == token {
		u.FCMToken = ""
	}
	return nil
}

// GetUser implements store.UserStore.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpGetUser, userID); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	cp.FCMTokens = slices.Clone(u.FCMTokens)
	return &cp, nil
}

// ListUserIDs implements store.UserStore.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpListUserIDs, ""); err != nil {
		return nil, err
	}
	return slices.Clone(s.userOrder), nil
}

// GetMembership implements store.MembershipStore.
func (s *Store) GetMembership(ctx context.Context, userID, groupID string) (*domain.GroupMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpGetMembership, userID); err != nil {
		return nil, err
	}
	for _, m := range s.memberships[userID] {
		if m.GroupID == groupID {
			cp := m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// ListMemberships implements store.MembershipStore.
func (s *Store) ListMemberships(ctx context.Context, userID string) ([]domain.GroupMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpListMemberships, userID); err != nil {
		return nil, err
	}
	return slices.Clone(s.memberships[userID]), nil
}

// GetGroup implements store.GroupStore.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpGetGroup, groupID); err != nil {
		return nil, err
	}
	doc, ok := s.groups[groupID]
	if !ok || doc.group.ID == "" {
		return nil, store.ErrNotFound
	}
	g := doc.group
	return &g, nil
}

// ListMembers implements store.GroupStore.
func (s *Store) ListMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpListMembers, groupID); err != nil {
		return nil, err
	}
	doc, ok := s.groups[groupID]
	if !ok {
		return []domain.Member{}, nil
	}
	return slices.Clone(doc.members), nil
}

// GetPost implements store.GroupStore.
func (s *Store) GetPost(ctx context.Context, groupID, postID string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpGetPost, groupID); err != nil {
		return nil, err
	}
	doc, ok := s.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p, ok := doc.posts[postID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// CreateNotification implements store.NotificationStore.
func (s *Store) CreateNotification(ctx context.Context, userID string, rec domain.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpCreateNotification, userID); err != nil {
		return err
	}
	rec.Timestamp = s.now()
	// Same id overwrites, like a Firestore Set.
	for i, existing := range s.notifications[userID] {
		if existing.ID == rec.ID {
			s.notifications[userID][i] = rec
			return nil
		}
	}
	s.notifications[userID] = append(s.notifications[userID], rec)
	return nil
}

// ListFeedItems implements store.FeedStore.
func (s *Store) ListFeedItems(ctx context.Context, q store.FeedQuery) ([]domain.FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultLocked(OpListFeedItems, q.GroupID); err != nil {
		return nil, err
	}
	doc, ok := s.groups[q.GroupID]
	if !ok {
		return []domain.FeedItem{}, nil
	}
	docs := slices.Clone(doc.content[q.Collection])
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].createdAt.After(docs[j].createdAt) })

	items := make([]domain.FeedItem, 0, len(docs))
	for _, d := range docs {
		if !q.Before.IsZero() && !d.createdAt.Before(q.Before) {
			continue
		}
		if q.Limit > 0 && len(items) == q.Limit {
			break
		}
		items = append(items, domain.FeedItem{
			Identifier: domain.FeedIdentifier{ID: d.id, GroupID: q.GroupID},
			Metadata:   domain.FeedMetadata{Type: q.Collection, Timestamp: d.createdAt.UnixMilli()},
			Data:       d.data,
		})
	}
	return items, nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faultLocked(OpPing, "")
}

func (s *Store) groupLocked(groupID string) *groupDoc {
	doc, ok := s.groups[groupID]
	if !ok {
		doc = &groupDoc{
			posts:   make(map[string]domain.Post),
			content: make(map[domain.FeedCollection][]contentDoc),
		}
		s.groups[groupID] = doc
	}
	return doc
}

func (s *Store) faultLocked(op Op, key string) error {
	faults := s.faults[op]
	if err, ok := faults[key]; ok {
		return err
	}
	return faults[""]
}
