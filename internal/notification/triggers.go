package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"koinonia.app/notifier/internal/domain"
	apperrors "koinonia.app/notifier/internal/pkg/errors"
	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/store"
)

// Document path patterns the adapters are registered under.
const (
	PatternComment       = "groups/{groupId}/posts/{postId}/comments/{commentId}"
	PatternPost          = "groups/{groupId}/posts/{postId}"
	PatternFellowship    = "groups/{groupId}/fellowship/{fellowshipId}"
	PatternPrayerRequest = "groups/{groupId}/prayer-requests/{prayerRequestId}"
)

// UnknownSenderName labels a fellowship whose leader cannot be found.
const UnknownSenderName = "알 수 없음"

// Triggers maps created documents onto engine deliveries.
// Handlers never fail the caller for missing or malformed data; they log
// and return nil so the event is not redelivered.
type Triggers struct {
	groups   store.GroupStore
	users    store.UserStore
	resolver *Resolver
	engine   *Engine
}

// NewTriggers creates the adapter set.
func NewTriggers(groups store.GroupStore, users store.UserStore, resolver *Resolver, engine *Engine) *Triggers {
	return &Triggers{
		groups:   groups,
		users:    users,
		resolver: resolver,
		engine:   engine,
	}
}

// Register binds every adapter on d.
func (t *Triggers) Register(d *domain.EntityDispatcher) {
	d.OnEntityCreated(PatternComment, t.OnCommentCreated)
	d.OnEntityCreated(PatternPost, t.OnPostCreated)
	d.OnEntityCreated(PatternFellowship, t.OnFellowshipCreated)
	d.OnEntityCreated(PatternPrayerRequest, t.OnPrayerRequestCreated)
}

// OnCommentCreated notifies the post author about a new comment.
func (t *Triggers) OnCommentCreated(ctx context.Context, ev *domain.EntityCreated) error {
	var comment domain.Comment
	if !t.decode(ev, &comment) {
		return nil
	}
	groupID := firstNonEmpty(ev.Param("groupId"), comment.GroupID)
	postID := ev.Param("postId")

	post, err := t.groups.GetPost(ctx, groupID, postID)
	if err != nil {
		t.logMissing(ev, "post", postID, err)
		return nil
	}
	group, ok := t.loadGroup(ctx, ev, groupID)
	if !ok {
		return nil
	}

	boardID := firstNonEmpty(post.ID, postID)
	event := domain.NotificationEvent{
		Category:        domain.CategoryBoardActivity,
		SenderID:        comment.Author.ID,
		GroupID:         groupID,
		GroupName:       group.Name,
		SourceEntityKey: domain.SourceKeyBoard,
		SourceEntityID:  boardID,
		Title:           "게시글에 댓글이 달렸어요",
		Body:            comment.Content,
		Screen:          boardScreen(boardID),
	}
	t.engine.Deliver(ctx, event, t.resolver.Single(post.Author.ID, comment.Author.ID))
	return nil
}

// OnPostCreated notifies every other group member about a new post.
func (t *Triggers) OnPostCreated(ctx context.Context, ev *domain.EntityCreated) error {
	var post domain.Post
	if !t.decode(ev, &post) {
		return nil
	}
	groupID := firstNonEmpty(ev.Param("groupId"), post.GroupID)
	boardID := firstNonEmpty(post.ID, ev.Param("postId"))
	senderID := post.Author.ID

	group, ok := t.loadGroup(ctx, ev, groupID)
	if !ok {
		return nil
	}

	event := domain.NotificationEvent{
		Category:        domain.CategoryBoardNewPost,
		SenderID:        senderID,
		GroupID:         groupID,
		GroupName:       group.Name,
		SourceEntityKey: domain.SourceKeyBoard,
		SourceEntityID:  boardID,
		Title:           fmt.Sprintf("%s 님이 새 게시글을 등록했어요", t.memberName(ctx, groupID, senderID, "")),
		Body:            post.Title,
		Screen:          boardScreen(boardID),
	}
	t.engine.Deliver(ctx, event, t.resolver.GroupMembers(ctx, groupID, senderID))
	return nil
}

// OnFellowshipCreated notifies the fellowship's participants. The sender is
// the fellowship leader, not the document creator.
func (t *Triggers) OnFellowshipCreated(ctx context.Context, ev *domain.EntityCreated) error {
	var fellowship domain.Fellowship
	if !t.decode(ev, &fellowship) {
		return nil
	}
	groupID := ev.Param("groupId")
	fellowshipID := firstNonEmpty(fellowship.Identifiers.ID, ev.Param("fellowshipId"))
	senderID := fellowship.SenderID()

	group, ok := t.loadGroup(ctx, ev, groupID)
	if !ok {
		return nil
	}

	senderName := UnknownSenderName
	if senderID != "" {
		senderName = t.memberName(ctx, groupID, senderID, UnknownSenderName)
	}

	event := domain.NotificationEvent{
		Category:        domain.CategoryFellowship,
		SenderID:        senderID,
		GroupID:         groupID,
		GroupName:       group.Name,
		SourceEntityKey: domain.SourceKeyFellowship,
		SourceEntityID:  fellowshipID,
		Title:           fmt.Sprintf("%s 님이 새 나눔을 등록했어요", senderName),
		Body:            "클릭해서 나눔에 참여해보세요",
		Screen:          "/(app)/(fellowship)/" + fellowshipID,
	}
	recipients := t.resolver.FellowshipParticipants(ctx, groupID, fellowship.ParticipantIDs(), senderID)
	t.engine.Deliver(ctx, event, recipients)
	return nil
}

// OnPrayerRequestCreated notifies other group members about a new prayer
// request. Nothing is sent when the requesting user no longer exists.
func (t *Triggers) OnPrayerRequestCreated(ctx context.Context, ev *domain.EntityCreated) error {
	var request domain.PrayerRequest
	if !t.decode(ev, &request) {
		return nil
	}
	groupID := ev.Param("groupId")
	requestID := firstNonEmpty(request.ID, ev.Param("prayerRequestId"))
	senderID := request.Member.ID

	sender, err := t.users.GetUser(ctx, senderID)
	if err != nil {
		t.logMissing(ev, "sender", senderID, err)
		return nil
	}
	group, ok := t.loadGroup(ctx, ev, groupID)
	if !ok {
		return nil
	}

	event := domain.NotificationEvent{
		Category:        domain.CategoryPrayerRequest,
		SenderID:        senderID,
		GroupID:         groupID,
		GroupName:       group.Name,
		SourceEntityKey: domain.SourceKeyPrayerRequest,
		SourceEntityID:  requestID,
		Title:           fmt.Sprintf("%s 님의 새로운 기도제목 🙏", sender.DisplayName),
		Body:            request.Value,
		Screen:          domain.DefaultScreen,
	}
	t.engine.Deliver(ctx, event, t.resolver.GroupMembers(ctx, groupID, senderID))
	return nil
}

// BroadcastRequest is the payload of the administrative broadcast callable.
type BroadcastRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Screen string `json:"screen,omitempty"`
}

// BroadcastResult is returned once every user has been attempted.
type BroadcastResult struct {
	Success bool `json:"success"`
}

// Broadcast pushes an announcement to every user's devices, ignoring
// preferences. Broadcasts leave no inbox record.
func (t *Triggers) Broadcast(ctx context.Context, req BroadcastRequest) (*BroadcastResult, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperrors.InvalidArgument("title", `The function must be called with two arguments, "title" and "body".`)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, apperrors.InvalidArgument("body", `The function must be called with two arguments, "title" and "body".`)
	}

	event := domain.NotificationEvent{
		Category:   domain.CategoryBroadcast,
		Title:      req.Title,
		Body:       req.Body,
		Screen:     firstNonEmpty(req.Screen, domain.DefaultScreen),
		SkipRecord: true,
	}
	t.engine.Deliver(ctx, event, t.resolver.AllUsers(ctx))
	return &BroadcastResult{Success: true}, nil
}

func (t *Triggers) decode(ev *domain.EntityCreated, v any) bool {
	if err := ev.Decode(v); err != nil {
		logger.Warn("Discarding malformed entity payload",
			zap.String("path", ev.Path),
			zap.String("event_id", ev.EventID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (t *Triggers) loadGroup(ctx context.Context, ev *domain.EntityCreated, groupID string) (*domain.Group, bool) {
	group, err := t.groups.GetGroup(ctx, groupID)
	if err != nil {
		t.logMissing(ev, "group", groupID, err)
		return nil, false
	}
	return group, true
}

// memberName looks up id in the group's member list.
func (t *Triggers) memberName(ctx context.Context, groupID, id, fallback string) string {
	members, err := t.groups.ListMembers(ctx, groupID)
	if err != nil {
		logger.Warn("Failed to list group members",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return fallback
	}
	for _, m := range members {
		if m.ID == id {
			return m.DisplayName
		}
	}
	return fallback
}

func (t *Triggers) logMissing(ev *domain.EntityCreated, kind, id string, err error) {
	fields := []zap.Field{
		zap.String("path", ev.Path),
		zap.String("event_id", ev.EventID),
		zap.String(kind+"_id", id),
	}
	if errors.Is(err, store.ErrNotFound) {
		logger.Info("Skipping notification: "+kind+" not found", fields...)
		return
	}
	logger.Warn("Skipping notification: failed to load "+kind, append(fields, zap.Error(err))...)
}

func boardScreen(boardID string) string {
	return "/(app)/(board)/" + boardID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
