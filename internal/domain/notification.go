package domain

import "time"

// Category selects the preference rule and metric label for an event.
type Category string

const (
	CategoryPrayerRequest Category = "prayerRequest"
	CategoryFellowship    Category = "fellowship"
	CategoryBoardActivity Category = "board.activity"
	CategoryBoardNewPost  Category = "board.newPost"
	CategoryBroadcast     Category = "broadcast"
)

// IsBoard reports whether c is one of the opt-out board categories.
func (c Category) IsBoard() bool {
	return c == CategoryBoardActivity || c == CategoryBoardNewPost
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrayerRequest, CategoryFellowship, CategoryBoardActivity, CategoryBoardNewPost, CategoryBroadcast:
		return true
	}
	return false
}

// Source entity keys used in NotificationRecord metadata.
const (
	SourceKeyBoard         = "boardId"
	SourceKeyFellowship    = "fellowshipId"
	SourceKeyPrayerRequest = "prayerRequestId"
)

// DefaultScreen is the deep link used when an event does not name one.
const DefaultScreen = "/(app)/(tabs)"

// NotificationEvent is produced by a trigger adapter and consumed by the
// delivery engine. It is never persisted as-is.
type NotificationEvent struct {
	Category  Category
	SenderID  string
	GroupID   string
	GroupName string

	// SourceEntityKey names the metadata field holding SourceEntityID, e.g. "boardId".
	SourceEntityKey string
	SourceEntityID  string

	Title  string
	Body   string
	Screen string

	// SkipRecord suppresses the inbox record; pushes are still sent.
	SkipRecord bool
}

// PushData is the string map attached to every push message.
func (e NotificationEvent) PushData() map[string]string {
	data := map[string]string{"screen": e.Screen}
	if e.GroupID != "" {
		data["groupId"] = e.GroupID
	}
	if e.GroupName != "" {
		data["groupName"] = e.GroupName
	}
	return data
}

// NotificationRecord is one inbox entry stored at users/{uid}/notifications/{id}.
type NotificationRecord struct {
	ID        string         `firestore:"-" json:"id"`
	Title     string         `firestore:"title" json:"title"`
	Body      string         `firestore:"body" json:"body"`
	Screen    string         `firestore:"screen" json:"screen"`
	GroupID   string         `firestore:"groupId,omitempty" json:"groupId,omitempty"`
	GroupName string         `firestore:"groupName,omitempty" json:"groupName,omitempty"`
	Metadata  map[string]any `firestore:"metadata" json:"metadata"`
	IsRead    bool           `firestore:"isRead" json:"isRead"`
	// Timestamp is left zero on write so Firestore assigns the server time.
	Timestamp time.Time `firestore:"timestamp,serverTimestamp" json:"timestamp"`
}

// NewRecord builds the inbox record for event with the given id.
func NewRecord(id string, e NotificationEvent) NotificationRecord {
	metadata := map[string]any{
		"groupId":  e.GroupID,
		"senderId": e.SenderID,
	}
	if e.SourceEntityKey != "" {
		metadata[e.SourceEntityKey] = e.SourceEntityID
	}
	return NotificationRecord{
		ID:        id,
		Title:     e.Title,
		Body:      e.Body,
		Screen:    e.Screen,
		GroupID:   e.GroupID,
		GroupName: e.GroupName,
		Metadata:  metadata,
		IsRead:    false,
	}
}
