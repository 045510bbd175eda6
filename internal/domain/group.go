package domain

// User is the subset of users/{uid} the notifier reads.
//
// Tokens are stored as a list (fcmTokens); older clients wrote a single
// fcmToken string, which is read as a one-element list.
type User struct {
	ID          string   `firestore:"-" json:"id" yaml:"id"`
	DisplayName string   `firestore:"displayName" json:"displayName" yaml:"displayName"`
	FCMTokens   []string `firestore:"fcmTokens,omitempty" json:"fcmTokens,omitempty" yaml:"fcmTokens,omitempty"`
	FCMToken    string   `firestore:"fcmToken,omitempty" json:"fcmToken,omitempty" yaml:"fcmToken,omitempty"`
}

// Tokens returns the de-duplicated union of the list and legacy fields,
// list order first.
func (u User) Tokens() []string {
	seen := make(map[string]struct{}, len(u.FCMTokens)+1)
	tokens := make([]string, 0, len(u.FCMTokens)+1)
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}
	for _, t := range u.FCMTokens {
		add(t)
	}
	add(u.FCMToken)
	return tokens
}

// BoardPreferences is the nested board switch set.
type BoardPreferences struct {
	Activity *bool `firestore:"activity,omitempty" json:"activity,omitempty" yaml:"activity,omitempty"`
	NewPost  *bool `firestore:"newPost,omitempty" json:"newPost,omitempty" yaml:"newPost,omitempty"`
}

// NotificationPreferences holds per-category switches. A nil pointer means
// the user never touched the switch, which is not the same as false.
type NotificationPreferences struct {
	PrayerRequest *bool             `firestore:"prayerRequest,omitempty" json:"prayerRequest,omitempty" yaml:"prayerRequest,omitempty"`
	Fellowship    *bool             `firestore:"fellowship,omitempty" json:"fellowship,omitempty" yaml:"fellowship,omitempty"`
	Board         *BoardPreferences `firestore:"board,omitempty" json:"board,omitempty" yaml:"board,omitempty"`
}

// GroupMembership is users/{uid}/groups/{doc}.
type GroupMembership struct {
	GroupID                 string                   `firestore:"groupId" json:"groupId" yaml:"groupId"`
	NotificationPreferences *NotificationPreferences `firestore:"notificationPreferences,omitempty" json:"notificationPreferences,omitempty" yaml:"notificationPreferences,omitempty"`
}

// Member is groups/{gid}/members/{doc}.
type Member struct {
	ID          string `firestore:"id" json:"id" yaml:"id"`
	DisplayName string `firestore:"displayName" json:"displayName" yaml:"displayName"`
	PhotoURL    string `firestore:"photoURL,omitempty" json:"photoURL,omitempty" yaml:"photoURL,omitempty"`
	Role        string `firestore:"role,omitempty" json:"role,omitempty" yaml:"role,omitempty"`
}

// Group is groups/{gid}.
type Group struct {
	ID   string `firestore:"id" json:"id" yaml:"id"`
	Name string `firestore:"groupName" json:"groupName" yaml:"groupName"`
}

// Bool returns a pointer to b, for building preference fixtures.
func Bool(b bool) *bool {
	return &b
}
