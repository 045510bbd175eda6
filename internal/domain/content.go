package domain

// AuthorRef is the embedded author/member reference on content documents.
type AuthorRef struct {
	ID string `firestore:"id" json:"id"`
}

// Comment is groups/{gid}/posts/{pid}/comments/{cid}.
type Comment struct {
	Content string    `firestore:"content" json:"content"`
	GroupID string    `firestore:"groupId" json:"groupId"`
	Author  AuthorRef `firestore:"author" json:"author"`
}

// Post is groups/{gid}/posts/{pid}.
type Post struct {
	ID      string    `firestore:"id" json:"id"`
	Title   string    `firestore:"title" json:"title"`
	GroupID string    `firestore:"groupId" json:"groupId"`
	Author  AuthorRef `firestore:"author" json:"author"`
}

// FellowshipParticipant is one entry of a fellowship's participant list.
type FellowshipParticipant struct {
	ID          string `firestore:"id" json:"id"`
	DisplayName string `firestore:"displayName,omitempty" json:"displayName,omitempty"`
}

// Fellowship is groups/{gid}/fellowship/{fid}.
type Fellowship struct {
	Identifiers struct {
		ID string `firestore:"id" json:"id"`
	} `firestore:"identifiers" json:"identifiers"`
	Info struct {
		Participants []FellowshipParticipant `firestore:"participants" json:"participants"`
	} `firestore:"info" json:"info"`
	Roles struct {
		LeaderID string `firestore:"leaderId" json:"leaderId"`
	} `firestore:"roles" json:"roles"`
}

// ParticipantIDs lists participant ids in document order.
func (f Fellowship) ParticipantIDs() []string {
	ids := make([]string, 0, len(f.Info.Participants))
	for _, p := range f.Info.Participants {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// SenderID is the leader, provided the leader is among the participants.
// A fellowship whose leader is not a participant has no sender.
func (f Fellowship) SenderID() string {
	for _, p := range f.Info.Participants {
		if p.ID == f.Roles.LeaderID {
			return p.ID
		}
	}
	return ""
}

// PrayerRequest is groups/{gid}/prayer-requests/{rid}.
type PrayerRequest struct {
	ID     string    `firestore:"id" json:"id"`
	Value  string    `firestore:"value" json:"value"`
	Member AuthorRef `firestore:"member" json:"member"`
}
