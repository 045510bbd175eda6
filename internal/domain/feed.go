package domain

// FeedCollection is a group subcollection surfaced in the user feed.
type FeedCollection string

const (
	FeedFellowship     FeedCollection = "fellowship"
	FeedPosts          FeedCollection = "posts"
	FeedPrayerRequests FeedCollection = "prayer-requests"
)

// FeedCollections lists the collections merged into a feed, in merge order.
var FeedCollections = []FeedCollection{FeedFellowship, FeedPosts, FeedPrayerRequests}

// CreatedAtField returns the document field ordering c. Fellowship documents
// use the nested metadata schema.
func (c FeedCollection) CreatedAtField() string {
	if c == FeedFellowship {
		return "metadata.createdAt"
	}
	return "createdAt"
}

// FeedIdentifier locates a feed item.
type FeedIdentifier struct {
	ID      string `json:"id"`
	GroupID string `json:"groupId"`
}

// FeedMetadata carries the sort key in epoch milliseconds.
type FeedMetadata struct {
	Type      FeedCollection `json:"type"`
	Timestamp int64          `json:"timestamp"`
}

// FeedItem is one entry of a getUserFeeds response.
type FeedItem struct {
	Identifier FeedIdentifier `json:"identifier"`
	Metadata   FeedMetadata   `json:"metadata"`
	Members    []Member       `json:"members"`
	Data       map[string]any `json:"data"`
}
