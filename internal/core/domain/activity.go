package domain

import "time"

// PostMetrics are the public engagement counters of a post.
type PostMetrics struct {
	Likes       int64 `json:"likes"`
	Replies     int64 `json:"replies"`
	Reposts     int64 `json:"reposts"`
	Quotes      int64 `json:"quotes"`
	Impressions int64 `json:"impressions"`
}

// Post is a single platform post such as a tweet.
type Post struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	AuthorID  string      `json:"author_id,omitempty"`
	CreatedAt *time.Time  `json:"created_at,omitempty"`
	Metrics   PostMetrics `json:"metrics"`
}

// Activity is a snapshot of the account's recent posts and mentions.
type Activity struct {
	Platform  Platform         `json:"platform"`
	User      PlatformUserInfo `json:"user"`
	Posts     []Post           `json:"posts"`
	Mentions  []Post           `json:"mentions"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// TotalEngagement sums likes, replies, reposts and quotes over Posts.
func (a *Activity) TotalEngagement() int64 {
	var n int64
	for _, p := range a.Posts {
		n += p.Metrics.Likes + p.Metrics.Replies + p.Metrics.Reposts + p.Metrics.Quotes
	}
	return n
}
