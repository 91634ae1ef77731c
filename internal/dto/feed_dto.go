package dto

import "time"

// FeedRequest selects a feed source and page.
type FeedRequest struct {
	Tab    string `query:"tab" validate:"omitempty,oneof=top followed"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}

// FeedItem is a post batched into the ranking engine. Engagement counters are
// attached before scoring; missing counters default to zero.
type FeedItem struct {
	ID         uint      `json:"id"`
	AuthorID   string    `json:"author_id"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	RepostOfID *uint     `json:"repost_of_id,omitempty"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
}

// RankedItem is a feed item annotated with its computed score. The score is
// exposed for debugging and tests, not for display.
type RankedItem struct {
	FeedItem
	Score float64 `json:"score"`
}

// FeedResponse is the ordered page returned to clients.
type FeedResponse struct {
	Tab        string       `json:"tab"`
	Items      []RankedItem `json:"items"`
	NextOffset int          `json:"next_offset"`
}
