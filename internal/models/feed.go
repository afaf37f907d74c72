package models

import "time"

// Feed item types
const (
	FeedItemCorrection = "correction"
	FeedItemComment    = "comment"
)

// Sort modes for the unified feed
const (
	SortNew           = "new"
	SortTop           = "top"
	SortBest          = "best"
	SortControversial = "controversial"
)

// FeedItem is one entry of the unified feed: either a correction with its
// replies or a top-level comment with its replies. Corrections and
// top-level comments compete in one global order.
type FeedItem struct {
	Type       string           `json:"type"`
	Correction *Correction      `json:"correction,omitempty"`
	Comment    *Comment         `json:"comment,omitempty"`
	Replies    []*CommentThread `json:"replies,omitempty"`
}

// ID returns the underlying item's id.
func (f *FeedItem) ID() string {
	if f.Type == FeedItemCorrection {
		return f.Correction.ID
	}
	return f.Comment.ID
}

// FeedPage is one page of the merged, ordered feed.
type FeedPage struct {
	SessionID string      `json:"session_id"`
	SortMode  string      `json:"sort_mode"`
	Page      int         `json:"page"`
	PageSize  int         `json:"page_size"`
	Total     int         `json:"total"`
	Items     []*FeedItem `json:"items"`
}

// Rankable is the shape the ranking engine orders: cached vote counters
// plus creation time, with the item id as the final tie-break.
type Rankable struct {
	ItemID    string
	Score     int
	Upvotes   int
	Downvotes int
	CreatedAt time.Time
}
