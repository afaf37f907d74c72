package models

import "time"

// Votable item types
const (
	ItemComment    = "comment"
	ItemCorrection = "correction"
)

// Vote tracks a single user's vote on one item. One row per
// (user, item_type, item_id); casting value 0 deletes the row.
type Vote struct {
	UserID    string    `json:"user_id"`
	ItemType  string    `json:"item_type"`
	ItemID    string    `json:"item_id"`
	Value     int       `json:"value"` // -1 or +1
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoteResult is returned after a vote is applied: the server-confirmed
// counters the client replaces its prediction with.
type VoteResult struct {
	ItemType  string `json:"item_type"`
	ItemID    string `json:"item_id"`
	Score     int    `json:"score"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	UserVote  int    `json:"user_vote"`
}
