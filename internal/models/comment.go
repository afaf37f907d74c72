package models

import "time"

// Comment is a threaded remark attached to a session, a detection, or a
// correction, or nested under a parent comment. Depth is derived from the
// parent chain, never set by the author.
type Comment struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"session_id"`
	AuthorID     string  `json:"author_id"`
	ParentID     *string `json:"parent_id,omitempty"`
	CorrectionID *string `json:"correction_id,omitempty"`
	DetectionID  *string `json:"detection_id,omitempty"`
	Depth        int     `json:"depth"`
	Content      string  `json:"content"`

	EditedAt  *time.Time `json:"edited_at,omitempty"`
	EditCount int        `json:"edit_count"`
	Resolved  bool       `json:"resolved"`

	Score     int `json:"score"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`

	CreatedAt time.Time `json:"created_at"`
}

// CommentThread is one node of an assembled reply tree. When a subtree
// roots at the max depth its children are dropped and Continue carries the
// id to fetch that subtree as its own root (depth resets to 0 there).
type CommentThread struct {
	Comment  *Comment         `json:"comment"`
	Replies  []*CommentThread `json:"replies,omitempty"`
	Continue *ContinueMarker  `json:"continue,omitempty"`
}

// ContinueMarker replaces the children of a truncated subtree.
type ContinueMarker struct {
	CommentID string `json:"comment_id"`
}
