package models

import "time"

// Activity event types published on the review.activity topic and the
// session's real-time channel.
const (
	EventCorrectionApplied = "CORRECTION_APPLIED"
	EventCorrectionUndone  = "CORRECTION_UNDONE"
	EventCommentPosted     = "COMMENT_POSTED"
	EventCommentEdited     = "COMMENT_EDITED"
	EventCommentResolved   = "COMMENT_RESOLVED"
	EventVoteChanged       = "VOTE_CHANGED"
	EventDetectionChanged  = "DETECTION_CHANGED"
)

// ActivityEvent is the envelope for feed-visible activity.
type ActivityEvent struct {
	EventType     string       `json:"event_type"`
	Source        string       `json:"source"`
	SchemaVersion string       `json:"schema_version"`
	Timestamp     time.Time    `json:"timestamp"`
	Data          ActivityData `json:"data"`
}

// ActivityData carries the entities touched by one activity event. Only
// the fields relevant to the event type are set.
type ActivityData struct {
	SessionID  string      `json:"session_id"`
	ActorID    string      `json:"actor_id,omitempty"`
	Detection  *Detection  `json:"detection,omitempty"`
	Correction *Correction `json:"correction,omitempty"`
	Comment    *Comment    `json:"comment,omitempty"`
	Vote       *VoteResult `json:"vote,omitempty"`
}

// PatternEvent is a message from the pattern engine on the detections
// topic. Numeric fields arrive as strings and are parsed on ingest.
type PatternEvent struct {
	EventType     string           `json:"event_type"`
	Source        string           `json:"source"`
	SchemaVersion string           `json:"schema_version,omitempty"`
	Timestamp     string           `json:"timestamp"`
	Data          PatternEventData `json:"data"`
}

// PatternEventData holds the data for the pattern event types.
type PatternEventData struct {
	SessionID string `json:"session_id"`
	Symbol    string `json:"symbol,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`

	// For DETECTION_BATCH events
	TotalCount int                `json:"total_count,omitempty"`
	Detections []PatternDetection `json:"detections,omitempty"`

	// For PATTERN_DETECTED events
	CandleIndex   int    `json:"candle_index,omitempty"`
	CandleTime    string `json:"candle_time,omitempty"`
	Price         string `json:"price,omitempty"`
	DetectionType string `json:"detection_type,omitempty"`
	Structure     string `json:"structure,omitempty"`
	Confidence    string `json:"confidence,omitempty"`
	Reasoning     string `json:"reasoning,omitempty"`
}

// PatternDetection represents a single detection in a batch event.
type PatternDetection struct {
	CandleIndex   int    `json:"candle_index"`
	CandleTime    string `json:"candle_time"`
	Price         string `json:"price"`
	DetectionType string `json:"detection_type"`
	Structure     string `json:"structure,omitempty"`
	Confidence    string `json:"confidence,omitempty"`
	Reasoning     string `json:"reasoning,omitempty"`
}

// PresenceEvent is a fire-and-forget cursor/presence broadcast. Lost
// messages are tolerated; last value wins per user.
type PresenceEvent struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	CandleIndex int       `json:"candle_index"`
	Price       string    `json:"price,omitempty"`
	Tool        string    `json:"tool,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}
