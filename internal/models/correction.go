package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Correction types
const (
	CorrectionAdd       = "add"
	CorrectionDelete    = "delete"
	CorrectionMove      = "move"
	CorrectionConfirm   = "confirm"
	CorrectionUnconfirm = "unconfirm"
	CorrectionModify    = "modify"
)

// Correction statuses
const (
	CorrectionPending  = "pending"
	CorrectionApplied  = "applied"
	CorrectionDisputed = "disputed"
)

// CandlePoint captures the coordinates of a detection at one point in its
// history. Corrections store the original and corrected point so a move or
// delete is a single reversible unit.
type CandlePoint struct {
	CandleIndex   int             `json:"candle_index"`
	CandleTime    time.Time       `json:"candle_time"`
	Price         decimal.Decimal `json:"price"`
	DetectionType string          `json:"detection_type,omitempty"`
	Structure     string          `json:"structure,omitempty"`
}

// Correction is an immutable, author-attributed edit proposal against a
// detection (or a free-standing addition). Corrections are append-only;
// undo creates compensating state, it never rewrites history.
type Correction struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id"`
	DetectionID *string `json:"detection_id,omitempty"`
	AuthorID    string  `json:"author_id"`
	Type        string  `json:"type"`

	Original  *CandlePoint `json:"original,omitempty"`
	Corrected *CandlePoint `json:"corrected,omitempty"`
	Reason    string       `json:"reason,omitempty"`

	// PriorStatus is the detection status before this correction applied,
	// kept so undo can restore it. SpawnedDetectionID is set for add/move.
	PriorStatus        string  `json:"prior_status,omitempty"`
	SpawnedDetectionID *string `json:"spawned_detection_id,omitempty"`

	Score     int    `json:"score"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	Status    string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
}

// CorrectionSummary holds aggregate counts of corrections for a session.
type CorrectionSummary struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Disputed  int `json:"disputed"`
	Adds      int `json:"adds"`
	Deletes   int `json:"deletes"`
	Moves     int `json:"moves"`
	Confirms  int `json:"confirms"`
	Modifies  int `json:"modifies"`
}
