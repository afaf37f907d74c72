package review

import (
	"context"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

// Store defines the persistence operations the review core needs. The
// postgres implementation lives in internal/database; tests use an
// in-memory fake. Implementations must return ErrNotFound (wrapped is
// fine) for missing rows, and apply CorrectionMutation and ApplyVote
// atomically.
type Store interface {
	// Detections
	GetDetection(ctx context.Context, id string) (*models.Detection, error)
	ListDetections(ctx context.Context, sessionID, status string) ([]*models.Detection, error)

	// Corrections
	GetCorrection(ctx context.Context, id string) (*models.Correction, error)
	ListCorrections(ctx context.Context, sessionID string) ([]*models.Correction, error)
	CountCorrectionsForDetection(ctx context.Context, detectionID string) (int, error)
	CorrectionSummary(ctx context.Context, sessionID string) (*models.CorrectionSummary, error)

	// ApplyCorrectionMutation persists one correction outcome: the
	// appended correction row plus any detection created, updated,
	// deleted or correction marked disputed — all in one transaction.
	ApplyCorrectionMutation(ctx context.Context, m *CorrectionMutation) error

	// Comments
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	CreateComment(ctx context.Context, c *models.Comment) error
	UpdateComment(ctx context.Context, c *models.Comment) error
	ListTopLevelComments(ctx context.Context, sessionID string) ([]*models.Comment, error)
	ListCommentsByCorrection(ctx context.Context, correctionID string) ([]*models.Comment, error)
	ListCommentThread(ctx context.Context, rootCommentID string) ([]*models.Comment, error)

	// Votes. ApplyVote upserts (or deletes, for value 0) the vote row and
	// adjusts the item's cached score and counters in one transaction,
	// returning the confirmed counters.
	ApplyVote(ctx context.Context, userID, itemType, itemID string, value int) (*models.VoteResult, error)
}

// CorrectionMutation bundles the persistent effects of one state-machine
// step. Correction is always appended (or, for undo, left in place while
// MarkDisputedID flags it); the detection fields are set per correction
// type.
type CorrectionMutation struct {
	Correction        *models.Correction
	CreateDetection   *models.Detection
	UpdateDetection   *models.Detection
	DeleteDetectionID string
	MarkDisputedID    string
}

// EventSink receives feed-visible activity events. Publish failures are
// non-fatal: the core logs and drops them.
type EventSink interface {
	PublishActivity(ctx context.Context, event *models.ActivityEvent) error
}
