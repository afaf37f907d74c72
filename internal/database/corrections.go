package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trogers1052/pattern-review-service/internal/models"
	"github.com/trogers1052/pattern-review-service/internal/review"
)

const correctionColumns = `
	id, session_id, detection_id, author_id, type, original, corrected,
	reason, prior_status, spawned_detection_id, score, upvotes, downvotes,
	status, created_at`

// GetCorrection retrieves a correction by id.
func (db *DB) GetCorrection(ctx context.Context, id string) (*models.Correction, error) {
	query := `SELECT ` + correctionColumns + ` FROM corrections WHERE id = $1`
	c, err := scanCorrection(db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "correction", id)
	}
	return c, nil
}

// ListCorrections returns all corrections for a session, newest first.
func (db *DB) ListCorrections(ctx context.Context, sessionID string) ([]*models.Correction, error) {
	query := `SELECT ` + correctionColumns + ` FROM corrections
		WHERE session_id = $1 ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer rows.Close()

	var corrections []*models.Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}

// CountCorrectionsForDetection counts corrections targeting a detection.
func (db *DB) CountCorrectionsForDetection(ctx context.Context, detectionID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM corrections WHERE detection_id = $1`, detectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return n, nil
}

// CorrectionSummary returns aggregate counts by status and type.
func (db *DB) CorrectionSummary(ctx context.Context, sessionID string) (*models.CorrectionSummary, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'applied') AS applied,
			COUNT(*) FILTER (WHERE status = 'disputed') AS disputed,
			COUNT(*) FILTER (WHERE type = 'add') AS adds,
			COUNT(*) FILTER (WHERE type = 'delete') AS deletes,
			COUNT(*) FILTER (WHERE type = 'move') AS moves,
			COUNT(*) FILTER (WHERE type IN ('confirm', 'unconfirm')) AS confirms,
			COUNT(*) FILTER (WHERE type = 'modify') AS modifies
		FROM corrections
		WHERE session_id = $1
	`
	var s models.CorrectionSummary
	err := db.conn.QueryRowContext(ctx, query, sessionID).Scan(
		&s.Total, &s.Applied, &s.Disputed, &s.Adds, &s.Deletes, &s.Moves, &s.Confirms, &s.Modifies,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get correction summary: %w", err)
	}
	return &s, nil
}

// ApplyCorrectionMutation persists one state-machine step atomically:
// the correction row plus any detection created, updated, removed or
// correction marked disputed.
func (db *DB) ApplyCorrectionMutation(ctx context.Context, m *review.CorrectionMutation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if m.Correction != nil {
		if err := insertCorrectionTx(ctx, tx, m.Correction); err != nil {
			return err
		}
	}
	if m.CreateDetection != nil {
		if err := createDetectionTx(ctx, tx, m.CreateDetection); err != nil {
			return err
		}
	}
	if m.UpdateDetection != nil {
		if err := updateDetectionTx(ctx, tx, m.UpdateDetection); err != nil {
			return err
		}
	}
	if m.DeleteDetectionID != "" {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM detections WHERE id = $1`, m.DeleteDetectionID); err != nil {
			return fmt.Errorf("failed to delete detection %s: %w", m.DeleteDetectionID, err)
		}
	}
	if m.MarkDisputedID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE corrections SET status = 'disputed' WHERE id = $1`, m.MarkDisputedID); err != nil {
			return fmt.Errorf("failed to mark correction %s disputed: %w", m.MarkDisputedID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit correction mutation: %w", err)
	}
	return nil
}

func insertCorrectionTx(ctx context.Context, tx *sql.Tx, c *models.Correction) error {
	original, err := marshalPoint(c.Original)
	if err != nil {
		return err
	}
	corrected, err := marshalPoint(c.Corrected)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO corrections (
			id, session_id, detection_id, author_id, type, original, corrected,
			reason, prior_status, spawned_detection_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.ExecContext(ctx, query,
		c.ID, c.SessionID, c.DetectionID, c.AuthorID, c.Type, original, corrected,
		nullString(c.Reason), nullString(c.PriorStatus), c.SpawnedDetectionID,
		c.Status, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert correction %s: %w", c.ID, err)
	}
	return nil
}

func scanCorrection(row rowScanner) (*models.Correction, error) {
	var c models.Correction
	var detectionID, spawnedID, reason, priorStatus sql.NullString
	var original, corrected []byte
	err := row.Scan(
		&c.ID, &c.SessionID, &detectionID, &c.AuthorID, &c.Type, &original, &corrected,
		&reason, &priorStatus, &spawnedID, &c.Score, &c.Upvotes, &c.Downvotes,
		&c.Status, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if detectionID.Valid {
		c.DetectionID = &detectionID.String
	}
	if spawnedID.Valid {
		c.SpawnedDetectionID = &spawnedID.String
	}
	c.Reason = reason.String
	c.PriorStatus = priorStatus.String
	if c.Original, err = unmarshalPoint(original); err != nil {
		return nil, err
	}
	if c.Corrected, err = unmarshalPoint(corrected); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalPoint(p *models.CandlePoint) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candle point: %w", err)
	}
	return data, nil
}

func unmarshalPoint(data []byte) (*models.CandlePoint, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p models.CandlePoint
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candle point: %w", err)
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
