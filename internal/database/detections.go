package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

const detectionColumns = `
	id, session_id, candle_index, candle_time, price, detection_type,
	structure, status, confidence, reasoning, source, created_at, updated_at`

// CreateDetection inserts a new detection.
func (db *DB) CreateDetection(ctx context.Context, d *models.Detection) error {
	query := `
		INSERT INTO detections (
			id, session_id, candle_index, candle_time, price, detection_type,
			structure, status, confidence, reasoning, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := db.conn.ExecContext(ctx, query,
		d.ID, d.SessionID, d.CandleIndex, d.CandleTime, d.Price, d.DetectionType,
		d.Structure, d.Status, d.Confidence, d.Reasoning, d.Source, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create detection %s: %w", d.ID, err)
	}
	return nil
}

// UpsertEngineDetection inserts an engine-sourced detection, refreshing
// confidence and reasoning when the engine re-emits the same candle and
// type. Human-made status changes are never overwritten.
func (db *DB) UpsertEngineDetection(ctx context.Context, d *models.Detection) error {
	query := `
		INSERT INTO detections (
			id, session_id, candle_index, candle_time, price, detection_type,
			structure, status, confidence, reasoning, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (session_id, candle_index, detection_type) WHERE source = 'engine'
		DO UPDATE SET
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			updated_at = NOW()
	`
	_, err := db.conn.ExecContext(ctx, query,
		d.ID, d.SessionID, d.CandleIndex, d.CandleTime, d.Price, d.DetectionType,
		d.Structure, d.Status, d.Confidence, d.Reasoning, d.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert detection %s: %w", d.ID, err)
	}
	return nil
}

// GetDetection retrieves a detection by id.
func (db *DB) GetDetection(ctx context.Context, id string) (*models.Detection, error) {
	query := `SELECT ` + detectionColumns + ` FROM detections WHERE id = $1`

	d, err := scanDetection(db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "detection", id)
	}
	return d, nil
}

// ListDetections returns a session's detections, optionally filtered by
// status, ordered by candle index.
func (db *DB) ListDetections(ctx context.Context, sessionID, status string) ([]*models.Detection, error) {
	query := `SELECT ` + detectionColumns + ` FROM detections WHERE session_id = $1`
	args := []interface{}{sessionID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY candle_index, created_at`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	var detections []*models.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

// DetectionExists checks if a detection exists.
func (db *DB) DetectionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM detections WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check detection existence: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDetection(row rowScanner) (*models.Detection, error) {
	var d models.Detection
	var structure, reasoning sql.NullString
	var confidence sql.NullFloat64
	err := row.Scan(
		&d.ID, &d.SessionID, &d.CandleIndex, &d.CandleTime, &d.Price, &d.DetectionType,
		&structure, &d.Status, &confidence, &reasoning, &d.Source, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Structure = structure.String
	d.Reasoning = reasoning.String
	if confidence.Valid {
		d.Confidence = confidence.Float64
	}
	return &d, nil
}

func updateDetectionTx(ctx context.Context, tx *sql.Tx, d *models.Detection) error {
	query := `
		UPDATE detections SET
			candle_index = $2, candle_time = $3, price = $4, detection_type = $5,
			structure = $6, status = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		d.ID, d.CandleIndex, d.CandleTime, d.Price, d.DetectionType,
		d.Structure, d.Status, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update detection %s: %w", d.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update detection %s: no rows affected", d.ID)
	}
	return nil
}

func createDetectionTx(ctx context.Context, tx *sql.Tx, d *models.Detection) error {
	query := `
		INSERT INTO detections (
			id, session_id, candle_index, candle_time, price, detection_type,
			structure, status, confidence, reasoning, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := tx.ExecContext(ctx, query,
		d.ID, d.SessionID, d.CandleIndex, d.CandleTime, d.Price, d.DetectionType,
		d.Structure, d.Status, d.Confidence, d.Reasoning, d.Source, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create detection %s: %w", d.ID, err)
	}
	return nil
}
