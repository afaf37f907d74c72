package database

import (
	"context"
	"fmt"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

// UpsertSession creates a session or refreshes its metadata. The
// detections consumer calls this when the engine emits a batch for a
// session this service has not seen yet.
func (db *DB) UpsertSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, symbol, timeframe, name, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			symbol = CASE WHEN sessions.symbol = '' THEN EXCLUDED.symbol ELSE sessions.symbol END,
			timeframe = CASE WHEN sessions.timeframe = '' THEN EXCLUDED.timeframe ELSE sessions.timeframe END
	`
	_, err := db.conn.ExecContext(ctx, query, s.ID, s.Symbol, s.Timeframe, s.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, symbol, timeframe, name, created_at FROM sessions WHERE id = $1`
	var s models.Session
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Symbol, &s.Timeframe, &s.Name, &s.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return &s, nil
}
