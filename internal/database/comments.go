package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

const commentColumns = `
	id, session_id, author_id, parent_id, correction_id, detection_id,
	depth, content, edited_at, edit_count, resolved, score, upvotes,
	downvotes, created_at`

// CreateComment inserts a new comment.
func (db *DB) CreateComment(ctx context.Context, c *models.Comment) error {
	query := `
		INSERT INTO comments (
			id, session_id, author_id, parent_id, correction_id, detection_id,
			depth, content, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := db.conn.ExecContext(ctx, query,
		c.ID, c.SessionID, c.AuthorID, c.ParentID, c.CorrectionID, c.DetectionID,
		c.Depth, c.Content, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment %s: %w", c.ID, err)
	}
	return nil
}

// UpdateComment updates a comment's mutable fields.
func (db *DB) UpdateComment(ctx context.Context, c *models.Comment) error {
	query := `
		UPDATE comments SET
			content = $2, edited_at = $3, edit_count = $4, resolved = $5
		WHERE id = $1
	`
	result, err := db.conn.ExecContext(ctx, query,
		c.ID, c.Content, c.EditedAt, c.EditCount, c.Resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to update comment %s: %w", c.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update comment %s: no rows affected", c.ID)
	}
	return nil
}

// GetComment retrieves a comment by id.
func (db *DB) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	c, err := scanComment(db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "comment", id)
	}
	return c, nil
}

// ListTopLevelComments returns a session's comments that belong to no
// thread: no parent and no correction.
func (db *DB) ListTopLevelComments(ctx context.Context, sessionID string) ([]*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments
		WHERE session_id = $1 AND parent_id IS NULL AND correction_id IS NULL
		ORDER BY created_at DESC`
	return db.queryComments(ctx, query, sessionID)
}

// ListCommentsByCorrection returns every comment in a correction's
// thread, nested replies included.
func (db *DB) ListCommentsByCorrection(ctx context.Context, correctionID string) ([]*models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments
		WHERE correction_id = $1 ORDER BY created_at`
	return db.queryComments(ctx, query, correctionID)
}

// ListCommentThread returns a comment and all its descendants.
func (db *DB) ListCommentThread(ctx context.Context, rootCommentID string) ([]*models.Comment, error) {
	query := `
		WITH RECURSIVE thread AS (
			SELECT ` + commentColumns + ` FROM comments WHERE id = $1
			UNION ALL
			SELECT c.id, c.session_id, c.author_id, c.parent_id, c.correction_id,
			       c.detection_id, c.depth, c.content, c.edited_at, c.edit_count,
			       c.resolved, c.score, c.upvotes, c.downvotes, c.created_at
			FROM comments c
			JOIN thread t ON c.parent_id = t.id
		)
		SELECT * FROM thread ORDER BY created_at
	`
	return db.queryComments(ctx, query, rootCommentID)
}

func (db *DB) queryComments(ctx context.Context, query string, args ...interface{}) ([]*models.Comment, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var c models.Comment
	var parentID, correctionID, detectionID sql.NullString
	var editedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.SessionID, &c.AuthorID, &parentID, &correctionID, &detectionID,
		&c.Depth, &c.Content, &editedAt, &c.EditCount, &c.Resolved,
		&c.Score, &c.Upvotes, &c.Downvotes, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	if correctionID.Valid {
		c.CorrectionID = &correctionID.String
	}
	if detectionID.Valid {
		c.DetectionID = &detectionID.String
	}
	if editedAt.Valid {
		t := editedAt.Time
		c.EditedAt = &t
	}
	return &c, nil
}
