package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trogers1052/pattern-review-service/internal/models"
	"github.com/trogers1052/pattern-review-service/internal/review"
)

// ApplyVote upserts (or deletes, for value 0) the user's vote row and
// adjusts the item's cached score and counters in one transaction. The
// existing row is read FOR UPDATE so concurrent votes on the same item
// serialize at the database even without the service-level lock.
func (db *DB) ApplyVote(ctx context.Context, userID, itemType, itemID string, value int) (*models.VoteResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prev int
	err = tx.QueryRowContext(ctx, `
		SELECT value FROM votes
		WHERE user_id = $1 AND item_type = $2 AND item_id = $3
		FOR UPDATE
	`, userID, itemType, itemID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read existing vote: %w", err)
	}

	delta := review.TransitionVote(prev, value)

	if value == 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM votes WHERE user_id = $1 AND item_type = $2 AND item_id = $3
		`, userID, itemType, itemID); err != nil {
			return nil, fmt.Errorf("failed to remove vote: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO votes (user_id, item_type, item_id, value, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (user_id, item_type, item_id)
			DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, userID, itemType, itemID, value); err != nil {
			return nil, fmt.Errorf("failed to upsert vote: %w", err)
		}
	}

	table, err := voteTable(itemType)
	if err != nil {
		return nil, err
	}

	result := &models.VoteResult{ItemType: itemType, ItemID: itemID, UserVote: value}
	err = tx.QueryRowContext(ctx, `
		UPDATE `+table+` SET
			score = score + $2,
			upvotes = upvotes + $3,
			downvotes = downvotes + $4
		WHERE id = $1
		RETURNING score, upvotes, downvotes
	`, itemID, delta.Score, delta.Upvotes, delta.Downvotes).Scan(
		&result.Score, &result.Upvotes, &result.Downvotes,
	)
	if err != nil {
		return nil, notFound(err, itemType, itemID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vote: %w", err)
	}
	return result, nil
}

// GetUserVote returns the user's current vote on an item, 0 if none.
func (db *DB) GetUserVote(ctx context.Context, userID, itemType, itemID string) (int, error) {
	var value int
	err := db.conn.QueryRowContext(ctx, `
		SELECT value FROM votes
		WHERE user_id = $1 AND item_type = $2 AND item_id = $3
	`, userID, itemType, itemID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user vote: %w", err)
	}
	return value, nil
}

func voteTable(itemType string) (string, error) {
	switch itemType {
	case models.ItemComment:
		return "comments", nil
	case models.ItemCorrection:
		return "corrections", nil
	default:
		return "", fmt.Errorf("%w: unknown item type %q", review.ErrInvalidPayload, itemType)
	}
}
