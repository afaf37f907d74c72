package review

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/trogers1052/pattern-review-service/internal/models"
	"github.com/trogers1052/pattern-review-service/internal/ranking"
	"github.com/trogers1052/pattern-review-service/internal/thread"
)

// FeedCache caches assembled feed pages for a short TTL. A nil cache
// disables caching; cache failures are logged and ignored.
type FeedCache interface {
	GetFeedPage(ctx context.Context, key string) (*models.FeedPage, error)
	SetFeedPage(ctx context.Context, key string, page *models.FeedPage, ttl time.Duration) error
}

// FeedQuery selects one page of the unified feed.
type FeedQuery struct {
	SessionID      string
	SortMode       string
	Page           int
	PageSize       int
	IncludeReplies bool
}

// GetFeed merges a session's corrections and top-level comments into one
// ranked, paginated list. Both item kinds compete in a single global
// order under the requested sort mode; each page item carries its reply
// subtree, always ordered by "best" regardless of the page's sort.
func (s *Service) GetFeed(ctx context.Context, q FeedQuery) (*models.FeedPage, error) {
	if q.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidPayload)
	}
	if q.SortMode == "" {
		q.SortMode = models.SortNew
	}
	if !ranking.Valid(q.SortMode) {
		return nil, fmt.Errorf("%w: unknown sort mode %q", ErrInvalidPayload, q.SortMode)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = s.opts.PageSize
	}

	cacheKey := fmt.Sprintf("feed:%s:%s:%d:%d:%t",
		q.SessionID, q.SortMode, q.Page, q.PageSize, q.IncludeReplies)
	if s.cache != nil {
		if page, err := s.cache.GetFeedPage(ctx, cacheKey); err == nil && page != nil {
			return page, nil
		}
	}

	corrections, err := s.store.ListCorrections(ctx, q.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load corrections: %w", err)
	}
	topLevel, err := s.store.ListTopLevelComments(ctx, q.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}

	rankables := make([]*models.Rankable, 0, len(corrections)+len(topLevel))
	byID := make(map[string]*models.FeedItem, len(corrections)+len(topLevel))
	for _, c := range corrections {
		rankables = append(rankables, &models.Rankable{
			ItemID: c.ID, Score: c.Score, Upvotes: c.Upvotes,
			Downvotes: c.Downvotes, CreatedAt: c.CreatedAt,
		})
		byID[c.ID] = &models.FeedItem{Type: models.FeedItemCorrection, Correction: c}
	}
	for _, c := range topLevel {
		rankables = append(rankables, &models.Rankable{
			ItemID: c.ID, Score: c.Score, Upvotes: c.Upvotes,
			Downvotes: c.Downvotes, CreatedAt: c.CreatedAt,
		})
		byID[c.ID] = &models.FeedItem{Type: models.FeedItemComment, Comment: c}
	}

	ranking.Sort(rankables, q.SortMode)

	start := (q.Page - 1) * q.PageSize
	end := start + q.PageSize
	if start > len(rankables) {
		start = len(rankables)
	}
	if end > len(rankables) {
		end = len(rankables)
	}

	items := make([]*models.FeedItem, 0, end-start)
	for _, r := range rankables[start:end] {
		item := byID[r.ItemID]
		if q.IncludeReplies {
			if err := s.attachReplies(ctx, item); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}

	page := &models.FeedPage{
		SessionID: q.SessionID,
		SortMode:  q.SortMode,
		Page:      q.Page,
		PageSize:  q.PageSize,
		Total:     len(rankables),
		Items:     items,
	}

	if s.cache != nil {
		if err := s.cache.SetFeedPage(ctx, cacheKey, page, s.opts.FeedCacheTTL); err != nil {
			log.Printf("Failed to cache feed page %s: %v", cacheKey, err)
		}
	}
	return page, nil
}

// GetThread returns the reply tree rooted at one comment, for expanding a
// continue-thread marker. Depth restarts at 0 relative to the new root.
func (s *Service) GetThread(ctx context.Context, rootCommentID string) (*models.CommentThread, error) {
	if _, err := s.store.GetComment(ctx, rootCommentID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListCommentThread(ctx, rootCommentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", rootCommentID, err)
	}
	nodes := thread.BuildTree(comments, s.opts.MaxThreadDepth)
	for _, n := range nodes {
		if n.Comment.ID == rootCommentID {
			return n, nil
		}
	}
	return nil, fmt.Errorf("thread root %s: %w", rootCommentID, ErrNotFound)
}

func (s *Service) attachReplies(ctx context.Context, item *models.FeedItem) error {
	var comments []*models.Comment
	var err error
	switch item.Type {
	case models.FeedItemCorrection:
		comments, err = s.store.ListCommentsByCorrection(ctx, item.Correction.ID)
	case models.FeedItemComment:
		comments, err = s.store.ListCommentThread(ctx, item.Comment.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load replies for %s: %w", item.ID(), err)
	}

	nodes := thread.BuildTree(comments, s.opts.MaxThreadDepth)
	if item.Type == models.FeedItemComment {
		// The item itself roots the thread; keep only its children.
		for _, n := range nodes {
			if n.Comment.ID == item.Comment.ID {
				item.Replies = n.Replies
				return nil
			}
		}
		return nil
	}
	item.Replies = nodes
	return nil
}
