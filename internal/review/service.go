// Package review implements the detection/correction state machine, the
// vote ledger semantics and the unified feed assembly on top of a
// transactional store.
package review

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/pattern-review-service/internal/models"
)

const (
	eventSource        = "pattern-review-service"
	eventSchemaVersion = "1.0"
)

// Options tunes feed assembly.
type Options struct {
	MaxThreadDepth int
	PageSize       int
	FeedCacheTTL   time.Duration
}

// Service coordinates all review mutations. Mutations on the same entity
// are serialized through per-entity locks; different entities proceed in
// parallel.
type Service struct {
	store Store
	sinks []EventSink
	cache FeedCache
	locks *entityLocks
	opts  Options
}

// NewService creates a Service. cache may be nil; sinks may be empty.
func NewService(store Store, cache FeedCache, opts Options, sinks ...EventSink) *Service {
	if opts.MaxThreadDepth <= 0 {
		opts.MaxThreadDepth = 5
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	return &Service{
		store: store,
		sinks: sinks,
		cache: cache,
		locks: newEntityLocks(),
		opts:  opts,
	}
}

// CastVote records one signed vote per (user, item) pair and returns the
// confirmed counters. Casting the same value twice is a no-op; the
// opposite value flips the score by 2; value 0 removes the vote. Votes on
// the same item are serialized so the final score is the algebraic sum of
// each user's final vote, order-independent across users.
func (s *Service) CastVote(ctx context.Context, userID, itemType, itemID string, value int) (*models.VoteResult, error) {
	if value < -1 || value > 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVoteValue, value)
	}
	if itemType != models.ItemComment && itemType != models.ItemCorrection {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrInvalidPayload, itemType)
	}
	if userID == "" || itemID == "" {
		return nil, fmt.Errorf("%w: user and item ids are required", ErrInvalidPayload)
	}

	release := s.locks.acquire("vote:" + itemType + ":" + itemID)
	defer release()

	result, err := s.store.ApplyVote(ctx, userID, itemType, itemID, value)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, models.EventVoteChanged, models.ActivityData{
		ActorID: userID,
		Vote:    result,
	})
	return result, nil
}

// ApplyCorrectionRequest describes one edit proposal.
type ApplyCorrectionRequest struct {
	SessionID   string
	DetectionID *string
	Type        string
	Corrected   *models.CandlePoint
	Reason      string
	AuthorID    string
}

// ApplyCorrection runs one step of the detection state machine:
//
//	pending -> confirmed | rejected | moved
//	confirmed -> pending (unconfirm)
//
// A move marks the original detection moved and spawns a new pending
// detection at the corrected coordinates; the correction stores both
// points so the move is a single reversible unit. Every successful call
// appends exactly one applied correction row and emits one activity event.
func (s *Service) ApplyCorrection(ctx context.Context, req ApplyCorrectionRequest) (*models.Correction, error) {
	if req.AuthorID == "" || req.SessionID == "" {
		return nil, fmt.Errorf("%w: session and author are required", ErrInvalidPayload)
	}

	corr := &models.Correction{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		AuthorID:  req.AuthorID,
		Type:      req.Type,
		Corrected: req.Corrected,
		Reason:    req.Reason,
		Status:    models.CorrectionApplied,
		CreatedAt: time.Now().UTC(),
	}

	var mutation *CorrectionMutation
	var err error
	switch req.Type {
	case models.CorrectionAdd:
		mutation, err = s.applyAdd(corr, req)
	case models.CorrectionDelete, models.CorrectionMove, models.CorrectionConfirm,
		models.CorrectionUnconfirm, models.CorrectionModify:
		if req.DetectionID == nil || *req.DetectionID == "" {
			return nil, fmt.Errorf("%w: %s requires a detection id", ErrInvalidPayload, req.Type)
		}
		release := s.locks.acquire("detection:" + *req.DetectionID)
		defer release()
		mutation, err = s.applyToDetection(ctx, corr, req)
	default:
		return nil, fmt.Errorf("%w: unknown correction type %q", ErrInvalidPayload, req.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.ApplyCorrectionMutation(ctx, mutation); err != nil {
		return nil, fmt.Errorf("failed to apply %s correction: %w", req.Type, err)
	}

	data := models.ActivityData{
		SessionID:  req.SessionID,
		ActorID:    req.AuthorID,
		Correction: corr,
	}
	if mutation.CreateDetection != nil {
		data.Detection = mutation.CreateDetection
	} else if mutation.UpdateDetection != nil {
		data.Detection = mutation.UpdateDetection
	}
	s.emit(ctx, models.EventCorrectionApplied, data)

	return corr, nil
}

func (s *Service) applyAdd(corr *models.Correction, req ApplyCorrectionRequest) (*CorrectionMutation, error) {
	if err := validatePoint(req.Corrected); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	spawned := &models.Detection{
		ID:            uuid.NewString(),
		SessionID:     req.SessionID,
		CandleIndex:   req.Corrected.CandleIndex,
		CandleTime:    req.Corrected.CandleTime,
		Price:         req.Corrected.Price,
		DetectionType: req.Corrected.DetectionType,
		Structure:     req.Corrected.Structure,
		Status:        models.DetectionPending,
		Source:        models.SourceManual,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	corr.SpawnedDetectionID = &spawned.ID
	return &CorrectionMutation{Correction: corr, CreateDetection: spawned}, nil
}

func (s *Service) applyToDetection(ctx context.Context, corr *models.Correction, req ApplyCorrectionRequest) (*CorrectionMutation, error) {
	det, err := s.store.GetDetection(ctx, *req.DetectionID)
	if err != nil {
		return nil, err
	}

	if det.SessionID != req.SessionID {
		return nil, fmt.Errorf("%w: detection %s belongs to another session", ErrInvalidPayload, det.ID)
	}

	corr.DetectionID = &det.ID
	corr.PriorStatus = det.Status
	corr.Original = pointOf(det)

	switch req.Type {
	case models.CorrectionDelete:
		switch det.Status {
		case models.DetectionRejected:
			return nil, fmt.Errorf("%w: detection %s is already rejected", ErrAlreadyInState, det.ID)
		case models.DetectionMoved:
			return nil, fmt.Errorf("%w: detection %s was moved", ErrConflictingEdits, det.ID)
		}
		det.Status = models.DetectionRejected

	case models.CorrectionMove:
		if det.Status == models.DetectionMoved || det.Status == models.DetectionRejected {
			return nil, fmt.Errorf("%w: cannot move %s detection %s", ErrConflictingEdits, det.Status, det.ID)
		}
		if err := validatePoint(req.Corrected); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		spawned := &models.Detection{
			ID:            uuid.NewString(),
			SessionID:     det.SessionID,
			CandleIndex:   req.Corrected.CandleIndex,
			CandleTime:    req.Corrected.CandleTime,
			Price:         req.Corrected.Price,
			DetectionType: det.DetectionType,
			Structure:     det.Structure,
			Confidence:    det.Confidence,
			Status:        models.DetectionPending,
			Source:        models.SourceManual,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.Corrected.DetectionType != "" {
			spawned.DetectionType = req.Corrected.DetectionType
		}
		if req.Corrected.Structure != "" {
			spawned.Structure = req.Corrected.Structure
		}
		det.Status = models.DetectionMoved
		corr.SpawnedDetectionID = &spawned.ID
		det.UpdatedAt = now
		return &CorrectionMutation{Correction: corr, UpdateDetection: det, CreateDetection: spawned}, nil

	case models.CorrectionConfirm:
		if det.Status == models.DetectionConfirmed {
			return nil, fmt.Errorf("%w: detection %s is already confirmed", ErrAlreadyInState, det.ID)
		}
		if det.Status != models.DetectionPending {
			return nil, fmt.Errorf("%w: cannot confirm %s detection %s", ErrConflictingEdits, det.Status, det.ID)
		}
		det.Status = models.DetectionConfirmed

	case models.CorrectionUnconfirm:
		if det.Status != models.DetectionConfirmed {
			return nil, fmt.Errorf("%w: detection %s is not confirmed", ErrAlreadyInState, det.ID)
		}
		det.Status = models.DetectionPending

	case models.CorrectionModify:
		if req.Corrected == nil {
			return nil, fmt.Errorf("%w: modify requires corrected fields", ErrInvalidPayload)
		}
		if det.Status == models.DetectionMoved || det.Status == models.DetectionRejected {
			return nil, fmt.Errorf("%w: cannot modify %s detection %s", ErrConflictingEdits, det.Status, det.ID)
		}
		if req.Corrected.DetectionType != "" {
			det.DetectionType = req.Corrected.DetectionType
		}
		if req.Corrected.Structure != "" {
			det.Structure = req.Corrected.Structure
		}
		if !req.Corrected.Price.IsZero() {
			det.Price = req.Corrected.Price
		}
	}

	det.UpdatedAt = time.Now().UTC()
	return &CorrectionMutation{Correction: corr, UpdateDetection: det}, nil
}

// UndoCorrection reverses the transition recorded on a correction. Only
// the author may undo. The original correction row is preserved and
// marked disputed; a compensating activity event is emitted so the feed
// shows both the action and its reversal.
func (s *Service) UndoCorrection(ctx context.Context, correctionID, requesterID string) (*models.Correction, error) {
	corr, err := s.store.GetCorrection(ctx, correctionID)
	if err != nil {
		return nil, err
	}
	if corr.AuthorID != requesterID {
		return nil, fmt.Errorf("%w: only the correction author may undo", ErrForbidden)
	}
	if corr.Status == models.CorrectionDisputed {
		return nil, fmt.Errorf("%w: correction %s is already undone", ErrAlreadyInState, corr.ID)
	}

	// A move touches two detections; hold both locks, in sorted order so
	// concurrent undos cannot deadlock against each other.
	keys := make([]string, 0, 2)
	if corr.DetectionID != nil {
		keys = append(keys, "detection:"+*corr.DetectionID)
	}
	if corr.SpawnedDetectionID != nil {
		keys = append(keys, "detection:"+*corr.SpawnedDetectionID)
	}
	if len(keys) == 0 {
		keys = append(keys, "detection:"+corr.SessionID)
	}
	sort.Strings(keys)
	for _, key := range keys {
		release := s.locks.acquire(key)
		defer release()
	}

	mutation := &CorrectionMutation{MarkDisputedID: corr.ID}

	// Spawned detections (add, move) may only be removed while they have
	// no corrections of their own; dependent history is never discarded.
	if corr.SpawnedDetectionID != nil {
		n, err := s.store.CountCorrectionsForDetection(ctx, *corr.SpawnedDetectionID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: detection %s has %d later corrections",
				ErrConflictingEdits, *corr.SpawnedDetectionID, n)
		}
		mutation.DeleteDetectionID = *corr.SpawnedDetectionID
	}

	if corr.DetectionID != nil {
		det, err := s.store.GetDetection(ctx, *corr.DetectionID)
		if err != nil {
			return nil, err
		}
		// Only the detection's latest transition may be reversed. If a
		// later correction moved the detection on, restoring PriorStatus
		// would silently discard that transition.
		if det.Status != statusProducedBy(corr) {
			return nil, fmt.Errorf("%w: detection %s has a later transition (now %s)",
				ErrConflictingEdits, det.ID, det.Status)
		}
		if corr.Type == models.CorrectionModify && !modifyStillCurrent(det, corr.Corrected) {
			return nil, fmt.Errorf("%w: detection %s was modified again", ErrConflictingEdits, det.ID)
		}
		det.Status = corr.PriorStatus
		if corr.Type == models.CorrectionModify && corr.Original != nil {
			det.CandleIndex = corr.Original.CandleIndex
			det.CandleTime = corr.Original.CandleTime
			det.Price = corr.Original.Price
			det.DetectionType = corr.Original.DetectionType
			det.Structure = corr.Original.Structure
		}
		det.UpdatedAt = time.Now().UTC()
		mutation.UpdateDetection = det
	}

	if err := s.store.ApplyCorrectionMutation(ctx, mutation); err != nil {
		return nil, fmt.Errorf("failed to undo correction %s: %w", corr.ID, err)
	}

	corr.Status = models.CorrectionDisputed
	s.emit(ctx, models.EventCorrectionUndone, models.ActivityData{
		SessionID:  corr.SessionID,
		ActorID:    requesterID,
		Correction: corr,
		Detection:  mutation.UpdateDetection,
	})
	return corr, nil
}

// PostCommentRequest describes one new comment.
type PostCommentRequest struct {
	SessionID    string
	AuthorID     string
	Content      string
	ParentID     *string
	CorrectionID *string
	DetectionID  *string
}

// PostComment creates a comment. Depth is derived from the parent chain
// and a parent must belong to the same session.
func (s *Service) PostComment(ctx context.Context, req PostCommentRequest) (*models.Comment, error) {
	if req.SessionID == "" || req.AuthorID == "" {
		return nil, fmt.Errorf("%w: session and author are required", ErrInvalidPayload)
	}
	if req.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}

	c := &models.Comment{
		ID:           uuid.NewString(),
		SessionID:    req.SessionID,
		AuthorID:     req.AuthorID,
		Content:      req.Content,
		CorrectionID: req.CorrectionID,
		DetectionID:  req.DetectionID,
		CreatedAt:    time.Now().UTC(),
	}

	if req.ParentID != nil {
		parent, err := s.store.GetComment(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.SessionID != req.SessionID {
			return nil, fmt.Errorf("%w: parent comment belongs to another session", ErrInvalidPayload)
		}
		c.ParentID = &parent.ID
		c.Depth = parent.Depth + 1
		// Replies stay attached to the thread their parent belongs to.
		if parent.CorrectionID != nil {
			c.CorrectionID = parent.CorrectionID
		}
	} else if req.CorrectionID != nil {
		if _, err := s.store.GetCorrection(ctx, *req.CorrectionID); err != nil {
			return nil, err
		}
	}
	if req.DetectionID != nil {
		if _, err := s.store.GetDetection(ctx, *req.DetectionID); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	s.emit(ctx, models.EventCommentPosted, models.ActivityData{
		SessionID: req.SessionID,
		ActorID:   req.AuthorID,
		Comment:   c,
	})
	return c, nil
}

// EditComment replaces a comment's content, author-only.
func (s *Service) EditComment(ctx context.Context, commentID, authorID, content string) (*models.Comment, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != authorID {
		return nil, fmt.Errorf("%w: only the comment author may edit", ErrForbidden)
	}
	now := time.Now().UTC()
	c.Content = content
	c.EditCount++
	c.EditedAt = &now
	if err := s.store.UpdateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to edit comment %s: %w", commentID, err)
	}
	s.emit(ctx, models.EventCommentEdited, models.ActivityData{
		SessionID: c.SessionID,
		ActorID:   authorID,
		Comment:   c,
	})
	return c, nil
}

// ResolveComment toggles the resolved flag on a comment.
func (s *Service) ResolveComment(ctx context.Context, commentID, userID string, resolved bool) (*models.Comment, error) {
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.Resolved == resolved {
		return nil, fmt.Errorf("%w: comment %s resolved=%t", ErrAlreadyInState, commentID, resolved)
	}
	c.Resolved = resolved
	if err := s.store.UpdateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update comment %s: %w", commentID, err)
	}
	s.emit(ctx, models.EventCommentResolved, models.ActivityData{
		SessionID: c.SessionID,
		ActorID:   userID,
		Comment:   c,
	})
	return c, nil
}

// ListDetections returns a session's detections, optionally filtered by
// status.
func (s *Service) ListDetections(ctx context.Context, sessionID, status string) ([]*models.Detection, error) {
	return s.store.ListDetections(ctx, sessionID, status)
}

// CorrectionSummary returns aggregate correction counts for a session.
func (s *Service) CorrectionSummary(ctx context.Context, sessionID string) (*models.CorrectionSummary, error) {
	return s.store.CorrectionSummary(ctx, sessionID)
}

func (s *Service) emit(ctx context.Context, eventType string, data models.ActivityData) {
	event := &models.ActivityEvent{
		EventType:     eventType,
		Source:        eventSource,
		SchemaVersion: eventSchemaVersion,
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}
	for _, sink := range s.sinks {
		if err := sink.PublishActivity(ctx, event); err != nil {
			log.Printf("Failed to publish %s event: %v", eventType, err)
		}
	}
}

// statusProducedBy returns the detection status a correction's transition
// left behind. Modify keeps the status it found.
func statusProducedBy(c *models.Correction) string {
	switch c.Type {
	case models.CorrectionDelete:
		return models.DetectionRejected
	case models.CorrectionMove:
		return models.DetectionMoved
	case models.CorrectionConfirm:
		return models.DetectionConfirmed
	case models.CorrectionUnconfirm:
		return models.DetectionPending
	case models.CorrectionModify:
		return c.PriorStatus
	}
	return ""
}

// modifyStillCurrent reports whether the fields a modify correction set
// are still what the detection carries. A later modify that changed them
// again makes the earlier one irreversible.
func modifyStillCurrent(det *models.Detection, corrected *models.CandlePoint) bool {
	if corrected == nil {
		return true
	}
	if corrected.DetectionType != "" && det.DetectionType != corrected.DetectionType {
		return false
	}
	if corrected.Structure != "" && det.Structure != corrected.Structure {
		return false
	}
	if !corrected.Price.IsZero() && !det.Price.Equal(corrected.Price) {
		return false
	}
	return true
}

func validatePoint(p *models.CandlePoint) error {
	if p == nil {
		return fmt.Errorf("%w: candle point is required", ErrInvalidPayload)
	}
	if p.CandleIndex < 0 {
		return fmt.Errorf("%w: candle index must be >= 0", ErrInvalidPayload)
	}
	if p.CandleTime.IsZero() {
		return fmt.Errorf("%w: candle time is required", ErrInvalidPayload)
	}
	if p.Price.IsZero() || p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidPayload)
	}
	return nil
}

func pointOf(d *models.Detection) *models.CandlePoint {
	return &models.CandlePoint{
		CandleIndex:   d.CandleIndex,
		CandleTime:    d.CandleTime,
		Price:         d.Price,
		DetectionType: d.DetectionType,
		Structure:     d.Structure,
	}
}
