package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Store
// ---------------------------------------------------------------------------

type memStore struct {
	mu          sync.Mutex
	detections  map[string]*models.Detection
	corrections map[string]*models.Correction
	comments    map[string]*models.Comment
	votes       map[string]int // userID:itemType:itemID -> value
	scores      map[string]*models.VoteResult
	failNext    error
}

func newMemStore() *memStore {
	return &memStore{
		detections:  make(map[string]*models.Detection),
		corrections: make(map[string]*models.Correction),
		comments:    make(map[string]*models.Comment),
		votes:       make(map[string]int),
		scores:      make(map[string]*models.VoteResult),
	}
}

func (m *memStore) takeErr() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) GetDetection(ctx context.Context, id string) (*models.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detections[id]
	if !ok {
		return nil, fmt.Errorf("detection %s: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ListDetections(ctx context.Context, sessionID, status string) ([]*models.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Detection
	for _, d := range m.detections {
		if d.SessionID == sessionID && (status == "" || d.Status == status) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetCorrection(ctx context.Context, id string) (*models.Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corrections[id]
	if !ok {
		return nil, fmt.Errorf("correction %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCorrections(ctx context.Context, sessionID string) ([]*models.Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Correction
	for _, c := range m.corrections {
		if c.SessionID == sessionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CountCorrectionsForDetection(ctx context.Context, detectionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.corrections {
		if c.DetectionID != nil && *c.DetectionID == detectionID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CorrectionSummary(ctx context.Context, sessionID string) (*models.CorrectionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.CorrectionSummary{}
	for _, c := range m.corrections {
		if c.SessionID != sessionID {
			continue
		}
		s.Total++
		switch c.Status {
		case models.CorrectionApplied:
			s.Applied++
		case models.CorrectionDisputed:
			s.Disputed++
		}
		switch c.Type {
		case models.CorrectionAdd:
			s.Adds++
		case models.CorrectionDelete:
			s.Deletes++
		case models.CorrectionMove:
			s.Moves++
		case models.CorrectionConfirm:
			s.Confirms++
		case models.CorrectionModify:
			s.Modifies++
		}
	}
	return s, nil
}

func (m *memStore) ApplyCorrectionMutation(ctx context.Context, mut *CorrectionMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	if mut.Correction != nil {
		cp := *mut.Correction
		m.corrections[cp.ID] = &cp
	}
	if mut.CreateDetection != nil {
		cp := *mut.CreateDetection
		m.detections[cp.ID] = &cp
	}
	if mut.UpdateDetection != nil {
		cp := *mut.UpdateDetection
		m.detections[cp.ID] = &cp
	}
	if mut.DeleteDetectionID != "" {
		delete(m.detections, mut.DeleteDetectionID)
	}
	if mut.MarkDisputedID != "" {
		if c, ok := m.corrections[mut.MarkDisputedID]; ok {
			c.Status = models.CorrectionDisputed
		}
	}
	return nil
}

func (m *memStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CreateComment(ctx context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	cp := *c
	m.comments[cp.ID] = &cp
	return nil
}

func (m *memStore) UpdateComment(ctx context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.comments[cp.ID] = &cp
	return nil
}

func (m *memStore) ListTopLevelComments(ctx context.Context, sessionID string) ([]*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Comment
	for _, c := range m.comments {
		if c.SessionID == sessionID && c.ParentID == nil && c.CorrectionID == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListCommentsByCorrection(ctx context.Context, correctionID string) ([]*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Comment
	for _, c := range m.comments {
		if c.CorrectionID != nil && *c.CorrectionID == correctionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListCommentThread(ctx context.Context, rootCommentID string) ([]*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	include := map[string]bool{rootCommentID: true}
	// Small fixture sets; repeated passes settle the transitive closure.
	for changed := true; changed; {
		changed = false
		for _, c := range m.comments {
			if c.ParentID != nil && include[*c.ParentID] && !include[c.ID] {
				include[c.ID] = true
				changed = true
			}
		}
	}
	var out []*models.Comment
	for id := range include {
		if c, ok := m.comments[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ApplyVote(ctx context.Context, userID, itemType, itemID string, value int) (*models.VoteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}

	voteKey := userID + ":" + itemType + ":" + itemID
	itemKey := itemType + ":" + itemID

	prev := m.votes[voteKey]
	delta := TransitionVote(prev, value)

	if value == 0 {
		delete(m.votes, voteKey)
	} else {
		m.votes[voteKey] = value
	}

	counters, ok := m.scores[itemKey]
	if !ok {
		counters = &models.VoteResult{ItemType: itemType, ItemID: itemID}
		m.scores[itemKey] = counters
	}
	counters.Score += delta.Score
	counters.Upvotes += delta.Upvotes
	counters.Downvotes += delta.Downvotes

	return &models.VoteResult{
		ItemType:  itemType,
		ItemID:    itemID,
		Score:     counters.Score,
		Upvotes:   counters.Upvotes,
		Downvotes: counters.Downvotes,
		UserVote:  value,
	}, nil
}

// ---------------------------------------------------------------------------
// Event sink capture
// ---------------------------------------------------------------------------

type captureSink struct {
	mu     sync.Mutex
	events []*models.ActivityEvent
	err    error
}

func (c *captureSink) PublishActivity(ctx context.Context, event *models.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Events() []*models.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]*models.ActivityEvent, len(c.events))
	copy(cp, c.events)
	return cp
}

func (c *captureSink) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}
