package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

// presencePublisher is the transport side of the throttle, satisfied by
// *Client.
type presencePublisher interface {
	PublishPresence(ctx context.Context, event *models.PresenceEvent) error
}

// PresenceThrottle rate-limits cursor/presence broadcasts to one message
// per interval per user. Messages inside the window are dropped, not
// queued: presence is last-value-wins and lost updates are tolerated.
type PresenceThrottle struct {
	publisher presencePublisher
	interval  time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewPresenceThrottle creates a throttle over the given publisher.
func NewPresenceThrottle(publisher presencePublisher, interval time.Duration) *PresenceThrottle {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &PresenceThrottle{
		publisher: publisher,
		interval:  interval,
		lastSent:  make(map[string]time.Time),
		now:       time.Now,
	}
}

// Broadcast publishes the event unless the user broadcast within the
// throttle window. Returns true if the event went out. Publish failures
// are logged and dropped; presence is never retried and never surfaces
// an error to the caller.
func (p *PresenceThrottle) Broadcast(ctx context.Context, event *models.PresenceEvent) bool {
	key := event.SessionID + ":" + event.UserID

	p.mu.Lock()
	now := p.now()
	if last, ok := p.lastSent[key]; ok && now.Sub(last) < p.interval {
		p.mu.Unlock()
		return false
	}
	p.lastSent[key] = now
	p.mu.Unlock()

	event.SentAt = now
	if err := p.publisher.PublishPresence(ctx, event); err != nil {
		log.Printf("Dropped presence broadcast for %s: %v", key, err)
	}
	return true
}
