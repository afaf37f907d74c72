// Package optimistic implements the client-side contract for mutating
// calls: apply a predicted state immediately, then replace it with the
// server-confirmed state or roll back to the last confirmed snapshot on
// failure. Each item has at most one in-flight mutation; later mutations
// queue behind the in-flight request's resolution instead of racing it.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trogers1052/pattern-review-service/internal/review"
)

// Mutation phases
const (
	PhasePredicted = "predicted"
	PhaseCommitted = "committed"
	PhaseFailed    = "failed"
)

// State is an item snapshot as the UI renders it. Snapshots are treated
// as immutable values; callers hand in fresh copies.
type State interface{}

// Call performs the server mutation and returns the authoritative state.
type Call func(ctx context.Context) (State, error)

// Coordinator tracks per-item confirmed and predicted state. It is
// single-threaded-cooperative per item: the per-item lock serializes a
// second mutation behind the first's resolution.
type Coordinator struct {
	mu      sync.Mutex
	items   map[string]*itemState
	timeout time.Duration
}

type itemState struct {
	mu        sync.Mutex // serializes mutations on this item
	stateMu   sync.Mutex // guards the fields below
	confirmed State
	predicted State
	phase     string
	inflight  bool
}

// NewCoordinator creates a coordinator. timeout bounds each server call;
// a call that does not resolve in time is treated as failed and rolled
// back.
func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Coordinator{
		items:   make(map[string]*itemState),
		timeout: timeout,
	}
}

// Seed records the server-confirmed state for an item, e.g. from the
// initial feed load.
func (c *Coordinator) Seed(itemID string, state State) {
	it := c.item(itemID)
	it.stateMu.Lock()
	defer it.stateMu.Unlock()
	it.confirmed = state
	it.predicted = nil
	it.phase = PhaseCommitted
	it.inflight = false
}

// Current returns the state the UI should render: the prediction while a
// mutation is in flight, otherwise the last confirmed state.
func (c *Coordinator) Current(itemID string) (State, bool) {
	c.mu.Lock()
	it, ok := c.items[itemID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	it.stateMu.Lock()
	defer it.stateMu.Unlock()
	if it.inflight {
		return it.predicted, true
	}
	if it.phase == "" {
		return nil, false
	}
	return it.confirmed, true
}

// Phase reports the item's mutation phase: predicted, committed or
// failed. Empty string means the item is unknown.
func (c *Coordinator) Phase(itemID string) string {
	c.mu.Lock()
	it, ok := c.items[itemID]
	c.mu.Unlock()
	if !ok {
		return ""
	}
	it.stateMu.Lock()
	defer it.stateMu.Unlock()
	return it.phase
}

// Mutate applies predicted locally, runs call with the configured
// timeout, and reconciles: on success the server-returned state replaces
// the prediction (never merely keeps it); on failure the item reverts to
// the pre-mutation snapshot and the error is returned. A second Mutate
// for the same item blocks until the first resolves.
func (c *Coordinator) Mutate(ctx context.Context, itemID string, predicted State, call Call) (State, error) {
	it := c.item(itemID)

	it.mu.Lock()
	defer it.mu.Unlock()

	it.stateMu.Lock()
	snapshot := it.confirmed
	it.predicted = predicted
	it.phase = PhasePredicted
	it.inflight = true
	it.stateMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	confirmed, err := call(callCtx)

	it.stateMu.Lock()
	defer it.stateMu.Unlock()
	it.inflight = false
	it.predicted = nil

	if err != nil {
		it.confirmed = snapshot
		it.phase = PhaseFailed
		if errors.Is(err, context.DeadlineExceeded) {
			return snapshot, fmt.Errorf("mutation on %s: %w", itemID, review.ErrTimeout)
		}
		return snapshot, err
	}

	it.confirmed = confirmed
	it.phase = PhaseCommitted
	return confirmed, nil
}

func (c *Coordinator) item(itemID string) *itemState {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[itemID]
	if !ok {
		it = &itemState{}
		c.items[itemID] = it
	}
	return it
}
