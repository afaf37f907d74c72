package review

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/pattern-review-service/internal/models"
)

func newTestService(store *memStore) (*Service, *captureSink) {
	sink := &captureSink{}
	svc := NewService(store, nil, Options{MaxThreadDepth: 5, PageSize: 20}, sink)
	return svc, sink
}

func seedDetection(store *memStore, id, sessionID, status string) *models.Detection {
	d := &models.Detection{
		ID:            id,
		SessionID:     sessionID,
		CandleIndex:   42,
		CandleTime:    time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Price:         decimal.NewFromInt(100),
		DetectionType: models.DetectionSwingHigh,
		Structure:     models.StructureHigherHigh,
		Status:        status,
		Confidence:    0.82,
		Source:        models.SourceEngine,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	store.detections[id] = d
	return d
}

func point(index int, price int64) *models.CandlePoint {
	return &models.CandlePoint{
		CandleIndex: index,
		CandleTime:  time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC),
		Price:       decimal.NewFromInt(price),
	}
}

// ---------------------------------------------------------------------------
// CastVote
// ---------------------------------------------------------------------------

func TestCastVote_InvalidValue(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	for _, v := range []int{-2, 2, 10} {
		_, err := svc.CastVote(context.Background(), "u1", models.ItemComment, "c1", v)
		assert.ErrorIs(t, err, ErrInvalidVoteValue, "value=%d", v)
	}
}

func TestCastVote_UnknownItemType(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.CastVote(context.Background(), "u1", "detection", "d1", 1)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCastVote_RepeatIsNoOp(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	first, err := svc.CastVote(ctx, "u1", models.ItemComment, "c1", 1)
	require.NoError(t, err)
	second, err := svc.CastVote(ctx, "u1", models.ItemComment, "c1", 1)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, 1, second.Score)
	assert.Equal(t, 1, second.Upvotes)
	assert.Zero(t, second.Downvotes)
}

func TestCastVote_FlipMovesScoreByTwo(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	res, err := svc.CastVote(ctx, "u1", models.ItemCorrection, "corr-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)

	res, err = svc.CastVote(ctx, "u1", models.ItemCorrection, "corr-1", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Score)
	assert.Zero(t, res.Upvotes)
	assert.Equal(t, 1, res.Downvotes)
}

func TestCastVote_ZeroRemovesVote(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	_, err := svc.CastVote(ctx, "u1", models.ItemComment, "c1", -1)
	require.NoError(t, err)
	res, err := svc.CastVote(ctx, "u1", models.ItemComment, "c1", 0)
	require.NoError(t, err)

	assert.Zero(t, res.Score)
	assert.Zero(t, res.Upvotes)
	assert.Zero(t, res.Downvotes)
	assert.Zero(t, res.UserVote)
}

func TestCastVote_OppositeVotesFromTwoUsers(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	_, err := svc.CastVote(ctx, "userA", models.ItemComment, "c1", 1)
	require.NoError(t, err)
	res, err := svc.CastVote(ctx, "userB", models.ItemComment, "c1", -1)
	require.NoError(t, err)

	assert.Zero(t, res.Score)
	assert.Equal(t, 1, res.Upvotes)
	assert.Equal(t, 1, res.Downvotes)
}

func TestCastVote_ConcurrentUsersSumCommutatively(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := 1
			if i%2 == 0 {
				value = -1
			}
			// Every user also churns through an earlier vote.
			_, err := svc.CastVote(ctx, fmt.Sprintf("user-%d", i), models.ItemComment, "c1", -value)
			assert.NoError(t, err)
			_, err = svc.CastVote(ctx, fmt.Sprintf("user-%d", i), models.ItemComment, "c1", value)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	res, err := svc.CastVote(ctx, "observer", models.ItemComment, "c1", 0)
	require.NoError(t, err)
	assert.Zero(t, res.Score, "10 up + 10 down")
	assert.Equal(t, 10, res.Upvotes)
	assert.Equal(t, 10, res.Downvotes)
}

func TestCastVote_EmitsEvent(t *testing.T) {
	svc, sink := newTestService(newMemStore())
	_, err := svc.CastVote(context.Background(), "u1", models.ItemComment, "c1", 1)
	require.NoError(t, err)
	require.Equal(t, []string{models.EventVoteChanged}, sink.Types())
	assert.Equal(t, 1, sink.Events()[0].Data.Vote.Score)
}

func TestTransitionVote_Table(t *testing.T) {
	cases := []struct {
		prev, next int
		want       VoteDelta
	}{
		{0, 1, VoteDelta{Score: 1, Upvotes: 1}},
		{0, -1, VoteDelta{Score: -1, Downvotes: 1}},
		{1, 1, VoteDelta{}},
		{-1, -1, VoteDelta{}},
		{1, -1, VoteDelta{Score: -2, Upvotes: -1, Downvotes: 1}},
		{-1, 1, VoteDelta{Score: 2, Upvotes: 1, Downvotes: -1}},
		{1, 0, VoteDelta{Score: -1, Upvotes: -1}},
		{-1, 0, VoteDelta{Score: 1, Downvotes: -1}},
		{0, 0, VoteDelta{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TransitionVote(tc.prev, tc.next), "%d -> %d", tc.prev, tc.next)
	}
}

// ---------------------------------------------------------------------------
// ApplyCorrection
// ---------------------------------------------------------------------------

func TestApplyCorrection_Add(t *testing.T) {
	store := newMemStore()
	svc, sink := newTestService(store)

	corr, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1",
		Type:      models.CorrectionAdd,
		Corrected: point(10, 95),
		AuthorID:  "userA",
		Reason:    "missed swing low",
	})
	require.NoError(t, err)
	require.NotNil(t, corr.SpawnedDetectionID)

	spawned := store.detections[*corr.SpawnedDetectionID]
	require.NotNil(t, spawned)
	assert.Equal(t, models.DetectionPending, spawned.Status)
	assert.Equal(t, models.SourceManual, spawned.Source)
	assert.Equal(t, 10, spawned.CandleIndex)

	assert.Equal(t, models.CorrectionApplied, corr.Status)
	assert.Equal(t, []string{models.EventCorrectionApplied}, sink.Types())
}

func TestApplyCorrection_Add_MissingFields(t *testing.T) {
	svc, sink := newTestService(newMemStore())
	ctx := context.Background()

	cases := []*models.CandlePoint{
		nil,
		{CandleIndex: 5, Price: decimal.NewFromInt(100)}, // no time
		{CandleIndex: 5, CandleTime: time.Now()},         // no price
		{CandleIndex: -1, CandleTime: time.Now(), Price: decimal.NewFromInt(100)},
	}
	for i, p := range cases {
		_, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
			SessionID: "sess-1", Type: models.CorrectionAdd, Corrected: p, AuthorID: "userA",
		})
		assert.ErrorIs(t, err, ErrInvalidPayload, "case %d", i)
	}
	assert.Empty(t, sink.Types(), "validation failures must not emit events")
}

func TestApplyCorrection_Delete(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)

	id := "d1"
	corr, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionDelete, AuthorID: "userA",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DetectionRejected, store.detections["d1"].Status)
	require.NotNil(t, corr.Original)
	assert.Equal(t, 42, corr.Original.CandleIndex)
	assert.Equal(t, models.DetectionPending, corr.PriorStatus)
}

func TestApplyCorrection_Delete_AlreadyRejected(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionRejected)

	id := "d1"
	_, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionDelete, AuthorID: "userA",
	})
	assert.ErrorIs(t, err, ErrAlreadyInState)
}

func TestApplyCorrection_Move(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)

	id := "d1"
	corr, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionMove,
		Corrected: point(50, 105), AuthorID: "userA",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DetectionMoved, store.detections["d1"].Status)
	require.NotNil(t, corr.SpawnedDetectionID)

	spawned := store.detections[*corr.SpawnedDetectionID]
	require.NotNil(t, spawned)
	assert.Equal(t, models.DetectionPending, spawned.Status)
	assert.Equal(t, 50, spawned.CandleIndex)
	assert.True(t, spawned.Price.Equal(decimal.NewFromInt(105)))
	// Type carries over from the original unless overridden.
	assert.Equal(t, models.DetectionSwingHigh, spawned.DetectionType)

	require.NotNil(t, corr.Original)
	assert.Equal(t, 42, corr.Original.CandleIndex)
	require.NotNil(t, corr.Corrected)
	assert.Equal(t, 50, corr.Corrected.CandleIndex)
}

func TestApplyCorrection_ConfirmAndUnconfirm(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	_, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DetectionConfirmed, store.detections["d1"].Status)

	// Repeat confirm is a no-op transition.
	_, err = svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	assert.ErrorIs(t, err, ErrAlreadyInState)

	_, err = svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionUnconfirm, AuthorID: "userA",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DetectionPending, store.detections["d1"].Status)
}

func TestApplyCorrection_DetectionInOtherSession(t *testing.T) {
	store := newMemStore()
	svc, sink := newTestService(store)
	seedDetection(store, "d1", "sess-A", models.DetectionPending)

	id := "d1"
	_, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-B", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Equal(t, models.DetectionPending, store.detections["d1"].Status,
		"detection untouched")
	assert.Empty(t, store.corrections)
	assert.Empty(t, sink.Types())
}

func TestApplyCorrection_UnknownDetection(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	id := "missing"
	_, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyCorrection_UnknownType(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", Type: "promote", AuthorID: "userA",
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestApplyCorrection_Modify(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)

	id := "d1"
	_, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionModify,
		Corrected: &models.CandlePoint{DetectionType: models.DetectionSwingLow, Structure: models.StructureLowerLow},
		AuthorID:  "userA",
	})
	require.NoError(t, err)

	det := store.detections["d1"]
	assert.Equal(t, models.DetectionSwingLow, det.DetectionType)
	assert.Equal(t, models.StructureLowerLow, det.Structure)
	assert.Equal(t, models.DetectionPending, det.Status, "modify leaves status alone")
}

// ---------------------------------------------------------------------------
// UndoCorrection
// ---------------------------------------------------------------------------

func TestUndoCorrection_ConfirmScenario(t *testing.T) {
	// Detection d1 pending; user A confirms then undoes: status back to
	// pending, compensating event emitted, correction kept as disputed.
	store := newMemStore()
	svc, sink := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	corr, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	require.NoError(t, err)
	require.Equal(t, models.DetectionConfirmed, store.detections["d1"].Status)

	undone, err := svc.UndoCorrection(ctx, corr.ID, "userA")
	require.NoError(t, err)

	assert.Equal(t, models.DetectionPending, store.detections["d1"].Status)
	assert.Equal(t, models.CorrectionDisputed, undone.Status)
	assert.Equal(t, models.CorrectionDisputed, store.corrections[corr.ID].Status,
		"audit trail preserved, row not deleted")
	assert.Equal(t, []string{models.EventCorrectionApplied, models.EventCorrectionUndone}, sink.Types())
}

func TestUndoCorrection_MoveRestoresAndRemovesSpawned(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionConfirmed)
	ctx := context.Background()
	id := "d1"

	corr, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionMove,
		Corrected: point(50, 105), AuthorID: "userA",
	})
	require.NoError(t, err)
	spawnedID := *corr.SpawnedDetectionID
	require.Contains(t, store.detections, spawnedID)

	_, err = svc.UndoCorrection(ctx, corr.ID, "userA")
	require.NoError(t, err)

	assert.Equal(t, models.DetectionConfirmed, store.detections["d1"].Status,
		"prior status restored")
	assert.NotContains(t, store.detections, spawnedID, "spawned detection removed")
}

func TestUndoCorrection_MoveBlockedByDependentHistory(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	corr, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionMove,
		Corrected: point(50, 105), AuthorID: "userA",
	})
	require.NoError(t, err)
	spawnedID := *corr.SpawnedDetectionID

	// Someone else confirms the spawned detection.
	_, err = svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &spawnedID, Type: models.CorrectionConfirm, AuthorID: "userB",
	})
	require.NoError(t, err)

	_, err = svc.UndoCorrection(ctx, corr.ID, "userA")
	assert.ErrorIs(t, err, ErrConflictingEdits)
	assert.Contains(t, store.detections, spawnedID, "dependent history never discarded")
	assert.Equal(t, models.DetectionMoved, store.detections["d1"].Status)
}

func TestUndoCorrection_ConfirmBlockedAfterMove(t *testing.T) {
	// confirm then move: undoing the confirm would resurrect the original
	// detection alongside the move's spawned one.
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	confirm, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	require.NoError(t, err)

	move, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionMove,
		Corrected: point(50, 105), AuthorID: "userB",
	})
	require.NoError(t, err)

	_, err = svc.UndoCorrection(ctx, confirm.ID, "userA")
	assert.ErrorIs(t, err, ErrConflictingEdits)
	assert.Equal(t, models.DetectionMoved, store.detections["d1"].Status,
		"later transition untouched")
	assert.Contains(t, store.detections, *move.SpawnedDetectionID)
}

func TestUndoCorrection_ConfirmBlockedAfterDelete(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	confirm, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	require.NoError(t, err)

	_, err = svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionDelete, AuthorID: "userB",
	})
	require.NoError(t, err)

	_, err = svc.UndoCorrection(ctx, confirm.ID, "userA")
	assert.ErrorIs(t, err, ErrConflictingEdits)
	assert.Equal(t, models.DetectionRejected, store.detections["d1"].Status)
}

func TestUndoCorrection_ModifyBlockedAfterLaterModify(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	first, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionModify,
		Corrected: &models.CandlePoint{DetectionType: models.DetectionSwingLow},
		AuthorID:  "userA",
	})
	require.NoError(t, err)

	_, err = svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionModify,
		Corrected: &models.CandlePoint{DetectionType: models.DetectionBOSBullish},
		AuthorID:  "userB",
	})
	require.NoError(t, err)

	_, err = svc.UndoCorrection(ctx, first.ID, "userA")
	assert.ErrorIs(t, err, ErrConflictingEdits)
	assert.Equal(t, models.DetectionBOSBullish, store.detections["d1"].DetectionType,
		"later modify kept")
}

func TestUndoCorrection_MoveRacingSpawnedCorrection(t *testing.T) {
	// Undo of a move and a correction on the move's spawned detection
	// contend; whichever wins, no applied correction may end up pointing
	// at a deleted detection.
	for i := 0; i < 25; i++ {
		store := newMemStore()
		svc, _ := newTestService(store)
		seedDetection(store, "d1", "sess-1", models.DetectionPending)
		ctx := context.Background()
		id := "d1"

		move, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
			SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionMove,
			Corrected: point(50, 105), AuthorID: "userA",
		})
		require.NoError(t, err)
		spawnedID := *move.SpawnedDetectionID

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.UndoCorrection(ctx, move.ID, "userA")
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
				SessionID: "sess-1", DetectionID: &spawnedID,
				Type: models.CorrectionConfirm, AuthorID: "userB",
			})
		}()
		wg.Wait()

		for _, c := range store.corrections {
			if c.DetectionID == nil || c.Status != models.CorrectionApplied {
				continue
			}
			assert.Contains(t, store.detections, *c.DetectionID,
				"iteration %d: applied correction references a deleted detection", i)
		}
	}
}

func TestUndoCorrection_OnlyAuthor(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	id := "d1"

	corr, err := svc.ApplyCorrection(context.Background(), ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	require.NoError(t, err)

	_, err = svc.UndoCorrection(context.Background(), corr.ID, "userB")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, models.DetectionConfirmed, store.detections["d1"].Status)
}

func TestUndoCorrection_Twice(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	seedDetection(store, "d1", "sess-1", models.DetectionPending)
	ctx := context.Background()
	id := "d1"

	corr, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", DetectionID: &id, Type: models.CorrectionConfirm, AuthorID: "userA",
	})
	require.NoError(t, err)

	_, err = svc.UndoCorrection(ctx, corr.ID, "userA")
	require.NoError(t, err)
	_, err = svc.UndoCorrection(ctx, corr.ID, "userA")
	assert.ErrorIs(t, err, ErrAlreadyInState)
}

func TestUndoCorrection_AddRemovesDetection(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	corr, err := svc.ApplyCorrection(ctx, ApplyCorrectionRequest{
		SessionID: "sess-1", Type: models.CorrectionAdd, Corrected: point(7, 99), AuthorID: "userA",
	})
	require.NoError(t, err)
	spawnedID := *corr.SpawnedDetectionID

	_, err = svc.UndoCorrection(ctx, corr.ID, "userA")
	require.NoError(t, err)
	assert.NotContains(t, store.detections, spawnedID)
}

// ---------------------------------------------------------------------------
// PostComment
// ---------------------------------------------------------------------------

func TestPostComment_TopLevel(t *testing.T) {
	store := newMemStore()
	svc, sink := newTestService(store)

	c, err := svc.PostComment(context.Background(), PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA", Content: "looks clean",
	})
	require.NoError(t, err)
	assert.Zero(t, c.Depth)
	assert.Nil(t, c.ParentID)
	assert.Equal(t, []string{models.EventCommentPosted}, sink.Types())
}

func TestPostComment_ReplyDerivesDepthAndThread(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	corrID := "corr-1"
	store.corrections[corrID] = &models.Correction{ID: corrID, SessionID: "sess-1"}

	parent, err := svc.PostComment(ctx, PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA", Content: "disagree", CorrectionID: &corrID,
	})
	require.NoError(t, err)

	reply, err := svc.PostComment(ctx, PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userB", Content: "why?", ParentID: &parent.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, reply.Depth)
	require.NotNil(t, reply.CorrectionID)
	assert.Equal(t, corrID, *reply.CorrectionID, "reply inherits the correction thread")
}

func TestPostComment_ParentInOtherSession(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	parent, err := svc.PostComment(ctx, PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA", Content: "hello",
	})
	require.NoError(t, err)

	_, err = svc.PostComment(ctx, PostCommentRequest{
		SessionID: "sess-2", AuthorID: "userB", Content: "cross-session", ParentID: &parent.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPostComment_EmptyContent(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.PostComment(context.Background(), PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA",
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEditComment(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	c, err := svc.PostComment(ctx, PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA", Content: "first",
	})
	require.NoError(t, err)

	edited, err := svc.EditComment(ctx, c.ID, "userA", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Content)
	assert.Equal(t, 1, edited.EditCount)
	assert.NotNil(t, edited.EditedAt)

	_, err = svc.EditComment(ctx, c.ID, "userB", "hijack")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestResolveComment_Toggle(t *testing.T) {
	store := newMemStore()
	svc, sink := newTestService(store)
	ctx := context.Background()

	c, err := svc.PostComment(ctx, PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA", Content: "is this a fakeout?",
	})
	require.NoError(t, err)

	resolved, err := svc.ResolveComment(ctx, c.ID, "userB", true)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, []string{models.EventCommentPosted, models.EventCommentResolved}, sink.Types(),
		"feed learns about the resolution")

	_, err = svc.ResolveComment(ctx, c.ID, "userB", true)
	assert.ErrorIs(t, err, ErrAlreadyInState)
	assert.Len(t, sink.Types(), 2, "no event for the rejected repeat")
}

func TestSinkFailureDoesNotFailMutation(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{err: fmt.Errorf("broker down")}
	svc := NewService(store, nil, Options{}, sink)

	_, err := svc.PostComment(context.Background(), PostCommentRequest{
		SessionID: "sess-1", AuthorID: "userA", Content: "still works",
	})
	assert.NoError(t, err)
}
