package review

// VoteDelta is the change to an item's cached counters when one user's
// vote moves between values.
type VoteDelta struct {
	Score     int
	Upvotes   int
	Downvotes int
}

// TransitionVote computes the counter deltas for moving a user's vote
// from prev to next (each in {-1, 0, +1}). Repeating the same value is a
// no-op; flipping moves the score by 2; clearing reverses the prior
// contribution. Upvote/downvote counters follow sign transitions
// independently of the net score.
func TransitionVote(prev, next int) VoteDelta {
	d := VoteDelta{Score: next - prev}
	if prev == 1 {
		d.Upvotes--
	}
	if prev == -1 {
		d.Downvotes--
	}
	if next == 1 {
		d.Upvotes++
	}
	if next == -1 {
		d.Downvotes++
	}
	return d
}
