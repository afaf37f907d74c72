package review

import "errors"

// Sentinel errors for the review core. Handlers map these onto HTTP
// status codes; callers test with errors.Is.
var (
	// ErrInvalidVoteValue is returned for vote values outside {-1, 0, +1}.
	ErrInvalidVoteValue = errors.New("invalid vote value")

	// ErrInvalidPayload is returned when correction or comment fields are
	// missing or malformed. Validation failures never reach the store.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNotFound is returned for unknown detections, corrections or
	// comments.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a user other than the author attempts
	// an undo or edit.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyInState is returned for no-op transitions, e.g. confirming
	// an already-confirmed detection. Callers may treat it as success but
	// the engine never double-counts.
	ErrAlreadyInState = errors.New("already in requested state")

	// ErrConflictingEdits is returned when an undo would discard dependent
	// history, e.g. a spawned detection that acquired its own corrections.
	ErrConflictingEdits = errors.New("conflicting edits")

	// ErrTimeout is returned when a mutation does not resolve within the
	// configured window.
	ErrTimeout = errors.New("mutation timed out")
)
