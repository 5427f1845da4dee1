package store

import "errors"

var (
	// ErrConflict means a (conversation_id, seq) pair already exists. The
	// state machine is the sole writer per conversation, so this signals a
	// bug, not a condition to retry.
	ErrConflict = errors.New("store: duplicate turn sequence")

	// ErrUnavailable means storage stayed unreachable after bounded retries.
	// Callers surface it as a turn failure; the conversation stays usable.
	ErrUnavailable = errors.New("store: storage unavailable")
)
