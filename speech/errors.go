package speech

import (
	"context"
	"errors"
)

// Common errors for the speech engine.
var (
	// Fetch errors
	ErrFetchCancelled = errors.New("audio fetch cancelled")
	ErrFetchFailed    = errors.New("audio fetch failed")
	ErrFetchInFlight  = errors.New("audio fetch already in flight")

	// Credential errors
	ErrMissingCredential = errors.New("no speech credential configured")

	// Cache errors
	ErrCacheRead  = errors.New("segment cache read failed")
	ErrCacheWrite = errors.New("segment cache write failed")

	// Playback errors
	ErrPlaybackUnavailable = errors.New("audio output unavailable")

	// Message/segment errors
	ErrUnknownMessage    = errors.New("unknown message")
	ErrSegmentOutOfRange = errors.New("segment index out of range")
	ErrSegmentMissing    = errors.New("segment not cached")
	ErrNoContent         = errors.New("message has no speakable content")
)

// IsCancellation reports whether err is a cooperative cancellation rather
// than a genuine failure. Cancellations are silently discarded: they never
// reach the error map, the playback state, or the notifier.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrFetchCancelled) || errors.Is(err, context.Canceled)
}
