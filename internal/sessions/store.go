// Package sessions tracks per-call dialog state. Every inbound webhook is
// a fresh HTTP request carrying only an opaque call SID, so the counters
// that drive the dialog live here between events.
package sessions

import "time"

// Session is the live state for one ongoing phone call.
type Session struct {
	// CallID is the provider-assigned call SID.
	CallID string

	// SilenceCount is the number of consecutive listen windows that
	// closed without a transcript.
	SilenceCount int

	// TurnCount is the number of completed question/answer exchanges.
	TurnCount int

	CreatedAt    time.Time
	LastActivity time.Time
}

// Store is the per-call session store. Implementations must serialize
// mutations per call ID; operations on distinct call IDs must not block
// each other beyond map access.
type Store interface {
	// GetOrCreate returns a snapshot of the session for callID,
	// creating it with zeroed counters on first contact. The second
	// return value reports whether the session was newly created.
	GetOrCreate(callID string) (Session, bool)

	// Update applies fn to the session under the per-call lock and
	// returns the post-mutation snapshot. Returns false if no session
	// exists for callID.
	Update(callID string, fn func(*Session)) (Session, bool)

	// Remove deletes the session. Removing an absent session is not an
	// error; duplicate terminal webhooks make that a normal case.
	Remove(callID string) bool

	// Len reports the number of live sessions.
	Len() int
}

// Sweeper is implemented by stores that can evict idle sessions. Calls
// abandoned at the carrier level never deliver a terminal webhook, so
// without sweeping those entries would accumulate forever.
type Sweeper interface {
	// SweepIdle removes sessions whose last activity is older than the
	// threshold and returns how many were removed.
	SweepIdle(olderThan time.Duration) int
}
