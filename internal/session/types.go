package session

import (
	"github.com/earshot-ai/earshot/internal/store"
)

// Store is the slice of the session store gateway the pipeline and engine
// need: point reads and partial merges.
type Store interface {
	Get(id string) (store.Session, error)
	Update(id string, partial store.Partial) (store.Session, error)
}

// Notifier dispatches a delta to the external channel, best-effort. It
// must never block the caller; failures stay inside the dispatcher.
type Notifier interface {
	Dispatch(text string)
}

// EventBroadcaster fans pipeline events out to connected UI clients.
type EventBroadcaster interface {
	BroadcastTranscriptFragment(sessionID, text string)
	BroadcastInsightFragment(sessionID, text string)
	BroadcastInsightsReady(sessionID, insights string)
	BroadcastNotificationSent(sessionID, delta string)
}

// Request is one synthesis attempt: a transcript snapshot, the target
// session, and at most one kind of prior context. It has no identity
// beyond itself and is never persisted.
type Request struct {
	Transcript         string `json:"transcript"`
	SessionID          string `json:"sessionId,omitempty"`
	PreviousInsights   string `json:"previousInsights,omitempty"`
	PreviousTranscript string `json:"previousTranscript,omitempty"`
}

// Result is the outcome of a synthesis attempt. Stale means a newer
// request for the same session was issued while this one streamed; stale
// results are neither persisted nor notified, though their fragments were
// already delivered to the caller.
type Result struct {
	Insights  string
	Stale     bool
	Persisted bool
}
