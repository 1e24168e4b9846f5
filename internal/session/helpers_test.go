package session

import (
	"context"
	"sync"
	"time"

	"github.com/earshot-ai/earshot/internal/llm"
	"github.com/earshot-ai/earshot/internal/store"
)

// memStore is an in-memory session.Store with last-write-wins semantics.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]store.Session
}

func newMemStore(ids ...string) *memStore {
	m := &memStore{sessions: make(map[string]store.Session)}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range ids {
		m.sessions[id] = store.Session{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	return m
}

func (m *memStore) Get(id string) (store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (m *memStore) Update(id string, partial store.Partial) (store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	if partial.Transcript != nil {
		sess.Transcript = *partial.Transcript
	}
	if partial.Insights != nil {
		sess.Insights = *partial.Insights
	}
	sess.UpdatedAt = sess.UpdatedAt.Add(time.Millisecond)
	m.sessions[id] = sess
	return sess, nil
}

// streamScript is the behavior of one Stream call: optionally block until
// released, then yield chunks, then finish with err.
type streamScript struct {
	chunks []string
	err    error
	block  chan struct{}
}

// fakeClient scripts llm.Client behavior for one test: Stream yields the
// configured chunks, Complete returns the configured text. When scripts
// is set, the nth Stream call follows the nth script (clamped to the
// last), which lets tests overlap two in-flight syntheses.
type fakeClient struct {
	mu          sync.Mutex
	chunks      []string
	streamErr   error
	scripts     []streamScript
	completion  string
	completeErr error

	streamCalls   int
	completeCalls int
	lastMessages  []llm.Message
}

func (f *fakeClient) Stream(ctx context.Context, messages []llm.Message, fn func(string) error) error {
	f.mu.Lock()
	f.streamCalls++
	f.lastMessages = messages
	script := streamScript{chunks: f.chunks, err: f.streamErr}
	if len(f.scripts) > 0 {
		idx := f.streamCalls - 1
		if idx >= len(f.scripts) {
			idx = len(f.scripts) - 1
		}
		script = f.scripts[idx]
	}
	f.mu.Unlock()

	if script.block != nil {
		select {
		case <-script.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, chunk := range script.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return script.err
}

func (f *fakeClient) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.lastMessages = messages
	return f.completion, f.completeErr
}

// fakeNotifier records dispatched deltas.
type fakeNotifier struct {
	mu     sync.Mutex
	deltas []string
}

func (f *fakeNotifier) Dispatch(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, text)
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deltas...)
}

// fakeHub records broadcast events.
type fakeHub struct {
	mu               sync.Mutex
	transcripts      []string
	insightFragments []string
	insightsReady    []string
	notifications    []string
}

func (f *fakeHub) BroadcastTranscriptFragment(_, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeHub) BroadcastInsightFragment(_, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insightFragments = append(f.insightFragments, text)
}

func (f *fakeHub) BroadcastInsightsReady(_, insights string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insightsReady = append(f.insightsReady, insights)
}

func (f *fakeHub) BroadcastNotificationSent(_, delta string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, delta)
}
