package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/earshot-ai/earshot/internal/store"
)

// Pipeline drives the incremental synthesis loop for live sessions:
// transcript fragments arrive, are appended and persisted, and once
// enough new text has accumulated a debounced synthesis runs, its delta
// is extracted against the last completed synthesis, and the delta is
// dispatched to the notifier.
//
// Per-session state (growth tracker, debounce trigger, prior context)
// lives in one object owned by the pipeline, mutated only under its lock.
type Pipeline struct {
	store     Store
	engine    *Engine
	extractor *Extractor
	notifier  Notifier
	hub       EventBroadcaster
	mode      DeltaMode
	debounce  time.Duration

	mu     sync.Mutex
	states map[string]*sessionState
}

type sessionState struct {
	tracker        Tracker
	trigger        *Trigger
	prevInsights   string
	prevTranscript string
}

func NewPipeline(st Store, engine *Engine, extractor *Extractor, notifier Notifier, hub EventBroadcaster, mode DeltaMode, debounce time.Duration) *Pipeline {
	if mode == "" {
		mode = DeltaModeInsights
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Pipeline{
		store:     st,
		engine:    engine,
		extractor: extractor,
		notifier:  notifier,
		hub:       hub,
		mode:      mode,
		debounce:  debounce,
	}
}

// OnFragment appends one transcribed fragment to the session's transcript,
// persists the result, and schedules a debounced synthesis when the
// transcript has grown past the threshold. Fragments are applied in
// arrival order; the upstream capture cadence guarantees ordering.
func (p *Pipeline) OnFragment(ctx context.Context, sessionID, fragment string) error {
	if fragment == "" {
		return nil
	}

	sess, err := p.store.Get(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	updated := Append(sess.Transcript, fragment)
	if _, err := p.store.Update(sessionID, store.Partial{Transcript: &updated}); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}

	if p.hub != nil {
		p.hub.BroadcastTranscriptFragment(sessionID, fragment)
	}

	st := p.state(sessionID)

	p.mu.Lock()
	schedule := st.tracker.ShouldSchedule(updated)
	p.mu.Unlock()

	if schedule {
		st.trigger.Schedule(func() {
			p.synthesize(context.WithoutCancel(ctx), sessionID)
		})
	}

	return nil
}

// Flush cancels any pending debounce and runs the synthesis immediately,
// used at session teardown so trailing speech still produces insights.
func (p *Pipeline) Flush(ctx context.Context, sessionID string) {
	st := p.state(sessionID)
	st.trigger.Cancel()
	p.synthesize(ctx, sessionID)
}

// FlushAll flushes every session with a pending synthesis, used at
// shutdown.
func (p *Pipeline) FlushAll(ctx context.Context) {
	p.mu.Lock()
	var pending []string
	for id, st := range p.states {
		if st.trigger.Pending() {
			pending = append(pending, id)
		}
	}
	p.mu.Unlock()

	for _, id := range pending {
		p.Flush(ctx, id)
	}
}

// synthesize runs on debounce expiry. It snapshots the stored transcript
// now, so growth during the quiet period is included in this one call.
func (p *Pipeline) synthesize(ctx context.Context, sessionID string) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		slog.Warn("synthesis skipped: session unavailable", "session", sessionID, "error", err)
		return
	}

	st := p.state(sessionID)

	req := Request{Transcript: sess.Transcript, SessionID: sessionID}
	p.mu.Lock()
	switch p.mode {
	case DeltaModeTranscript:
		req.PreviousTranscript = st.prevTranscript
	default:
		req.PreviousInsights = st.prevInsights
	}
	p.mu.Unlock()

	sink := func(text string) error {
		if p.hub != nil {
			p.hub.BroadcastInsightFragment(sessionID, text)
		}
		return nil
	}

	result, err := p.engine.Synthesize(ctx, req, sink)
	if err != nil {
		slog.Warn("synthesis failed", "session", sessionID, "error", err)
		return
	}
	if result.Stale || result.Insights == "" {
		return
	}

	if p.hub != nil {
		p.hub.BroadcastInsightsReady(sessionID, result.Insights)
	}

	p.mu.Lock()
	st.prevInsights = result.Insights
	st.prevTranscript = req.Transcript
	p.mu.Unlock()

	delta, err := p.extractor.Extract(ctx, req, result.Insights)
	if err != nil {
		slog.Warn("delta extraction failed", "session", sessionID, "error", err)
		return
	}
	if delta == "" || p.notifier == nil {
		return
	}

	p.notifier.Dispatch(delta)
	if p.hub != nil {
		p.hub.BroadcastNotificationSent(sessionID, delta)
	}
}

func (p *Pipeline) state(sessionID string) *sessionState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[sessionID]
	if !ok {
		if p.states == nil {
			p.states = make(map[string]*sessionState)
		}
		st = &sessionState{trigger: NewTrigger(p.debounce)}
		p.states[sessionID] = st
	}
	return st
}
