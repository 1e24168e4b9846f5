package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/earshot-ai/earshot/internal/llm"
	"github.com/earshot-ai/earshot/internal/store"
)

// ErrEmptyTranscript rejects synthesis of an empty or whitespace-only
// transcript before any stream is opened.
var ErrEmptyTranscript = errors.New("no transcript provided")

// Engine turns a transcript snapshot into a streamed sequence of insight
// fragments and, once the stream is fully read, persists the accumulated
// text against the session.
//
// Each request against a session claims a monotonically increasing
// sequence number. A completion only persists if it still holds the
// latest number, so a stale synthesis overtaken mid-flight cannot
// overwrite a fresher result.
type Engine struct {
	client llm.Client
	store  Store

	mu  sync.Mutex
	seq map[string]uint64
}

func NewEngine(client llm.Client, st Store) *Engine {
	return &Engine{
		client: client,
		store:  st,
		seq:    make(map[string]uint64),
	}
}

// Synthesize streams insight fragments to sink as the backend yields
// them, accumulating the full text. Forwarding always precedes
// persistence; a mid-stream backend error is returned without persisting
// anything, and fragments already forwarded stand. A sink error also
// aborts the stream.
func (e *Engine) Synthesize(ctx context.Context, req Request, sink func(text string) error) (Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return Result{}, ErrEmptyTranscript
	}

	seq := e.claim(req.SessionID)

	var b strings.Builder
	err := e.client.Stream(ctx, synthesisMessages(req.Transcript), func(text string) error {
		b.WriteString(text)
		return sink(text)
	})
	if err != nil {
		return Result{Insights: b.String()}, err
	}

	result := Result{Insights: b.String()}
	if req.SessionID == "" || result.Insights == "" {
		return result, nil
	}

	if !e.isLatest(req.SessionID, seq) {
		result.Stale = true
		slog.Info("discarding stale synthesis", "session", req.SessionID, "seq", seq)
		return result, nil
	}

	// Best-effort: a persistence failure is not surfaced to the stream
	// consumer, who already holds the full text.
	if _, err := e.store.Update(req.SessionID, store.Partial{Insights: &result.Insights}); err != nil {
		slog.Warn("persist insights failed", "session", req.SessionID, "error", err)
		return result, nil
	}
	result.Persisted = true

	return result, nil
}

func (e *Engine) claim(sessionID string) uint64 {
	if sessionID == "" {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq[sessionID]++
	return e.seq[sessionID]
}

func (e *Engine) isLatest(sessionID string, seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq[sessionID] == seq
}
