package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/earshot-ai/earshot/internal/session"
	"github.com/earshot-ai/earshot/internal/store"
	"github.com/earshot-ai/earshot/internal/stream"
)

// transcribeInstruction is the fixed instruction sent alongside each
// uploaded audio segment.
const transcribeInstruction = "Transcribe this audio exactly. Output only the spoken words, nothing else. If there is no speech, output nothing."

// maxAudioBytes bounds one uploaded capture segment.
const maxAudioBytes = 32 << 20

type SessionStore interface {
	Create() (store.Session, error)
	Get(id string) (store.Session, error)
	List() ([]store.Session, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req session.Request, sink func(text string) error) (session.Result, error)
}

type DeltaExtractor interface {
	Extract(ctx context.Context, req session.Request, fullInsights string) (string, error)
}

type Notifier interface {
	Dispatch(text string)
}

// FragmentSink receives transcript fragments for live sessions.
type FragmentSink interface {
	OnFragment(ctx context.Context, sessionID, fragment string) error
}

func registerAPIRoutes(mux *http.ServeMux, hub *Hub, deps Deps) {
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Store.Create()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create session: %v", err))
			return
		}
		if hub != nil {
			hub.BroadcastSessionCreated(sess.ID)
		}
		writeJSON(w, http.StatusOK, sess)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Store.List()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		if sessions == nil {
			sessions = []store.Session{}
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Store.Get(r.PathValue("id"))
		if err != nil {
			// Absence and store failure are both "no session" on the
			// read path.
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("get session failed", "error", err)
			}
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	mux.HandleFunc("POST /api/synthesize", func(w http.ResponseWriter, r *http.Request) {
		handleSynthesize(w, r, deps)
	})

	mux.HandleFunc("POST /api/transcribe", func(w http.ResponseWriter, r *http.Request) {
		handleTranscribe(w, r, deps)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if deps.Warnings != nil {
			warnings = deps.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"warnings": warnings})
	})
}

// handleSynthesize runs one synthesis attempt: validation fails before any
// stream opens; once the stream is open every failure is reported in-band
// and the terminator is always emitted.
func handleSynthesize(w http.ResponseWriter, r *http.Request, deps Deps) {
	var req session.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse request: %v", err))
		return
	}

	if strings.TrimSpace(req.Transcript) == "" {
		writeJSONError(w, http.StatusBadRequest, "no transcript provided")
		return
	}
	if req.PreviousInsights != "" && req.PreviousTranscript != "" {
		writeJSONError(w, http.StatusBadRequest, "previousInsights and previousTranscript are mutually exclusive")
		return
	}

	sw := stream.NewWriter(w)
	result, err := deps.Engine.Synthesize(r.Context(), req, func(text string) error {
		return sw.Text(text)
	})
	if err != nil {
		_ = sw.Err(err.Error())
		_ = sw.Done()
		return
	}
	_ = sw.Done()

	if result.Stale || result.Insights == "" {
		return
	}

	// Delta extraction and notification are a detached side channel: they
	// must not delay or fail the response, which is already complete.
	go func() {
		ctx := context.Background()
		delta, err := deps.Extractor.Extract(ctx, req, result.Insights)
		if err != nil {
			slog.Warn("delta extraction failed", "session", req.SessionID, "error", err)
			return
		}
		if delta == "" || deps.Notifier == nil {
			return
		}
		deps.Notifier.Dispatch(delta)
	}()
}

func handleTranscribe(w http.ResponseWriter, r *http.Request, deps Deps) {
	if deps.Transcriber == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "transcription not configured")
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse form: %v", err))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "no audio file provided")
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("read audio: %v", err))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	sessionID := r.FormValue("sessionId")

	sw := stream.NewWriter(w)
	err = deps.Transcriber.TranscribeAudio(r.Context(), mimeType, audio, transcribeInstruction, func(text string) error {
		if err := sw.Text(text); err != nil {
			return err
		}
		if sessionID != "" && deps.Pipeline != nil {
			if err := deps.Pipeline.OnFragment(r.Context(), sessionID, text); err != nil {
				slog.Warn("pipeline fragment dropped", "session", sessionID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		_ = sw.Err(err.Error())
	}
	_ = sw.Done()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
