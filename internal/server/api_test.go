package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/earshot-ai/earshot/internal/session"
	"github.com/earshot-ai/earshot/internal/store"
	"github.com/earshot-ai/earshot/internal/stream"
)

type storeStub struct {
	mu       sync.Mutex
	sessions map[string]store.Session
	listing  []store.Session
}

func (s *storeStub) Create() (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := store.Session{ID: "fresh-id", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if s.sessions == nil {
		s.sessions = make(map[string]store.Session)
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *storeStub) Get(id string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return store.Session{}, store.ErrNotFound
}

func (s *storeStub) List() ([]store.Session, error) {
	return s.listing, nil
}

type engineStub struct {
	mu     sync.Mutex
	chunks []string
	err    error
	result session.Result
	gotReq session.Request
	calls  int
}

func (e *engineStub) Synthesize(_ context.Context, req session.Request, sink func(string) error) (session.Result, error) {
	e.mu.Lock()
	e.gotReq = req
	e.calls++
	e.mu.Unlock()

	var b strings.Builder
	for _, chunk := range e.chunks {
		b.WriteString(chunk)
		if err := sink(chunk); err != nil {
			return session.Result{}, err
		}
	}
	if e.err != nil {
		return session.Result{Insights: b.String()}, e.err
	}

	result := e.result
	if result.Insights == "" {
		result.Insights = b.String()
	}
	return result, nil
}

type extractorStub struct {
	mu     sync.Mutex
	delta  string
	err    error
	gotReq session.Request
	full   string
	calls  int
}

func (x *extractorStub) Extract(_ context.Context, req session.Request, fullInsights string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.gotReq = req
	x.full = fullInsights
	x.calls++
	return x.delta, x.err
}

type notifierStub struct {
	mu    sync.Mutex
	texts []string
}

func (n *notifierStub) Dispatch(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func (n *notifierStub) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type transcriberStub struct {
	mu             sync.Mutex
	chunks         []string
	err            error
	gotMime        string
	gotAudio       []byte
	gotInstruction string
}

func (ts *transcriberStub) TranscribeAudio(_ context.Context, mimeType string, audio []byte, instruction string, fn func(string) error) error {
	ts.mu.Lock()
	ts.gotMime = mimeType
	ts.gotAudio = audio
	ts.gotInstruction = instruction
	ts.mu.Unlock()

	for _, chunk := range ts.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return ts.err
}

type pipelineStub struct {
	mu        sync.Mutex
	fragments []string
	err       error
}

func (p *pipelineStub) OnFragment(_ context.Context, sessionID, fragment string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragments = append(p.fragments, sessionID+":"+fragment)
	return p.err
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func postSynthesize(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/synthesize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSynthesizeRejectsEmptyTranscript(t *testing.T) {
	engine := &engineStub{chunks: []string{"never"}}
	h := Handler(NewHub(), Deps{Store: &storeStub{}, Engine: engine, Extractor: &extractorStub{}})

	rr := postSynthesize(t, h, map[string]string{"transcript": "   "})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); strings.Contains(ct, "text/event-stream") {
		t.Fatalf("expected no stream body on rejection, got content-type %q", ct)
	}
	if engine.calls != 0 {
		t.Fatalf("expected no synthesis for empty transcript, got %d calls", engine.calls)
	}
}

func TestSynthesizeRejectsAmbiguousPriorContext(t *testing.T) {
	h := Handler(NewHub(), Deps{Store: &storeStub{}, Engine: &engineStub{}, Extractor: &extractorStub{}})

	rr := postSynthesize(t, h, map[string]string{
		"transcript":         "a transcript of sixty or so characters talking about things",
		"previousInsights":   "old",
		"previousTranscript": "older",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ambiguous prior context, got %d", rr.Code)
	}
}

func TestSynthesizeStreamsAndNotifiesBaseline(t *testing.T) {
	engine := &engineStub{chunks: []string{"- insight ", "one\n", "- insight two"}}
	extractor := &extractorStub{delta: "- insight one\n- insight two"}
	notifier := &notifierStub{}
	h := Handler(NewHub(), Deps{Store: &storeStub{}, Engine: engine, Extractor: extractor, Notifier: notifier})

	transcript := "sixty characters of transcript text mentioning several topics"
	rr := postSynthesize(t, h, map[string]string{"transcript": transcript})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content-type, got %q", ct)
	}

	text, streamErr, err := stream.Collect(rr.Body)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if streamErr != "" {
		t.Fatalf("unexpected in-band error %q", streamErr)
	}
	if text != "- insight one\n- insight two" {
		t.Fatalf("unexpected streamed insights %q", text)
	}

	waitFor(t, func() bool { return len(notifier.all()) == 1 }, "expected baseline notification")
	if got := notifier.all()[0]; got != "- insight one\n- insight two" {
		t.Fatalf("expected extractor output dispatched, got %q", got)
	}
}

func TestSynthesizeBackendErrorYieldsErrorFrameAndTerminator(t *testing.T) {
	engine := &engineStub{chunks: []string{"partial "}, err: errors.New("backend unavailable")}
	notifier := &notifierStub{}
	h := Handler(NewHub(), Deps{Store: &storeStub{}, Engine: engine, Extractor: &extractorStub{}, Notifier: notifier})

	rr := postSynthesize(t, h, map[string]string{"transcript": "a transcript of sufficient length for the backend to fail on"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 (stream already open), got %d", rr.Code)
	}

	text, streamErr, err := stream.Collect(rr.Body)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if text != "partial " {
		t.Fatalf("expected delivered fragments to stand, got %q", text)
	}
	if !strings.Contains(streamErr, "backend unavailable") {
		t.Fatalf("expected in-band error frame, got %q", streamErr)
	}

	time.Sleep(50 * time.Millisecond)
	if len(notifier.all()) != 0 {
		t.Fatalf("expected no notification after backend error, got %v", notifier.all())
	}
}

func TestSynthesizeStaleResultSkipsNotification(t *testing.T) {
	engine := &engineStub{chunks: []string{"stale"}, result: session.Result{Insights: "stale", Stale: true}}
	extractor := &extractorStub{delta: "should not be sent"}
	notifier := &notifierStub{}
	h := Handler(NewHub(), Deps{Store: &storeStub{}, Engine: engine, Extractor: extractor, Notifier: notifier})

	rr := postSynthesize(t, h, map[string]string{
		"transcript": "a transcript of sufficient length for a stale synthesis run",
		"sessionId":  "s1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	time.Sleep(50 * time.Millisecond)
	if extractor.calls != 0 || len(notifier.all()) != 0 {
		t.Fatalf("expected stale result to skip delta and notification")
	}
}

func TestSessionsCreateListGet(t *testing.T) {
	st := &storeStub{listing: []store.Session{{ID: "newer"}, {ID: "older"}}}
	h := Handler(NewHub(), Deps{Store: st, Engine: &engineStub{}, Extractor: &extractorStub{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", rr.Code)
	}
	var created store.Session
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created session: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected created session id")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var listed []store.Session
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "newer" {
		t.Fatalf("unexpected listing %v", listed)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get unknown: expected 404, got %d", rr.Code)
	}
}

func multipartAudio(t *testing.T, field, sessionID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, "audio.webm")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("fake-opus-bytes")); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if sessionID != "" {
		if err := mw.WriteField("sessionId", sessionID); err != nil {
			t.Fatalf("write sessionId: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestTranscribeStreamsAndFeedsPipeline(t *testing.T) {
	transcriber := &transcriberStub{chunks: []string{"hello ", "world"}}
	pipeline := &pipelineStub{}
	h := Handler(NewHub(), Deps{
		Store:       &storeStub{},
		Engine:      &engineStub{},
		Extractor:   &extractorStub{},
		Transcriber: transcriber,
		Pipeline:    pipeline,
	})

	body, contentType := multipartAudio(t, "audio", "s1")
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	text, streamErr, err := stream.Collect(rr.Body)
	if err != nil || streamErr != "" {
		t.Fatalf("Collect failed: %v %q", err, streamErr)
	}
	if text != "hello world" {
		t.Fatalf("expected streamed transcript, got %q", text)
	}

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	if len(pipeline.fragments) != 2 || pipeline.fragments[0] != "s1:hello " {
		t.Fatalf("expected pipeline fed in order, got %v", pipeline.fragments)
	}

	transcriber.mu.Lock()
	defer transcriber.mu.Unlock()
	if string(transcriber.gotAudio) != "fake-opus-bytes" {
		t.Fatalf("expected audio bytes forwarded, got %q", transcriber.gotAudio)
	}
	if !strings.Contains(transcriber.gotInstruction, "Transcribe this audio exactly") {
		t.Fatalf("unexpected instruction %q", transcriber.gotInstruction)
	}
}

func TestTranscribeMissingAudioIsRejected(t *testing.T) {
	h := Handler(NewHub(), Deps{
		Store:       &storeStub{},
		Engine:      &engineStub{},
		Extractor:   &extractorStub{},
		Transcriber: &transcriberStub{},
	})

	body, contentType := multipartAudio(t, "", "")
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTranscribeWithoutTranscriberIsUnavailable(t *testing.T) {
	h := Handler(NewHub(), Deps{Store: &storeStub{}, Engine: &engineStub{}, Extractor: &extractorStub{}})

	body, contentType := multipartAudio(t, "audio", "")
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
