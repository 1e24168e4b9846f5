package server

import (
	"log"
	"net/http"

	"github.com/earshot-ai/earshot/internal/llm"
)

// Deps carries the collaborators the API routes need. Nil Notifier,
// Pipeline, and Transcriber degrade the corresponding feature instead of
// failing the server.
type Deps struct {
	Store       SessionStore
	Engine      Synthesizer
	Extractor   DeltaExtractor
	Notifier    Notifier
	Pipeline    FragmentSink
	Transcriber llm.AudioTranscriber
	Warnings    func() []string
}

func Handler(hub *Hub, deps Deps) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub)
	registerAPIRoutes(mux, hub, deps)

	return mux
}

func Serve(addr string, hub *Hub, deps Deps) error {
	log.Printf("API listening at http://%s", addr)
	return http.ListenAndServe(addr, Handler(hub, deps))
}
