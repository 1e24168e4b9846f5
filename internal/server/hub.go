package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastTranscriptFragment(sessionID, text string) {
	h.broadcastEvent(TranscriptFragmentEvent{
		Event:     newEvent("transcript_fragment", time.Now().UTC()),
		SessionID: sessionID,
		Text:      text,
	})
}

func (h *Hub) BroadcastInsightFragment(sessionID, text string) {
	h.broadcastEvent(InsightFragmentEvent{
		Event:     newEvent("insight_fragment", time.Now().UTC()),
		SessionID: sessionID,
		Text:      text,
	})
}

func (h *Hub) BroadcastInsightsReady(sessionID, insights string) {
	h.broadcastEvent(InsightsReadyEvent{
		Event:     newEvent("insights_ready", time.Now().UTC()),
		SessionID: sessionID,
		Insights:  insights,
	})
}

func (h *Hub) BroadcastNotificationSent(sessionID, delta string) {
	h.broadcastEvent(NotificationSentEvent{
		Event:     newEvent("notification_sent", time.Now().UTC()),
		SessionID: sessionID,
		Delta:     delta,
	})
}

func (h *Hub) BroadcastSessionCreated(sessionID string) {
	h.broadcastEvent(SessionCreatedEvent{
		Event:     newEvent("session_created", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
