package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type TranscriptFragmentEvent struct {
	Event
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type InsightFragmentEvent struct {
	Event
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type InsightsReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	Insights  string `json:"insights"`
}

type NotificationSentEvent struct {
	Event
	SessionID string `json:"session_id"`
	Delta     string `json:"delta"`
}

type SessionCreatedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
