package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/earshot-ai/earshot/internal/llm"
)

// tickerMinChars is the minimum new-segment length worth a ticker update.
const tickerMinChars = 20

// DeltaMode selects which prior context a deployment feeds back into
// delta extraction. Exactly one mode is active per deployment.
type DeltaMode string

const (
	// DeltaModeInsights diffs the previous full synthesis output against
	// the new one.
	DeltaModeInsights DeltaMode = "insights"

	// DeltaModeTranscript summarizes only the new transcript suffix,
	// independent of the full synthesis.
	DeltaModeTranscript DeltaMode = "transcript"
)

func ParseDeltaMode(raw string) (DeltaMode, error) {
	switch DeltaMode(raw) {
	case DeltaModeInsights, DeltaModeTranscript:
		return DeltaMode(raw), nil
	case "":
		return DeltaModeInsights, nil
	default:
		return "", fmt.Errorf("unknown delta mode %q: expected insights or transcript", raw)
	}
}

// NewSegment returns transcript with the previousTranscript prefix removed
// by length. The slice is positional, not semantic: it is only correct
// while the transcript is append-only and previousTranscript is an exact
// historical snapshot. A previous snapshot at least as long as the current
// transcript yields the empty segment.
func NewSegment(previousTranscript, transcript string) string {
	if len(previousTranscript) >= len(transcript) {
		return ""
	}
	return transcript[len(previousTranscript):]
}

// Extractor computes the "what changed" text between two synthesis
// outputs, or from the new transcript suffix alone, for push notification.
// The mode is picked per request by which prior context is present; with
// no prior context at all, the full insights are the delta.
type Extractor struct {
	client llm.Client
}

func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract returns the notification payload, or the empty string when
// nothing is worth notifying.
func (x *Extractor) Extract(ctx context.Context, req Request, fullInsights string) (string, error) {
	switch {
	case req.PreviousInsights != "":
		return x.insightsDiff(ctx, req.PreviousInsights, fullInsights)
	case req.PreviousTranscript != "":
		return x.transcriptTicker(ctx, req.PreviousTranscript, req.Transcript)
	default:
		// First notification carries the full content.
		return fullInsights, nil
	}
}

func (x *Extractor) insightsDiff(ctx context.Context, previous, latest string) (string, error) {
	out, err := x.client.Complete(ctx, insightsDeltaMessages(previous, latest))
	if err != nil {
		return "", fmt.Errorf("insights delta: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", nil
	}
	return out, nil
}

func (x *Extractor) transcriptTicker(ctx context.Context, previousTranscript, transcript string) (string, error) {
	segment := NewSegment(previousTranscript, transcript)
	if len(segment) <= tickerMinChars {
		return "", nil
	}

	out, err := x.client.Complete(ctx, tickerMessages(segment))
	if err != nil {
		return "", fmt.Errorf("ticker delta: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", nil
	}
	return out, nil
}
