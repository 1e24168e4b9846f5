package session

import "strings"

const (
	// minTranscriptChars is the floor below which synthesis is never
	// scheduled, no matter what the growth math says.
	minTranscriptChars = 50

	// growthThreshold is the hysteresis band: synthesis is only scheduled
	// once this many new characters have accumulated since the last
	// scheduled synthesis.
	growthThreshold = 200
)

// Append concatenates a transcribed fragment onto the running transcript.
// Pure; the caller persists the result if durability is wanted.
func Append(current, fragment string) string {
	return current + fragment
}

// Tracker records the transcript length at the last scheduled synthesis
// and decides when enough new text has arrived to schedule another.
// Not safe for concurrent use; the owning pipeline serializes access.
type Tracker struct {
	lastSynthesizedLength int
}

// ShouldSchedule reports whether the transcript has grown past the
// threshold since the last scheduled synthesis. Crossing the threshold
// advances the cursor even when the short-transcript floor suppresses the
// actual scheduling.
func (t *Tracker) ShouldSchedule(updated string) bool {
	if len(updated)-t.lastSynthesizedLength <= growthThreshold {
		return false
	}
	t.lastSynthesizedLength = len(updated)

	return len(strings.TrimSpace(updated)) >= minTranscriptChars
}
