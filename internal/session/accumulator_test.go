package session

import (
	"strings"
	"testing"
)

func TestAppendIsOrderedConcatenation(t *testing.T) {
	fragments := []string{"one ", "two ", "", "three"}

	transcript := ""
	for _, f := range fragments {
		transcript = Append(transcript, f)
	}

	if transcript != "one two three" {
		t.Fatalf("expected ordered concatenation, got %q", transcript)
	}
}

func TestTrackerSchedulesAfterGrowthThreshold(t *testing.T) {
	var tr Tracker

	transcript := strings.Repeat("a", 150)
	if tr.ShouldSchedule(transcript) {
		t.Fatal("150 chars should not cross the 200-char growth band")
	}

	transcript = strings.Repeat("a", 201)
	if !tr.ShouldSchedule(transcript) {
		t.Fatal("expected schedule once growth exceeds 200 chars")
	}

	// Cursor advanced; small additional growth stays inside the band.
	transcript += strings.Repeat("b", 180)
	if tr.ShouldSchedule(transcript) {
		t.Fatal("expected no schedule inside the hysteresis band")
	}

	transcript += strings.Repeat("b", 30)
	if !tr.ShouldSchedule(transcript) {
		t.Fatal("expected schedule after crossing the band again")
	}
}

func TestTrackerNeverSchedulesShortTranscript(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
	}{
		{name: "empty", transcript: ""},
		{name: "short", transcript: "hi there"},
		{name: "whitespace padded past threshold", transcript: "short" + strings.Repeat(" ", 250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Tracker
			if tr.ShouldSchedule(tt.transcript) {
				t.Fatalf("transcript %q under 50 trimmed chars must never schedule", tt.transcript)
			}
		})
	}
}
