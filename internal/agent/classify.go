package agent

import (
	"strings"

	"github.com/featden/featd/internal/model"
)

// planMarkers and questionMarkers are the phrases the classifier scans for.
// Kept as package data so the heuristic is swappable in one place.
var (
	planMarkers = []string{
		"## plan",
		"implementation plan",
		"here's the plan",
		"here is the plan",
		"proposed changes:",
	}
	questionMarkers = []string{
		"should i",
		"would you like",
		"do you want",
		"which option",
		"let me know if",
	}
)

// ClassifyText reclassifies a plain assistant text into a more specific
// canonical event type by scanning for marker phrases.
//
// This is a best-effort display heuristic, not a contract: false positives
// and negatives are expected and harmless because clients only use the
// result to pick rendering, never to drive correctness-bearing decisions.
// Backends with native structured signals must prefer those and skip this.
func ClassifyText(content string) model.StreamEventType {
	lower := strings.ToLower(content)

	for _, marker := range planMarkers {
		if strings.Contains(lower, marker) {
			return model.StreamEventPlan
		}
	}

	// Only short trailing questions count, a long message ending with "?" is
	// usually explanation rather than a blocking question.
	trimmed := strings.TrimSpace(lower)
	if strings.HasSuffix(trimmed, "?") {
		for _, marker := range questionMarkers {
			if strings.Contains(lower, marker) {
				return model.StreamEventQuestion
			}
		}
	}

	return model.StreamEventMessage
}
