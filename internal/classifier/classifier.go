// Package classifier maps free-form request text to matched intents.
package classifier

import (
	"context"
	"sort"
	"strings"

	sageflow "github.com/sageflow-ai/sageflow"
)

// KeywordClassifier matches intents by case-insensitive substring scanning.
// It is multi-label: every intent with at least one keyword hit is returned,
// not just the first. The intent table is read-only after construction.
type KeywordClassifier struct {
	intents []sageflow.Intent
}

// New creates a classifier over a static intent table.
func New(intents []sageflow.Intent) *KeywordClassifier {
	table := make([]sageflow.Intent, len(intents))
	copy(table, intents)
	return &KeywordClassifier{intents: table}
}

// Intents returns the intent table in registration order.
func (c *KeywordClassifier) Intents() []sageflow.Intent {
	return c.intents
}

// Classify scans the text for every registered intent's keywords and returns
// all matches ordered by descending match strength, ties broken by intent
// registration order. A request matching nothing yields the reserved general
// intent so the planner always receives at least one match.
func (c *KeywordClassifier) Classify(_ context.Context, text string) ([]sageflow.IntentMatch, error) {
	lowered := strings.ToLower(text)

	matches := make([]sageflow.IntentMatch, 0, len(c.intents))
	for _, intent := range c.intents {
		if intent.Name == sageflow.GeneralIntentName {
			continue
		}
		var hits []string
		for _, keyword := range intent.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				hits = append(hits, keyword)
			}
		}
		if len(hits) > 0 {
			matches = append(matches, sageflow.IntentMatch{
				IntentName:      intent.Name,
				MatchedKeywords: hits,
				MatchStrength:   len(hits),
			})
		}
	}

	if len(matches) == 0 {
		return []sageflow.IntentMatch{{IntentName: sageflow.GeneralIntentName}}, nil
	}

	// Stable sort keeps registration order among equal strengths. The
	// ordering is advisory only; the planner re-orders tools by tier.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchStrength > matches[j].MatchStrength
	})
	return matches, nil
}

// Lookup returns an intent by name.
func (c *KeywordClassifier) Lookup(name string) (sageflow.Intent, bool) {
	for _, intent := range c.intents {
		if intent.Name == name {
			return intent, true
		}
	}
	return sageflow.Intent{}, false
}
