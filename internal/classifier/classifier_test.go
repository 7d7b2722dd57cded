package classifier

import (
	"context"
	"testing"

	sageflow "github.com/sageflow-ai/sageflow"
)

func TestClassify_MultiLabel(t *testing.T) {
	c := New(DefaultIntents())

	matches, err := c.Classify(context.Background(), "Generate inventory optimization report with demand forecast")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	got := make(map[string]int, len(matches))
	for _, m := range matches {
		got[m.IntentName] = m.MatchStrength
	}
	for _, want := range []string{"inventory_analysis", "optimization", "forecast"} {
		if _, ok := got[want]; !ok {
			t.Errorf("expected intent %q to match, got %v", want, got)
		}
	}
	if got["forecast"] != 2 {
		t.Errorf("expected forecast strength 2 (forecast, demand), got %d", got["forecast"])
	}

	// Strongest match first; ties keep registration order.
	if matches[0].IntentName != "forecast" {
		t.Errorf("expected forecast ranked first, got %s", matches[0].IntentName)
	}
	if matches[1].IntentName != "inventory_analysis" || matches[2].IntentName != "optimization" {
		t.Errorf("expected registration-order tie break, got %s, %s", matches[1].IntentName, matches[2].IntentName)
	}
}

func TestClassify_CaseInsensitiveSubstring(t *testing.T) {
	c := New(DefaultIntents())

	matches, err := c.Classify(context.Background(), "How is my INVENTORY doing?")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(matches) != 1 || matches[0].IntentName != "inventory_analysis" {
		t.Fatalf("expected single inventory_analysis match, got %v", matches)
	}
	if len(matches[0].MatchedKeywords) != 1 || matches[0].MatchedKeywords[0] != "inventory" {
		t.Errorf("expected matched keyword 'inventory', got %v", matches[0].MatchedKeywords)
	}
}

func TestClassify_FallbackToGeneral(t *testing.T) {
	c := New(DefaultIntents())

	matches, err := c.Classify(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one fallback match, got %d", len(matches))
	}
	if matches[0].IntentName != sageflow.GeneralIntentName {
		t.Errorf("expected general intent, got %s", matches[0].IntentName)
	}
	if matches[0].MatchStrength != 0 {
		t.Errorf("expected zero strength for fallback, got %d", matches[0].MatchStrength)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(DefaultIntents())
	text := "optimize stock and forecast sales"

	first, _ := c.Classify(context.Background(), text)
	for i := 0; i < 5; i++ {
		again, _ := c.Classify(context.Background(), text)
		if len(again) != len(first) {
			t.Fatalf("match count changed between runs: %d vs %d", len(again), len(first))
		}
		for j := range again {
			if again[j].IntentName != first[j].IntentName {
				t.Fatalf("match order changed between runs at %d: %s vs %s", j, again[j].IntentName, first[j].IntentName)
			}
		}
	}
}

func TestIntentFile_Validate(t *testing.T) {
	table := &IntentFile{
		Name: "test",
		Intents: []sageflow.Intent{
			{Name: "a", Keywords: []string{"x"}},
			{Name: "a", Keywords: []string{"y"}},
		},
	}
	if err := table.Validate(nil); err == nil {
		t.Error("expected duplicate intent name to fail validation")
	}

	table = &IntentFile{
		Name: "test",
		Intents: []sageflow.Intent{
			{Name: "a", Keywords: []string{"x"}, PrimaryTools: []string{"nope"}},
		},
	}
	reg := sageflow.NewRegistry()
	if err := table.Validate(reg); err == nil {
		t.Error("expected unregistered tool reference to fail validation")
	}
}
