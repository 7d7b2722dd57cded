package sageflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func noopTool(ctx context.Context, bc ContextReader, params map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func TestRegister_DuplicateNameIsConfigError(t *testing.T) {
	reg := NewRegistry()
	spec := NewToolSpec("analyze_inventory", TierAnalysis, noopTool)

	if err := reg.Register(spec); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	err := reg.Register(spec)
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Code != ErrCodeConfig {
		t.Fatalf("expected %s, got %v", ErrCodeConfig, err)
	}
}

func TestRegister_RejectsAfterFreeze(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewToolSpec("analyze_inventory", TierAnalysis, noopTool)); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	reg.Freeze()

	err := reg.Register(NewToolSpec("forecast_demand", TierForecast, noopTool))
	if err == nil {
		t.Fatal("expected registration after freeze to fail")
	}
	if !strings.Contains(err.Error(), "frozen") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegister_RejectsForwardTierReference(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(NewToolSpec("forecast_demand", TierForecast, noopTool,
		WithProduces("demand_forecast")))
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	// An analysis tool cannot depend on a forecast output.
	err = reg.Register(NewToolSpec("analyze_inventory", TierAnalysis, noopTool,
		WithRequires("demand_forecast")))
	if err == nil {
		t.Fatal("expected forward tier reference to be rejected")
	}
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Code != ErrCodeConfig {
		t.Fatalf("expected %s, got %v", ErrCodeConfig, err)
	}
}

func TestRegister_RejectsInvalidSpecs(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(ToolSpec{Name: "", Tier: TierAnalysis, Invoke: noopTool}); err == nil {
		t.Error("expected empty name to be rejected")
	}
	if err := reg.Register(ToolSpec{Name: "no_invoke", Tier: TierAnalysis}); err == nil {
		t.Error("expected nil invoke to be rejected")
	}
	if err := reg.Register(ToolSpec{Name: "bad_tier", Tier: Tier(9), Invoke: noopTool}); err == nil {
		t.Error("expected invalid tier to be rejected")
	}
}

func TestSortByTier_StableWithinTier(t *testing.T) {
	reg := NewRegistry()
	for _, spec := range []ToolSpec{
		NewToolSpec("optimize_inventory", TierOptimization, noopTool),
		NewToolSpec("analyze_inventory", TierAnalysis, noopTool),
		NewToolSpec("analyze_revenue", TierAnalysis, noopTool),
		NewToolSpec("forecast_demand", TierForecast, noopTool),
	} {
		if err := reg.Register(spec); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
	}

	got := reg.SortByTier([]string{"optimize_inventory", "analyze_revenue", "analyze_inventory", "forecast_demand"})
	want := []string{"analyze_revenue", "analyze_inventory", "forecast_demand", "optimize_inventory"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortByTier = %v, want %v", got, want)
	}
}

func TestFingerprint_TracksToolSurface(t *testing.T) {
	build := func(requires ...string) *Registry {
		reg := NewRegistry()
		if err := reg.Register(NewToolSpec("analyze_inventory", TierAnalysis, noopTool,
			WithRequires(requires...), WithProduces("inventory_metrics"))); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
		return reg
	}

	a := build("tenant")
	b := build("tenant")
	c := build("tenant", "period")

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical registries should share a fingerprint")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("changed requires should change the fingerprint")
	}
}

func TestProducedBy(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewToolSpec("analyze_inventory", TierAnalysis, noopTool,
		WithProduces("inventory_metrics", "health_inputs"))); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if got := reg.ProducedBy("inventory_metrics"); len(got) != 1 || got[0] != "analyze_inventory" {
		t.Fatalf("ProducedBy = %v", got)
	}
	if got := reg.ProducedBy("unknown_key"); got != nil {
		t.Fatalf("ProducedBy for unknown key = %v, want nil", got)
	}
}
