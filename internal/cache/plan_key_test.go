package cache

import "testing"

func TestPlanKey_NormalizesText(t *testing.T) {
	a := PlanKey("  Optimize Pricing ", "fp1", []string{"tenant"})
	b := PlanKey("optimize pricing", "fp1", []string{"tenant"})
	if a != b {
		t.Errorf("normalized texts should share a key: %s vs %s", a, b)
	}
}

func TestPlanKey_RegistryFingerprintInvalidates(t *testing.T) {
	a := PlanKey("optimize pricing", "fp1", []string{"tenant"})
	b := PlanKey("optimize pricing", "fp2", []string{"tenant"})
	if a == b {
		t.Error("different registries must not share plan keys")
	}
}

func TestPlanKey_ContextKeysInvalidate(t *testing.T) {
	a := PlanKey("optimize pricing", "fp1", []string{"tenant"})
	b := PlanKey("optimize pricing", "fp1", []string{"tenant", "region"})
	if a == b {
		t.Error("different seed key sets must not share plan keys")
	}
}

func TestPlanKey_ContextKeyOrderIrrelevant(t *testing.T) {
	a := PlanKey("optimize pricing", "fp1", []string{"region", "tenant"})
	b := PlanKey("optimize pricing", "fp1", []string{"tenant", "region"})
	if a != b {
		t.Errorf("seed key order should not change the key: %s vs %s", a, b)
	}
}
