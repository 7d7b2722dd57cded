package data

import (
	"context"
	"testing"

	sageflow "github.com/sageflow-ai/sageflow"
)

func TestMemoryStore_UnknownTenant(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("acme", sageflow.DataKindOrders, []sageflow.Record{{"sku": "WIDGET-A"}})

	if _, err := store.Records(context.Background(), "ghost", sageflow.DataKindOrders); err == nil {
		t.Fatal("expected unknown tenant to fail")
	}
}

func TestMemoryStore_KnownTenantEmptyKind(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("acme", sageflow.DataKindOrders, []sageflow.Record{{"sku": "WIDGET-A"}})

	records, err := store.Records(context.Background(), "acme", sageflow.DataKindCustomers)
	if err != nil {
		t.Fatalf("empty kind for a known tenant should not fail: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := SampleStore("acme")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Records(ctx, "acme", sageflow.DataKindOrders); err == nil {
		t.Fatal("expected cancelled context to fail the read")
	}
}

func TestMemoryStore_CopiesOut(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("acme", sageflow.DataKindOrders, []sageflow.Record{{"sku": "WIDGET-A"}})

	records, err := store.Records(context.Background(), "acme", sageflow.DataKindOrders)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	records[0] = sageflow.Record{"sku": "TAMPERED"}

	again, err := store.Records(context.Background(), "acme", sageflow.DataKindOrders)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if again[0]["sku"] != "WIDGET-A" {
		t.Fatal("store slice was mutated through a returned copy")
	}
}

func TestSampleStore_SeedsAllKinds(t *testing.T) {
	store := SampleStore("acme")
	for _, kind := range []string{sageflow.DataKindOrders, sageflow.DataKindInventory, sageflow.DataKindCustomers} {
		records, err := store.Records(context.Background(), "acme", kind)
		if err != nil {
			t.Fatalf("read %s failed: %v", kind, err)
		}
		if len(records) == 0 {
			t.Errorf("kind %s is empty", kind)
		}
	}
}
