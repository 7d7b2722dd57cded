// Package data provides the record store tools read raw business data from.
package data

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"

	sageflow "github.com/sageflow-ai/sageflow"
)

// MemoryStore is a thread-safe in-memory record store keyed by tenant and
// data kind. Production deployments put a database-backed implementation
// behind the same interface; this one serves tests and the demo server.
type MemoryStore struct {
	mutex sync.RWMutex
	data  map[string]map[string][]sageflow.Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string][]sageflow.Record),
	}
}

// Seed replaces the records of one tenant and kind.
func (s *MemoryStore) Seed(tenant, kind string, records []sageflow.Record) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	kinds, ok := s.data[tenant]
	if !ok {
		kinds = make(map[string][]sageflow.Record)
		s.data[tenant] = kinds
	}
	kinds[kind] = records
}

// Records returns the stored records for a tenant and kind. An unknown
// tenant is a not-found error; a known tenant with no records of the kind
// yields an empty slice.
func (s *MemoryStore) Records(ctx context.Context, tenant, kind string) ([]sageflow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errbuilder.WrapIfContextDone(ctx, err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	kinds, ok := s.data[tenant]
	if !ok {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr(fmt.Sprintf("tenant not found: %s", tenant), nil))
	}
	records := kinds[kind]
	out := make([]sageflow.Record, len(records))
	copy(out, records)
	return out, nil
}

// SampleStore returns a store seeded with a small retail dataset for the
// demo server and examples. Order rows carry period, sku, quantity and
// revenue; inventory rows carry stock levels and costs; customer rows carry
// activity flags.
func SampleStore(tenant string) *MemoryStore {
	s := NewMemoryStore()

	s.Seed(tenant, sageflow.DataKindOrders, []sageflow.Record{
		{"period": "2026-01", "sku": "WIDGET-A", "quantity": 120.0, "revenue": 2400.0, "customer_id": "c-001"},
		{"period": "2026-02", "sku": "WIDGET-A", "quantity": 135.0, "revenue": 2700.0, "customer_id": "c-002"},
		{"period": "2026-03", "sku": "WIDGET-A", "quantity": 150.0, "revenue": 3000.0, "customer_id": "c-001"},
		{"period": "2026-04", "sku": "WIDGET-A", "quantity": 160.0, "revenue": 3200.0, "customer_id": "c-003"},
		{"period": "2026-05", "sku": "WIDGET-A", "quantity": 170.0, "revenue": 3400.0, "customer_id": "c-002"},
		{"period": "2026-06", "sku": "WIDGET-A", "quantity": 185.0, "revenue": 3700.0, "customer_id": "c-004"},
		{"period": "2026-01", "sku": "GADGET-B", "quantity": 40.0, "revenue": 3200.0, "customer_id": "c-002"},
		{"period": "2026-02", "sku": "GADGET-B", "quantity": 38.0, "revenue": 3040.0, "customer_id": "c-003"},
		{"period": "2026-03", "sku": "GADGET-B", "quantity": 42.0, "revenue": 3360.0, "customer_id": "c-001"},
		{"period": "2026-04", "sku": "GADGET-B", "quantity": 36.0, "revenue": 2880.0, "customer_id": "c-004"},
		{"period": "2026-05", "sku": "GADGET-B", "quantity": 44.0, "revenue": 3520.0, "customer_id": "c-002"},
		{"period": "2026-06", "sku": "GADGET-B", "quantity": 41.0, "revenue": 3280.0, "customer_id": "c-005"},
	})

	s.Seed(tenant, sageflow.DataKindInventory, []sageflow.Record{
		{"sku": "WIDGET-A", "on_hand": 90.0, "unit_cost": 8.0, "order_cost": 50.0, "holding_cost": 2.0, "lead_time_days": 9.0},
		{"sku": "GADGET-B", "on_hand": 400.0, "unit_cost": 45.0, "order_cost": 60.0, "holding_cost": 9.0, "lead_time_days": 16.0},
		{"sku": "TRINKET-C", "on_hand": 0.0, "unit_cost": 3.0, "order_cost": 40.0, "holding_cost": 1.0, "lead_time_days": 4.0},
	})

	s.Seed(tenant, sageflow.DataKindCustomers, []sageflow.Record{
		{"customer_id": "c-001", "active": true, "orders": 3.0, "last_order_period": "2026-05"},
		{"customer_id": "c-002", "active": true, "orders": 4.0, "last_order_period": "2026-06"},
		{"customer_id": "c-003", "active": false, "orders": 2.0, "last_order_period": "2026-02"},
		{"customer_id": "c-004", "active": true, "orders": 2.0, "last_order_period": "2026-06"},
		{"customer_id": "c-005", "active": false, "orders": 1.0, "last_order_period": "2026-06"},
	})

	return s
}
