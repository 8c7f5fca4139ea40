package dispensing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/clock"
	"github.com/warp/clinic-rx/dispensing"
	"github.com/warp/clinic-rx/pharmacy"
	"github.com/warp/clinic-rx/pharmacy/memory"
)

// =============================================================================
// COORDINATOR AGAINST THE IN-MEMORY STORE
// =============================================================================

func codePtr(s string) *string { return &s }

func memoryFixture(t *testing.T, stock map[string]int64, items ...pharmacy.PrescriptionItem) (*memory.Memory, *dispensing.Coordinator) {
	t.Helper()
	mem := memory.NewMemory()
	for c, qty := range stock {
		mem.PutCatalogEntry(pharmacy.CatalogEntry{Code: c, Name: c, Unit: "tablet", Price: decimal.NewFromInt(1000), QuantityOnHand: qty})
	}
	mem.PutPrescription(pharmacy.Prescription{
		ID: 1, PatientID: "BN-1", Prescriber: "dr.minh", CreatedAt: t0, Status: pharmacy.StatusSaved, Items: items,
	})
	return mem, dispensing.New(mem, dispensing.WithClock(clock.NewFake(t0)))
}

func TestMemory_DispenseDebitsAndAudits(t *testing.T) {
	mem, coord := memoryFixture(t, map[string]int64{"A": 10, "B": 4},
		pharmacy.PrescriptionItem{Position: 1, DrugCode: codePtr("A"), Quantity: 3},
		pharmacy.PrescriptionItem{Position: 2, DisplayName: "herbal tea", Quantity: 1},
		pharmacy.PrescriptionItem{Position: 3, DrugCode: codePtr("B"), Quantity: 4},
	)

	out, err := coord.Dispense(context.Background(), 1, staff, t0)
	require.NoError(t, err)
	assert.Len(t, out.StockChanges, 2)

	a, _ := mem.CatalogEntry("A")
	b, _ := mem.CatalogEntry("B")
	assert.Equal(t, int64(7), a.QuantityOnHand)
	assert.Equal(t, int64(0), b.QuantityOnHand)

	p, _ := mem.Prescription(1)
	assert.Equal(t, pharmacy.StatusDispensed, p.Status)
	require.Len(t, mem.Audit(), 1)
	assert.Equal(t, staff, mem.Audit()[0].DispensedBy)
}

func TestMemory_RejectLeavesStateUntouched(t *testing.T) {
	// GIVEN: The second code is short by one unit
	// WHEN: Dispensing under the reject policy
	// THEN: The first code's debit is rolled back with the rest

	mem, coord := memoryFixture(t, map[string]int64{"A": 10, "B": 2},
		pharmacy.PrescriptionItem{Position: 1, DrugCode: codePtr("A"), Quantity: 3},
		pharmacy.PrescriptionItem{Position: 2, DrugCode: codePtr("B"), Quantity: 3},
	)

	_, err := coord.Dispense(context.Background(), 1, staff, t0)
	assert.ErrorIs(t, err, pharmacy.ErrInsufficientStock)

	a, _ := mem.CatalogEntry("A")
	assert.Equal(t, int64(10), a.QuantityOnHand)
	p, _ := mem.Prescription(1)
	assert.Equal(t, pharmacy.StatusSaved, p.Status)
	assert.Empty(t, mem.Audit())
}

func TestMemory_RedispenseIsBenign(t *testing.T) {
	mem, coord := memoryFixture(t, map[string]int64{"A": 10},
		pharmacy.PrescriptionItem{Position: 1, DrugCode: codePtr("A"), Quantity: 3},
	)
	ctx := context.Background()

	_, err := coord.Dispense(ctx, 1, staff, t0)
	require.NoError(t, err)
	out, err := coord.Dispense(ctx, 1, "someone.else", t0)
	require.NoError(t, err)
	assert.True(t, out.AlreadyDispensed)
	assert.Equal(t, staff, out.DispensedBy)

	a, _ := mem.CatalogEntry("A")
	assert.Equal(t, int64(7), a.QuantityOnHand)
	assert.Len(t, mem.Audit(), 1)
}

func TestMemory_CancelledContext(t *testing.T) {
	_, coord := memoryFixture(t, map[string]int64{"A": 10},
		pharmacy.PrescriptionItem{Position: 1, DrugCode: codePtr("A"), Quantity: 3},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Dispense(ctx, 1, staff, t0)
	assert.ErrorIs(t, err, context.Canceled)
}
