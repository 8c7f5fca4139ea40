package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/pharmacy"
	"github.com/warp/clinic-rx/store/sqlite"
)

// =============================================================================
// CREATE / READ
// =============================================================================

func TestCreatePrescription_FillsFromCatalogAndPersistsTotal(t *testing.T) {
	// GIVEN: PARA500 priced 5000 and a free-text line priced 12000
	// WHEN: Creating a prescription with PARA500 × 2 and the free-text line × 1
	// THEN: Items are ordered, catalog fields filled in, total = 22000

	store := newTestStore(t)
	ctx := context.Background()
	seedDrug(t, store, "PARA500", "Paracetamol 500mg", "viên", 5000, 100)

	id, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{
		linked("PARA500", 2),
		{DisplayName: "Nước muối sinh lý", Quantity: 1, Unit: "chai", UnitPrice: decimal.NewFromInt(12000)},
	})
	require.NoError(t, err)

	p, err := store.GetPrescription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pharmacy.StatusSaved, p.Status)
	assert.Equal(t, "bn-1", p.PatientID)
	assert.True(t, p.CreatedAt.Equal(testNow))
	assert.Equal(t, "22000", p.TotalAmount.String())

	require.Len(t, p.Items, 2)
	first, second := p.Items[0], p.Items[1]
	assert.Equal(t, 1, first.Position)
	require.NotNil(t, first.DrugCode)
	assert.Equal(t, "PARA500", *first.DrugCode)
	assert.Equal(t, "Paracetamol 500mg", first.DisplayName)
	assert.Equal(t, "viên", first.Unit)
	assert.True(t, first.UnitPrice.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, 2, second.Position)
	assert.Nil(t, second.DrugCode)
	assert.False(t, second.Linked())

	// Stock is untouched until dispense.
	e, err := store.GetByCode(ctx, "PARA500")
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.QuantityOnHand)
}

func TestCreatePrescription_UnknownCode_NothingPersisted(t *testing.T) {
	// GIVEN: The second of two items references a code not in the catalog
	// WHEN: Creating the prescription
	// THEN: NotFoundError and no header or item rows exist

	store := newTestStore(t)
	ctx := context.Background()
	seedDrug(t, store, "PARA500", "Paracetamol", "viên", 5000, 100)

	_, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{
		linked("PARA500", 1),
		linked("GHOST", 1),
	})
	require.Error(t, err)
	assert.True(t, pharmacy.IsNotFound(err))

	assert.Equal(t, 0, count(t, store, "SELECT COUNT(*) FROM prescriptions"))
	assert.Equal(t, 0, count(t, store, "SELECT COUNT(*) FROM prescription_items"))
}

func TestCreatePrescription_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		header pharmacy.NewPrescription
		items  []pharmacy.NewItem
		field  string
	}{
		{"no patient", pharmacy.NewPrescription{Prescriber: "dr"}, []pharmacy.NewItem{{DisplayName: "x", Quantity: 1}}, "patient_id"},
		{"no items", header("bn-1"), nil, "items"},
		{"zero quantity", header("bn-1"), []pharmacy.NewItem{{DisplayName: "x", Quantity: 0}}, "items[0].quantity"},
		{"no name or code", header("bn-1"), []pharmacy.NewItem{{Quantity: 1}}, "items[0].display_name"},
		{"blank code", header("bn-1"), []pharmacy.NewItem{{DrugCode: "  ", Quantity: 1}}, "items[0].display_name"},
		{"blank name", header("bn-1"), []pharmacy.NewItem{{DisplayName: " \t", Quantity: 1}}, "items[0].display_name"},
		{"no prescriber", pharmacy.NewPrescription{PatientID: "bn-1"}, []pharmacy.NewItem{{DisplayName: "x", Quantity: 1}}, "prescriber"},
		{"bad status", pharmacy.NewPrescription{PatientID: "bn-1", Prescriber: "dr", Status: pharmacy.StatusDispensed},
			[]pharmacy.NewItem{{DisplayName: "x", Quantity: 1}}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreatePrescription(ctx, tt.header, tt.items)
			var ve *pharmacy.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestListByPatient_NewestFirstWithItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := header("bn-1")
	older.CreatedAt = time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	newer := header("bn-1")
	newer.CreatedAt = time.Date(2025, 2, 5, 10, 0, 0, 0, time.UTC)
	other := header("bn-2")

	oldID, err := store.CreatePrescription(ctx, older, []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}, {DisplayName: "B", Quantity: 2}})
	require.NoError(t, err)
	newID, err := store.CreatePrescription(ctx, newer, []pharmacy.NewItem{{DisplayName: "C", Quantity: 1}})
	require.NoError(t, err)
	_, err = store.CreatePrescription(ctx, other, []pharmacy.NewItem{{DisplayName: "D", Quantity: 1}})
	require.NoError(t, err)

	list, err := store.ListByPatient(ctx, "bn-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newID, list[0].ID)
	assert.Equal(t, oldID, list[1].ID)
	require.Len(t, list[1].Items, 2)
	assert.Equal(t, "A", list[1].Items[0].DisplayName)
	assert.Equal(t, "B", list[1].Items[1].DisplayName)

	empty, err := store.ListByPatient(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetPrescription_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPrescription(context.Background(), 404)
	assert.ErrorIs(t, err, pharmacy.ErrNotFound)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// markDispensed moves a saved prescription to dispensed without touching stock.
func markDispensed(t *testing.T, store *sqlite.Store, id int64) {
	t.Helper()
	require.NoError(t, store.WithDispenseTx(context.Background(), func(tx pharmacy.Tx) error {
		return tx.Transition(context.Background(), id, pharmacy.StatusSaved, pharmacy.StatusDispensed, "duoc.si", testNow)
	}))
}

func TestUpdateHeader_PartialUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}})
	require.NoError(t, err)

	diagnosis := "viêm phế quản"
	total := decimal.NewFromInt(42000)
	require.NoError(t, store.UpdateHeader(ctx, id, pharmacy.HeaderUpdate{Diagnosis: &diagnosis, TotalAmount: &total}))

	p, err := store.GetPrescription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, diagnosis, p.Diagnosis)
	assert.True(t, p.TotalAmount.Equal(total))
	assert.Empty(t, p.Instructions)
}

func TestUpdateHeader_Dispensed_Rejected(t *testing.T) {
	// GIVEN: A dispensed prescription
	// WHEN: Editing its diagnosis
	// THEN: InvalidStateError wrapping ErrAlreadyDispensed; nothing changes

	store := newTestStore(t)
	ctx := context.Background()
	id, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}})
	require.NoError(t, err)
	markDispensed(t, store, id)

	diagnosis := "changed"
	err = store.UpdateHeader(ctx, id, pharmacy.HeaderUpdate{Diagnosis: &diagnosis})
	assert.ErrorIs(t, err, pharmacy.ErrInvalidState)
	assert.ErrorIs(t, err, pharmacy.ErrAlreadyDispensed)

	p, err := store.GetPrescription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fever", p.Diagnosis)
	require.NotNil(t, p.DispensedBy)
	assert.Equal(t, "duoc.si", *p.DispensedBy)
}

func TestUpdateHeader_NegativeTotal_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}})
	require.NoError(t, err)

	total := decimal.NewFromInt(-1)
	assert.ErrorIs(t, store.UpdateHeader(ctx, id, pharmacy.HeaderUpdate{TotalAmount: &total}), pharmacy.ErrValidation)
}

func TestFinalizePrescription_DraftToSavedOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h := header("bn-1")
	h.Status = pharmacy.StatusDraft
	id, err := store.CreatePrescription(ctx, h, []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, store.FinalizePrescription(ctx, id))
	p, err := store.GetPrescription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pharmacy.StatusSaved, p.Status)

	err = store.FinalizePrescription(ctx, id)
	var ise *pharmacy.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, pharmacy.StatusSaved, ise.Status)
	assert.Equal(t, "finalize", ise.Action)

	assert.True(t, pharmacy.IsNotFound(store.FinalizePrescription(ctx, 999)))
}

func TestDeletePrescription_CascadesItems_RefusesDispensed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	keep, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}})
	require.NoError(t, err)
	drop, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{{DisplayName: "B", Quantity: 1}, {DisplayName: "C", Quantity: 1}})
	require.NoError(t, err)
	markDispensed(t, store, keep)

	require.NoError(t, store.DeletePrescription(ctx, drop))
	assert.Equal(t, 0, count(t, store, "SELECT COUNT(*) FROM prescription_items WHERE prescription_id = ?", drop))

	err = store.DeletePrescription(ctx, keep)
	assert.ErrorIs(t, err, pharmacy.ErrAlreadyDispensed)
	assert.Equal(t, 1, count(t, store, "SELECT COUNT(*) FROM prescriptions WHERE id = ?", keep))

	assert.ErrorIs(t, store.DeletePrescription(ctx, drop), pharmacy.ErrNotFound)
}

func TestAppendAudit_SecondRecord_Rejected(t *testing.T) {
	// GIVEN: A prescription with one audit record
	// WHEN: Appending another in a later transaction
	// THEN: The unique index refuses it

	store := newTestStore(t)
	ctx := context.Background()
	id, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{{DisplayName: "A", Quantity: 1}})
	require.NoError(t, err)

	rec := pharmacy.AuditRecord{PrescriptionID: id, DispensedBy: "duoc.si", DispensedAt: testNow}
	require.NoError(t, store.WithDispenseTx(ctx, func(tx pharmacy.Tx) error {
		_, err := tx.AppendAudit(ctx, rec)
		return err
	}))
	err = store.WithDispenseTx(ctx, func(tx pharmacy.Tx) error {
		_, err := tx.AppendAudit(ctx, rec)
		return err
	})
	assert.ErrorIs(t, err, pharmacy.ErrAlreadyDispensed)

	records, err := store.ListAudit(ctx, id)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReset_ClearsRowsKeepsSchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDrug(t, store, "PARA500", "Paracetamol 500mg", "viên", 5000, 100)
	_, err := store.CreatePrescription(ctx, header("bn-1"), []pharmacy.NewItem{linked("PARA500", 2)})
	require.NoError(t, err)

	before, err := store.Schema().Inspect(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	after, err := store.Schema().Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Fingerprint(), after.Fingerprint())
	for _, table := range []string{"prescriptions", "prescription_items", "drug_catalog", "stock_receipts", "dispense_audit"} {
		assert.Equal(t, 0, count(t, store, "SELECT COUNT(*) FROM "+table), table)
	}
}
