/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state and that loading
	one scenario after another leaves only the second one's rows.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/pharmacy"
)

func TestScenario_SmallClinic(t *testing.T) {
	// GIVEN: The small-clinic scenario
	// WHEN: Loading it
	// THEN: Five drugs, BN-0001 has two prescriptions (newest saved, oldest
	//       dispensed) and dispensed stock was debited

	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadSmallClinicScenario(ctx))

	catalog, err := h.Engine.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, 5)

	list, err := h.Engine.ListPrescriptionsForPatient(ctx, "BN-0001")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, pharmacy.StatusSaved, list[0].Status)
	assert.Equal(t, pharmacy.StatusDispensed, list[1].Status)

	amox, err := h.Engine.GetCatalogEntry(ctx, "AMOX500")
	require.NoError(t, err)
	assert.Equal(t, int64(99), amox.QuantityOnHand)

	lora, err := h.Engine.GetCatalogEntry(ctx, "LORA10")
	require.NoError(t, err)
	assert.Equal(t, int64(60), lora.QuantityOnHand, "saved prescriptions do not touch stock")
}

func TestScenario_StockShortage_DispenseRejected(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadStockShortageScenario(ctx))

	list, err := h.Engine.ListPrescriptionsForPatient(ctx, "BN-0003")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = h.Engine.Dispense(ctx, list[0].ID, "duoc.si.hoa", testNow)
	var stockErr *pharmacy.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(7), stockErr.Requested)
	assert.Equal(t, int64(5), stockErr.Available)
}

func TestScenario_Drafts(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.loadDraftsScenario(ctx))

	for _, patient := range []string{"BN-0004", "BN-0005"} {
		list, err := h.Engine.ListPrescriptionsForPatient(ctx, patient)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, pharmacy.StatusDraft, list[0].Status)
	}
}

func TestLoadScenario_ResetsBetweenLoads(t *testing.T) {
	_, router := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "small-clinic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "drafts"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/patients/BN-0001/prescriptions", nil)
	assert.Empty(t, decode[[]pharmacy.Prescription](t, rec))

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "drafts", decode[ScenarioDTO](t, rec).ID)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListScenarios_AllLoadable(t *testing.T) {
	for _, s := range scenarios {
		_, ok := scenarioLoaders[s.ID]
		assert.True(t, ok, s.ID)
	}
	assert.Len(t, scenarioLoaders, len(scenarios))
}
