/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	clinic data for demos and front-end development. Each scenario creates
	catalog entries, books stock receipts, and writes prescriptions that
	show one part of the fulfillment lifecycle.

AVAILABLE SCENARIOS:

	small-clinic:    Five-drug catalog, two patients, one dispensed visit
	stock-shortage:  A saved prescription asking for more than is on hand
	drafts:          Draft prescriptions waiting to be finalized

HOW SCENARIOS WORK:
 1. Reset database (delete all rows, keep schema)
 2. Upsert catalog entries
 3. Restock
 4. Create prescriptions
 5. Optionally dispense or cancel some of them

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-clinic"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared helpers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-clinic",
		Name:        "Small Clinic",
		Description: "Five-drug catalog, two patients, one prescription already dispensed",
	},
	{
		ID:          "stock-shortage",
		Name:        "Stock Shortage",
		Description: "A saved prescription that needs more units than the catalog holds",
	},
	{
		ID:          "drafts",
		Name:        "Drafts",
		Description: "Draft prescriptions that must be finalized before dispensing",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"small-clinic":   (*Handler).loadSmallClinicScenario,
	"stock-shortage": (*Handler).loadStockShortageScenario,
	"drafts":         (*Handler).loadDraftsScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Engine.Reset(ctx); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx); err != nil {
		h.writeDomainError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var demoCatalog = []struct {
	entry pharmacy.CatalogEntry
	stock int64
}{
	{pharmacy.CatalogEntry{Code: "PARA500", Name: "Paracetamol 500mg", Unit: "tablet", Price: decimal.NewFromInt(1500)}, 200},
	{pharmacy.CatalogEntry{Code: "AMOX500", Name: "Amoxicillin 500mg", Unit: "capsule", Price: decimal.NewFromInt(2500)}, 120},
	{pharmacy.CatalogEntry{Code: "LORA10", Name: "Loratadine 10mg", Unit: "tablet", Price: decimal.NewFromInt(1800)}, 60},
	{pharmacy.CatalogEntry{Code: "ORS", Name: "Oral rehydration salts", Unit: "sachet", Price: decimal.NewFromInt(3000)}, 8},
	{pharmacy.CatalogEntry{Code: "SALB2", Name: "Salbutamol syrup 2mg/5ml", Unit: "bottle", Price: decimal.RequireFromString("32500.50")}, 5},
}

func (h *Handler) seedCatalog(ctx context.Context, at time.Time) error {
	for _, d := range demoCatalog {
		if err := h.Engine.UpsertCatalogEntry(ctx, d.entry); err != nil {
			return err
		}
		if _, err := h.Engine.RestockWithNote(ctx, d.entry.Code, d.stock, at, "opening stock"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadSmallClinicScenario(ctx context.Context) error {
	visit := time.Now().UTC().Truncate(time.Hour).Add(-48 * time.Hour)
	if err := h.seedCatalog(ctx, visit.Add(-24*time.Hour)); err != nil {
		return err
	}

	first, err := h.Engine.CreatePrescription(ctx, pharmacy.NewPrescription{
		PatientID:  "BN-0001",
		ExamRef:    "KB-2001",
		Prescriber: "dr.minh",
		CreatedAt:  visit,
		Diagnosis:  "Acute pharyngitis",
	}, []pharmacy.NewItem{
		{DrugCode: "AMOX500", Quantity: 21, DoseMorning: "1", DoseNoon: "1", DoseEvening: "1", Days: 7},
		{DrugCode: "PARA500", Quantity: 10, DoseMorning: "1", DoseEvening: "1", Days: 5, Note: "if fever"},
	})
	if err != nil {
		return err
	}
	if _, err := h.Engine.Dispense(ctx, first, "duoc.si.hoa", visit.Add(20*time.Minute)); err != nil {
		return err
	}

	_, err = h.Engine.CreatePrescription(ctx, pharmacy.NewPrescription{
		PatientID:  "BN-0001",
		ExamRef:    "KB-2040",
		Prescriber: "dr.minh",
		CreatedAt:  visit.Add(24 * time.Hour),
		Diagnosis:  "Allergic rhinitis",
	}, []pharmacy.NewItem{
		{DrugCode: "LORA10", Quantity: 10, DoseMorning: "1", Days: 10},
		{DisplayName: "Saline nasal spray", Quantity: 1, Unit: "bottle", UnitPrice: decimal.NewFromInt(45000)},
	})
	if err != nil {
		return err
	}

	_, err = h.Engine.CreatePrescription(ctx, pharmacy.NewPrescription{
		PatientID:  "BN-0002",
		Prescriber: "dr.lan",
		CreatedAt:  visit.Add(26 * time.Hour),
		Diagnosis:  "Gastroenteritis",
	}, []pharmacy.NewItem{
		{DrugCode: "ORS", Quantity: 6, DoseMorning: "1", DoseAfternoon: "1", Days: 3},
	})
	return err
}

func (h *Handler) loadStockShortageScenario(ctx context.Context) error {
	now := time.Now().UTC().Truncate(time.Minute)
	if err := h.seedCatalog(ctx, now.Add(-time.Hour)); err != nil {
		return err
	}
	_, err := h.Engine.CreatePrescription(ctx, pharmacy.NewPrescription{
		PatientID:  "BN-0003",
		Prescriber: "dr.lan",
		CreatedAt:  now,
		Diagnosis:  "Asthma exacerbation",
	}, []pharmacy.NewItem{
		{DrugCode: "SALB2", Quantity: 4, Days: 10},
		{DrugCode: "SALB2", Quantity: 3, Note: "spare for school"},
	})
	return err
}

func (h *Handler) loadDraftsScenario(ctx context.Context) error {
	now := time.Now().UTC().Truncate(time.Minute)
	if err := h.seedCatalog(ctx, now.Add(-time.Hour)); err != nil {
		return err
	}
	for i, patient := range []string{"BN-0004", "BN-0005"} {
		_, err := h.Engine.CreatePrescription(ctx, pharmacy.NewPrescription{
			PatientID:  patient,
			Prescriber: "dr.minh",
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
			Status:     pharmacy.StatusDraft,
		}, []pharmacy.NewItem{
			{DrugCode: "PARA500", Quantity: 6, DoseMorning: "1", DoseEvening: "1", Days: 3},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
