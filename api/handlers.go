/*
handlers.go - HTTP API handlers for the clinic fulfillment engine

PURPOSE:
  Exposes clinic.Engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine.

ENDPOINTS:
  Prescriptions:
    POST   /api/prescriptions                   Create prescription with items
    GET    /api/prescriptions/{id}              Get prescription with items
    PATCH  /api/prescriptions/{id}              Update diagnosis/instructions/total
    DELETE /api/prescriptions/{id}              Delete (not once dispensed)
    POST   /api/prescriptions/{id}/finalize     draft → saved
    POST   /api/prescriptions/{id}/dispense     saved → dispensed, debits stock
    POST   /api/prescriptions/{id}/cancel       saved → cancelled
    GET    /api/prescriptions/{id}/audit        Dispense audit rows
    GET    /api/patients/{patientID}/prescriptions  Newest first

  Catalog:
    GET    /api/catalog                         List entries
    GET    /api/catalog/low-stock?threshold=N   Entries at or below N
    GET    /api/catalog/{code}                  Get entry
    PUT    /api/catalog/{code}                  Upsert name/unit/price
    POST   /api/catalog/{code}/restock          Add stock, write receipt
    GET    /api/catalog/{code}/receipts         Restock history
    GET    /api/inventory/value                 Σ(price × quantity-on-hand)

  Admin:
    POST   /api/admin/schema                    Run EnsureSchema, return report
    GET    /api/admin/low-stock                 Last low-stock monitor run

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    POST   /api/scenarios/load                  Reset and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Prescription or catalog entry not found
  - 409: Lifecycle conflict, insufficient stock
  - 503: Lock timeout (safe to retry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The adapter is meant for the clinic's LAN only.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/clinic-rx/clinic"
	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *clinic.Engine
	Monitor *LowStockMonitor

	log zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over engine. monitor may be nil.
func NewHandler(engine *clinic.Engine, monitor *LowStockMonitor, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:  engine,
		Monitor: monitor,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// PRESCRIPTION HANDLERS
// =============================================================================

// CreatePrescription creates a prescription with its items.
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := h.Engine.CreatePrescription(r.Context(), req.NewPrescription, req.Items)
	if err != nil {
		h.writeDomainError(w, "Failed to create prescription", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// GetPrescription returns one prescription with its items.
func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	p, err := h.Engine.GetPrescription(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get prescription", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPatientPrescriptions returns a patient's prescriptions, newest first.
func (h *Handler) ListPatientPrescriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.ListPrescriptionsForPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeDomainError(w, "Failed to list prescriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpdatePrescription changes mutable header fields of a draft or saved
// prescription.
func (h *Handler) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	var u pharmacy.HeaderUpdate
	if !decodeBody(w, r, &u) {
		return
	}

	if err := h.Engine.UpdateHeader(r.Context(), id, u); err != nil {
		h.writeDomainError(w, "Failed to update prescription", err)
		return
	}
	h.GetPrescription(w, r)
}

// DeletePrescription removes a prescription that was never dispensed.
func (h *Handler) DeletePrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete prescription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinalizePrescription moves a draft to saved.
func (h *Handler) FinalizePrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Finalize(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to finalize prescription", err)
		return
	}
	h.GetPrescription(w, r)
}

// DispensePrescription dispenses a saved prescription. Re-dispensing
// returns 200 with already_dispensed=true.
func (h *Handler) DispensePrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	var req StaffActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.Engine.DispenseOutcome(r.Context(), id, req.Staff, req.At)
	if err != nil {
		h.writeDomainError(w, "Failed to dispense prescription", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelPrescription cancels a saved prescription.
func (h *Handler) CancelPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	var req StaffActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	already, err := h.Engine.Cancel(r.Context(), id, req.Staff, req.At)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel prescription", err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{PrescriptionID: id, AlreadyCancelled: already})
}

// GetAudit returns the dispense audit rows of a prescription.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	records, err := h.Engine.ListAudit(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list audit", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListCatalog returns every catalog entry.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.ListCatalog(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetCatalogEntry returns one entry.
func (h *Handler) GetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Engine.GetCatalogEntry(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeDomainError(w, "Failed to get catalog entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpsertCatalogEntry creates or updates an entry's descriptive fields.
func (h *Handler) UpsertCatalogEntry(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req UpsertCatalogRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry := pharmacy.CatalogEntry{Code: code, Name: req.Name, Unit: req.Unit, Price: req.Price}
	if err := h.Engine.UpsertCatalogEntry(r.Context(), entry); err != nil {
		h.writeDomainError(w, "Failed to save catalog entry", err)
		return
	}
	h.GetCatalogEntry(w, r)
}

// Restock adds stock to an entry.
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := h.Engine.RestockWithNote(r.Context(), chi.URLParam(r, "code"), req.Quantity, req.ReceivedAt, req.Note)
	if err != nil {
		h.writeDomainError(w, "Failed to restock", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListReceipts returns an entry's restock history.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.Engine.ListReceipts(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeDomainError(w, "Failed to list receipts", err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// ListLowStock returns entries at or below ?threshold (default: the
// monitor's threshold, else 10).
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := int64(10)
	if h.Monitor != nil {
		threshold = h.Monitor.Threshold
	}
	if s := r.URL.Query().Get("threshold"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid threshold", err)
			return
		}
		threshold = n
	}

	entries, err := h.Engine.ListLowStock(r.Context(), threshold)
	if err != nil {
		h.writeDomainError(w, "Failed to list low stock", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// InventoryValue returns the total value of stock on hand.
func (h *Handler) InventoryValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := h.Engine.InventoryValue(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to compute inventory value", err)
		return
	}
	entries, err := h.Engine.ListCatalog(ctx)
	if err != nil {
		h.writeDomainError(w, "Failed to compute inventory value", err)
		return
	}
	writeJSON(w, http.StatusOK, InventoryValueResponse{Total: total, Entries: len(entries)})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// EnsureSchema runs the schema plan and returns the step report. A failed
// required step answers 500 with the report in the body.
func (h *Handler) EnsureSchema(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.EnsureSchema(r.Context())
	status := http.StatusOK
	if err != nil {
		h.log.Error().Err(err).Msg("schema ensure failed")
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toSchemaReportDTO(report))
}

// LowStockStatus returns the monitor's last run.
func (h *Handler) LowStockStatus(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusNotFound, "Low-stock monitor disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Monitor.LastRun())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(message)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case pharmacy.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pharmacy.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, pharmacy.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case pharmacy.IsClientError(err):
		return http.StatusBadRequest, "validation"
	case pharmacy.IsRetryable(err):
		return http.StatusServiceUnavailable, "lock_timeout"
	}
	return http.StatusInternalServerError, ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func prescriptionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid prescription id", err)
		return 0, false
	}
	return id, true
}
