/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the HTTP adapter. Domain types from
  pharmacy/ are returned as-is where their JSON tags already fit; the
  types here cover request bodies and responses that have no domain
  counterpart.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers
  - *DTO: Flattened views of internal types

VALIDATION:
  Request bodies are decoded here and validated by the domain layer
  (pharmacy/validate.go). Validation failures come back as 400.

SEE ALSO:
  - handlers.go: Uses these types
  - pharmacy/types.go: Prescription, CatalogEntry, StockReceipt
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/clinic-rx/pharmacy"
	"github.com/warp/clinic-rx/store/sqlite"
)

// =============================================================================
// PRESCRIPTIONS
// =============================================================================

// CreatePrescriptionRequest is the body of POST /api/prescriptions.
type CreatePrescriptionRequest struct {
	pharmacy.NewPrescription
	Items []pharmacy.NewItem `json:"items"`
}

// CreatedResponse carries the id of a new row.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// StaffActionRequest is the body of dispense and cancel. At is optional;
// the server clock is used when it is absent.
type StaffActionRequest struct {
	Staff string    `json:"staff"`
	At    time.Time `json:"at"`
}

// CancelResponse reports the result of a cancel.
type CancelResponse struct {
	PrescriptionID   int64 `json:"prescription_id"`
	AlreadyCancelled bool  `json:"already_cancelled"`
}

// =============================================================================
// CATALOG
// =============================================================================

// UpsertCatalogRequest is the body of PUT /api/catalog/{code}.
type UpsertCatalogRequest struct {
	Name  string          `json:"name"`
	Unit  string          `json:"unit"`
	Price decimal.Decimal `json:"price"`
}

// RestockRequest is the body of POST /api/catalog/{code}/restock.
type RestockRequest struct {
	Quantity   int64     `json:"quantity"`
	ReceivedAt time.Time `json:"received_at"`
	Note       string    `json:"note"`
}

// InventoryValueResponse is Σ(price × quantity-on-hand).
type InventoryValueResponse struct {
	Total   decimal.Decimal `json:"total"`
	Entries int             `json:"entries"`
}

// =============================================================================
// SCHEMA
// =============================================================================

// SchemaStepDTO is one step of a schema report.
type SchemaStepDTO struct {
	Kind     string `json:"kind"`
	Table    string `json:"table"`
	Column   string `json:"column,omitempty"`
	Outcome  string `json:"outcome"`
	Required bool   `json:"required,omitempty"`
	Rows     int64  `json:"rows,omitempty"`
	Backup   string `json:"backup,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SchemaReportDTO summarizes an EnsureSchema run.
type SchemaReportDTO struct {
	Applied   int             `json:"applied"`
	Unchanged int             `json:"unchanged"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Steps     []SchemaStepDTO `json:"steps"`
	Error     string          `json:"error,omitempty"`
}

func toSchemaReportDTO(r sqlite.Report) SchemaReportDTO {
	dto := SchemaReportDTO{
		Applied:   r.Count(sqlite.OutcomeApplied),
		Unchanged: r.Count(sqlite.OutcomeUnchanged),
		Skipped:   r.Count(sqlite.OutcomeSkipped),
		Failed:    r.Count(sqlite.OutcomeFailed),
		Steps:     make([]SchemaStepDTO, len(r.Steps)),
	}
	for i, s := range r.Steps {
		dto.Steps[i] = SchemaStepDTO{
			Kind:     string(s.Kind),
			Table:    s.Table,
			Column:   s.Column,
			Outcome:  string(s.Outcome),
			Required: s.Required,
			Rows:     s.Rows,
			Backup:   s.Backup,
		}
		if s.Err != nil {
			dto.Steps[i].Error = s.Err.Error()
		}
	}
	if err := r.Err(); err != nil {
		dto.Error = err.Error()
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
