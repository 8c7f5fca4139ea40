/*
Package pharmacy holds the domain model of the prescription fulfillment engine.

PURPOSE:
  Domain types shared by every layer: catalog entries, prescriptions and
  their line items, stock receipts and dispense audit records. The
  persistence layer (store/sqlite) scans rows directly into these structs;
  no positional row tuples leave the store.

KEY CONCEPTS IN THIS FILE (types.go):
  - CatalogEntry: a drug's master record, the only contended shared row
  - Prescription: header + ordered items, with a lifecycle Status
  - AuditRecord: immutable proof that a dispense happened

MONEY:
  Prices and totals use decimal.Decimal. Quantities are whole units
  (tablets, bottles, tubes) and use int64.

SEE ALSO:
  - status.go: lifecycle and allowed transitions
  - errors.go: error taxonomy
  - store.go: persistence interfaces used by the dispensing coordinator
*/
package pharmacy

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG
// =============================================================================

// CatalogEntry is a drug master record.
type CatalogEntry struct {
	Code           string          `db:"code" json:"code"`
	Name           string          `db:"name" json:"name"`
	Unit           string          `db:"unit" json:"unit"`
	Price          decimal.Decimal `db:"price" json:"price"`
	QuantityOnHand int64           `db:"quantity_on_hand" json:"quantity_on_hand"`
	UpdatedAt      *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// Value returns price × quantity-on-hand.
func (e CatalogEntry) Value() decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(e.QuantityOnHand))
}

// StockReceipt is one append-only "stock received" history row.
type StockReceipt struct {
	ID         int64     `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Quantity   int64     `db:"quantity" json:"quantity"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	Note       string    `db:"note" json:"note,omitempty"`

	// QuantityAfter is the stock level right after this receipt was booked.
	// Set by Restock; not stored.
	QuantityAfter int64 `db:"-" json:"quantity_after,omitempty"`
}

// =============================================================================
// PRESCRIPTIONS
// =============================================================================

// Prescription is a prescription header with its items attached.
type Prescription struct {
	ID           int64           `db:"id" json:"id"`
	PatientID    string          `db:"patient_id" json:"patient_id"`
	ExamRef      string          `db:"exam_ref" json:"exam_ref,omitempty"`
	Prescriber   string          `db:"prescriber" json:"prescriber"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	Diagnosis    string          `db:"diagnosis" json:"diagnosis,omitempty"`
	Instructions string          `db:"instructions" json:"instructions,omitempty"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status       Status          `db:"status" json:"status"`
	DispensedBy  *string         `db:"dispensed_by" json:"dispensed_by,omitempty"`
	DispensedAt  *time.Time      `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CancelledBy  *string         `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`

	Items []PrescriptionItem `db:"-" json:"items"`
}

// PrescriptionItem is one line of a prescription. DrugCode is nil for
// free-text "other drug" lines that have no catalog link.
type PrescriptionItem struct {
	ID             int64           `db:"id" json:"id"`
	PrescriptionID int64           `db:"prescription_id" json:"prescription_id"`
	Position       int             `db:"position" json:"position"`
	DrugCode       *string         `db:"drug_code" json:"drug_code,omitempty"`
	DisplayName    string          `db:"display_name" json:"display_name"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	DoseMorning    string          `db:"dose_morning" json:"dose_morning,omitempty"`
	DoseNoon       string          `db:"dose_noon" json:"dose_noon,omitempty"`
	DoseAfternoon  string          `db:"dose_afternoon" json:"dose_afternoon,omitempty"`
	DoseEvening    string          `db:"dose_evening" json:"dose_evening,omitempty"`
	Days           int             `db:"days" json:"days,omitempty"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Note           string          `db:"note" json:"note,omitempty"`
}

// LineTotal returns quantity × unit price.
func (i PrescriptionItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Linked reports whether the item debits catalog stock when dispensed.
func (i PrescriptionItem) Linked() bool {
	return i.DrugCode != nil && *i.DrugCode != ""
}

// Total sums the line totals of items.
func Total(items []PrescriptionItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// =============================================================================
// INPUTS
// =============================================================================

// NewPrescription is the header input for CreatePrescription.
// Status may be StatusDraft or StatusSaved; empty means saved.
type NewPrescription struct {
	PatientID    string    `json:"patient_id" validate:"required"`
	ExamRef      string    `json:"exam_ref"`
	Prescriber   string    `json:"prescriber" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
	Diagnosis    string    `json:"diagnosis"`
	Instructions string    `json:"instructions"`
	Status       Status    `json:"status" validate:"omitempty,oneof=draft saved"`
}

// NewItem is a line item input for CreatePrescription. A zero UnitPrice on
// a catalog-linked item is filled from the catalog price.
type NewItem struct {
	DrugCode      string          `json:"drug_code"`
	DisplayName   string          `json:"display_name" validate:"required_without=DrugCode"`
	Quantity      int64           `json:"quantity" validate:"gt=0"`
	Unit          string          `json:"unit"`
	DoseMorning   string          `json:"dose_morning"`
	DoseNoon      string          `json:"dose_noon"`
	DoseAfternoon string          `json:"dose_afternoon"`
	DoseEvening   string          `json:"dose_evening"`
	Days          int             `json:"days" validate:"gte=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Note          string          `json:"note"`
}

// HeaderUpdate carries the mutable header fields. Nil fields are left as is.
type HeaderUpdate struct {
	Diagnosis    *string          `json:"diagnosis,omitempty"`
	Instructions *string          `json:"instructions,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u HeaderUpdate) Empty() bool {
	return u.Diagnosis == nil && u.Instructions == nil && u.TotalAmount == nil
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditRecord proves a dispense occurred. Append-only.
type AuditRecord struct {
	ID             int64     `db:"id" json:"id"`
	PrescriptionID int64     `db:"prescription_id" json:"prescription_id"`
	DispensedBy    string    `db:"dispensed_by" json:"dispensed_by"`
	DispensedAt    time.Time `db:"dispensed_at" json:"dispensed_at"`
	Note           string    `db:"note" json:"note,omitempty"`
}
