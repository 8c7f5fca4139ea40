/*
store.go - Persistence interfaces used by the dispensing coordinator

PURPOSE:
  Defines the boundary between the dispense state machine and the
  database. The coordinator never sees SQL; it drives a Tx inside
  TxStore.WithDispenseTx and the implementation guarantees that
  everything done through that Tx commits or rolls back as one unit.

ATOMICITY:
  A prescription may reference many catalog rows. Debiting some and not
  others would corrupt inventory in a way only a full reconciliation could
  detect, so all reads and writes of one dispense go through one Tx.

IMPLEMENTATIONS:
  - store/sqlite: production implementation (BEGIN IMMEDIATE transactions)
  - pharmacy/memory: map-backed implementation for unit tests

SEE ALSO:
  - dispensing/coordinator.go: the only caller of WithDispenseTx
*/
package pharmacy

import (
	"context"
	"time"
)

// Tx is the set of reads and writes a dispense or cancel needs.
// All methods run inside one database transaction.
type Tx interface {
	// Prescription loads the header (without items).
	Prescription(ctx context.Context, id int64) (*Prescription, error)

	// Items loads the prescription's lines in order.
	Items(ctx context.Context, prescriptionID int64) ([]PrescriptionItem, error)

	// CatalogEntry loads one catalog row by code.
	CatalogEntry(ctx context.Context, code string) (*CatalogEntry, error)

	// AdjustStock adds delta (negative to debit) to quantity-on-hand and
	// returns the new quantity.
	AdjustStock(ctx context.Context, code string, delta int64, at time.Time) (int64, error)

	// Transition moves the prescription from one status to another. It
	// fails with InvalidStateError if the stored status is not from.
	Transition(ctx context.Context, id int64, from, to Status, by string, at time.Time) error

	// AppendAudit inserts a dispense audit record and returns its id.
	AppendAudit(ctx context.Context, rec AuditRecord) (int64, error)
}

// TxStore runs fn inside a transaction. If fn returns an error the
// transaction is rolled back, otherwise it is committed.
type TxStore interface {
	WithDispenseTx(ctx context.Context, fn func(Tx) error) error
}
