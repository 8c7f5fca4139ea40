package sqlite

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warp/clinic-rx/pharmacy"
)

// WithDispenseTx runs fn inside one BEGIN IMMEDIATE transaction. The write
// lock is held from the first read, so two dispensers of the same
// prescription serialize and the second sees the first one's commit.
func (s *Store) WithDispenseTx(ctx context.Context, fn func(pharmacy.Tx) error) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&dispenseTx{tx: tx})
	})
}

var _ pharmacy.TxStore = (*Store)(nil)

// dispenseTx implements pharmacy.Tx on an open transaction.
type dispenseTx struct {
	tx *sqlx.Tx
}

func (d *dispenseTx) Prescription(ctx context.Context, id int64) (*pharmacy.Prescription, error) {
	return getPrescription(ctx, d.tx, id)
}

func (d *dispenseTx) Items(ctx context.Context, prescriptionID int64) ([]pharmacy.PrescriptionItem, error) {
	return listItems(ctx, d.tx, prescriptionID)
}

func (d *dispenseTx) CatalogEntry(ctx context.Context, code string) (*pharmacy.CatalogEntry, error) {
	return getCatalogEntry(ctx, d.tx, code)
}

func (d *dispenseTx) AdjustStock(ctx context.Context, code string, delta int64, at time.Time) (int64, error) {
	return adjustStock(ctx, d.tx, code, delta, at)
}

func (d *dispenseTx) Transition(ctx context.Context, id int64, from, to pharmacy.Status, by string, at time.Time) error {
	return transition(ctx, d.tx, id, from, to, by, at)
}

func (d *dispenseTx) AppendAudit(ctx context.Context, rec pharmacy.AuditRecord) (int64, error) {
	res, err := d.tx.ExecContext(ctx,
		`INSERT INTO dispense_audit (prescription_id, dispensed_by, dispensed_at, note) VALUES (?, ?, ?, ?)`,
		rec.PrescriptionID, rec.DispensedBy, rec.DispensedAt.UTC(), rec.Note)
	if isUniqueConstraintError(err) {
		return 0, &pharmacy.InvalidStateError{
			PrescriptionID: rec.PrescriptionID,
			Status:         pharmacy.StatusDispensed,
			Action:         "audit",
		}
	}
	if err != nil {
		return 0, classify("insert dispense audit", err)
	}
	return res.LastInsertId()
}
