package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// PRESCRIPTION STORE
// =============================================================================

const prescriptionColumns = `id, patient_id, exam_ref, prescriber, created_at, diagnosis, instructions,
	total_amount, status, dispensed_by, dispensed_at, cancelled_by, cancelled_at`

const itemColumns = `id, prescription_id, position, drug_code, display_name, quantity, unit,
	dose_morning, dose_noon, dose_afternoon, dose_evening, days, unit_price, note`

// CreatePrescription inserts the header and its items in one transaction
// and returns the new id. Catalog-linked items take their unit price,
// name and unit from the catalog when the input leaves them empty. The
// stored total is the sum of the line totals.
func (s *Store) CreatePrescription(ctx context.Context, header pharmacy.NewPrescription, items []pharmacy.NewItem) (int64, error) {
	if err := pharmacy.ValidateNewPrescription(header, items); err != nil {
		return 0, err
	}
	status := header.Status
	if status == "" {
		status = pharmacy.StatusSaved
	}
	createdAt := header.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var id int64
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows := make([]pharmacy.PrescriptionItem, len(items))
		for i, in := range items {
			item, err := resolveItem(ctx, tx, in)
			if err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			item.Position = i + 1
			rows[i] = item
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO prescriptions (patient_id, exam_ref, prescriber, created_at, diagnosis, instructions, total_amount, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			header.PatientID, header.ExamRef, header.Prescriber, createdAt.UTC(),
			header.Diagnosis, header.Instructions, pharmacy.Total(rows), status)
		if err != nil {
			return classify("insert prescription", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		for _, item := range rows {
			item.PrescriptionID = id
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO prescription_items (prescription_id, position, drug_code, display_name, quantity, unit,
					dose_morning, dose_noon, dose_afternoon, dose_evening, days, unit_price, note)
				VALUES (:prescription_id, :position, :drug_code, :display_name, :quantity, :unit,
					:dose_morning, :dose_noon, :dose_afternoon, :dose_evening, :days, :unit_price, :note)`,
				item); err != nil {
				return classify("insert prescription item", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Int64("prescription_id", id).Str("patient_id", header.PatientID).
		Int("items", len(items)).Str("status", string(status)).Msg("prescription created")
	return id, nil
}

func resolveItem(ctx context.Context, tx *sqlx.Tx, in pharmacy.NewItem) (pharmacy.PrescriptionItem, error) {
	item := pharmacy.PrescriptionItem{
		DrugCode:      nullString(strings.TrimSpace(in.DrugCode)),
		DisplayName:   strings.TrimSpace(in.DisplayName),
		Quantity:      in.Quantity,
		Unit:          in.Unit,
		DoseMorning:   in.DoseMorning,
		DoseNoon:      in.DoseNoon,
		DoseAfternoon: in.DoseAfternoon,
		DoseEvening:   in.DoseEvening,
		Days:          in.Days,
		UnitPrice:     in.UnitPrice,
		Note:          in.Note,
	}
	if !item.Linked() {
		return item, nil
	}

	entry, err := getCatalogEntry(ctx, tx, *item.DrugCode)
	if err != nil {
		return item, err
	}
	if item.UnitPrice.IsZero() {
		item.UnitPrice = entry.Price
	}
	if item.DisplayName == "" {
		item.DisplayName = entry.Name
	}
	if item.Unit == "" {
		item.Unit = entry.Unit
	}
	return item, nil
}

// GetPrescription returns one prescription with its items.
func (s *Store) GetPrescription(ctx context.Context, id int64) (*pharmacy.Prescription, error) {
	var p *pharmacy.Prescription
	err := s.WithConnection(ctx, func(conn *sqlx.Conn) error {
		var err error
		if p, err = getPrescription(ctx, conn, id); err != nil {
			return err
		}
		p.Items, err = listItems(ctx, conn, id)
		return err
	})
	return p, err
}

// ListByPatient returns the patient's prescriptions with their items,
// newest first.
func (s *Store) ListByPatient(ctx context.Context, patientID string) ([]pharmacy.Prescription, error) {
	out := []pharmacy.Prescription{}
	err := s.WithConnection(ctx, func(conn *sqlx.Conn) error {
		if err := sqlx.SelectContext(ctx, conn, &out, `
			SELECT `+prescriptionColumns+` FROM prescriptions
			WHERE patient_id = ?
			ORDER BY created_at DESC, id DESC`, patientID); err != nil {
			return classify("list prescriptions", err)
		}

		var items []pharmacy.PrescriptionItem
		if err := sqlx.SelectContext(ctx, conn, &items, `
			SELECT `+itemColumns+` FROM prescription_items
			WHERE prescription_id IN (SELECT id FROM prescriptions WHERE patient_id = ?)
			ORDER BY prescription_id, position, id`, patientID); err != nil {
			return classify("list prescription items", err)
		}

		byID := make(map[int64]int, len(out))
		for i := range out {
			out[i].Items = []pharmacy.PrescriptionItem{}
			byID[out[i].ID] = i
		}
		for _, it := range items {
			if i, ok := byID[it.PrescriptionID]; ok {
				out[i].Items = append(out[i].Items, it)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateHeader applies a partial update to the mutable header fields.
// Dispensed and cancelled prescriptions are rejected with InvalidStateError.
func (s *Store) UpdateHeader(ctx context.Context, id int64, u pharmacy.HeaderUpdate) error {
	if u.TotalAmount != nil && u.TotalAmount.IsNegative() {
		return &pharmacy.ValidationError{Field: "total_amount", Reason: "must not be negative"}
	}

	var sets []string
	var args []any
	if u.Diagnosis != nil {
		sets, args = append(sets, "diagnosis = ?"), append(args, *u.Diagnosis)
	}
	if u.Instructions != nil {
		sets, args = append(sets, "instructions = ?"), append(args, *u.Instructions)
	}
	if u.TotalAmount != nil {
		sets, args = append(sets, "total_amount = ?"), append(args, *u.TotalAmount)
	}

	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getPrescription(ctx, tx, id)
		if err != nil {
			return err
		}
		if !p.Status.Mutable() {
			return &pharmacy.InvalidStateError{PrescriptionID: id, Status: p.Status, Action: "update"}
		}
		if u.Empty() {
			return nil
		}
		args = append(args, id)
		_, err = tx.ExecContext(ctx,
			"UPDATE prescriptions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		return classify("update prescription", err)
	})
}

// FinalizePrescription moves a draft to saved. Only saved prescriptions
// can be dispensed.
func (s *Store) FinalizePrescription(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		return transition(ctx, tx, id, pharmacy.StatusDraft, pharmacy.StatusSaved, "", s.now())
	})
}

// DeletePrescription removes a prescription and its items. Dispensed
// prescriptions are audited and cannot be deleted.
func (s *Store) DeletePrescription(ctx context.Context, id int64) error {
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getPrescription(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status == pharmacy.StatusDispensed {
			return &pharmacy.InvalidStateError{PrescriptionID: id, Status: p.Status, Action: "delete"}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = ?`, id)
		return classify("delete prescription", err)
	})
	if err == nil {
		s.log.Info().Int64("prescription_id", id).Msg("prescription deleted")
	}
	return err
}

// ListAudit returns the dispense audit records of a prescription.
func (s *Store) ListAudit(ctx context.Context, prescriptionID int64) ([]pharmacy.AuditRecord, error) {
	records := []pharmacy.AuditRecord{}
	err := sqlx.SelectContext(ctx, s.db, &records, `
		SELECT id, prescription_id, dispensed_by, dispensed_at, note FROM dispense_audit
		WHERE prescription_id = ?
		ORDER BY id`, prescriptionID)
	if err != nil {
		return nil, classify("list audit", err)
	}
	return records, nil
}

// =============================================================================
// SHARED ROW HELPERS
// =============================================================================

func getPrescription(ctx context.Context, q sqlx.QueryerContext, id int64) (*pharmacy.Prescription, error) {
	var p pharmacy.Prescription
	err := sqlx.GetContext(ctx, q, &p, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &pharmacy.NotFoundError{Kind: "prescription", Key: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, classify("get prescription", err)
	}
	return &p, nil
}

func listItems(ctx context.Context, q sqlx.QueryerContext, prescriptionID int64) ([]pharmacy.PrescriptionItem, error) {
	items := []pharmacy.PrescriptionItem{}
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT `+itemColumns+` FROM prescription_items
		WHERE prescription_id = ?
		ORDER BY position, id`, prescriptionID)
	if err != nil {
		return nil, classify("list prescription items", err)
	}
	return items, nil
}

// transition performs a compare-and-set on status. If the stored status
// is not from, the prescription is reloaded to report why.
func transition(ctx context.Context, tx *sqlx.Tx, id int64, from, to pharmacy.Status, by string, at time.Time) error {
	if !pharmacy.CanTransition(from, to) {
		return fmt.Errorf("transition %s -> %s is not allowed", from, to)
	}

	stmt := `UPDATE prescriptions SET status = ? WHERE id = ? AND status = ?`
	args := []any{to, id, from}
	switch to {
	case pharmacy.StatusDispensed:
		stmt = `UPDATE prescriptions SET status = ?, dispensed_by = ?, dispensed_at = ? WHERE id = ? AND status = ?`
		args = []any{to, by, at.UTC(), id, from}
	case pharmacy.StatusCancelled:
		stmt = `UPDATE prescriptions SET status = ?, cancelled_by = ?, cancelled_at = ? WHERE id = ? AND status = ?`
		args = []any{to, by, at.UTC(), id, from}
	}

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return classify("update prescription status", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	p, err := getPrescription(ctx, tx, id)
	if err != nil {
		return err
	}
	return &pharmacy.InvalidStateError{PrescriptionID: id, Status: p.Status, Action: actionFor(to)}
}

func actionFor(to pharmacy.Status) string {
	switch to {
	case pharmacy.StatusSaved:
		return "finalize"
	case pharmacy.StatusDispensed:
		return "dispense"
	case pharmacy.StatusCancelled:
		return "cancel"
	}
	return "move to " + string(to)
}
