/*
migrations.go - The application's schema plan

PURPOSE:
  Declares the current shape of every table and the ordered steps that
  carry a data file written by any earlier version to that shape.

ORDER MATTERS:
  1. tables      create anything missing (fresh files end here, all no-ops after)
  2. renames     must run before column adds, or the add would create the
                 new name next to the old one and the rename would refuse
  3. columns     ADD COLUMN for columns older files lack
  4. backfills   derive new columns from legacy ones while both still exist
  5. drops       retire legacy columns via rebuild
  6. indexes     every indexed column exists by now
  7. legacy      export then drop tables no longer used

LEGACY LAYOUT:
  Older files stored the diagnosis as prescriptions.chan_doan, the item
  name as prescription_items.ten_thuoc, dispensed state as a 0/1 flag
  prescriptions.da_phat, and dispense history in a dispense_log table.
*/
package sqlite

import (
	"context"
	"strings"
)

// Table names.
const (
	TableCatalog       = "drug_catalog"
	TablePrescriptions = "prescriptions"
	TableItems         = "prescription_items"
	TableReceipts      = "stock_receipts"
	TableAudit         = "dispense_audit"

	legacyDispenseLog = "dispense_log"
)

// Step is one idempotent migration step.
type Step func(ctx context.Context, m *SchemaManager) StepResult

// Plan is an ordered list of steps.
type Plan struct {
	Steps []Step
}

// Ensure runs every step of plan in order. A failing step does not stop
// the steps after it; only context cancellation does.
func (m *SchemaManager) Ensure(ctx context.Context, plan Plan) Report {
	var report Report
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			report.Aborted = err
			break
		}
		report.add(step(ctx, m))
	}

	m.log.Info().
		Int("applied", report.Count(OutcomeApplied)).
		Int("unchanged", report.Count(OutcomeUnchanged)).
		Int("skipped", report.Count(OutcomeSkipped)).
		Int("failed", report.Count(OutcomeFailed)).
		Msg("schema ensured")
	return report
}

// =============================================================================
// STEP CONSTRUCTORS
// =============================================================================

// CreateTable creates def if it is missing.
func CreateTable(def TableDef) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult { return m.EnsureTable(ctx, def) }
}

// CreateIndexes creates def's indexes. Failures are never required.
func CreateIndexes(def TableDef) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult { return m.EnsureIndexes(ctx, def) }
}

// AddColumn adds col to table if it is missing.
func AddColumn(table string, col ColumnDef) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult { return m.EnsureColumn(ctx, table, col) }
}

// RenameColumn renames oldName to newName by rebuilding target.Name into
// target's shape.
func RenameColumn(oldName, newName string, target TableDef) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult {
		return m.RenameColumnViaRebuild(ctx, target.Name, oldName, newName, target)
	}
}

// DropColumn removes column by rebuilding target.Name into target's shape.
func DropColumn(column string, target TableDef) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult {
		return m.DropColumnViaRebuild(ctx, target.Name, column, target)
	}
}

// BackfillColumn sets column to expr on rows matching where, provided the
// guard column still exists.
func BackfillColumn(table, column, expr, where, guard string) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult {
		return m.Backfill(ctx, table, column, expr, where, guard)
	}
}

// RetireLegacyTable backs a legacy table up to JSON and drops it.
func RetireLegacyTable(name string) Step {
	return func(ctx context.Context, m *SchemaManager) StepResult { return m.RetireTable(ctx, name) }
}

// =============================================================================
// CURRENT SHAPE
// =============================================================================

func text(name string) ColumnDef {
	return ColumnDef{Name: name, Type: "TEXT", NotNull: true, Default: "''"}
}

func integer(name string) ColumnDef {
	return ColumnDef{Name: name, Type: "INTEGER", NotNull: true, Default: "0"}
}

func money(name string) ColumnDef {
	return ColumnDef{Name: name, Type: "TEXT", NotNull: true, Default: "'0'"}
}

func id() ColumnDef {
	return ColumnDef{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true}
}

// CatalogTable is the drug master table.
func CatalogTable() TableDef {
	qty := integer("quantity_on_hand")
	qty.Required = true
	return TableDef{
		Name: TableCatalog,
		Columns: []ColumnDef{
			{Name: "code", Type: "TEXT", PrimaryKey: true},
			text("name"),
			text("unit"),
			money("price"),
			qty,
			{Name: "updated_at", Type: "DATETIME"},
		},
		Required: true,
	}
}

// PrescriptionsTable holds prescription headers.
func PrescriptionsTable() TableDef {
	status := ColumnDef{Name: "status", Type: "TEXT", NotNull: true, Default: "'saved'", Required: true}
	return TableDef{
		Name: TablePrescriptions,
		Columns: []ColumnDef{
			id(),
			text("patient_id"),
			text("exam_ref"),
			text("prescriber"),
			{Name: "created_at", Type: "DATETIME", NotNull: true, Default: "CURRENT_TIMESTAMP"},
			text("diagnosis"),
			text("instructions"),
			money("total_amount"),
			status,
			{Name: "dispensed_by", Type: "TEXT", Required: true},
			{Name: "dispensed_at", Type: "DATETIME", Required: true},
			{Name: "cancelled_by", Type: "TEXT"},
			{Name: "cancelled_at", Type: "DATETIME"},
		},
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_prescriptions_patient ON prescriptions(patient_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_prescriptions_status ON prescriptions(status)`,
		},
		Required: true,
	}
}

// ItemsTable holds prescription lines. drug_code has no foreign key: a
// catalog entry may be renamed or retired while old prescriptions keep it.
func ItemsTable() TableDef {
	return TableDef{
		Name: TableItems,
		Columns: []ColumnDef{
			id(),
			{Name: "prescription_id", Type: "INTEGER", NotNull: true, References: "prescriptions(id) ON DELETE CASCADE"},
			integer("position"),
			{Name: "drug_code", Type: "TEXT"},
			text("display_name"),
			integer("quantity"),
			text("unit"),
			text("dose_morning"),
			text("dose_noon"),
			text("dose_afternoon"),
			text("dose_evening"),
			integer("days"),
			money("unit_price"),
			text("note"),
		},
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_prescription_items_order ON prescription_items(prescription_id, position)`,
		},
		Required: true,
	}
}

// ReceiptsTable is the append-only stock received history.
func ReceiptsTable() TableDef {
	return TableDef{
		Name: TableReceipts,
		Columns: []ColumnDef{
			id(),
			{Name: "code", Type: "TEXT", NotNull: true, References: "drug_catalog(code)"},
			{Name: "quantity", Type: "INTEGER", NotNull: true},
			{Name: "received_at", Type: "DATETIME", NotNull: true, Default: "CURRENT_TIMESTAMP"},
			text("note"),
		},
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_stock_receipts_code ON stock_receipts(code, received_at)`,
		},
		Required: true,
	}
}

// AuditTable records dispenses. The unique index allows one row per
// prescription.
func AuditTable() TableDef {
	return TableDef{
		Name: TableAudit,
		Columns: []ColumnDef{
			id(),
			{Name: "prescription_id", Type: "INTEGER", NotNull: true, References: "prescriptions(id)"},
			{Name: "dispensed_by", Type: "TEXT", NotNull: true},
			{Name: "dispensed_at", Type: "DATETIME", NotNull: true},
			text("note"),
		},
		Indexes: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_dispense_audit_prescription ON dispense_audit(prescription_id)`,
		},
		Required: true,
	}
}

// Tables returns every table in creation order (parents first).
func Tables() []TableDef {
	return []TableDef{CatalogTable(), PrescriptionsTable(), ItemsTable(), ReceiptsTable(), AuditTable()}
}

// CurrentPlan returns the plan that brings any earlier file to the
// current shape.
func CurrentPlan() Plan {
	tables := Tables()
	var steps []Step

	for _, t := range tables {
		steps = append(steps, CreateTable(t))
	}

	steps = append(steps,
		RenameColumn("chan_doan", "diagnosis", PrescriptionsTable()),
		RenameColumn("ten_thuoc", "display_name", ItemsTable()),
	)

	for _, t := range tables {
		for _, c := range addableColumns(t) {
			steps = append(steps, AddColumn(t.Name, c))
		}
	}

	steps = append(steps,
		BackfillColumn(TablePrescriptions, "status", "'dispensed'", "da_phat = 1 AND status = 'saved'", "da_phat"),
		BackfillColumn(TableItems, "position",
			"(SELECT COUNT(*) FROM prescription_items AS p WHERE p.prescription_id = prescription_items.prescription_id AND p.id <= prescription_items.id)",
			"position = 0", ""),
		DropColumn("da_phat", PrescriptionsTable()),
	)

	for _, t := range tables {
		if len(t.Indexes) > 0 {
			steps = append(steps, CreateIndexes(t))
		}
	}

	steps = append(steps, RetireLegacyTable(legacyDispenseLog))
	return Plan{Steps: steps}
}

// addableColumns lists the columns ALTER TABLE ADD COLUMN can add in place:
// not a key, and either nullable or with a constant default.
func addableColumns(def TableDef) []ColumnDef {
	var out []ColumnDef
	for _, c := range def.Columns {
		if c.PrimaryKey || c.References != "" {
			continue
		}
		if c.NotNull && (c.Default == "" || strings.HasPrefix(c.Default, "CURRENT_")) {
			continue
		}
		out = append(out, c)
	}
	return out
}
