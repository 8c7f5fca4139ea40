/*
schema.go - Introspective, idempotent schema manager

PURPOSE:
  Brings the data file's schema to the shape the application expects,
  across application versions, without losing rows. There is no version
  table: every step looks at what actually exists (sqlite_master,
  pragma_table_info) and does only what is missing. Running the same plan
  any number of times converges on the same schema.

OPERATIONS:
  EnsureTable             CREATE TABLE IF NOT EXISTS + its indexes
  EnsureIndexes           CREATE INDEX IF NOT EXISTS on an existing table
  EnsureColumn            ALTER TABLE ADD COLUMN when missing (best effort)
  RenameColumnViaRebuild  shadow table, copy rows old→new, drop, rename
  DropColumnViaRebuild    same rebuild path without the retired column
  Backfill                UPDATE ... SET col = expr WHERE <cond>
  RetireTable             export rows to a JSON backup, then drop

STEP RESULTS:
  Every operation returns a StepResult instead of an error. A step that
  fails is logged and reported; the plan continues with the next step.
  Each step runs in its own transaction, so a failed step leaves its table
  untouched and can be retried on the next start.

    applied    the step changed the schema or data
    unchanged  nothing to do
    skipped    the engine refused a non-essential change (logged as warning)
    failed     the step errored and was rolled back

  Report.Err() is non-nil only when a step marked Required did not
  succeed. That is the one case callers treat as fatal at startup.

REBUILD PROTOCOL:
  1. PRAGMA foreign_keys=OFF on the connection (outside the transaction)
  2. BEGIN IMMEDIATE
  3. CREATE TABLE <table>__rebuild with the target shape
  4. INSERT INTO shadow SELECT mapped columns FROM table
  5. verify row counts match
  6. DROP TABLE table; ALTER TABLE shadow RENAME TO table
  7. recreate indexes; PRAGMA foreign_key_check(table)
  8. COMMIT, then PRAGMA foreign_keys=ON
  With enforcement on, DROP TABLE would cascade-delete child rows.

SEE ALSO:
  - migrations.go: the application's plan
  - backup.go: table export used by RetireTable
*/
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// TABLE DEFINITIONS
// =============================================================================

// ColumnDef describes one column.
type ColumnDef struct {
	Name          string
	Type          string // TEXT, INTEGER, DATETIME
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Default       string // SQL literal, e.g. '' or 0; empty means no default
	References    string // e.g. "prescriptions(id) ON DELETE CASCADE"

	// Required marks columns the core cannot work without. Failing to add
	// one is fatal instead of a warning.
	Required bool
}

// SQL renders the column definition.
func (c ColumnDef) SQL() string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	if c.Type != "" {
		b.WriteString(" " + c.Type)
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if c.AutoIncrement {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT " + c.Default)
	}
	if c.References != "" {
		b.WriteString(" REFERENCES " + c.References)
	}
	return b.String()
}

// TableDef describes a table's full current shape.
type TableDef struct {
	Name        string
	Columns     []ColumnDef
	Constraints []string
	Indexes     []string // CREATE [UNIQUE] INDEX IF NOT EXISTS statements

	// Required tables back the core entities; failing to create one is fatal.
	Required bool
}

// CreateSQL renders CREATE TABLE for the given table name, so the same
// definition can create the real table or a rebuild shadow.
func (t TableDef) CreateSQL(name string, ifNotExists bool) string {
	parts := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		parts = append(parts, c.SQL())
	}
	parts = append(parts, t.Constraints...)

	exists := ""
	if ifNotExists {
		exists = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE TABLE %s%s (\n\t%s\n)", exists, quoteIdent(name), strings.Join(parts, ",\n\t"))
}

// Column looks up a column definition by name.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// =============================================================================
// STEP RESULTS
// =============================================================================

// StepKind names a migration operation.
type StepKind string

const (
	StepEnsureTable  StepKind = "ensure_table"
	StepEnsureIndex  StepKind = "ensure_index"
	StepEnsureColumn StepKind = "ensure_column"
	StepRenameColumn StepKind = "rename_column"
	StepDropColumn   StepKind = "drop_column"
	StepBackfill     StepKind = "backfill"
	StepRetireTable  StepKind = "retire_table"
)

// Outcome is what a step did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// StepResult is the typed result of one migration step.
type StepResult struct {
	Kind     StepKind
	Table    string
	Column   string
	Outcome  Outcome
	Required bool
	Rows     int64  // rows copied, updated or exported
	Backup   string // backup file written by RetireTable
	Err      error
}

// OK reports whether the step left the schema in the intended state.
func (r StepResult) OK() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeUnchanged
}

// Fatal reports whether a required step did not succeed.
func (r StepResult) Fatal() bool {
	return r.Required && !r.OK()
}

// Report collects the results of a plan run.
type Report struct {
	Steps []StepResult

	// Aborted is set when the context ended before every step ran.
	Aborted error
}

func (r *Report) add(res StepResult) {
	r.Steps = append(r.Steps, res)
}

// Err returns a *pharmacy.SchemaError for the first fatal step, or nil.
func (r Report) Err() error {
	if r.Aborted != nil {
		return &pharmacy.SchemaError{Step: "ensure", Err: r.Aborted}
	}
	for _, s := range r.Steps {
		if s.Fatal() {
			err := s.Err
			if err == nil {
				err = fmt.Errorf("step %s", s.Outcome)
			}
			return &pharmacy.SchemaError{Step: string(s.Kind), Table: s.Table, Column: s.Column, Err: err}
		}
	}
	return nil
}

// Count returns how many steps had the given outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Problems returns the skipped and failed steps.
func (r Report) Problems() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// SCHEMA STATE (introspection)
// =============================================================================

// ColumnInfo is one row of pragma_table_info.
type ColumnInfo struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull bool    `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

type masterRow struct {
	Type string  `db:"type"`
	Name string  `db:"name"`
	SQL  *string `db:"sql"`
}

// SchemaState is the set of tables and columns currently in the file.
type SchemaState struct {
	Tables  map[string][]ColumnInfo
	objects []masterRow
}

// HasTable reports whether the table exists.
func (s SchemaState) HasTable(name string) bool {
	_, ok := s.Tables[name]
	return ok
}

// HasColumn reports whether table.column exists.
func (s SchemaState) HasColumn(table, column string) bool {
	for _, c := range s.Tables[table] {
		if c.Name == column {
			return true
		}
	}
	return false
}

// Fingerprint renders every schema object's stored SQL in a stable order.
// Two runs that leave the schema unchanged produce identical fingerprints.
func (s SchemaState) Fingerprint() string {
	var b strings.Builder
	for _, o := range s.objects {
		sqlText := ""
		if o.SQL != nil {
			sqlText = *o.SQL
		}
		fmt.Fprintf(&b, "%s %s\n%s\n", o.Type, o.Name, sqlText)
	}
	return b.String()
}

// =============================================================================
// SCHEMA MANAGER
// =============================================================================

// SchemaManager runs idempotent migration steps against the store.
type SchemaManager struct {
	store *Store
	log   zerolog.Logger
}

// Schema returns the store's schema manager.
func (s *Store) Schema() *SchemaManager {
	return &SchemaManager{
		store: s,
		log:   s.log.With().Str("component", "schema").Logger(),
	}
}

// Inspect reads the current schema.
func (m *SchemaManager) Inspect(ctx context.Context) (SchemaState, error) {
	state := SchemaState{Tables: make(map[string][]ColumnInfo)}
	err := m.store.WithConnection(ctx, func(conn *sqlx.Conn) error {
		if err := sqlx.SelectContext(ctx, conn, &state.objects, `
			SELECT type, name, sql FROM sqlite_master
			WHERE name NOT LIKE 'sqlite_%'
			ORDER BY type, name`); err != nil {
			return classify("read sqlite_master", err)
		}
		for _, o := range state.objects {
			if o.Type != "table" {
				continue
			}
			cols, err := tableColumns(ctx, conn, o.Name)
			if err != nil {
				return err
			}
			state.Tables[o.Name] = cols
		}
		return nil
	})
	return state, err
}

// EnsureTable creates the table and its indexes if absent.
func (m *SchemaManager) EnsureTable(ctx context.Context, def TableDef) StepResult {
	res := StepResult{Kind: StepEnsureTable, Table: def.Name, Required: def.Required}

	err := m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := tableExists(ctx, tx, def.Name)
		if err != nil {
			return err
		}
		if exists {
			res.Outcome = OutcomeUnchanged
			return nil
		}
		if _, err := tx.ExecContext(ctx, def.CreateSQL(def.Name, true)); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		if err := createIndexes(ctx, tx, def); err != nil {
			return err
		}
		res.Outcome = OutcomeApplied
		return nil
	})
	return m.finish(res, err)
}

// EnsureIndexes creates the table's indexes if absent. It runs after the
// column steps, since a legacy table may lack an indexed column until then.
func (m *SchemaManager) EnsureIndexes(ctx context.Context, def TableDef) StepResult {
	// Never required: a missing index does not block startup.
	res := StepResult{Kind: StepEnsureIndex, Table: def.Name}

	err := m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		before, err := countIndexes(ctx, tx, def.Name)
		if err != nil {
			return err
		}
		if err := createIndexes(ctx, tx, def); err != nil {
			return err
		}
		after, err := countIndexes(ctx, tx, def.Name)
		if err != nil {
			return err
		}
		res.Outcome = OutcomeUnchanged
		if after != before {
			res.Outcome = OutcomeApplied
		}
		return nil
	})
	return m.finish(res, err)
}

// EnsureColumn adds the column if the table lacks it. When the engine
// cannot add it in place (for example a NOT NULL column without a default)
// the step is skipped with a warning, or failed if the column is Required.
func (m *SchemaManager) EnsureColumn(ctx context.Context, table string, col ColumnDef) StepResult {
	res := StepResult{Kind: StepEnsureColumn, Table: table, Column: col.Name, Required: col.Required}

	var refused error
	err := m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		cols, err := tableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}
		if hasColumn(cols, col.Name) {
			res.Outcome = OutcomeUnchanged
			return nil
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), col.SQL())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if isLockError(err) {
				return classify("add column", err)
			}
			refused = err
			return err
		}
		res.Outcome = OutcomeApplied
		return nil
	})

	if refused != nil && !col.Required {
		res.Outcome = OutcomeSkipped
		res.Err = refused
		m.log.Warn().Err(refused).Str("table", table).Str("column", col.Name).
			Msg("cannot add column in place; continuing without it")
		return res
	}
	return m.finish(res, err)
}

// RenameColumnViaRebuild renames oldName to newName by rebuilding the table
// into target's shape. Every row is copied; the original table is replaced
// only if the whole rebuild commits. A table that already has newName and
// no oldName is left alone.
func (m *SchemaManager) RenameColumnViaRebuild(ctx context.Context, table, oldName, newName string, target TableDef) StepResult {
	res := StepResult{Kind: StepRenameColumn, Table: table, Column: oldName + "->" + newName}

	if _, ok := target.Column(newName); !ok {
		return m.finish(res, fmt.Errorf("target shape has no column %s", newName))
	}
	if _, ok := target.Column(oldName); ok {
		return m.finish(res, fmt.Errorf("target shape still has column %s", oldName))
	}

	err := m.rebuild(ctx, table, &res, func(cols []ColumnInfo) (TableDef, map[string]string, error) {
		hasOld, hasNew := hasColumn(cols, oldName), hasColumn(cols, newName)
		switch {
		case !hasOld && hasNew:
			return target, nil, nil
		case !hasOld:
			return target, nil, fmt.Errorf("neither %s nor %s present", oldName, newName)
		case hasNew:
			return target, nil, fmt.Errorf("both %s and %s present", oldName, newName)
		}
		shape := withExtras(cols, target, oldName)
		mapping := existingMapping(cols, shape)
		mapping[newName] = oldName
		return shape, mapping, nil
	})
	return m.finish(res, err)
}

// DropColumnViaRebuild removes column by rebuilding the table into target's
// shape. Only the dropped column's values are discarded.
func (m *SchemaManager) DropColumnViaRebuild(ctx context.Context, table, column string, target TableDef) StepResult {
	res := StepResult{Kind: StepDropColumn, Table: table, Column: column}

	if _, ok := target.Column(column); ok {
		return m.finish(res, fmt.Errorf("target shape still has column %s", column))
	}

	err := m.rebuild(ctx, table, &res, func(cols []ColumnInfo) (TableDef, map[string]string, error) {
		if !hasColumn(cols, column) {
			return target, nil, nil
		}
		shape := withExtras(cols, target, column)
		return shape, existingMapping(cols, shape), nil
	})
	return m.finish(res, err)
}

// Backfill sets column = expr on rows matching where. If guard is non-empty
// the step only runs while the table still has a column of that name.
func (m *SchemaManager) Backfill(ctx context.Context, table, column, expr, where, guard string) StepResult {
	res := StepResult{Kind: StepBackfill, Table: table, Column: column}

	err := m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		cols, err := tableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		res.Outcome = OutcomeUnchanged
		if !hasColumn(cols, column) || (guard != "" && !hasColumn(cols, guard)) {
			return nil
		}
		stmt := fmt.Sprintf("UPDATE %s SET %s = %s", quoteIdent(table), quoteIdent(column), expr)
		if where != "" {
			stmt += " WHERE " + where
		}
		result, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return classify("backfill", err)
		}
		res.Rows, _ = result.RowsAffected()
		if res.Rows > 0 {
			res.Outcome = OutcomeApplied
		}
		return nil
	})
	return m.finish(res, err)
}

// RetireTable exports every row of a legacy table to a timestamped JSON
// backup and then drops the table, in one write transaction. If the export
// fails nothing is dropped: a stale table beats lost data.
func (m *SchemaManager) RetireTable(ctx context.Context, name string) StepResult {
	res := StepResult{Kind: StepRetireTable, Table: name}

	var exportErr error
	err := m.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := tableExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if !exists {
			res.Outcome = OutcomeUnchanged
			return nil
		}

		path, rows, err := exportTable(ctx, tx, name, m.store.backupDir, m.store.now())
		if err != nil {
			exportErr = err
			return err
		}
		res.Backup, res.Rows = path, rows

		if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
			return classify("drop table", err)
		}
		res.Outcome = OutcomeApplied
		return nil
	})

	if exportErr != nil {
		res.Outcome = OutcomeSkipped
		res.Err = exportErr
		m.log.Warn().Err(exportErr).Str("table", name).Msg("backup failed; legacy table kept")
		return res
	}
	if err == nil && res.Outcome == OutcomeApplied {
		m.log.Info().Str("table", name).Str("backup", res.Backup).Int64("rows", res.Rows).Msg("retired table")
	}
	return m.finish(res, err)
}

// =============================================================================
// REBUILD
// =============================================================================

// mappingFunc inspects the current columns and returns the shape to rebuild
// into plus a target column → source column mapping. A nil mapping with a
// nil error means nothing to do.
type mappingFunc func(cols []ColumnInfo) (TableDef, map[string]string, error)

func (m *SchemaManager) rebuild(ctx context.Context, table string, res *StepResult, plan mappingFunc) error {
	return m.store.WithConnection(ctx, func(conn *sqlx.Conn) error {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
			return classify("disable foreign keys", err)
		}
		defer func() {
			if _, err := conn.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
				m.log.Error().Err(err).Msg("failed to re-enable foreign keys")
			}
		}()

		return runTx(ctx, conn, func(tx *sqlx.Tx) error {
			cols, err := tableColumns(ctx, tx, table)
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("table %s does not exist", table)
			}
			shape, mapping, err := plan(cols)
			if err != nil {
				return err
			}
			if mapping == nil {
				res.Outcome = OutcomeUnchanged
				return nil
			}

			copied, err := copyInto(ctx, tx, table, shape, mapping)
			if err != nil {
				return err
			}
			res.Rows = copied
			res.Outcome = OutcomeApplied
			return nil
		})
	})
}

func copyInto(ctx context.Context, tx *sqlx.Tx, table string, target TableDef, mapping map[string]string) (int64, error) {
	shadow := table + "__rebuild"

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(shadow)); err != nil {
		return 0, classify("drop stale shadow", err)
	}
	if _, err := tx.ExecContext(ctx, target.CreateSQL(shadow, false)); err != nil {
		return 0, fmt.Errorf("create shadow table: %w", err)
	}

	var dst, src []string
	for _, c := range target.Columns {
		from, ok := mapping[c.Name]
		if !ok {
			continue
		}
		dst = append(dst, quoteIdent(c.Name))
		expr := quoteIdent(from)
		if c.NotNull && c.Default != "" {
			expr = fmt.Sprintf("COALESCE(%s, %s)", expr, c.Default)
		}
		src = append(src, expr)
	}
	copyStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		quoteIdent(shadow), strings.Join(dst, ", "), strings.Join(src, ", "), quoteIdent(table))
	if _, err := tx.ExecContext(ctx, copyStmt); err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}

	before, err := countRows(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	after, err := countRows(ctx, tx, shadow)
	if err != nil {
		return 0, err
	}
	if before != after {
		return 0, fmt.Errorf("row count mismatch: %d copied of %d", after, before)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(table)); err != nil {
		return 0, classify("drop original", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(shadow), quoteIdent(table))); err != nil {
		return 0, fmt.Errorf("rename shadow: %w", err)
	}
	if err := createIndexes(ctx, tx, target); err != nil {
		return 0, err
	}

	var violations []struct {
		Table  string `db:"table"`
		RowID  *int64 `db:"rowid"`
		Parent string `db:"parent"`
		FKID   int    `db:"fkid"`
	}
	if err := sqlx.SelectContext(ctx, tx, &violations, "PRAGMA foreign_key_check("+quoteIdent(table)+")"); err != nil {
		return 0, fmt.Errorf("foreign key check: %w", err)
	}
	if len(violations) > 0 {
		return 0, fmt.Errorf("foreign key check: %d rows of %s reference missing %s rows",
			len(violations), table, violations[0].Parent)
	}
	return after, nil
}

// existingMapping maps every target column that already exists to itself.
func existingMapping(cols []ColumnInfo, target TableDef) map[string]string {
	mapping := make(map[string]string)
	for _, c := range target.Columns {
		if hasColumn(cols, c.Name) {
			mapping[c.Name] = c.Name
		}
	}
	return mapping
}

// withExtras appends to target every current column it does not declare,
// except the one being retired, so a rebuild never discards other data.
func withExtras(cols []ColumnInfo, target TableDef, retired string) TableDef {
	shape := target
	shape.Columns = append([]ColumnDef(nil), target.Columns...)
	for _, c := range cols {
		if strings.EqualFold(c.Name, retired) {
			continue
		}
		if _, ok := shape.Column(c.Name); ok {
			continue
		}
		shape.Columns = append(shape.Columns, ColumnDef{Name: c.Name, Type: c.Type})
	}
	return shape
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *SchemaManager) finish(res StepResult, err error) StepResult {
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
	}
	ev := m.log.Debug()
	switch {
	case res.Outcome == OutcomeFailed && res.Required:
		ev = m.log.Error()
	case res.Outcome == OutcomeFailed:
		ev = m.log.Warn()
	case res.Outcome == OutcomeApplied:
		ev = m.log.Info()
	}
	ev.Err(res.Err).
		Str("step", string(res.Kind)).
		Str("table", res.Table).
		Str("column", res.Column).
		Str("outcome", string(res.Outcome)).
		Int64("rows", res.Rows).
		Msg("schema step")
	return res
}

func tableExists(ctx context.Context, q sqlx.QueryerContext, name string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, classify("check table", err)
	}
	return n > 0, nil
}

func tableColumns(ctx context.Context, q sqlx.QueryerContext, table string) ([]ColumnInfo, error) {
	var cols []ColumnInfo
	err := sqlx.SelectContext(ctx, q, &cols,
		`SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, classify("read columns of "+table, err)
	}
	return cols, nil
}

func hasColumn(cols []ColumnInfo, name string) bool {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func countRows(ctx context.Context, q sqlx.QueryerContext, table string) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM "+quoteIdent(table)); err != nil {
		return 0, classify("count rows of "+table, err)
	}
	return n, nil
}

func createIndexes(ctx context.Context, tx *sqlx.Tx, def TableDef) error {
	for _, idx := range def.Indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s: %w", def.Name, err)
		}
	}
	return nil
}

func countIndexes(ctx context.Context, q sqlx.QueryerContext, table string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
	if err != nil {
		return 0, classify("count indexes", err)
	}
	return n, nil
}
