package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/pharmacy"
	"github.com/warp/clinic-rx/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

// openTestStore opens a store on a fresh file without running migrations.
func openTestStore(t *testing.T, opts ...sqlite.Option) (*sqlite.Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "clinic.db")

	opts = append([]sqlite.Option{
		sqlite.WithBackupDir(filepath.Join(dir, "backups")),
		sqlite.WithClock(func() time.Time { return testNow }),
		sqlite.WithBusyTimeout(5 * time.Second),
	}, opts...)
	store, err := sqlite.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

// newTestStore opens a store with the current schema in place.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, _ := openTestStore(t)
	report := store.Schema().Ensure(context.Background(), sqlite.CurrentPlan())
	require.NoError(t, report.Err())
	return store
}

func exec(t *testing.T, store *sqlite.Store, stmts ...string) {
	t.Helper()
	require.NoError(t, store.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}))
}

func count(t *testing.T, store *sqlite.Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, store.WithConnection(context.Background(), func(conn *sqlx.Conn) error {
		return conn.QueryRowxContext(context.Background(), query, args...).Scan(&n)
	}))
	return n
}

func seedDrug(t *testing.T, store *sqlite.Store, code, name, unit string, price, stock int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, pharmacy.CatalogEntry{
		Code:  code,
		Name:  name,
		Unit:  unit,
		Price: decimal.NewFromInt(price),
	}))
	if stock > 0 {
		_, err := store.Restock(ctx, code, stock, testNow, "opening stock")
		require.NoError(t, err)
	}
}

func linked(code string, qty int64) pharmacy.NewItem {
	return pharmacy.NewItem{DrugCode: code, Quantity: qty, DoseMorning: "1", Days: 5}
}

func header(patientID string) pharmacy.NewPrescription {
	return pharmacy.NewPrescription{
		PatientID:  patientID,
		Prescriber: "dr.lan",
		Diagnosis:  "fever",
	}
}
