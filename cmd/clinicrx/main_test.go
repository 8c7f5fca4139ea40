package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("CLINICRX_BACKUP_DIR", filepath.Join(t.TempDir(), "backups"))
	t.Setenv("CLINICRX_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestMigrate_ThenStatus(t *testing.T) {
	db := filepath.Join(t.TempDir(), "clinic.db")

	out := run(t, "migrate", "--db", db)
	assert.Contains(t, out, "ensure_table")
	assert.Contains(t, out, "applied")

	out = run(t, "migrate", "--db", db)
	assert.NotContains(t, out, "applied")

	out = run(t, "migrate", "status", "--db", db)
	for _, table := range []string{"prescriptions", "prescription_items", "drug_catalog", "stock_receipts", "dispense_audit"} {
		assert.Contains(t, out, table)
	}
}

func TestInventory_EmptyCatalog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "clinic.db")
	out := run(t, "inventory", "--db", db)
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "total stock value: 0.00")
}

func TestUnknownConfigFile_Fails(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, cmd.Execute())
}
