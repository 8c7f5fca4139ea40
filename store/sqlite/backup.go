package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TableBackup is the on-disk format of a retired table's export.
type TableBackup struct {
	Table      string           `json:"table"`
	ExportedAt time.Time        `json:"exported_at"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
}

// exportTable writes every row of table to a uniquely named JSON file in
// dir and returns its path. The file is fsynced and renamed into place
// before returning, so a returned path always holds a complete export.
func exportTable(ctx context.Context, q sqlx.QueryerContext, table, dir string, now time.Time) (string, int64, error) {
	rows, err := q.QueryxContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return "", 0, classify("read "+table, err)
	}
	defer rows.Close()

	backup := TableBackup{Table: table, ExportedAt: now.UTC(), Rows: []map[string]any{}}
	if backup.Columns, err = rows.Columns(); err != nil {
		return "", 0, err
	}
	for rows.Next() {
		row := make(map[string]any, len(backup.Columns))
		if err := rows.MapScan(row); err != nil {
			return "", 0, fmt.Errorf("scan %s: %w", table, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		backup.Rows = append(backup.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return "", 0, classify("read "+table, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s-%s.json", table, now.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	if err := writeFileAtomic(path, backup); err != nil {
		return "", 0, err
	}
	return path, int64(len(backup.Rows)), nil
}

func writeFileAtomic(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish backup: %w", err)
	}
	return nil
}

// ReadBackup loads a table export written by RetireTable.
func ReadBackup(path string) (*TableBackup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b TableBackup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse backup %s: %w", path, err)
	}
	return &b, nil
}
