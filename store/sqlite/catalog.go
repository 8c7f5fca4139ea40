package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// CATALOG STORE
// =============================================================================
//
// Quantity-on-hand has exactly two writers: Restock (here) and the dispense
// transaction (tx.go). Both run inside a BEGIN IMMEDIATE transaction, so
// they never interleave on the same row. Upsert never touches the quantity.

const catalogColumns = `code, name, unit, price, quantity_on_hand, updated_at`

// Upsert inserts a catalog entry or updates its name, unit and price.
// New entries start with zero stock.
func (s *Store) Upsert(ctx context.Context, e pharmacy.CatalogEntry) error {
	if err := pharmacy.ValidateCatalogEntry(e); err != nil {
		return err
	}
	now := s.now().UTC()
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO drug_catalog (code, name, unit, price, quantity_on_hand, updated_at)
			VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(code) DO UPDATE SET
				name = excluded.name,
				unit = excluded.unit,
				price = excluded.price,
				updated_at = excluded.updated_at`,
			e.Code, e.Name, e.Unit, e.Price, now)
		return classify("upsert catalog entry", err)
	})
}

// Restock adds qty to the entry's stock and appends a receipt row in one
// transaction. Restock is always additive.
func (s *Store) Restock(ctx context.Context, code string, qty int64, at time.Time, note string) (*pharmacy.StockReceipt, error) {
	if err := pharmacy.RequirePositive("quantity", qty); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}
	rec := &pharmacy.StockReceipt{Code: code, Quantity: qty, ReceivedAt: at.UTC(), Note: note}

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		after, err := adjustStock(ctx, tx, code, qty, rec.ReceivedAt)
		if err != nil {
			return err
		}
		rec.QuantityAfter = after
		res, err := tx.ExecContext(ctx,
			`INSERT INTO stock_receipts (code, quantity, received_at, note) VALUES (?, ?, ?, ?)`,
			code, qty, rec.ReceivedAt, note)
		if err != nil {
			return classify("insert stock receipt", err)
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("code", code).Int64("quantity", qty).Int64("on_hand", rec.QuantityAfter).Msg("restocked")
	return rec, nil
}

// GetByCode returns one catalog entry.
func (s *Store) GetByCode(ctx context.Context, code string) (*pharmacy.CatalogEntry, error) {
	return getCatalogEntry(ctx, s.db, code)
}

// ListAll returns every catalog entry ordered by code.
func (s *Store) ListAll(ctx context.Context) ([]pharmacy.CatalogEntry, error) {
	entries := []pharmacy.CatalogEntry{}
	err := sqlx.SelectContext(ctx, s.db, &entries,
		`SELECT `+catalogColumns+` FROM drug_catalog ORDER BY code`)
	if err != nil {
		return nil, classify("list catalog", err)
	}
	return entries, nil
}

// ListLowStock returns entries whose quantity-on-hand is at or below
// threshold, lowest first.
func (s *Store) ListLowStock(ctx context.Context, threshold int64) ([]pharmacy.CatalogEntry, error) {
	entries := []pharmacy.CatalogEntry{}
	err := sqlx.SelectContext(ctx, s.db, &entries,
		`SELECT `+catalogColumns+` FROM drug_catalog
		WHERE quantity_on_hand <= ?
		ORDER BY quantity_on_hand, code`, threshold)
	if err != nil {
		return nil, classify("list low stock", err)
	}
	return entries, nil
}

// TotalInventoryValue returns Σ(price × quantity-on-hand). Prices are
// stored as decimal text, so the sum is computed here rather than in SQL.
func (s *Store) TotalInventoryValue(ctx context.Context) (decimal.Decimal, error) {
	entries, err := s.ListAll(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Value())
	}
	return total, nil
}

// ListReceipts returns the restock history of one code, oldest first.
func (s *Store) ListReceipts(ctx context.Context, code string) ([]pharmacy.StockReceipt, error) {
	receipts := []pharmacy.StockReceipt{}
	err := sqlx.SelectContext(ctx, s.db, &receipts, `
		SELECT id, code, quantity, received_at, note FROM stock_receipts
		WHERE code = ?
		ORDER BY received_at, id`, code)
	if err != nil {
		return nil, classify("list stock receipts", err)
	}
	return receipts, nil
}

// =============================================================================
// SHARED ROW HELPERS (used by Restock and the dispense transaction)
// =============================================================================

func getCatalogEntry(ctx context.Context, q sqlx.QueryerContext, code string) (*pharmacy.CatalogEntry, error) {
	var e pharmacy.CatalogEntry
	err := sqlx.GetContext(ctx, q, &e, `SELECT `+catalogColumns+` FROM drug_catalog WHERE code = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &pharmacy.NotFoundError{Kind: "catalog entry", Key: code}
	}
	if err != nil {
		return nil, classify("get catalog entry", err)
	}
	return &e, nil
}

func adjustStock(ctx context.Context, tx *sqlx.Tx, code string, delta int64, at time.Time) (int64, error) {
	var qty int64
	err := tx.GetContext(ctx, &qty, `
		UPDATE drug_catalog
		SET quantity_on_hand = quantity_on_hand + ?, updated_at = ?
		WHERE code = ?
		RETURNING quantity_on_hand`, delta, at.UTC(), code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &pharmacy.NotFoundError{Kind: "catalog entry", Key: code}
	}
	if err != nil {
		return 0, classify("adjust stock", err)
	}
	return qty, nil
}
