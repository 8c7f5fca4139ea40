/*
Package clinic is the collaborator-facing entry point of the fulfillment
engine.

PURPOSE:
  Bundles the store, the dispensing coordinator and the event bus behind
  the handful of operations the rest of the application needs. The HTTP
  adapter (api/) and the CLI (cmd/clinicrx) only ever talk to an Engine.

STARTUP:
  engine, err := clinic.Open(cfg, log)
  if err != nil {
      return err
  }
  defer engine.Close()

  if _, err := engine.EnsureSchema(ctx); err != nil {
      return err // a required table could not be created
  }

EVENTS:
  Subscribe registers a handler on the engine's bus. Handlers run after
  the originating transaction has committed, on the caller's goroutine.

SEE ALSO:
  - dispensing/coordinator.go: dispense and cancel
  - store/sqlite: persistence and schema migration
*/
package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/clinic-rx/clock"
	"github.com/warp/clinic-rx/config"
	"github.com/warp/clinic-rx/dispensing"
	"github.com/warp/clinic-rx/events"
	"github.com/warp/clinic-rx/pharmacy"
	"github.com/warp/clinic-rx/store/sqlite"
)

// Engine wires the store, the coordinator and the bus together.
type Engine struct {
	store *sqlite.Store
	coord *dispensing.Coordinator
	bus   *events.Bus
	clock clock.Clock
	log   zerolog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the system clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Open opens the database named by cfg and builds an Engine over it.
// The schema is not touched until EnsureSchema is called.
func Open(cfg config.Config, log zerolog.Logger, opts ...Option) (*Engine, error) {
	o := options{clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}

	policy, err := dispensing.ParseStockPolicy(cfg.StockPolicy)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(cfg.DBPath,
		sqlite.WithBusyTimeout(cfg.BusyTimeout),
		sqlite.WithBackupDir(cfg.BackupDir),
		sqlite.WithLogger(log),
		sqlite.WithClock(o.clock.Now),
	)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(log)
	coord := dispensing.New(store,
		dispensing.WithPublisher(bus),
		dispensing.WithStockPolicy(policy),
		dispensing.WithClock(o.clock),
		dispensing.WithLogger(log),
	)

	return &Engine{
		store: store,
		coord: coord,
		bus:   bus,
		clock: o.clock,
		log:   log.With().Str("component", "engine").Logger(),
	}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the underlying store for maintenance commands.
func (e *Engine) Store() *sqlite.Store { return e.store }

// StockPolicy returns the configured stock policy.
func (e *Engine) StockPolicy() dispensing.StockPolicy { return e.coord.Policy() }

// =============================================================================
// SCHEMA
// =============================================================================

// EnsureSchema brings the data file to the current layout. The report is
// returned even on error; the error is non-nil only when a required step
// failed or the context was cancelled.
func (e *Engine) EnsureSchema(ctx context.Context) (sqlite.Report, error) {
	report := e.store.Schema().Ensure(ctx, sqlite.CurrentPlan())
	return report, report.Err()
}

// Reset deletes all rows. Demo use only.
func (e *Engine) Reset(ctx context.Context) error {
	e.log.Warn().Msg("resetting all data")
	return e.store.Reset(ctx)
}

// =============================================================================
// PRESCRIPTIONS
// =============================================================================

// CreatePrescription persists a header with its items and returns the id.
func (e *Engine) CreatePrescription(ctx context.Context, header pharmacy.NewPrescription, items []pharmacy.NewItem) (int64, error) {
	if header.CreatedAt.IsZero() {
		header.CreatedAt = e.clock.Now()
	}
	return e.store.CreatePrescription(ctx, header, items)
}

// GetPrescription returns one prescription with its items.
func (e *Engine) GetPrescription(ctx context.Context, id int64) (*pharmacy.Prescription, error) {
	return e.store.GetPrescription(ctx, id)
}

// ListPrescriptionsForPatient returns the patient's prescriptions, newest
// first, each with its items.
func (e *Engine) ListPrescriptionsForPatient(ctx context.Context, patientID string) ([]pharmacy.Prescription, error) {
	if err := pharmacy.RequireIdentity("patient_id", patientID); err != nil {
		return nil, err
	}
	return e.store.ListByPatient(ctx, patientID)
}

// UpdateHeader changes the editable header fields of a draft or saved
// prescription.
func (e *Engine) UpdateHeader(ctx context.Context, id int64, u pharmacy.HeaderUpdate) error {
	return e.store.UpdateHeader(ctx, id, u)
}

// Finalize moves a draft to saved.
func (e *Engine) Finalize(ctx context.Context, id int64) error {
	return e.store.FinalizePrescription(ctx, id)
}

// Delete removes a prescription that has not been dispensed.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	return e.store.DeletePrescription(ctx, id)
}

// ListAudit returns the dispense audit rows for a prescription.
func (e *Engine) ListAudit(ctx context.Context, id int64) ([]pharmacy.AuditRecord, error) {
	return e.store.ListAudit(ctx, id)
}

// =============================================================================
// DISPENSING
// =============================================================================

// Dispense marks the prescription dispensed and debits stock. A second
// call for the same prescription returns alreadyDispensed=true and a nil
// error.
func (e *Engine) Dispense(ctx context.Context, prescriptionID int64, staff string, now time.Time) (alreadyDispensed bool, err error) {
	out, err := e.coord.Dispense(ctx, prescriptionID, staff, now)
	if err != nil {
		return false, err
	}
	return out.AlreadyDispensed, nil
}

// DispenseOutcome is Dispense with the per-code stock changes.
func (e *Engine) DispenseOutcome(ctx context.Context, prescriptionID int64, staff string, now time.Time) (dispensing.Outcome, error) {
	return e.coord.Dispense(ctx, prescriptionID, staff, now)
}

// Cancel moves a saved prescription to cancelled.
func (e *Engine) Cancel(ctx context.Context, prescriptionID int64, staff string, now time.Time) (alreadyCancelled bool, err error) {
	return e.coord.Cancel(ctx, prescriptionID, staff, now)
}

// =============================================================================
// CATALOG
// =============================================================================

// UpsertCatalogEntry creates or updates a catalog entry's descriptive
// fields. Stock is only changed by Restock and Dispense.
func (e *Engine) UpsertCatalogEntry(ctx context.Context, entry pharmacy.CatalogEntry) error {
	return e.store.Upsert(ctx, entry)
}

// Restock adds qty units to the entry's stock.
func (e *Engine) Restock(ctx context.Context, code string, qty int64, now time.Time) error {
	_, err := e.RestockWithNote(ctx, code, qty, now, "")
	return err
}

// RestockWithNote is Restock returning the receipt row.
func (e *Engine) RestockWithNote(ctx context.Context, code string, qty int64, now time.Time, note string) (*pharmacy.StockReceipt, error) {
	if now.IsZero() {
		now = e.clock.Now()
	}
	rec, err := e.store.Restock(ctx, code, qty, now, note)
	if err != nil {
		return nil, fmt.Errorf("restock %s: %w", code, err)
	}

	ev := events.New(events.StockChanged, rec.ReceivedAt)
	ev.Code, ev.Delta, ev.QuantityOnHand = code, qty, rec.QuantityAfter
	e.bus.Publish(ctx, ev)
	return rec, nil
}

// GetCatalogEntry returns one catalog entry by code.
func (e *Engine) GetCatalogEntry(ctx context.Context, code string) (*pharmacy.CatalogEntry, error) {
	return e.store.GetByCode(ctx, code)
}

// ListCatalog returns every catalog entry ordered by code.
func (e *Engine) ListCatalog(ctx context.Context) ([]pharmacy.CatalogEntry, error) {
	return e.store.ListAll(ctx)
}

// ListLowStock returns entries at or below threshold, lowest first.
func (e *Engine) ListLowStock(ctx context.Context, threshold int64) ([]pharmacy.CatalogEntry, error) {
	return e.store.ListLowStock(ctx, threshold)
}

// ListReceipts returns the stock receipts booked for code, oldest first.
func (e *Engine) ListReceipts(ctx context.Context, code string) ([]pharmacy.StockReceipt, error) {
	return e.store.ListReceipts(ctx, code)
}

// InventoryValue returns Σ(price × quantity-on-hand) over the catalog.
func (e *Engine) InventoryValue(ctx context.Context) (decimal.Decimal, error) {
	return e.store.TotalInventoryValue(ctx)
}

// =============================================================================
// EVENTS
// =============================================================================

// Subscribe registers fn for every event published after a commit.
func (e *Engine) Subscribe(fn events.Handler) (unsubscribe func()) {
	return e.bus.Subscribe(fn)
}
