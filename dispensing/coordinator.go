/*
Package dispensing implements the prescription dispense state machine.

PURPOSE:
  Marks a prescription dispensed, debits catalog stock for every linked
  item and writes the audit record, all in one transaction. This is the
  one place where inventory and prescriptions change together.

LIFECYCLE:
  draft ──► saved ──► dispensed   (terminal, audited)
              │
              └─────► cancelled   (terminal, no stock effect)

DISPENSE ALGORITHM:
  1. Validate the staff identity
  2. Begin a write transaction (the lock is taken up front)
  3. Load the header
     - dispensed: return Outcome{AlreadyDispensed: true}, write nothing
     - not saved: InvalidStateError
  4. Sum quantities per catalog code across the linked items
  5. For each code: load the entry, apply the StockPolicy, debit
  6. saved → dispensed (compare-and-set on status)
  7. Append the audit record
  8. Commit, then publish events

  Any error in steps 3-7 rolls back everything: no partial debit is ever
  visible to another reader.

IDEMPOTENCE:
  Re-dispensing is a benign no-op, not an error. A client that timed out
  waiting for a dispense can retry without knowing whether the first call
  committed; the retry either does the work or reports AlreadyDispensed.

EVENTS:
  Published only after a successful commit, never from inside the
  transaction, so subscribers never see a change that later rolls back.

SEE ALSO:
  - pharmacy/store.go: Tx and TxStore interfaces
  - store/sqlite/tx.go: the production TxStore
*/
package dispensing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/clinic-rx/clock"
	"github.com/warp/clinic-rx/events"
	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// TYPES
// =============================================================================

// StockChange is the effect of a dispense on one catalog code.
type StockChange struct {
	Code   string `json:"code"`
	Before int64  `json:"before"`
	After  int64  `json:"after"`
}

// Delta returns After - Before.
func (c StockChange) Delta() int64 { return c.After - c.Before }

// Outcome describes a completed Dispense call.
type Outcome struct {
	PrescriptionID   int64         `json:"prescription_id"`
	AlreadyDispensed bool          `json:"already_dispensed"`
	AuditID          int64         `json:"audit_id,omitempty"`
	DispensedBy      string        `json:"dispensed_by"`
	DispensedAt      time.Time     `json:"dispensed_at"`
	StockChanges     []StockChange `json:"stock_changes,omitempty"`
}

// Coordinator runs dispense and cancel transactions.
type Coordinator struct {
	store  pharmacy.TxStore
	pub    events.Publisher
	policy StockPolicy
	clock  clock.Clock
	log    zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher sets where events go after a dispense or cancel commits.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.pub = p }
}

// WithStockPolicy sets how a dispense treats a shortfall.
func WithStockPolicy(p StockPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock sets the clock used when the caller passes a zero time.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithLogger sets the coordinator's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// New creates a Coordinator. Defaults: reject negative stock, no events,
// system clock, no logging.
func New(store pharmacy.TxStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		pub:    events.Nop{},
		policy: RejectNegative,
		clock:  clock.System{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "dispensing").Logger()
	return c
}

// Policy returns the configured stock policy.
func (c *Coordinator) Policy() StockPolicy { return c.policy }

// =============================================================================
// DISPENSE
// =============================================================================

// Dispense marks the prescription dispensed by staff at the given time
// (zero means now), debiting stock for every catalog-linked item.
func (c *Coordinator) Dispense(ctx context.Context, prescriptionID int64, staff string, at time.Time) (Outcome, error) {
	if err := pharmacy.RequireIdentity("dispensed_by", staff); err != nil {
		return Outcome{}, err
	}
	if at.IsZero() {
		at = c.clock.Now()
	}

	var out Outcome
	err := c.store.WithDispenseTx(ctx, func(tx pharmacy.Tx) error {
		out = Outcome{PrescriptionID: prescriptionID}

		p, err := tx.Prescription(ctx, prescriptionID)
		if err != nil {
			return err
		}
		switch p.Status {
		case pharmacy.StatusDispensed:
			out.AlreadyDispensed = true
			if p.DispensedBy != nil {
				out.DispensedBy = *p.DispensedBy
			}
			if p.DispensedAt != nil {
				out.DispensedAt = *p.DispensedAt
			}
			return nil
		case pharmacy.StatusSaved:
		default:
			return &pharmacy.InvalidStateError{PrescriptionID: prescriptionID, Status: p.Status, Action: "dispense"}
		}

		items, err := tx.Items(ctx, prescriptionID)
		if err != nil {
			return err
		}
		for _, d := range debits(items) {
			change, err := c.debit(ctx, tx, prescriptionID, d, at)
			if err != nil {
				return err
			}
			out.StockChanges = append(out.StockChanges, change)
		}

		if err := tx.Transition(ctx, prescriptionID, pharmacy.StatusSaved, pharmacy.StatusDispensed, staff, at); err != nil {
			return err
		}
		out.AuditID, err = tx.AppendAudit(ctx, pharmacy.AuditRecord{
			PrescriptionID: prescriptionID,
			DispensedBy:    staff,
			DispensedAt:    at,
		})
		if err != nil {
			return err
		}
		out.DispensedBy, out.DispensedAt = staff, at
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Int64("prescription_id", prescriptionID).Str("staff", staff).Msg("dispense failed")
		return Outcome{}, err
	}

	if out.AlreadyDispensed {
		c.log.Info().Int64("prescription_id", prescriptionID).Str("staff", staff).
			Str("dispensed_by", out.DispensedBy).Msg("already dispensed")
		return out, nil
	}

	c.log.Info().Int64("prescription_id", prescriptionID).Str("staff", staff).
		Int("codes", len(out.StockChanges)).Int64("audit_id", out.AuditID).Msg("prescription dispensed")
	c.publishDispensed(ctx, out)
	return out, nil
}

type debitLine struct {
	code string
	qty  int64
}

// debits sums the linked items' quantities per code, in first-seen order,
// so two lines of the same drug are checked against stock together.
func debits(items []pharmacy.PrescriptionItem) []debitLine {
	var out []debitLine
	index := make(map[string]int)
	for _, it := range items {
		if !it.Linked() {
			continue
		}
		code := *it.DrugCode
		if i, ok := index[code]; ok {
			out[i].qty += it.Quantity
			continue
		}
		index[code] = len(out)
		out = append(out, debitLine{code: code, qty: it.Quantity})
	}
	return out
}

func (c *Coordinator) debit(ctx context.Context, tx pharmacy.Tx, prescriptionID int64, d debitLine, at time.Time) (StockChange, error) {
	entry, err := tx.CatalogEntry(ctx, d.code)
	if err != nil {
		return StockChange{}, err
	}

	if entry.QuantityOnHand < d.qty {
		if c.policy == RejectNegative {
			return StockChange{}, &pharmacy.InsufficientStockError{
				Code:      d.code,
				Available: entry.QuantityOnHand,
				Requested: d.qty,
			}
		}
		c.log.Warn().Int64("prescription_id", prescriptionID).Str("code", d.code).
			Int64("available", entry.QuantityOnHand).Int64("requested", d.qty).
			Msg("dispensing into negative stock")
	}

	after, err := tx.AdjustStock(ctx, d.code, -d.qty, at)
	if err != nil {
		return StockChange{}, err
	}
	return StockChange{Code: d.code, Before: entry.QuantityOnHand, After: after}, nil
}

func (c *Coordinator) publishDispensed(ctx context.Context, out Outcome) {
	evs := make([]events.Event, 0, len(out.StockChanges)+1)

	ev := events.New(events.PrescriptionDispensed, out.DispensedAt)
	ev.PrescriptionID, ev.Staff = out.PrescriptionID, out.DispensedBy
	evs = append(evs, ev)

	for _, sc := range out.StockChanges {
		ev := events.New(events.StockChanged, out.DispensedAt)
		ev.PrescriptionID, ev.Code = out.PrescriptionID, sc.Code
		ev.Delta, ev.QuantityOnHand = sc.Delta(), sc.After
		evs = append(evs, ev)
	}
	c.pub.Publish(ctx, evs...)
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel moves a saved prescription to cancelled. Cancelling an already
// cancelled prescription is a no-op and returns alreadyCancelled=true.
func (c *Coordinator) Cancel(ctx context.Context, prescriptionID int64, staff string, at time.Time) (alreadyCancelled bool, err error) {
	if err := pharmacy.RequireIdentity("cancelled_by", staff); err != nil {
		return false, err
	}
	if at.IsZero() {
		at = c.clock.Now()
	}

	err = c.store.WithDispenseTx(ctx, func(tx pharmacy.Tx) error {
		p, err := tx.Prescription(ctx, prescriptionID)
		if err != nil {
			return err
		}
		switch p.Status {
		case pharmacy.StatusCancelled:
			alreadyCancelled = true
			return nil
		case pharmacy.StatusSaved:
			return tx.Transition(ctx, prescriptionID, pharmacy.StatusSaved, pharmacy.StatusCancelled, staff, at)
		}
		return &pharmacy.InvalidStateError{PrescriptionID: prescriptionID, Status: p.Status, Action: "cancel"}
	})
	if err != nil {
		return false, err
	}
	if alreadyCancelled {
		return true, nil
	}

	c.log.Info().Int64("prescription_id", prescriptionID).Str("staff", staff).Msg("prescription cancelled")
	ev := events.New(events.PrescriptionCancelled, at)
	ev.PrescriptionID, ev.Staff = prescriptionID, staff
	c.pub.Publish(ctx, ev)
	return false, nil
}
