// Package memory provides an in-memory pharmacy.TxStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/clinic-rx/pharmacy"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds prescriptions, items, catalog and audit rows in maps.
// WithDispenseTx serializes transactions with a mutex and works on a copy
// of the state, so a failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.Mutex
	state state
}

type state struct {
	prescriptions map[int64]pharmacy.Prescription
	items         map[int64][]pharmacy.PrescriptionItem
	catalog       map[string]pharmacy.CatalogEntry
	audit         []pharmacy.AuditRecord
	nextAuditID   int64
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: state{
		prescriptions: make(map[int64]pharmacy.Prescription),
		items:         make(map[int64][]pharmacy.PrescriptionItem),
		catalog:       make(map[string]pharmacy.CatalogEntry),
		nextAuditID:   1,
	}}
}

// PutCatalogEntry inserts or replaces a catalog entry.
func (m *Memory) PutCatalogEntry(e pharmacy.CatalogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.catalog[e.Code] = e
}

// PutPrescription inserts or replaces a prescription and its items.
// Items are stored sorted by position.
func (m *Memory) PutPrescription(p pharmacy.Prescription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := append([]pharmacy.PrescriptionItem(nil), p.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	p.Items = nil
	m.state.prescriptions[p.ID] = p
	m.state.items[p.ID] = items
}

// Prescription returns a committed prescription header.
func (m *Memory) Prescription(id int64) (pharmacy.Prescription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.prescriptions[id]
	return p, ok
}

// CatalogEntry returns a committed catalog entry.
func (m *Memory) CatalogEntry(code string) (pharmacy.CatalogEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.state.catalog[code]
	return e, ok
}

// Audit returns the committed audit records in insertion order.
func (m *Memory) Audit() []pharmacy.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pharmacy.AuditRecord(nil), m.state.audit...)
}

// WithDispenseTx runs fn against a private copy of the state and swaps it
// in only if fn succeeds.
func (m *Memory) WithDispenseTx(ctx context.Context, fn func(pharmacy.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&tx{s: &work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s state) clone() state {
	out := state{
		prescriptions: make(map[int64]pharmacy.Prescription, len(s.prescriptions)),
		items:         make(map[int64][]pharmacy.PrescriptionItem, len(s.items)),
		catalog:       make(map[string]pharmacy.CatalogEntry, len(s.catalog)),
		audit:         append([]pharmacy.AuditRecord(nil), s.audit...),
		nextAuditID:   s.nextAuditID,
	}
	for k, v := range s.prescriptions {
		out.prescriptions[k] = v
	}
	for k, v := range s.items {
		out.items[k] = append([]pharmacy.PrescriptionItem(nil), v...)
	}
	for k, v := range s.catalog {
		out.catalog[k] = v
	}
	return out
}

// =============================================================================
// TRANSACTION
// =============================================================================

type tx struct {
	s *state
}

var _ pharmacy.TxStore = (*Memory)(nil)

func (t *tx) Prescription(_ context.Context, id int64) (*pharmacy.Prescription, error) {
	p, ok := t.s.prescriptions[id]
	if !ok {
		return nil, &pharmacy.NotFoundError{Kind: "prescription", Key: fmt.Sprint(id)}
	}
	return &p, nil
}

func (t *tx) Items(_ context.Context, prescriptionID int64) ([]pharmacy.PrescriptionItem, error) {
	return append([]pharmacy.PrescriptionItem(nil), t.s.items[prescriptionID]...), nil
}

func (t *tx) CatalogEntry(_ context.Context, code string) (*pharmacy.CatalogEntry, error) {
	e, ok := t.s.catalog[code]
	if !ok {
		return nil, &pharmacy.NotFoundError{Kind: "catalog entry", Key: code}
	}
	return &e, nil
}

func (t *tx) AdjustStock(_ context.Context, code string, delta int64, at time.Time) (int64, error) {
	e, ok := t.s.catalog[code]
	if !ok {
		return 0, &pharmacy.NotFoundError{Kind: "catalog entry", Key: code}
	}
	e.QuantityOnHand += delta
	at = at.UTC()
	e.UpdatedAt = &at
	t.s.catalog[code] = e
	return e.QuantityOnHand, nil
}

func (t *tx) Transition(_ context.Context, id int64, from, to pharmacy.Status, by string, at time.Time) error {
	p, ok := t.s.prescriptions[id]
	if !ok {
		return &pharmacy.NotFoundError{Kind: "prescription", Key: fmt.Sprint(id)}
	}
	if p.Status != from || !pharmacy.CanTransition(from, to) {
		return &pharmacy.InvalidStateError{PrescriptionID: id, Status: p.Status, Action: "move to " + string(to)}
	}
	p.Status = to
	at = at.UTC()
	switch to {
	case pharmacy.StatusDispensed:
		p.DispensedBy, p.DispensedAt = &by, &at
	case pharmacy.StatusCancelled:
		p.CancelledBy, p.CancelledAt = &by, &at
	}
	t.s.prescriptions[id] = p
	return nil
}

func (t *tx) AppendAudit(_ context.Context, rec pharmacy.AuditRecord) (int64, error) {
	for _, r := range t.s.audit {
		if r.PrescriptionID == rec.PrescriptionID {
			return 0, &pharmacy.InvalidStateError{
				PrescriptionID: rec.PrescriptionID,
				Status:         pharmacy.StatusDispensed,
				Action:         "audit",
			}
		}
	}
	rec.ID = t.s.nextAuditID
	t.s.nextAuditID++
	t.s.audit = append(t.s.audit, rec)
	return rec.ID, nil
}
