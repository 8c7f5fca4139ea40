/*
monitor.go - Periodic low-stock check

PURPOSE:
  Periodically lists catalog entries at or below a threshold and logs a
  warning for each, so the pharmacist sees shortages before a dispense is
  rejected. The last run is kept for GET /api/admin/low-stock.

DESIGN:
  - Run blocks until its context is cancelled; "clinicrx serve" runs it
    in the same errgroup as the HTTP server
  - Checks once immediately, then on every tick
  - A failed check is logged and retried on the next tick

USAGE:
  monitor := NewLowStockMonitor(engine, 10, time.Hour, log)
  g.Go(func() error { return monitor.Run(ctx) })

SEE ALSO:
  - handlers.go: LowStockStatus, ListLowStock
  - store/sqlite/catalog.go: ListLowStock
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/clinic-rx/clinic"
	"github.com/warp/clinic-rx/pharmacy"
)

// LowStockReport is the result of one check.
type LowStockReport struct {
	CheckedAt time.Time               `json:"checked_at"`
	Threshold int64                   `json:"threshold"`
	Entries   []pharmacy.CatalogEntry `json:"entries"`
	Error     string                  `json:"error,omitempty"`
}

// LowStockMonitor runs the periodic low-stock check.
type LowStockMonitor struct {
	Engine    *clinic.Engine
	Threshold int64
	Interval  time.Duration

	log  zerolog.Logger
	now  func() time.Time
	mu   sync.Mutex
	last LowStockReport
}

// NewLowStockMonitor creates a monitor. It does nothing until Run.
func NewLowStockMonitor(engine *clinic.Engine, threshold int64, interval time.Duration, log zerolog.Logger) *LowStockMonitor {
	return &LowStockMonitor{
		Engine:    engine,
		Threshold: threshold,
		Interval:  interval,
		log:       log.With().Str("component", "low_stock_monitor").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run checks immediately and then every Interval until ctx is done.
func (m *LowStockMonitor) Run(ctx context.Context) error {
	if m.Interval <= 0 {
		return errors.New("low-stock monitor interval must be positive")
	}
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.Interval).Int64("threshold", m.Threshold).Msg("started")
	m.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunNow(ctx)
		case <-ctx.Done():
			m.log.Info().Msg("stopped")
			return nil
		}
	}
}

// RunNow performs one check and records it.
func (m *LowStockMonitor) RunNow(ctx context.Context) LowStockReport {
	report := LowStockReport{CheckedAt: m.now(), Threshold: m.Threshold}

	entries, err := m.Engine.ListLowStock(ctx, m.Threshold)
	if err != nil {
		m.log.Error().Err(err).Msg("low-stock check failed")
		report.Error = err.Error()
	} else {
		report.Entries = entries
		for _, e := range entries {
			m.log.Warn().Str("code", e.Code).Str("name", e.Name).
				Int64("on_hand", e.QuantityOnHand).Msg("low stock")
		}
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()
	return report
}

// LastRun returns the most recent report; zero before the first check.
func (m *LowStockMonitor) LastRun() LowStockReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
