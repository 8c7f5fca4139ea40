package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clinic-rx/events"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	ctx := context.Background()

	var got []string
	bus.Subscribe(func(_ context.Context, ev events.Event) { got = append(got, "a:"+string(ev.Type)) })
	bus.Subscribe(func(_ context.Context, ev events.Event) { got = append(got, "b:"+string(ev.Type)) })

	bus.Publish(ctx,
		events.New(events.PrescriptionDispensed, time.Now()),
		events.New(events.StockChanged, time.Now()),
	)

	assert.Equal(t, []string{
		"a:prescription.dispensed", "b:prescription.dispensed",
		"a:stock.changed", "b:stock.changed",
	}, got)
}

func TestBus_Unsubscribe_StopsDelivery(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	ctx := context.Background()

	calls := 0
	unsubscribe := bus.Subscribe(func(context.Context, events.Event) { calls++ })
	require.Equal(t, 1, bus.Len())

	bus.Publish(ctx, events.New(events.StockChanged, time.Now()))
	unsubscribe()
	unsubscribe()
	bus.Publish(ctx, events.New(events.StockChanged, time.Now()))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_PanickingHandler_DoesNotStopOthers(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(func(context.Context, events.Event) { panic("boom") })
	bus.Subscribe(func(context.Context, events.Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), events.New(events.PrescriptionCancelled, time.Now()))
	})
	assert.True(t, delivered)
}

func TestNew_UniqueIDs(t *testing.T) {
	a := events.New(events.StockChanged, time.Now())
	b := events.New(events.StockChanged, time.Now())
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
