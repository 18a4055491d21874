package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	want := Change{Table: "services", Op: OpUpdate, RecordID: "abc"}
	require.NoError(t, bus.Publish(context.Background(), want))

	select {
	case got := <-changes:
		assert.Equal(t, want.Table, got.Table)
		assert.Equal(t, want.Op, got.Op)
		assert.Equal(t, want.RecordID, got.RecordID)
		assert.False(t, got.At.IsZero(), "Publish must stamp At when unset")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(nil)
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Change{Table: "projects", Op: OpDelete, RecordID: "1"}))

	for name, ch := range map[string]<-chan Change{"first": first, "second": second} {
		select {
		case got := <-ch:
			assert.Equal(t, "projects", got.Table, "subscriber %s", name)
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %s timed out", name)
		}
	}
}

func TestBus_SubscriptionEndsWithContext(t *testing.T) {
	bus := NewBus(nil)
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-changes:
		assert.False(t, open, "channel must close after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after context cancellation")
	}
}
