package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_SubscribeEmitDelivery(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Emit(Event{Kind: EventMessageAppended, Branch: "main"})

	select {
	case evt := <-ch:
		assert.Equal(t, EventMessageAppended, evt.Kind)
		assert.Equal(t, "main", evt.Branch)
		assert.Equal(t, uint64(1), evt.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_SequenceNumbersMonotonic(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()

	bus.Emit(Event{Kind: EventMessageAppended})
	bus.Emit(Event{Kind: EventStateChanged})
	bus.Emit(Event{Kind: EventTurnFinished})

	var seqs []uint64
	for i := 0; i < 3; i++ {
		seqs = append(seqs, (<-ch).Seq)
	}
	require.Len(t, seqs, 3)
	assert.True(t, seqs[0] < seqs[1])
	assert.True(t, seqs[1] < seqs[2])
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Emit(Event{Kind: EventMessageAppended})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed on unsubscribe")
}

func TestEventBus_EmitNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	_ = bus.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Emit(Event{Kind: EventContextUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full, undrained subscriber channel")
	}
}
