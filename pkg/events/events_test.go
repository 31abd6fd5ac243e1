package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversBeforeStop(t *testing.T) {
	b := NewBroker()
	b.Start()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Emit(EventPlanStarted, "3 procedures", "history_uuid", "h-1")
	b.Publish(&Event{Type: EventPlanCompleted, Message: "done"})
	b.Stop()
	b.Stop()

	var got []*Event
	for ev := range sub {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, EventPlanStarted, got[0].Type)
	assert.Equal(t, "h-1", got[0].Metadata["history_uuid"])
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, EventPlanCompleted, got[1].Type)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestNilBroker(t *testing.T) {
	var b *Broker
	assert.NotPanics(t, func() {
		b.Emit(EventBootstrapWait, "waiting")
		b.Publish(&Event{Type: EventPlanFailed})
		b.Stop()
	})
}
