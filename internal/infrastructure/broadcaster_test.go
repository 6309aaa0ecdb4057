package infrastructure

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/elmyly/whaty/internal/entities"
)

func TestSubscribeStateDeliversSnapshotFirst(t *testing.T) {
	bus := NewBroadcaster(zerolog.Nop())
	snapshot := entities.SessionState{Status: entities.StatusQR, QRPayload: "qr-1", UpdatedAt: time.Now()}

	sub := bus.SubscribeState("7", snapshot)
	defer bus.UnsubscribeState(sub)
	bus.PublishState("7", entities.SessionState{Status: entities.StatusConnected})

	first := <-sub.C
	require.Equal(t, entities.StatusQR, first.Status)
	require.Equal(t, "qr-1", first.QRPayload)
	second := <-sub.C
	require.Equal(t, entities.StatusConnected, second.Status)
}

func TestPublishStateIsKeyScoped(t *testing.T) {
	bus := NewBroadcaster(zerolog.Nop())
	subA := bus.SubscribeState("a", entities.SessionState{Status: entities.StatusStarting})
	subB := bus.SubscribeState("b", entities.SessionState{Status: entities.StatusStarting})
	defer bus.UnsubscribeState(subA)
	defer bus.UnsubscribeState(subB)
	<-subA.C
	<-subB.C

	bus.PublishState("a", entities.SessionState{Status: entities.StatusConnected})

	require.Equal(t, entities.StatusConnected, (<-subA.C).Status)
	select {
	case state := <-subB.C:
		t.Fatalf("subscriber for key b received foreign update: %+v", state)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowStateSubscriberIsDropped(t *testing.T) {
	bus := NewBroadcaster(zerolog.Nop())
	slow := bus.SubscribeState("7", entities.SessionState{Status: entities.StatusStarting})

	// Never reading: the snapshot plus these fill the buffer and the producer
	// must drop the subscriber instead of blocking.
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.PublishState("7", entities.SessionState{Status: entities.StatusLoading})
	}

	received := 0
	for range slow.C {
		received++
	}
	require.LessOrEqual(t, received, subscriberBuffer)

	// Neither a later publish nor an explicit unsubscribe may panic on the
	// already-dropped subscriber.
	bus.PublishState("7", entities.SessionState{Status: entities.StatusConnected})
	bus.UnsubscribeState(slow)
}

func TestUnsubscribeStateClosesChannel(t *testing.T) {
	bus := NewBroadcaster(zerolog.Nop())
	sub := bus.SubscribeState("7", entities.SessionState{Status: entities.StatusStarting})
	<-sub.C

	bus.UnsubscribeState(sub)
	_, open := <-sub.C
	require.False(t, open)

	bus.PublishState("7", entities.SessionState{Status: entities.StatusConnected})
}

func TestPublishInboxFanOut(t *testing.T) {
	bus := NewBroadcaster(zerolog.Nop())
	subA := bus.SubscribeInbox("7")
	subB := bus.SubscribeInbox("7")
	other := bus.SubscribeInbox("8")
	defer bus.UnsubscribeInbox(subA)
	defer bus.UnsubscribeInbox(subB)
	defer bus.UnsubscribeInbox(other)

	bus.PublishInbox(entities.InboxEntry{ID: "m1", SessionKey: "7", Body: "hello"})

	require.Equal(t, "m1", (<-subA.C).ID)
	require.Equal(t, "m1", (<-subB.C).ID)
	select {
	case entry := <-other.C:
		t.Fatalf("subscriber for key 8 received foreign entry: %+v", entry)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishInboxPreservesOrder(t *testing.T) {
	bus := NewBroadcaster(zerolog.Nop())
	sub := bus.SubscribeInbox("7")
	defer bus.UnsubscribeInbox(sub)

	for i := 0; i < 10; i++ {
		bus.PublishInbox(entities.InboxEntry{ID: fmt.Sprintf("m%d", i), SessionKey: "7"})
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, fmt.Sprintf("m%d", i), (<-sub.C).ID)
	}
}
