package hub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	events []string
	fail   bool
}

func (f *fakeSubscriber) Send(event string, data interface{}) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.events = append(f.events, event)
	return nil
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := &Hub{subscribers: make(map[uint64]Subscriber)}
	a, b := &fakeSubscriber{}, &fakeSubscriber{}
	h.Register(a)
	h.Register(b)

	h.Broadcast("simulationState", "READY_TO_RUN")

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, "simulationState", a.events[0])
}

func TestBroadcastPrunesDeadSubscribers(t *testing.T) {
	h := &Hub{subscribers: make(map[uint64]Subscriber)}
	dead := &fakeSubscriber{fail: true}
	id := h.Register(dead)
	alive := &fakeSubscriber{}
	h.Register(alive)

	h.Broadcast("simulationState", "RUNNING")

	h.mu.Lock()
	_, stillThere := h.subscribers[id]
	h.mu.Unlock()
	assert.False(t, stillThere)
	assert.Len(t, alive.events, 1)
}

func TestUnregisterRemovesSubscriber(t *testing.T) {
	h := &Hub{subscribers: make(map[uint64]Subscriber)}
	sub := &fakeSubscriber{}
	id := h.Register(sub)
	h.Unregister(id)

	h.Broadcast("simulationState", "UNINITIALISED")
	assert.Empty(t, sub.events)
}
