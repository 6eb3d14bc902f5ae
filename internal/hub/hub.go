// Package hub fans simulation state out to every connected operator UI: a
// single broadcast domain, since diorama's WS server is single-tenant by
// design. Adapted into a push-fanout subscriber registry.
package hub

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/logging"
	"github.com/mauriceyap/diorama/internal/orchestrator"
)

// Outbound WS event names.
const (
	EventProgramList             = "programs"
	EventRawNetworkTopology      = "rawNetworkTopology"
	EventUnpackedNetworkTopology = "unpackedNetworkTopology"
	EventCustomConfig            = "customConfig"
	EventSimulationState         = "simulationState"
	EventSimulationNodes         = "simulationNodes"
	EventSimulationLogs          = "simulationLogs"
)

// pollInterval is how often the hub re-queries and diff-pushes simulation
// node status: frequent enough to feel live, cheap enough not to hammer the
// container runtime.
const pollInterval = 500 * time.Millisecond

// Subscriber is one connected operator UI transport. The ws package's
// connection wrapper is the production implementation; tests can supply a
// fake.
type Subscriber interface {
	Send(event string, data interface{}) error
}

// Hub is the broadcast registry: every event reaches every subscriber, and
// subscribers that error on Send are dropped as dead on the next attempt.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]Subscriber
	nextID      uint64

	orch      *orchestrator.Orchestrator
	lastNodes []api.SimulationNode
}

// New builds a Hub wired to orch and registers itself as the orchestrator's
// StateChangePublisher.
func New(orch *orchestrator.Orchestrator) *Hub {
	h := &Hub{
		subscribers: make(map[uint64]Subscriber),
		orch:        orch,
	}
	orch.SetPublisher(h)
	return h
}

// Register adds sub to the broadcast set and returns an id for Unregister.
func (h *Hub) Register(sub Subscriber) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = sub
	return id
}

// Unregister removes a subscriber, e.g. on WS close.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// Broadcast pushes event to every live subscriber, pruning any that error.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.Lock()
	targets := make(map[uint64]Subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		targets[id] = sub
	}
	h.mu.Unlock()

	var dead []uint64
	for id, sub := range targets {
		if err := sub.Send(event, data); err != nil {
			logging.S().Debugw("dropping dead subscriber", "id", id, "error", err)
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, id := range dead {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

// PublishState implements orchestrator.StateChangePublisher: every lifecycle
// transition is broadcast immediately rather than waiting for the next poll
// tick.
func (h *Hub) PublishState(state api.SimulationState) {
	h.Broadcast(EventSimulationState, state)
}

// Run drives the periodic simulation-nodes diff-push until ctx is
// cancelled. Call it once in its own goroutine from the daemon.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pollAndPush(ctx)
		}
	}
}

func (h *Hub) pollAndPush(ctx context.Context) {
	nodes, err := h.orch.GetSimulationNodes(ctx)
	if err != nil {
		logging.S().Errorw("polling simulation nodes", "error", err)
		return
	}

	h.mu.Lock()
	changed := !reflect.DeepEqual(nodes, h.lastNodes)
	if changed {
		h.lastNodes = nodes
	}
	h.mu.Unlock()

	if changed {
		h.Broadcast(EventSimulationNodes, nodes)
	}
}
