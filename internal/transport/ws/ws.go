// Package ws is the gorilla/websocket-backed operator UI transport: JSON
// frames `{event, data}` where data is itself JSON-encoded text. Inbound
// events are parsed into a tagged union and dispatched through a single
// switch, deliberately avoiding a string→handler table; outbound events are
// pushed through the Subscriber interface the Hub already broadcasts to.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/connparams"
	"github.com/mauriceyap/diorama/internal/containerrt"
	"github.com/mauriceyap/diorama/internal/hub"
	"github.com/mauriceyap/diorama/internal/logging"
	"github.com/mauriceyap/diorama/internal/orchestrator"
	"github.com/mauriceyap/diorama/internal/repo"
	"github.com/mauriceyap/diorama/internal/validation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Single-tenant operator UI, no multi-tenant isolation; any origin is
	// accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the wire frame: data carries a JSON-encoded payload as text,
// not a nested JSON value.
type envelope struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Connection wraps one accepted WS connection; it implements hub.Subscriber
// so the Hub can push outbound events to it directly.
type Connection struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex

	// ctx lives as long as the connection itself; log-tail goroutines run
	// against it instead of a single dispatch's short-lived deadline.
	ctx context.Context
}

// Send implements hub.Subscriber: marshal data, wrap it in the envelope and
// write it as one text frame.
func (c *Connection) Send(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling %s payload: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(envelope{Event: event, Data: string(payload)})
}

// Handler holds the stores and collaborators every inbound event needs.
type Handler struct {
	Store      *repo.Store
	ConnParams *connparams.Store
	Orch       *orchestrator.Orchestrator
	Hub        *hub.Hub
}

// ServeHTTP upgrades the request to a WS connection, registers it with the
// hub and runs the read loop until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.S().Errorw("ws upgrade failed", "error", err)
		return
	}
	defer wsConn.Close()

	connCtx, cancelConn := context.WithCancel(r.Context())
	defer cancelConn()

	conn := &Connection{id: uuid.New().String(), conn: wsConn, ctx: connCtx}
	subID := h.Hub.Register(conn)
	defer h.Hub.Unregister(subID)

	logging.S().Infow("ws connection opened", "id", conn.id)

	for {
		var env envelope
		if err := wsConn.ReadJSON(&env); err != nil {
			logging.S().Debugw("ws connection closed", "id", conn.id, "error", err)
			return
		}

		ev, err := parseInbound(env.Event, env.Data)
		if err != nil {
			logging.S().Warnw("dropping malformed ws frame", "id", conn.id, "event", env.Event, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		if err := h.dispatch(ctx, conn, ev); err != nil {
			// Never surface a raw exception to the wire. Log it; the
			// periodic poll reconciles any state drift.
			logging.S().Errorw("handling ws event", "id", conn.id, "event", env.Event, "error", err)
		}
		cancel()
	}
}

// InboundEvent is the tagged union of recognised inbound events.
type InboundEvent interface{ isInboundEvent() }

type addProgramEvent struct{ Program api.Program }
type deleteProgramEvent struct{ Name string }
type modifyProgramEvent struct{ Program api.Program }
type getProgramsEvent struct{}
type getRawNetworkTopologyEvent struct{}
type getUnpackedNetworkTopologyEvent struct{}
type setCustomConfigEvent struct{ Config api.CustomConfig }
type getCustomConfigEvent struct{}
type setUpSimulationEvent struct{}
type stopAndResetSimulationEvent struct{}
type getSimulationStateEvent struct{}
type getSimulationNodesEvent struct{}
type performNodeActionEvent struct {
	Nid    string
	Action api.NodeAction
}
type streamNodeLogsEvent struct {
	Nid   string
	All   bool
	Since string
}

func (addProgramEvent) isInboundEvent()               {}
func (deleteProgramEvent) isInboundEvent()             {}
func (modifyProgramEvent) isInboundEvent()             {}
func (getProgramsEvent) isInboundEvent()               {}
func (getRawNetworkTopologyEvent) isInboundEvent()      {}
func (getUnpackedNetworkTopologyEvent) isInboundEvent() {}
func (setCustomConfigEvent) isInboundEvent()           {}
func (getCustomConfigEvent) isInboundEvent()           {}
func (setUpSimulationEvent) isInboundEvent()           {}
func (stopAndResetSimulationEvent) isInboundEvent()    {}
func (getSimulationStateEvent) isInboundEvent()        {}
func (getSimulationNodesEvent) isInboundEvent()        {}
func (performNodeActionEvent) isInboundEvent()         {}
func (streamNodeLogsEvent) isInboundEvent()            {}

func parseInbound(event, data string) (InboundEvent, error) {
	switch event {
	case "addProgram":
		var p api.Program
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		return addProgramEvent{Program: p}, nil
	case "deleteProgram":
		var body struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return nil, err
		}
		return deleteProgramEvent{Name: body.Name}, nil
	case "modifyProgram":
		var p api.Program
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		return modifyProgramEvent{Program: p}, nil
	case "getPrograms":
		return getProgramsEvent{}, nil
	case "getRawNetworkTopology":
		return getRawNetworkTopologyEvent{}, nil
	case "getUnpackedNetworkTopology":
		return getUnpackedNetworkTopologyEvent{}, nil
	case "setCustomConfig":
		var cfg api.CustomConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			return nil, err
		}
		return setCustomConfigEvent{Config: cfg}, nil
	case "getCustomConfig":
		return getCustomConfigEvent{}, nil
	case "setUpSimulation":
		return setUpSimulationEvent{}, nil
	case "stopAndResetSimulation":
		return stopAndResetSimulationEvent{}, nil
	case "getSimulationState":
		return getSimulationStateEvent{}, nil
	case "getSimulationNodes":
		return getSimulationNodesEvent{}, nil
	case "performNodeAction":
		var body struct {
			Nid    string        `json:"nid"`
			Action api.NodeAction `json:"action"`
		}
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return nil, err
		}
		return performNodeActionEvent{Nid: body.Nid, Action: body.Action}, nil
	case "streamNodeLogs":
		var body struct {
			All   bool   `json:"all"`
			Nid   string `json:"nid"`
			Since string `json:"since"`
		}
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return nil, err
		}
		return streamNodeLogsEvent{Nid: body.Nid, All: body.All, Since: body.Since}, nil
	default:
		return nil, fmt.Errorf("unrecognised ws event: %s", event)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Connection, ev InboundEvent) error {
	switch e := ev.(type) {
	case addProgramEvent:
		return h.handleAddProgram(e.Program)
	case deleteProgramEvent:
		return h.handleDeleteProgram(e.Name)
	case modifyProgramEvent:
		return h.handleModifyProgram(e.Program)
	case getProgramsEvent:
		return h.sendPrograms(conn)
	case getRawNetworkTopologyEvent:
		return h.sendRawTopology(conn)
	case getUnpackedNetworkTopologyEvent:
		return h.sendUnpackedTopology(conn)
	case setCustomConfigEvent:
		return h.handleSetCustomConfig(conn, e.Config)
	case getCustomConfigEvent:
		return h.sendCustomConfig(conn)
	case setUpSimulationEvent:
		h.Orch.SetUpSimulation(context.Background())
		return nil
	case stopAndResetSimulationEvent:
		go func() {
			if err := h.Orch.StopAndResetSimulation(context.Background()); err != nil {
				logging.S().Errorw("stop and reset simulation", "error", err)
			}
		}()
		return nil
	case getSimulationStateEvent:
		return conn.Send(hub.EventSimulationState, h.Orch.State())
	case getSimulationNodesEvent:
		nodes, err := h.Orch.GetSimulationNodes(ctx)
		if err != nil {
			return err
		}
		return conn.Send(hub.EventSimulationNodes, nodes)
	case performNodeActionEvent:
		return h.Orch.PerformNodeAction(ctx, e.Nid, e.Action)
	case streamNodeLogsEvent:
		return h.handleStreamNodeLogs(conn.ctx, conn, e)
	default:
		return fmt.Errorf("unhandled inbound event type %T", ev)
	}
}

func (h *Handler) handleAddProgram(p api.Program) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := validation.Struct(p); err != nil {
		return fmt.Errorf("invalid program: %w", err)
	}
	if err := h.Store.PutProgram(p); err != nil {
		return err
	}
	return h.broadcastPrograms()
}

func (h *Handler) handleDeleteProgram(name string) error {
	if err := h.Store.DeleteProgram(name); err != nil {
		return err
	}
	return h.broadcastPrograms()
}

func (h *Handler) handleModifyProgram(p api.Program) error {
	existing, err := h.Store.GetProgram(p.Name)
	if err == nil {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	if err := validation.Struct(p); err != nil {
		return fmt.Errorf("invalid program: %w", err)
	}
	if err := h.Store.PutProgram(p); err != nil {
		return err
	}
	return h.broadcastPrograms()
}

func (h *Handler) broadcastPrograms() error {
	programs, err := h.Store.ListPrograms()
	if err != nil {
		return err
	}
	h.Hub.Broadcast(hub.EventProgramList, programs)
	return nil
}

func (h *Handler) sendPrograms(conn *Connection) error {
	programs, err := h.Store.ListPrograms()
	if err != nil {
		return err
	}
	return conn.Send(hub.EventProgramList, programs)
}

func (h *Handler) sendRawTopology(conn *Connection) error {
	t, _, err := h.Store.GetRawTopology()
	if err != nil {
		return err
	}
	return conn.Send(hub.EventRawNetworkTopology, t)
}

func (h *Handler) sendUnpackedTopology(conn *Connection) error {
	t, _, err := h.Store.GetUnpackedTopology()
	if err != nil {
		return err
	}
	return conn.Send(hub.EventUnpackedNetworkTopology, t)
}

func (h *Handler) handleSetCustomConfig(conn *Connection, cfg api.CustomConfig) error {
	if err := validation.Struct(cfg); err != nil {
		return fmt.Errorf("invalid custom config: %w", err)
	}
	if err := h.Store.PutCustomConfig(cfg); err != nil {
		return err
	}
	h.Hub.Broadcast(hub.EventCustomConfig, cfg)
	return nil
}

func (h *Handler) sendCustomConfig(conn *Connection) error {
	cfg, err := h.Store.GetCustomConfig()
	if err != nil {
		return err
	}
	return conn.Send(hub.EventCustomConfig, cfg)
}

// handleStreamNodeLogs streams one node's logs, or every snapshotted
// node's if All is set, pushing each parsed line back to the requesting
// connection only; it is a per-request tail, not a broadcast.
func (h *Handler) handleStreamNodeLogs(ctx context.Context, conn *Connection, e streamNodeLogsEvent) error {
	nid := e.Nid
	if e.All {
		nid = ""
	}
	streams, err := h.Orch.StreamNodeLogs(ctx, nid, e.Since)
	if err != nil {
		return err
	}
	for streamNid, rc := range streams {
		streamNid, rc := streamNid, rc
		go func() {
			defer rc.Close()
			buf := make([]byte, 4096)
			for {
				n, err := rc.Read(buf)
				if n > 0 {
					for _, line := range containerrt.ParseLog(buf[:n]) {
						if sendErr := conn.Send(hub.EventSimulationLogs, map[string]string{
							"nid":       streamNid,
							"timestamp": line.Timestamp,
							"message":   line.Message,
						}); sendErr != nil {
							return
						}
					}
				}
				if err != nil {
					return
				}
			}
		}()
	}
	return nil
}
