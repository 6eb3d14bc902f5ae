package api

// SimulationState is one of the eight enumerated lifecycle values of the
// simulation orchestrator.
type SimulationState string

const (
	StateUninitialised  SimulationState = "UNINITIALISED"
	StateInitialising   SimulationState = "INITIALISING"
	StateCreatingNetwork SimulationState = "CREATING_NETWORK"
	StateCreatingImages  SimulationState = "CREATING_IMAGES"
	StateCreatingNodes   SimulationState = "CREATING_NODES"
	StateReadyToRun      SimulationState = "READY_TO_RUN"
	StateRunning         SimulationState = "RUNNING"
	StateResetting       SimulationState = "RESETTING"
)

// NodeAddress is the IPv4 + UDP port assigned to a node at setup time.
type NodeAddress struct {
	Nid       string `json:"nid"`
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
}

// Snapshot is the frozen set of inputs that drove the currently-materialised
// cluster: captured on setup, purged on reset.
type Snapshot struct {
	Nodes         []Node        `json:"nodes"`
	Programs      []Program     `json:"programs"`
	Config        CustomConfig  `json:"config"`
	NodeAddresses []NodeAddress `json:"nodeAddresses"`
}

// Key implements repo.Keyed for the (singleton) simulation snapshot.
func (Snapshot) Key() string { return "singleton" }

// NodeAddress returns the address assigned to nid, if any.
func (s Snapshot) NodeAddress(nid string) (NodeAddress, bool) {
	for _, a := range s.NodeAddresses {
		if a.Nid == nid {
			return a, true
		}
	}
	return NodeAddress{}, false
}

// ProgramByName returns the program named name, if present in the snapshot.
func (s Snapshot) ProgramByName(name string) (Program, bool) {
	for _, p := range s.Programs {
		if p.Name == name {
			return p, true
		}
	}
	return Program{}, false
}

// SimulationNode is one row of the live node list: a node joined with its
// program metadata and a freshly queried container status.
type SimulationNode struct {
	Nid         string `json:"nid"`
	Status      string `json:"status"`
	Program     string `json:"program"`
	Runtime     string `json:"runtime"`
	Description string `json:"description"`
}

// NodeAction is an operator-requested container action.
type NodeAction string

const (
	ActionStart   NodeAction = "start"
	ActionStop    NodeAction = "stop"
	ActionKill    NodeAction = "kill"
	ActionRestart NodeAction = "restart"
	ActionPause   NodeAction = "pause"
	ActionUnpause NodeAction = "unpause"
	ActionRemove  NodeAction = "remove"
)

// StatusMissing is surfaced for nids absent from the container runtime's
// bulk status query.
const StatusMissing = "missing"
