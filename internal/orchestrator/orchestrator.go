// Package orchestrator drives the simulation lifecycle state machine: set
// up a simulation from the persisted topology/program/config singletons,
// materialise images and containers for it, tear it back down, and answer
// node-status/action/log queries while it is live.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/connparams"
	"github.com/mauriceyap/diorama/internal/containerrt"
	"github.com/mauriceyap/diorama/internal/logging"
	"github.com/mauriceyap/diorama/internal/repo"
	"github.com/mauriceyap/diorama/internal/runtimecatalog"
)

// StateChangePublisher is how the orchestrator pushes lifecycle transitions
// to connected subscribers. The hub implements this.
type StateChangePublisher interface {
	PublishState(state api.SimulationState)
}

// containerRuntime is the subset of *containerrt.Adapter the orchestrator
// drives. Extracted so setup/teardown can be exercised against a fake
// without a live docker engine.
type containerRuntime interface {
	BuildImage(ctx context.Context, contextDir, tag string) error
	CreateContainer(ctx context.Context, opts containerrt.CreateContainerOpts) (string, error)
	ActionContainer(ctx context.Context, name string, action containerrt.Action) error
	GetContainerStatuses(ctx context.Context, names []string) (map[string]string, error)
	StreamContainerLogs(ctx context.Context, name string, since string) (io.ReadCloser, error)
	CreateNetwork(ctx context.Context, name, subnet string) error
	RemoveNetwork(ctx context.Context, name string) error
	RemoveContainers(ctx context.Context, names []string) error
	RemoveImages(ctx context.Context, tags []string) error
}

type noopPublisher struct{}

func (noopPublisher) PublishState(api.SimulationState) {}

// Orchestrator holds the simulation lifecycle state and the adapters it
// drives to materialise and tear down the containerised network.
type Orchestrator struct {
	mu sync.Mutex

	state     api.SimulationState
	lastError string

	// generation guards the cancel-and-replace concurrency policy: a new
	// SetUpSimulation call cancels any in-flight setup by bumping
	// generation, which the running goroutine checks before each state
	// transition after INITIALISING.
	generation int

	store      *repo.Store
	connParams *connparams.Store
	rt         containerRuntime
	publisher  StateChangePublisher

	networkName      string
	baseNodeFilesDir string
	outputsDir       string
}

// New builds an Orchestrator against the given stores and container
// runtime adapter. The network name and filesystem roots come from the
// daemon's loaded config.
func New(store *repo.Store, cp *connparams.Store, rt containerRuntime, networkName, baseNodeFilesDir, outputsDir string) *Orchestrator {
	return &Orchestrator{
		state:            api.StateUninitialised,
		store:            store,
		connParams:       cp,
		rt:               rt,
		publisher:        noopPublisher{},
		networkName:      networkName,
		baseNodeFilesDir: baseNodeFilesDir,
		outputsDir:       outputsDir,
	}
}

// SetPublisher wires up the hub that receives simulation state pushes. Must
// be called before the first SetUpSimulation to avoid missing the initial
// transition.
func (o *Orchestrator) SetPublisher(p StateChangePublisher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publisher = p
}

// State returns the current simulation state: a pure, non-blocking read.
func (o *Orchestrator) State() api.SimulationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the error message from the most recent failed setup
// attempt, if any.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

func (o *Orchestrator) setState(state api.SimulationState) {
	o.mu.Lock()
	o.state = state
	pub := o.publisher
	o.mu.Unlock()
	pub.PublishState(state)
}

// bumpGeneration increments the setup generation and returns the new value,
// which the calling goroutine owns until a later call supersedes it.
func (o *Orchestrator) bumpGeneration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	return o.generation
}

func (o *Orchestrator) currentGeneration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// stale reports whether gen has been superseded by a later SetUpSimulation
// call, meaning the calling goroutine should abandon its work silently
// rather than mutate shared state out from under the newer attempt.
func (o *Orchestrator) stale(gen int) bool {
	return gen != o.currentGeneration()
}

// SetUpSimulation launches the background setup sequence and returns
// immediately; state transitions are pushed via the publisher. A second
// call before the first completes cancels the first: cancel-and-replace,
// not reject-or-queue, because operators iterating on a topology expect
// their latest save to win, not to be told to wait for a stale build to
// finish or for it to fail outright.
func (o *Orchestrator) SetUpSimulation(ctx context.Context) {
	gen := o.bumpGeneration()
	go o.runSetup(ctx, gen)
}

func (o *Orchestrator) runSetup(ctx context.Context, gen int) {
	o.setState(api.StateInitialising)

	if err := o.cleanFromSnapshot(ctx); err != nil {
		logging.S().Errorw("cleaning before setup", "error", err)
	}
	if err := o.store.PurgeSnapshot(); err != nil {
		logging.S().Errorw("purging snapshot before setup", "error", err)
	}

	if o.stale(gen) {
		return
	}

	snap, err := o.captureSnapshot()
	if err != nil {
		o.failSetup(ctx, gen, fmt.Errorf("capturing snapshot: %w", err))
		return
	}
	if err := o.store.PutSnapshot(snap); err != nil {
		o.failSetup(ctx, gen, fmt.Errorf("persisting snapshot: %w", err))
		return
	}

	if o.stale(gen) {
		return
	}
	o.setState(api.StateCreatingNetwork)
	if err := o.rt.CreateNetwork(ctx, o.networkName, snap.Config.NetworkSubnet); err != nil {
		o.failSetup(ctx, gen, fmt.Errorf("creating network: %w", err))
		return
	}

	if o.stale(gen) {
		return
	}
	o.setState(api.StateCreatingImages)
	connParamsByNode, err := o.connParams.ByNode(snap.Nodes)
	if err != nil {
		o.failSetup(ctx, gen, fmt.Errorf("loading connection parameters: %w", err))
		return
	}
	if err := o.buildProgramImages(ctx, gen, snap, connParamsByNode); err != nil {
		o.failSetup(ctx, gen, fmt.Errorf("building program images: %w", err))
		return
	}

	if o.stale(gen) {
		return
	}
	o.setState(api.StateCreatingNodes)
	if err := o.createNodeContainers(ctx, gen, snap); err != nil {
		o.failSetup(ctx, gen, fmt.Errorf("creating node containers: %w", err))
		return
	}

	if o.stale(gen) {
		return
	}
	o.mu.Lock()
	o.lastError = ""
	o.mu.Unlock()
	o.setState(api.StateReadyToRun)
}

// failSetup logs the failure, records it for later inspection, and drives
// the simulation back to UNINITIALISED, the same rollback a reset performs
// on any setup-time error.
func (o *Orchestrator) failSetup(ctx context.Context, gen int, err error) {
	logging.S().Errorw("simulation setup failed", "error", err)
	o.mu.Lock()
	o.lastError = err.Error()
	o.mu.Unlock()
	if o.stale(gen) {
		return
	}
	o.resetTo(ctx, api.StateUninitialised)
}

// captureSnapshot loads the persisted topology, programs and config,
// applies self-connections if configured, and assigns node addresses, all
// as one read-only computation producing the snapshot the rest of setup
// operates against.
func (o *Orchestrator) captureSnapshot() (api.Snapshot, error) {
	topo, _, err := o.store.GetUnpackedTopology()
	if err != nil {
		return api.Snapshot{}, err
	}
	cfg, err := o.store.GetCustomConfig()
	if err != nil {
		return api.Snapshot{}, err
	}
	programs, err := o.store.ListPrograms()
	if err != nil {
		return api.Snapshot{}, err
	}

	nodes := topo.Nodes
	if cfg.SelfConnectedNodes {
		nodes = addSelfConnections(nodes)
	}

	addrs, err := assignNodeAddresses(nodes, cfg.BaseIPAddress, cfg.BasePort)
	if err != nil {
		return api.Snapshot{}, err
	}

	return api.Snapshot{
		Nodes:         nodes,
		Programs:      programs,
		Config:        cfg,
		NodeAddresses: addrs,
	}, nil
}

// addSelfConnections appends each node's own nid to its peer list, when
// self-connected nodes are enabled.
func addSelfConnections(nodes []api.Node) []api.Node {
	out := make([]api.Node, len(nodes))
	for i, n := range nodes {
		seen := make(map[string]struct{}, len(n.Connections)+1)
		for _, c := range n.Connections {
			seen[c] = struct{}{}
		}
		seen[n.Nid] = struct{}{}
		conns := make([]string, 0, len(seen))
		for c := range seen {
			conns = append(conns, c)
		}
		sort.Strings(conns)
		out[i] = api.Node{Nid: n.Nid, Program: n.Program, Connections: conns}
	}
	return out
}

// assignNodeAddresses hands out IPv4 addresses sequentially from baseIP,
// one per node in topology order, all sharing basePort.
func assignNodeAddresses(nodes []api.Node, baseIP string, basePort int) ([]api.NodeAddress, error) {
	base := net.ParseIP(baseIP).To4()
	if base == nil {
		return nil, fmt.Errorf("invalid base ip address: %s", baseIP)
	}
	baseInt := ipToUint32(base)

	out := make([]api.NodeAddress, len(nodes))
	for i, n := range nodes {
		out[i] = api.NodeAddress{
			Nid:       n.Nid,
			IPAddress: uint32ToIP(baseInt + uint32(i)).String(),
			Port:      basePort,
		}
	}
	return out, nil
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// buildProgramImages materialises a build context per program and builds
// its image, tagging with the program name (create_program_images).
func (o *Orchestrator) buildProgramImages(ctx context.Context, gen int, snap api.Snapshot, connParamsByNode map[string]map[string]api.ConnectionParameters) error {
	for _, program := range snap.Programs {
		if o.stale(gen) {
			return nil
		}
		dir, err := os.MkdirTemp("", "diorama-build-*")
		if err != nil {
			return err
		}
		err = o.materialiseBuildContext(dir, program, snap.NodeAddresses, connParamsByNode)
		if err == nil {
			err = o.rt.BuildImage(ctx, dir, program.Name)
		}
		os.RemoveAll(dir)
		if err != nil {
			return fmt.Errorf("program %s: %w", program.Name, err)
		}
	}
	return nil
}

// createNodeContainers creates and starts one container per node, wiring
// its peer nid list, own nid, assigned port and rewritten main handler as
// launch arguments.
func (o *Orchestrator) createNodeContainers(ctx context.Context, gen int, snap api.Snapshot) error {
	for _, node := range snap.Nodes {
		if o.stale(gen) {
			return nil
		}
		program, ok := snap.ProgramByName(node.Program)
		if !ok {
			return fmt.Errorf("node %s references unknown program %s", node.Nid, node.Program)
		}
		addr, ok := snap.NodeAddress(node.Nid)
		if !ok {
			return fmt.Errorf("node %s has no assigned address", node.Nid)
		}

		entry, err := runtimecatalog.Lookup(program.Runtime)
		if err != nil {
			return err
		}

		args := []string{
			joinPeers(node.SortedConnections()),
			node.Nid,
			strconv.Itoa(addr.Port),
			rewrittenMainHandler(program),
		}

		_, err = o.rt.CreateContainer(ctx, containerrt.CreateContainerOpts{
			ImageTag:    program.Name,
			Name:        node.Nid,
			Launch:      entry.Launch,
			Args:        args,
			IPAddress:   addr.IPAddress,
			UDPPort:     addr.Port,
			NetworkName: o.networkName,
		})
		if err != nil {
			return fmt.Errorf("node %s: %w", node.Nid, err)
		}
		if err := o.rt.ActionContainer(ctx, node.Nid, containerrt.ActionStart); err != nil {
			return fmt.Errorf("starting node %s: %w", node.Nid, err)
		}
	}
	return nil
}

func joinPeers(peers []string) string {
	out := ""
	for i, p := range peers {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// StopAndResetSimulation tears down the current (or last attempted)
// simulation and returns the state machine to UNINITIALISED. Idempotent:
// calling it with nothing set up is a cheap no-op sequence of NotFound
// misses.
func (o *Orchestrator) StopAndResetSimulation(ctx context.Context) error {
	o.bumpGeneration() // supersede any in-flight setup
	return o.resetTo(ctx, api.StateUninitialised)
}

func (o *Orchestrator) resetTo(ctx context.Context, final api.SimulationState) error {
	o.setState(api.StateResetting)

	if err := o.cleanFromSnapshot(ctx); err != nil {
		return err
	}
	if err := o.store.PurgeSnapshot(); err != nil {
		return err
	}

	o.setState(final)
	return nil
}

// cleanFromSnapshot removes the containers, images and network belonging
// to the last captured snapshot, if any.
func (o *Orchestrator) cleanFromSnapshot(ctx context.Context) error {
	snap, ok, err := o.store.GetSnapshot()
	if err != nil {
		return err
	}
	if !ok {
		return o.rt.RemoveNetwork(ctx, o.networkName)
	}

	nids := make([]string, len(snap.Nodes))
	for i, n := range snap.Nodes {
		nids[i] = n.Nid
	}
	names := make([]string, len(snap.Programs))
	for i, p := range snap.Programs {
		names[i] = p.Name
	}

	if err := o.rt.RemoveContainers(ctx, nids); err != nil {
		logging.S().Errorw("removing containers during clean", "error", err)
	}
	if err := o.rt.RemoveImages(ctx, names); err != nil {
		logging.S().Errorw("removing images during clean", "error", err)
	}
	return o.rt.RemoveNetwork(ctx, o.networkName)
}

// GetSimulationNodes returns the joined node+program+status view, or an
// empty slice outside {READY_TO_RUN, RUNNING}.
func (o *Orchestrator) GetSimulationNodes(ctx context.Context) ([]api.SimulationNode, error) {
	state := o.State()
	if state != api.StateReadyToRun && state != api.StateRunning {
		return []api.SimulationNode{}, nil
	}

	snap, ok, err := o.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []api.SimulationNode{}, nil
	}

	nids := make([]string, len(snap.Nodes))
	for i, n := range snap.Nodes {
		nids[i] = n.Nid
	}
	statuses, err := o.rt.GetContainerStatuses(ctx, nids)
	if err != nil {
		return nil, err
	}

	out := make([]api.SimulationNode, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		program, _ := snap.ProgramByName(n.Program)
		status, ok := statuses[n.Nid]
		if !ok {
			status = api.StatusMissing
		}
		out = append(out, api.SimulationNode{
			Nid:         n.Nid,
			Status:      status,
			Program:     n.Program,
			Runtime:     program.Runtime,
			Description: program.Description,
		})
	}
	return out, nil
}

// PerformNodeAction forwards a lifecycle action to one node's container.
func (o *Orchestrator) PerformNodeAction(ctx context.Context, nid string, action api.NodeAction) error {
	return o.rt.ActionContainer(ctx, nid, containerrt.Action(action))
}

// StreamNodeLogs streams one node's log, or every node in the last
// snapshot's if nid is empty.
func (o *Orchestrator) StreamNodeLogs(ctx context.Context, nid, since string) (map[string]io.ReadCloser, error) {
	if nid != "" {
		rc, err := o.rt.StreamContainerLogs(ctx, nid, since)
		if err != nil {
			return nil, err
		}
		return map[string]io.ReadCloser{nid: rc}, nil
	}

	snap, ok, err := o.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]io.ReadCloser{}, nil
	}

	out := make(map[string]io.ReadCloser, len(snap.Nodes))
	for _, n := range snap.Nodes {
		rc, err := o.rt.StreamContainerLogs(ctx, n.Nid, since)
		if err != nil {
			return out, err
		}
		out[n.Nid] = rc
	}
	return out, nil
}
