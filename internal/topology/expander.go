package topology

import (
	"fmt"
	"sort"

	"github.com/mauriceyap/diorama/internal/api"
)

// nodeBuilder accumulates a node's program and peer set while nodes are
// being seeded, before the final symmetrisation pass.
type nodeBuilder struct {
	nid     string
	program string
	peers   map[string]struct{}
}

func newNodeBuilder(nid, program string) *nodeBuilder {
	return &nodeBuilder{nid: nid, program: program, peers: make(map[string]struct{})}
}

func (b *nodeBuilder) addPeer(peer string) {
	if peer == b.nid {
		return
	}
	b.peers[peer] = struct{}{}
}

func generateNid(prefix, suffix string, starting, increment, i int) string {
	return fmt.Sprintf("%s%d%s", prefix, starting+i*increment, suffix)
}

// Expand turns a validated Document into a flat, symmetric node list.
// selfConnected mirrors CustomConfig.SelfConnectedNodes.
func Expand(doc Document, selfConnected bool) (api.UnpackedTopology, error) {
	order := make([]string, 0)
	builders := make(map[string]*nodeBuilder)

	addNode := func(nid, program string) (*nodeBuilder, error) {
		if _, exists := builders[nid]; exists {
			return nil, fmt.Errorf("duplicate nid: %s", nid)
		}
		b := newNodeBuilder(nid, program)
		builders[nid] = b
		order = append(order, nid)
		return b, nil
	}

	for _, sn := range doc.SingleNodes {
		b, err := addNode(sn.Nid, sn.Program)
		if err != nil {
			return api.UnpackedTopology{}, err
		}
		for _, c := range sn.Connections {
			b.addPeer(c)
		}
	}

	for _, g := range doc.NodeGroups {
		if err := expandGroup(g, addNode, builders); err != nil {
			return api.UnpackedTopology{}, err
		}
	}

	// Every referenced peer nid must exist as a node.
	for _, nid := range order {
		for peer := range builders[nid].peers {
			if _, ok := builders[peer]; !ok {
				return api.UnpackedTopology{}, fmt.Errorf("connection references unknown nid: %s", peer)
			}
		}
	}

	if selfConnected {
		for _, nid := range order {
			builders[nid].peers[nid] = struct{}{}
		}
	}

	// Symmetrisation pass: for every node a and each b in peers(a), add a to
	// peers(b).
	for _, nid := range order {
		b := builders[nid]
		for peer := range b.peers {
			if peer == nid {
				continue
			}
			builders[peer].peers[nid] = struct{}{}
		}
	}

	nodes := make([]api.Node, 0, len(order))
	for _, nid := range order {
		b := builders[nid]
		peers := make([]string, 0, len(b.peers))
		for p := range b.peers {
			peers = append(peers, p)
		}
		sort.Strings(peers)
		nodes = append(nodes, api.Node{Nid: nid, Program: b.program, Connections: peers})
	}

	return api.UnpackedTopology{Nodes: nodes}, nil
}

func expandGroup(g Group, addNode func(nid, program string) (*nodeBuilder, error), builders map[string]*nodeBuilder) error {
	switch g.Type {
	case GroupLine, GroupRing:
		return expandLineOrRing(g, addNode, builders)
	case GroupFullyConnected:
		return expandFullyConnected(g, addNode, builders)
	case GroupStar:
		return expandStar(g, addNode, builders)
	case GroupTree:
		return expandTree(g, addNode, builders)
	default:
		return fmt.Errorf("unsupported node group type: %s", g.Type)
	}
}

func groupNids(g Group) []string {
	nids := make([]string, g.NumberNodes)
	for i := 0; i < g.NumberNodes; i++ {
		nids[i] = generateNid(g.NidPrefix, g.NidSuffix, g.NidStarting, g.NidIncrement, i)
	}
	return nids
}

func expandLineOrRing(g Group, addNode func(nid, program string) (*nodeBuilder, error), builders map[string]*nodeBuilder) error {
	nids := groupNids(g)
	for _, nid := range nids {
		if _, err := addNode(nid, g.Program); err != nil {
			return err
		}
	}
	for i := 1; i < len(nids); i++ {
		builders[nids[i]].addPeer(nids[i-1])
	}
	if g.Type == GroupRing && len(nids) > 1 {
		builders[nids[0]].addPeer(nids[len(nids)-1])
	}
	return applyAdditionalConnections(g, builders)
}

func expandFullyConnected(g Group, addNode func(nid, program string) (*nodeBuilder, error), builders map[string]*nodeBuilder) error {
	nids := groupNids(g)
	for _, nid := range nids {
		if _, err := addNode(nid, g.Program); err != nil {
			return err
		}
	}
	for i := 0; i < len(nids); i++ {
		for j := i + 1; j < len(nids); j++ {
			builders[nids[i]].addPeer(nids[j])
		}
	}
	return applyAdditionalConnections(g, builders)
}

func expandStar(g Group, addNode func(nid, program string) (*nodeBuilder, error), builders map[string]*nodeBuilder) error {
	if _, err := addNode(g.HubNid, g.HubProgram); err != nil {
		return err
	}
	hostNids := make([]string, g.NumberHosts)
	for i := 0; i < g.NumberHosts; i++ {
		nid := generateNid(g.NidPrefix, g.NidSuffix, g.NidStarting, g.NidIncrement, i)
		hostNids[i] = nid
		if _, err := addNode(nid, g.HostProgram); err != nil {
			return err
		}
		builders[nid].addPeer(g.HubNid)
	}
	return applyAdditionalConnections(g, builders)
}

func expandTree(g Group, addNode func(nid, program string) (*nodeBuilder, error), builders map[string]*nodeBuilder) error {
	levels := make([][]string, g.NumberLevels)
	counter := 0
	for level := 0; level < g.NumberLevels; level++ {
		count := intPow(g.NumberChildren, level)
		levelNids := make([]string, count)
		for idx := 0; idx < count; idx++ {
			nid := generateNid(g.NidPrefix, g.NidSuffix, g.NidStarting, g.NidIncrement, counter)
			counter++
			if _, err := addNode(nid, g.Program); err != nil {
				return err
			}
			if level > 0 {
				parentIdx := idx / g.NumberChildren
				parentNid := levels[level-1][parentIdx]
				builders[nid].addPeer(parentNid)
			}
			levelNids[idx] = nid
		}
		levels[level] = levelNids
	}
	return applyAdditionalConnections(g, builders)
}

func intPow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func applyAdditionalConnections(g Group, builders map[string]*nodeBuilder) error {
	for _, c := range g.Connections {
		from, ok := builders[c.From]
		if !ok {
			return fmt.Errorf("node group connection references unknown nid: %s", c.From)
		}
		to, ok := builders[c.To]
		if !ok {
			return fmt.Errorf("node group connection references unknown nid: %s", c.To)
		}
		from.addPeer(to.nid)
		to.addPeer(from.nid)
	}
	return nil
}
