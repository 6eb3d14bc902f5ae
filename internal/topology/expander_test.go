package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExpandLineTopology checks that a 3-node line group expands to a
// symmetric path graph (n0-n1-n2), not a ring.
func TestExpandLineTopology(t *testing.T) {
	doc := Document{
		NodeGroups: []Group{
			{
				Type:        GroupLine,
				Program:     "echo",
				NumberNodes: 3,
				NidPrefix:   "n",
			},
		},
	}

	unpacked, err := Expand(doc, false)
	require.NoError(t, err)
	require.Len(t, unpacked.Nodes, 3)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}

	assert.Equal(t, []string{"n1"}, byNid["n0"])
	assert.Equal(t, []string{"n0", "n2"}, byNid["n1"])
	assert.Equal(t, []string{"n1"}, byNid["n2"])
}

// TestExpandRingTopologyClosesTheLoop checks the ring variant: the same 3
// nodes, but the first and last are additionally connected.
func TestExpandRingTopologyClosesTheLoop(t *testing.T) {
	doc := Document{
		NodeGroups: []Group{
			{
				Type:        GroupRing,
				Program:     "echo",
				NumberNodes: 3,
				NidPrefix:   "n",
			},
		},
	}

	unpacked, err := Expand(doc, false)
	require.NoError(t, err)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}

	assert.Equal(t, []string{"n1", "n2"}, byNid["n0"])
	assert.Equal(t, []string{"n0", "n2"}, byNid["n1"])
	assert.Equal(t, []string{"n0", "n1"}, byNid["n2"])
}

// TestExpandStarTopology checks that every host connects only to the hub,
// and the hub ends up connected to every host via symmetrisation.
func TestExpandStarTopology(t *testing.T) {
	doc := Document{
		NodeGroups: []Group{
			{
				Type:        GroupStar,
				HubNid:      "hub",
				HubProgram:  "coordinator",
				NumberHosts: 3,
				HostProgram: "worker",
				NidPrefix:   "w",
			},
		},
	}

	unpacked, err := Expand(doc, false)
	require.NoError(t, err)
	require.Len(t, unpacked.Nodes, 4)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}

	assert.Equal(t, []string{"w0", "w1", "w2"}, byNid["hub"])
	assert.Equal(t, []string{"hub"}, byNid["w0"])
	assert.Equal(t, []string{"hub"}, byNid["w1"])
	assert.Equal(t, []string{"hub"}, byNid["w2"])
}

// TestExpandFullyConnectedTopology checks every pair in the group ends up
// mutually connected.
func TestExpandFullyConnectedTopology(t *testing.T) {
	doc := Document{
		NodeGroups: []Group{
			{
				Type:        GroupFullyConnected,
				Program:     "echo",
				NumberNodes: 4,
				NidPrefix:   "n",
			},
		},
	}

	unpacked, err := Expand(doc, false)
	require.NoError(t, err)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}
	for _, nid := range []string{"n0", "n1", "n2", "n3"} {
		assert.Len(t, byNid[nid], 3, nid)
	}
}

// TestExpandTreeTopology checks a depth-2 binary tree: 1 root + 2 children,
// each child connected back to the root only.
func TestExpandTreeTopology(t *testing.T) {
	doc := Document{
		NodeGroups: []Group{
			{
				Type:           GroupTree,
				Program:        "echo",
				NidPrefix:      "n",
				NumberChildren: 2,
				NumberLevels:   2,
			},
		},
	}

	unpacked, err := Expand(doc, false)
	require.NoError(t, err)
	require.Len(t, unpacked.Nodes, 3)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}
	assert.Equal(t, []string{"n1", "n2"}, byNid["n0"])
	assert.Equal(t, []string{"n0"}, byNid["n1"])
	assert.Equal(t, []string{"n0"}, byNid["n2"])
}

// TestExpandRejectsUnknownConnectionTarget checks that a single node
// referencing a peer nid that doesn't exist anywhere in the document is an
// expansion error.
func TestExpandRejectsUnknownConnectionTarget(t *testing.T) {
	doc := Document{
		SingleNodes: []SingleNode{
			{Nid: "n0", Program: "echo", Connections: []string{"does-not-exist"}},
		},
	}

	_, err := Expand(doc, false)
	assert.Error(t, err)
}

// TestExpandRejectsDuplicateNid checks that two nodes (from either single
// nodes or groups) sharing a nid is an expansion error.
func TestExpandRejectsDuplicateNid(t *testing.T) {
	doc := Document{
		SingleNodes: []SingleNode{
			{Nid: "n0", Program: "echo"},
			{Nid: "n0", Program: "echo"},
		},
	}

	_, err := Expand(doc, false)
	assert.Error(t, err)
}

// TestExpandSelfConnectedAddsSelfLoop checks the CustomConfig.SelfConnectedNodes
// toggle adds exactly one self-edge per node, without duplicating it via the
// symmetrisation pass.
func TestExpandSelfConnectedAddsSelfLoop(t *testing.T) {
	doc := Document{
		SingleNodes: []SingleNode{
			{Nid: "n0", Program: "echo"},
			{Nid: "n1", Program: "echo", Connections: []string{"n0"}},
		},
	}

	unpacked, err := Expand(doc, true)
	require.NoError(t, err)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}
	assert.Equal(t, []string{"n0", "n1"}, byNid["n0"])
	assert.Equal(t, []string{"n0", "n1"}, byNid["n1"])
}

// TestExpandGroupAdditionalConnections checks a group's own "connections"
// list links nodes generated by that same group, bidirectionally.
func TestExpandGroupAdditionalConnections(t *testing.T) {
	doc := Document{
		NodeGroups: []Group{
			{
				Type:        GroupFullyConnected,
				Program:     "echo",
				NumberNodes: 2,
				NidPrefix:   "n",
				Connections: []AdditionalConnection{{From: "n0", To: "n1"}},
			},
		},
	}

	unpacked, err := Expand(doc, false)
	require.NoError(t, err)

	byNid := make(map[string][]string)
	for _, n := range unpacked.Nodes {
		byNid[n.Nid] = n.Connections
	}
	assert.Equal(t, []string{"n1"}, byNid["n0"])
	assert.Equal(t, []string{"n0"}, byNid["n1"])
}
