package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriceyap/diorama/internal/api"
)

func TestAssignNodeAddressesSequential(t *testing.T) {
	nodes := []api.Node{
		{Nid: "n0"}, {Nid: "n1"}, {Nid: "n2"},
	}

	addrs, err := assignNodeAddresses(nodes, "172.28.0.2", 7077)
	require.NoError(t, err)
	require.Len(t, addrs, 3)

	assert.Equal(t, "172.28.0.2", addrs[0].IPAddress)
	assert.Equal(t, "172.28.0.3", addrs[1].IPAddress)
	assert.Equal(t, "172.28.0.4", addrs[2].IPAddress)
	for _, a := range addrs {
		assert.Equal(t, 7077, a.Port)
	}
}

func TestAssignNodeAddressesRejectsInvalidBase(t *testing.T) {
	_, err := assignNodeAddresses([]api.Node{{Nid: "n0"}}, "not-an-ip", 7077)
	assert.Error(t, err)
}

func TestAddSelfConnectionsAddsOwnNidOnce(t *testing.T) {
	nodes := []api.Node{
		{Nid: "a", Connections: []string{"b"}},
		{Nid: "b", Connections: []string{"a", "b"}},
	}

	out := addSelfConnections(nodes)

	assert.Equal(t, []string{"a", "b"}, out[0].Connections)
	assert.Equal(t, []string{"a", "b"}, out[1].Connections)
}

func TestJoinPeers(t *testing.T) {
	assert.Equal(t, "", joinPeers(nil))
	assert.Equal(t, "a", joinPeers([]string{"a"}))
	assert.Equal(t, "a,b,c", joinPeers([]string{"a", "b", "c"}))
}

func TestGetSimulationNodesEmptyOutsideLiveStates(t *testing.T) {
	o := &Orchestrator{state: api.StateUninitialised, publisher: noopPublisher{}}
	nodes, err := o.GetSimulationNodes(nil)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
