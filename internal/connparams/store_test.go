package connparams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/repo"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	r, err := repo.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return New(r)
}

func TestCanonicalEdgesDedupesEachPairOnce(t *testing.T) {
	nodes := []api.Node{
		{Nid: "a", Connections: []string{"b"}},
		{Nid: "b", Connections: []string{"a"}},
	}
	edges := CanonicalEdges(nodes)
	assert.Len(t, edges, 1)
	_, ok := edges[api.Edge{From: "a", To: "b"}]
	assert.True(t, ok)
}

func TestCanonicalEdgesIncludesSelfLoops(t *testing.T) {
	nodes := []api.Node{
		{Nid: "a", Connections: []string{"a"}},
	}
	edges := CanonicalEdges(nodes)
	_, ok := edges[api.Edge{From: "a", To: "a"}]
	assert.True(t, ok)
}

// TestReconcileCreatesDefaultsForNewEdges checks that saving a topology
// creates default-initialised connection parameter records for every edge
// it introduces.
func TestReconcileCreatesDefaultsForNewEdges(t *testing.T) {
	s := newTestStore(t)

	nodes := []api.Node{
		{Nid: "a", Connections: []string{"b"}},
		{Nid: "b", Connections: []string{"a"}},
	}
	require.NoError(t, s.Reconcile(nodes))

	params, ok, err := s.Get("a", "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, api.DefaultConnectionParameters(), params)
}

// TestReconcilePreservesExistingEdgeParameters checks that re-saving a
// topology that still contains an edge must not clobber a parameter the
// operator already customised for it.
func TestReconcilePreservesExistingEdgeParameters(t *testing.T) {
	s := newTestStore(t)

	nodes := []api.Node{
		{Nid: "a", Connections: []string{"b"}},
		{Nid: "b", Connections: []string{"a"}},
	}
	require.NoError(t, s.Reconcile(nodes))

	custom := api.ConnectionParameters{SuccessRate: 0.5, DelayDistribution: api.DelayDistributionNormal}
	require.NoError(t, s.Set("a", "b", custom))

	require.NoError(t, s.Reconcile(nodes))

	params, ok, err := s.Get("b", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, custom, params)
}

// TestReconcileDeletesRemovedEdges checks that an edge no longer present
// in the topology is purged from the store.
func TestReconcileDeletesRemovedEdges(t *testing.T) {
	s := newTestStore(t)

	withEdge := []api.Node{
		{Nid: "a", Connections: []string{"b"}},
		{Nid: "b", Connections: []string{"a"}},
	}
	require.NoError(t, s.Reconcile(withEdge))

	withoutEdge := []api.Node{{Nid: "a"}, {Nid: "b"}}
	require.NoError(t, s.Reconcile(withoutEdge))

	_, ok, err := s.Get("a", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetCanonicalisesRegardlessOfArgumentOrder(t *testing.T) {
	s := newTestStore(t)
	custom := api.ConnectionParameters{SuccessRate: 0.9}
	require.NoError(t, s.Set("z", "a", custom))

	params, ok, err := s.Get("a", "z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, custom, params)
}

func TestByNodeIsSymmetric(t *testing.T) {
	s := newTestStore(t)
	nodes := []api.Node{
		{Nid: "a", Connections: []string{"b"}},
		{Nid: "b", Connections: []string{"a"}},
	}
	require.NoError(t, s.Reconcile(nodes))

	byNode, err := s.ByNode(nodes)
	require.NoError(t, err)

	_, okA := byNode["a"]["b"]
	_, okB := byNode["b"]["a"]
	assert.True(t, okA)
	assert.True(t, okB)
}
