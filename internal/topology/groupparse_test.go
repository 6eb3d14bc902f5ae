package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseGroupAppliesNidNumberIncrement checks that a non-default
// nid_number_increment on the wire actually changes the generated nid
// numbering, rather than being silently dropped for the default of 1.
func TestParseGroupAppliesNidNumberIncrement(t *testing.T) {
	g, err := parseGroup(map[string]interface{}{
		"type":                 "line",
		"program":              "echo",
		"number_nodes":         3,
		"nid_prefix":           "n",
		"nid_number_increment": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, g.NidIncrement)

	doc := Document{NodeGroups: []Group{g}}
	unpacked, err := Expand(doc, false)
	require.NoError(t, err)

	var nids []string
	for _, n := range unpacked.Nodes {
		nids = append(nids, n.Nid)
	}
	assert.ElementsMatch(t, []string{"n0", "n2", "n4"}, nids)
}

// TestParseGroupStarAppliesHostNidNumberIncrement checks the star variant's
// host_nid_number_increment key, distinct from the line/ring/tree key.
func TestParseGroupStarAppliesHostNidNumberIncrement(t *testing.T) {
	g, err := parseGroup(map[string]interface{}{
		"type":                      "star",
		"hub_nid":                   "hub",
		"hub_program":               "coordinator",
		"host_program":              "worker",
		"number_hosts":              2,
		"host_nid_prefix":           "w",
		"host_nid_number_increment": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, g.NidIncrement)
	assert.Equal(t, "coordinator", g.HubProgram)

	doc := Document{NodeGroups: []Group{g}}
	unpacked, err := Expand(doc, false)
	require.NoError(t, err)

	var nids []string
	for _, n := range unpacked.Nodes {
		nids = append(nids, n.Nid)
	}
	assert.ElementsMatch(t, []string{"hub", "w0", "w3"}, nids)
}

func TestParseGroupDefaultsIncrementToOne(t *testing.T) {
	g, err := parseGroup(map[string]interface{}{
		"type":         "ring",
		"program":      "echo",
		"number_nodes": 2,
		"nid_prefix":   "n",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.NidIncrement)
}
