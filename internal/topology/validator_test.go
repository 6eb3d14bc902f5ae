package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriceyap/diorama/internal/api"
)

func TestValidateAcceptsWellFormedYAML(t *testing.T) {
	text := `
single_nodes:
  - nid: n0
    program: echo
    connections: [n1]
  - nid: n1
    program: echo
`
	doc, verr := Validate(text, api.LanguageYAML)
	require.Nil(t, verr)
	require.Len(t, doc.SingleNodes, 2)
	assert.Equal(t, "n0", doc.SingleNodes[0].Nid)
	assert.Equal(t, []string{"n1"}, doc.SingleNodes[0].Connections)
}

func TestValidateAcceptsWellFormedJSON(t *testing.T) {
	text := `{"single_nodes": [{"nid": "n0", "program": "echo"}]}`
	doc, verr := Validate(text, api.LanguageJSON)
	require.Nil(t, verr)
	require.Len(t, doc.SingleNodes, 1)
}

func TestValidateRejectsUnparsableText(t *testing.T) {
	_, verr := Validate("not: valid: yaml: at: all:", api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrParsing, verr.Code)
}

func TestValidateRejectsNonMapRoot(t *testing.T) {
	_, verr := Validate("- just\n- a\n- list\n", api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrMapType, verr.Code)
}

func TestValidateRejectsUnknownBaseKeys(t *testing.T) {
	_, verr := Validate("unexpected_key: true\n", api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrBaseKeys, verr.Code)
	assert.Equal(t, []string{"unexpected_key"}, verr.Data)
}

func TestValidateRejectsSingleNodeMissingNid(t *testing.T) {
	text := `
single_nodes:
  - program: echo
`
	_, verr := Validate(text, api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrNoNidSingleNodes, verr.Code)
	assert.Equal(t, 1, verr.Data)
}

func TestValidateRejectsSingleNodeMissingProgram(t *testing.T) {
	text := `
single_nodes:
  - nid: n0
`
	_, verr := Validate(text, api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrNoProgramSingleNodes, verr.Code)
}

// TestValidateRejectsInvalidNid checks that a nid not matching the nid
// grammar is rejected along with its offending value.
func TestValidateRejectsInvalidNid(t *testing.T) {
	text := `
single_nodes:
  - nid: "!bad-nid"
    program: echo
`
	_, verr := Validate(text, api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrInvalidNid, verr.Code)
	assert.Equal(t, "!bad-nid", verr.Data)
}

func TestValidateRejectsNonStringConnections(t *testing.T) {
	text := `
single_nodes:
  - nid: n0
    program: echo
    connections: [1, 2]
`
	_, verr := Validate(text, api.LanguageYAML)
	require.NotNil(t, verr)
	assert.Equal(t, ErrConnectionsSingleNodesNotListOfStrings, verr.Code)
}

func TestValidateAcceptsNodeGroups(t *testing.T) {
	text := `
node_groups:
  - type: line
    program: echo
    number_nodes: 3
    nid_prefix: n
`
	doc, verr := Validate(text, api.LanguageYAML)
	require.Nil(t, verr)
	require.Len(t, doc.NodeGroups, 1)
	assert.Equal(t, GroupLine, doc.NodeGroups[0].Type)
	assert.Equal(t, 3, doc.NodeGroups[0].NumberNodes)
}
