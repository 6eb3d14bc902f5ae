package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundPayloadlessEvents(t *testing.T) {
	for _, event := range []string{
		"getPrograms", "getRawNetworkTopology", "getUnpackedNetworkTopology",
		"getCustomConfig", "setUpSimulation", "stopAndResetSimulation",
		"getSimulationState", "getSimulationNodes",
	} {
		ev, err := parseInbound(event, "")
		require.NoError(t, err, event)
		assert.NotNil(t, ev)
	}
}

func TestParseInboundPerformNodeAction(t *testing.T) {
	ev, err := parseInbound("performNodeAction", `{"nid":"n0","action":"start"}`)
	require.NoError(t, err)
	action, ok := ev.(performNodeActionEvent)
	require.True(t, ok)
	assert.Equal(t, "n0", action.Nid)
	assert.EqualValues(t, "start", action.Action)
}

func TestParseInboundStreamNodeLogsAll(t *testing.T) {
	ev, err := parseInbound("streamNodeLogs", `{"all":true}`)
	require.NoError(t, err)
	logs, ok := ev.(streamNodeLogsEvent)
	require.True(t, ok)
	assert.True(t, logs.All)
}

func TestParseInboundUnrecognisedEvent(t *testing.T) {
	_, err := parseInbound("bogusEvent", "{}")
	assert.Error(t, err)
}

func TestParseInboundMalformedPayload(t *testing.T) {
	_, err := parseInbound("deleteProgram", `not json`)
	assert.Error(t, err)
}
