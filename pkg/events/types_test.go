package events

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(SessionChannel("sess-1"), EventActionCreated, map[string]any{
		"action_id": "a-1",
		"tool_name": "Bash",
	})

	payload, err := env.Marshal()
	require.NoError(t, err)

	got, err := ParseEnvelope([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "sessions/sess-1", got.Channel)
	assert.Equal(t, "action.created", got.Event)
	assert.Equal(t, "a-1", got.Data["action_id"])
	assert.Equal(t, env.Timestamp, got.Timestamp)
}

func TestMarshalTruncatesOversizedPayload(t *testing.T) {
	env := NewEnvelope(ChannelGlobal, EventActionCreated, map[string]any{
		"blob": strings.Repeat("x", 10000),
	})

	payload, err := env.Marshal()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(payload), notifyPayloadLimit)

	got, err := ParseEnvelope([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, true, got.Data["truncated"])
	assert.Equal(t, env.Event, got.Event)
	assert.Equal(t, env.Channel, got.Channel)
}

func TestParseEnvelopeRejectsMalformed(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"channel":"","event":"x"}`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"channel":"global","event":""}`))
	assert.Error(t, err)
}

func TestChannelHelpers(t *testing.T) {
	assert.Equal(t, "agents/a-1", AgentChannel("a-1"))
	assert.Equal(t, "sessions/s-1", SessionChannel("s-1"))
	assert.Equal(t, "topics/agent.completed", TopicChannel("agent.completed"))
}

func TestIsCritical(t *testing.T) {
	assert.True(t, IsCritical(EventTaskCompleted))
	assert.True(t, IsCritical(EventSubtaskRunning))
	assert.True(t, IsCritical(EventMessageCreated))

	assert.False(t, IsCritical(EventActionCreated))
	assert.False(t, IsCritical(EventSessionStarted))
	assert.False(t, IsCritical(EventMetricUpdate))
	assert.False(t, IsCritical("task."))
	assert.False(t, IsCritical(""))
}
