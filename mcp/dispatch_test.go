package mcp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Tests for argument validation ---

func TestValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{"type": "string"},
		},
		"required": []string{"topic"},
	}

	assert.NoError(t, validateArgs(schema, json.RawMessage(`{"topic":"go"}`)))

	err := validateArgs(schema, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")

	err = validateArgs(schema, json.RawMessage(`{"topic":42}`))
	require.Error(t, err)
}

func TestValidateArgsBadDocument(t *testing.T) {
	schema := map[string]any{"type": "object"}
	err := validateArgs(schema, json.RawMessage(`{not json`))
	require.Error(t, err)
}

// --- Tests for call routing ---

func TestToolSchemaResolution(t *testing.T) {
	a := newEchoAgent(t)
	a.Tools().RegisterRaw("word_count", "Counts words",
		map[string]any{"type": "object", "properties": map[string]any{}}, nil)
	srv := NewServer(a, WithLogger(discardLogger()))

	primary, ok := srv.toolSchema("echo")
	require.True(t, ok)
	assert.Contains(t, primary["properties"].(map[string]any), "context")

	aux, ok := srv.toolSchema("word_count")
	require.True(t, ok)
	assert.Equal(t, "object", aux["type"])

	_, ok = srv.toolSchema("ghost")
	assert.False(t, ok)
}

// --- Tests for framing ---

func TestWriteErrorDefaultsNullID(t *testing.T) {
	var out bytes.Buffer
	srv := NewServer(newEchoAgent(t), WithIO(strings.NewReader(""), &out), WithLogger(discardLogger()))

	srv.writeError(nil, codeMethodNotFound, "Method not found: bogus")

	var m map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &m))
	assert.Contains(t, m, "id")
	assert.Nil(t, m["id"])
	assert.Equal(t, "2.0", m["jsonrpc"])
}

func TestWriteFrameDroppedAfterTermination(t *testing.T) {
	var out bytes.Buffer
	srv := NewServer(newEchoAgent(t), WithIO(strings.NewReader(""), &out), WithLogger(discardLogger()))
	srv.state.Store(int32(StateTerminated))

	srv.writeFrame(&response{JSONRPC: "2.0", ID: json.RawMessage("1"), Result: struct{}{}})
	assert.Zero(t, out.Len())
}

func TestRequestIsNotification(t *testing.T) {
	assert.True(t, (&request{}).isNotification())
	assert.True(t, (&request{ID: json.RawMessage("null")}).isNotification())
	assert.False(t, (&request{ID: json.RawMessage("1")}).isNotification())
	assert.False(t, (&request{ID: json.RawMessage(`"abc"`)}).isNotification())
}

// --- Tests for lifecycle state ---

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateServing, "serving"},
		{StateDraining, "draining"},
		{StateTerminated, "terminated"},
		{State(99), "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.state.String())
	}
}
