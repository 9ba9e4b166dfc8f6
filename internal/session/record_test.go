package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_EncodeDecodeRoundTrip(t *testing.T) {
	rec := NewRecord()
	rec.ActiveFiles = []string{"main.go", "README.md"}
	rec.Messages = append(rec.Messages, Message{Role: "user", Content: "hello"})
	rec.Messages = append(rec.Messages, Message{
		Role:    "assistant",
		Content: "sure",
		ToolCalls: []ToolCallRef{
			{ID: "tc1", Name: "write_file", Args: map[string]any{"path": "x.go"}},
		},
	})
	parent := "main"
	rec.ParentBranch = &parent
	rec.State = StateRunning

	raw, err := Encode(rec)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, decoded.Version)
	assert.Equal(t, rec.ActiveFiles, decoded.ActiveFiles)
	assert.Equal(t, rec.State, decoded.State)
	require.NotNil(t, decoded.ParentBranch)
	assert.Equal(t, "main", *decoded.ParentBranch)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "hello", decoded.Messages[0].Content)
	require.Len(t, decoded.Messages[1].ToolCalls, 1)
	assert.Equal(t, "write_file", decoded.Messages[1].ToolCalls[0].Name)

	if diff := cmp.Diff(rec.Messages, decoded.Messages); diff != "" {
		t.Errorf("messages changed shape across the encode/decode round trip (-want +got):\n%s", diff)
	}
}

func TestRecord_DecodeDefaultsEmptySlices(t *testing.T) {
	decoded, err := Decode([]byte(`{"version":1}`))
	require.NoError(t, err)

	assert.NotNil(t, decoded.Messages)
	assert.NotNil(t, decoded.ActiveFiles)
	assert.NotNil(t, decoded.ChildBranches)
	assert.Empty(t, decoded.Messages)
}

func TestRecord_DecodeRejectsUnknownFutureVersionWithNoMigration(t *testing.T) {
	_, err := Decode([]byte(`{"version":2}`))
	assert.Error(t, err)
}

func TestNewRecord_StartsIdleWithEmptyCollections(t *testing.T) {
	rec := NewRecord()
	assert.Equal(t, StateIdle, rec.State)
	assert.Nil(t, rec.ParentBranch)
	assert.Empty(t, rec.Messages)
	assert.Empty(t, rec.ActiveFiles)
	assert.Empty(t, rec.ChildBranches)
}
