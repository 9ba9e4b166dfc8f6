package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/llm"
	"forge/internal/tools"
)

// scriptedStreamer replays a fixed sequence of Turns, one per Send call,
// so a test can drive the executor through a specific path without a
// real model.
type scriptedStreamer struct {
	turns []*llm.Turn
	calls int
}

func (s *scriptedStreamer) Send(ctx context.Context, systemPrompt string, messages []llm.Message, toolDefs []llm.ToolDefinition) (*llm.Turn, error) {
	if s.calls >= len(s.turns) {
		return &llm.Turn{Text: "done"}, nil
	}
	t := s.turns[s.calls]
	s.calls++
	return t, nil
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "write_file",
		Description: "write a file",
		Category:    tools.CategoryFile,
		Builtin:     true,
		Schema:      tools.ToolSchema{Properties: map[string]tools.Property{}},
		Execute: func(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if err := tc.Workspace.Write(ctx, path, content); err != nil {
				return "", nil, err
			}
			return "wrote " + path, []tools.SideEffect{{Kind: tools.OpenFile, AddFiles: []string{path}}}, nil
		},
	}))
	return reg
}

func TestExecutor_RunTurn_NoToolCallsFinalizesCommit(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	reg := NewRegistry(store)
	live, err := reg.Load(context.Background(), "main")
	require.NoError(t, err)

	streamer := &scriptedStreamer{turns: []*llm.Turn{{Text: "Sure, done."}}}
	exec := NewExecutor(store, reg, newTestRegistry(t), NewSpawner(store, reg), streamer, nil, testIdentity(), "you are an agent")
	live.EnqueueInput("say hi")

	require.NoError(t, exec.RunTurn(context.Background(), live))

	assert.Equal(t, StateIdle, live.State())
	require.Len(t, live.Record.Messages, 2)
	assert.Equal(t, "user", live.Record.Messages[0].Role)
	assert.Equal(t, "assistant", live.Record.Messages[1].Role)

	head, err := store.BranchHead("main")
	require.NoError(t, err)
	assert.False(t, head.IsZero())
}

func TestExecutor_RunTurn_DispatchesToolCallAndAppliesOpenFile(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	reg := NewRegistry(store)
	live, err := reg.Load(context.Background(), "main")
	require.NoError(t, err)

	streamer := &scriptedStreamer{turns: []*llm.Turn{
		{
			Text: "let me write that",
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "write_file", Args: map[string]any{"path": "new.go", "content": "package main"}},
			},
		},
		{Text: "all done"},
	}}
	exec := NewExecutor(store, reg, newTestRegistry(t), NewSpawner(store, reg), streamer, nil, testIdentity(), "you are an agent")
	live.EnqueueInput("add new.go")

	require.NoError(t, exec.RunTurn(context.Background(), live))

	assert.Contains(t, live.Record.ActiveFiles, "new.go")

	head, err := store.BranchHead("main")
	require.NoError(t, err)
	content, err := store.ReadBlob(head, "new.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", content)
}

func TestExecutor_RunTurn_EmitsTurnFinishedEvent(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	reg := NewRegistry(store)
	live, err := reg.Load(context.Background(), "main")
	require.NoError(t, err)
	ch := live.Bus.Subscribe()

	streamer := &scriptedStreamer{turns: []*llm.Turn{{Text: "ok"}}}
	exec := NewExecutor(store, reg, newTestRegistry(t), NewSpawner(store, reg), streamer, nil, testIdentity(), "you are an agent")
	live.EnqueueInput("go")

	require.NoError(t, exec.RunTurn(context.Background(), live))

	var sawFinished bool
	for {
		select {
		case evt := <-ch:
			if evt.Kind == EventTurnFinished {
				sawFinished = true
				assert.NotEmpty(t, evt.CommitRef)
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawFinished)
}

func newEphemeralTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "peek",
		Description: "read-only peek",
		Category:    tools.CategoryFile,
		Builtin:     true,
		Schema:      tools.ToolSchema{Properties: map[string]tools.Property{}},
		Execute: func(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
			return "peeked", []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
		},
	}))
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "commit_marker",
		Description: "durable no-op",
		Category:    tools.CategoryFile,
		Builtin:     true,
		Schema:      tools.ToolSchema{Properties: map[string]tools.Property{}},
		Execute: func(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
			return "marked", nil, nil
		},
	}))
	return reg
}

func TestExecutor_RunTurn_TagsEphemeralToolResultsOnly(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	reg := NewRegistry(store)
	live, err := reg.Load(context.Background(), "main")
	require.NoError(t, err)

	streamer := &scriptedStreamer{turns: []*llm.Turn{
		{
			Text: "let me check a couple things",
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "peek", Args: map[string]any{}},
				{ID: "tc2", Name: "commit_marker", Args: map[string]any{}},
			},
		},
		{Text: "all done"},
	}}
	exec := NewExecutor(store, reg, newEphemeralTestRegistry(t), NewSpawner(store, reg), streamer, nil, testIdentity(), "you are an agent")
	live.EnqueueInput("investigate")

	require.NoError(t, exec.RunTurn(context.Background(), live))

	live.Stream.CollapseEphemeral("[collapsed]")
	rendered := live.Stream.Render()

	var sawCollapsedPeek, sawIntactMarker bool
	for _, b := range rendered {
		if b.Content == "[collapsed]" {
			sawCollapsedPeek = true
		}
		if b.Content == "marked" {
			sawIntactMarker = true
		}
	}
	assert.True(t, sawCollapsedPeek, "peek's EphemeralResult should have been collapsed")
	assert.True(t, sawIntactMarker, "commit_marker's durable result should survive CollapseEphemeral")
}

func TestMechanicalCommitMessage(t *testing.T) {
	assert.Equal(t, "edit: session state", mechanicalCommitMessage(nil))
	assert.Equal(t, "edit: a.go", mechanicalCommitMessage([]string{"a.go"}))
	assert.Equal(t, "edit: 2 files", mechanicalCommitMessage([]string{"a.go", "b.go"}))
}
