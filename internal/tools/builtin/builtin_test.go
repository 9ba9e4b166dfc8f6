package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/tools"
)

func TestExecuteGrepOpen_AddsMatchedFilesAsOpenFileEffect(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{
		"a.go": "package a\n\nfunc Needle() {}\n",
		"b.go": "package b\n\nfunc Other() {}\n",
	})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, effects, err := executeGrepOpen(ctx, tc, map[string]any{"pattern": "Needle"})
		require.NoError(t, err)
		assert.Contains(t, result, "a.go:3")

		require.Len(t, effects, 1)
		assert.Equal(t, tools.OpenFile, effects[0].Kind)
		assert.Equal(t, []string{"a.go"}, effects[0].AddFiles)
	})
}

func TestExecuteGrepOpen_NoMatchesReturnsNoSideEffects(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.go": "package a\n"})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, effects, err := executeGrepOpen(ctx, tc, map[string]any{"pattern": "Nonexistent"})
		require.NoError(t, err)
		assert.Contains(t, result, "No matches found")
		assert.Nil(t, effects)
	})
}

func TestExecuteGrepContext_ReturnsWindowedSnippetsAsEphemeral(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{
		"a.txt": "l1\nl2\nl3\nneedle\nl5\nl6\nl7\n",
	})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, effects, err := executeGrepContext(ctx, tc, map[string]any{
			"pattern": "needle",
			"before":  1,
			"after":   1,
		})
		require.NoError(t, err)
		assert.Contains(t, result, "a.txt:4")
		assert.Contains(t, result, "l3")
		assert.Contains(t, result, "needle")
		assert.Contains(t, result, "l5")
		assert.NotContains(t, result, "l1")
		assert.NotContains(t, result, "l7")

		require.Len(t, effects, 1)
		assert.Equal(t, tools.EphemeralResult, effects[0].Kind)
	})
}

func TestExecuteGrepContext_TruncatesAndReportsTotal(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{
		"a.txt": "needle\nneedle\nneedle\n",
	})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, _, err := executeGrepContext(ctx, tc, map[string]any{
			"pattern":     "needle",
			"max_results": 1,
		})
		require.NoError(t, err)
		assert.Contains(t, result, "showing 1 of 3 total matches")
	})
}

func TestExecuteGrepContext_NoMatches(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "nothing here\n"})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, effects, err := executeGrepContext(ctx, tc, map[string]any{"pattern": "absent"})
		require.NoError(t, err)
		assert.Contains(t, result, "No matches found")
		require.Len(t, effects, 1)
		assert.Equal(t, tools.EphemeralResult, effects[0].Kind)
	})
}
