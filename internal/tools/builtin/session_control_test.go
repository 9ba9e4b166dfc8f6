package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/gitstore"
	"forge/internal/session"
	"forge/internal/tools"
)

func TestExecuteCheck_RunsDiscoveredCommand(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"go.mod": "module sample\n"})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, effects, err := executeCheck(ctx, tc, map[string]any{"command": "echo hi"})
		require.NoError(t, err)
		assert.Contains(t, result, "hi")
		require.Len(t, effects, 1)
		assert.Equal(t, tools.EphemeralResult, effects[0].Kind)
	})
}

func TestExecuteCheck_FailingCommandReturnsError(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"go.mod": "module sample\n"})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		_, _, err := executeCheck(ctx, tc, map[string]any{"command": "exit 1"})
		assert.Error(t, err)
	})
}

func TestExecuteCheck_DiscoversMakefileTarget(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{
		"Makefile": "check:\n\ttouch ran_check.txt\n",
	})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, _, err := executeCheck(ctx, tc, map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "make check")
	})
}

func TestExecuteRunTests_DefaultsToGoTest(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"go.mod": "module sample\n", "a.go": "package sample\n"})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		tc := &tools.Context{Workspace: ws, Branch: "main"}
		result, effects, err := executeRunTests(ctx, tc, map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "go test ./...")
		require.Len(t, effects, 1)
		assert.Equal(t, tools.EphemeralResult, effects[0].Kind)
	})
}

func TestExecuteMergeSession_MergesChildChangesAndArchivesSessionFile(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"shared.txt": "base\n"})

	mainWs := newTestWorkspace(t, store, "main")
	mainTip := mainWs.Base().Ref()
	require.NoError(t, store.CreateSessionBranch("child", mainTip))

	childWs := newTestWorkspace(t, store, "child")
	withClaim(t, childWs, func(ctx context.Context) {
		require.NoError(t, childWs.Write(ctx, "child_file.txt", "from child\n"))
		require.NoError(t, session.SaveRecord(ctx, childWs, session.NewRecord()))
		_, err := childWs.Commit(ctx, "child work", testIdentity(), gitstore.Major)
		require.NoError(t, err)
	})

	withClaim(t, mainWs, func(ctx context.Context) {
		mainRec := session.NewRecord()
		mainRec.Messages = append(mainRec.Messages, session.Message{Role: "user", Content: "on main"})
		require.NoError(t, session.SaveRecord(ctx, mainWs, mainRec))
		_, err := mainWs.Commit(ctx, "main work", testIdentity(), gitstore.Major)
		require.NoError(t, err)

		tc := &tools.Context{Workspace: mainWs, Branch: "main", Store: store, Identity: testIdentity()}
		result, _, err := executeMergeSession(ctx, tc, map[string]any{"branch": "child"})
		require.NoError(t, err)
		assert.Contains(t, result, "Merged child into main")

		content, err := mainWs.Read(ctx, "child_file.txt")
		require.NoError(t, err)
		assert.Equal(t, "from child\n", content)

		ownRecord, err := session.LoadRecord(ctx, mainWs)
		require.NoError(t, err)
		require.Len(t, ownRecord.Messages, 1)
		assert.Equal(t, "on main", ownRecord.Messages[0].Content)

		archived, err := mainWs.Read(ctx, session.MergedArchivePath("child"))
		require.NoError(t, err)
		assert.Contains(t, archived, "version")
	})
}

func TestExecuteMergeSession_RequiresBranch(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "1\n"})
	ws := newTestWorkspace(t, store, "main")
	tc := &tools.Context{Workspace: ws, Branch: "main", Store: store}
	_, _, err := executeMergeSession(context.Background(), tc, map[string]any{})
	assert.Error(t, err)
}
