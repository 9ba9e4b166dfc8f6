package builtin

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	"forge/internal/gitstore"
	"forge/internal/vfs"
)

func testIdentity() gitstore.Identity {
	return gitstore.Identity{Name: "test", Email: "test@example.com"}
}

// newTestStore initializes a bare-bones repository in a temp directory and
// seeds an initial commit on branch, mirroring session package's
// testutil_test.go helper of the same shape.
func newTestStore(t *testing.T, branch string, seed map[string]string) *gitstore.Store {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	store, err := gitstore.Open(dir)
	require.NoError(t, err)

	changes := gitstore.Changes{Writes: seed}
	treeHash, err := store.BuildTree(gitstore.CommitRef{}, changes)
	require.NoError(t, err)

	_, err = store.CommitTree(branch, gitstore.CommitRef{}, treeHash, "init", testIdentity(), gitstore.Major)
	require.NoError(t, err)

	return store
}

func newTestWorkspace(t *testing.T, store *gitstore.Store, branch string) *vfs.Workspace {
	t.Helper()
	ws, _, err := vfs.NewWorkspace(store, branch)
	require.NoError(t, err)
	return ws
}

func withClaim(t *testing.T, ws *vfs.Workspace, fn func(ctx context.Context)) {
	t.Helper()
	ctx := ws.Claim().ClaimFor(context.Background())
	defer ws.Claim().Release(ctx)
	fn(ctx)
}
