package gitstore

import (
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"
)

func testIdentity() Identity {
	return Identity{Name: "test", Email: "test@example.com"}
}

func newTestRepo(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	store, err := Open(dir)
	require.NoError(t, err)
	return store
}

func commitFiles(t *testing.T, store *Store, branch string, base CommitRef, files map[string]string, deletions map[string]bool) CommitRef {
	t.Helper()
	changes := Changes{Writes: files, Deletions: deletions}
	treeHash, err := store.BuildTree(base, changes)
	require.NoError(t, err)
	ref, err := store.CommitTree(branch, base, treeHash, "commit", testIdentity(), Major)
	require.NoError(t, err)
	return ref
}

func TestMergeBase_FindsCommonAncestor(t *testing.T) {
	store := newTestRepo(t)
	root := commitFiles(t, store, "main", CommitRef{}, map[string]string{"a.txt": "1\n"}, nil)
	require.NoError(t, store.CreateSessionBranch("child", root))

	mainTip := commitFiles(t, store, "main", root, map[string]string{"b.txt": "main\n"}, nil)
	childTip := commitFiles(t, store, "child", root, map[string]string{"c.txt": "child\n"}, nil)

	base, err := store.MergeBase(mainTip, childTip)
	require.NoError(t, err)
	require.Equal(t, root.String(), base.String())
}

func TestMergeBase_NoCommonAncestorErrors(t *testing.T) {
	store := newTestRepo(t)
	a := commitFiles(t, store, "a", CommitRef{}, map[string]string{"a.txt": "1\n"}, nil)
	b := commitFiles(t, store, "b", CommitRef{}, map[string]string{"b.txt": "1\n"}, nil)

	_, err := store.MergeBase(a, b)
	require.Error(t, err)
}

func TestDeleteBranch_RemovesRef(t *testing.T) {
	store := newTestRepo(t)
	root := commitFiles(t, store, "main", CommitRef{}, map[string]string{"a.txt": "1\n"}, nil)
	require.NoError(t, store.CreateSessionBranch("child", root))

	require.NoError(t, store.DeleteBranch("child"))

	_, err := store.BranchHead("child")
	require.Error(t, err)
}

func TestMergeKeepingOurs_MergesNonConflictingChanges(t *testing.T) {
	store := newTestRepo(t)
	root := commitFiles(t, store, "main", CommitRef{}, map[string]string{
		"shared.txt":  "base\n",
		"session.txt": "main session v0\n",
	}, nil)
	require.NoError(t, store.CreateSessionBranch("child", root))

	mainTip := commitFiles(t, store, "main", root, map[string]string{
		"session.txt": "main session v1\n",
	}, nil)
	childTip := commitFiles(t, store, "child", root, map[string]string{
		"child_only.txt": "from child\n",
		"session.txt":    "child session v1\n",
	}, nil)

	treeHash, archived, err := store.MergeKeepingOurs(root, mainTip, childTip, map[string]bool{"session.txt": true})
	require.NoError(t, err)

	newRef, err := store.CommitTree("main", mainTip, treeHash, "merge child", testIdentity(), Major)
	require.NoError(t, err)

	content, err := store.ReadBlob(newRef, "child_only.txt")
	require.NoError(t, err)
	require.Equal(t, "from child\n", content)

	keptSession, err := store.ReadBlob(newRef, "session.txt")
	require.NoError(t, err)
	require.Equal(t, "main session v1\n", keptSession)

	require.Equal(t, "child session v1\n", string(archived["session.txt"]))
}

func TestMergeKeepingOurs_ReturnsConflictForDivergentNonKeptPaths(t *testing.T) {
	store := newTestRepo(t)
	root := commitFiles(t, store, "main", CommitRef{}, map[string]string{"shared.txt": "base\n"}, nil)
	require.NoError(t, store.CreateSessionBranch("child", root))

	mainTip := commitFiles(t, store, "main", root, map[string]string{"shared.txt": "main change\n"}, nil)
	childTip := commitFiles(t, store, "child", root, map[string]string{"shared.txt": "child change\n"}, nil)

	_, _, err := store.MergeKeepingOurs(root, mainTip, childTip, nil)
	require.Error(t, err)
}
