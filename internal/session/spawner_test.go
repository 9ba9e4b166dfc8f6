package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawner_SpawnCreatesChildBranchAndRecord(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "x"})
	reg := NewRegistry(store)
	spawner := NewSpawner(store, reg)

	child, err := spawner.Spawn(context.Background(), SpawnRequest{
		ParentBranch:   "main",
		ChildBranch:    "child-a",
		InitialMessage: "investigate the flaky test",
	})
	require.NoError(t, err)
	require.NotNil(t, child)

	require.NotNil(t, child.Record.ParentBranch)
	assert.Equal(t, "main", *child.Record.ParentBranch)
	require.Len(t, child.Record.Messages, 1)
	assert.Equal(t, "investigate the flaky test", child.Record.Messages[0].Content)
	assert.True(t, reg.Loaded("child-a"))

	head, err := store.BranchHead("child-a")
	require.NoError(t, err)
	assert.False(t, head.IsZero())
}

func TestSpawner_SpawnRejectsSelfSpawn(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "x"})
	reg := NewRegistry(store)
	spawner := NewSpawner(store, reg)

	_, err := spawner.Spawn(context.Background(), SpawnRequest{ParentBranch: "main", ChildBranch: "main"})
	assert.Error(t, err)
}

func TestSpawner_SpawnRejectsEmptyChildBranch(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "x"})
	reg := NewRegistry(store)
	spawner := NewSpawner(store, reg)

	_, err := spawner.Spawn(context.Background(), SpawnRequest{ParentBranch: "main", ChildBranch: ""})
	assert.Error(t, err)
}

func TestSpawner_SpawnAppendsToLoadedParentsChildBranches(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "x"})
	reg := NewRegistry(store)
	spawner := NewSpawner(store, reg)

	parent, err := reg.Load(context.Background(), "main")
	require.NoError(t, err)
	require.Empty(t, parent.Record.ChildBranches)

	_, err = spawner.Spawn(context.Background(), SpawnRequest{ParentBranch: "main", ChildBranch: "child-a"})
	require.NoError(t, err)

	assert.Contains(t, parent.Record.ChildBranches, "child-a")
}

func TestSpawner_SpawnRejectsCyclicChild(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.txt": "x"})
	reg := NewRegistry(store)
	spawner := NewSpawner(store, reg)

	_, err := spawner.Spawn(context.Background(), SpawnRequest{ParentBranch: "main", ChildBranch: "child-a"})
	require.NoError(t, err)

	_, err = spawner.Spawn(context.Background(), SpawnRequest{ParentBranch: "child-a", ChildBranch: "main"})
	assert.Error(t, err)
}
