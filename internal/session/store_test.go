package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRecord_ReturnsFreshRecordWhenAbsent(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	ws := newTestWorkspace(t, store, "main")

	withClaim(t, ws, func(ctx context.Context) {
		rec, err := LoadRecord(ctx, ws)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, rec.State)
		assert.Empty(t, rec.Messages)
	})
}

func TestSaveAndLoadRecord_RoundTrip(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	ws := newTestWorkspace(t, store, "main")

	rec := NewRecord()
	rec.Messages = append(rec.Messages, Message{Role: "user", Content: "hi there"})
	rec.State = StateRunning

	withClaim(t, ws, func(ctx context.Context) {
		require.NoError(t, SaveRecord(ctx, ws, rec))

		reloaded, err := LoadRecord(ctx, ws)
		require.NoError(t, err)
		assert.Equal(t, StateRunning, reloaded.State)
		require.Len(t, reloaded.Messages, 1)
		assert.Equal(t, "hi there", reloaded.Messages[0].Content)
	})
}

func TestArchiveMergedRecord_WritesUnderMergedPath(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"README.md": "hi"})
	ws := newTestWorkspace(t, store, "main")

	rec := NewRecord()
	rec.Messages = append(rec.Messages, Message{Role: "user", Content: "from the losing branch"})

	withClaim(t, ws, func(ctx context.Context) {
		require.NoError(t, ArchiveMergedRecord(ctx, ws, "feature-x", rec))

		raw, err := ws.ReadRaw(ctx, MergedArchivePath("feature-x"))
		require.NoError(t, err)
		decoded, err := Decode(raw)
		require.NoError(t, err)
		require.Len(t, decoded.Messages, 1)
		assert.Equal(t, "from the losing branch", decoded.Messages[0].Content)
	})
}
