package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"forge/internal/ferrors"
	"forge/internal/vfs"
)

// RecordPath is where a branch's session record lives in its own tree,
// per spec.md §6.
const RecordPath = ".forge/session.json"

// MergedArchivePath returns the path a source branch's session record is
// archived to when it conflicts with the destination's during a merge
// (spec.md §4.5).
func MergedArchivePath(sourceBranch string) string {
	return ".forge/merged/" + sourceBranch + ".json"
}

// LoadRecord reads and decodes the session record from ws, returning a
// fresh NewRecord() if the branch has none yet (a brand new branch has
// no session.json until its first turn commits).
func LoadRecord(ctx context.Context, ws *vfs.Workspace) (*Record, error) {
	raw, err := ws.ReadRaw(ctx, RecordPath)
	if err != nil {
		var fe *ferrors.Error
		if errors.As(err, &fe) && fe.Kind == ferrors.KindNotFound {
			return NewRecord(), nil
		}
		return nil, fmt.Errorf("session: loading record: %w", err)
	}
	return Decode(raw)
}

// SaveRecord writes rec into ws's overlay at RecordPath, to be included
// in the turn's commit tree alongside any file changes (spec.md §8.1).
func SaveRecord(ctx context.Context, ws *vfs.Workspace, rec *Record) error {
	raw, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("session: encoding record: %w", err)
	}
	return ws.Write(ctx, RecordPath, string(raw))
}

// ArchiveMergedRecord writes sourceRecord to the merge-archive path for
// sourceBranch, used when a branch merge's session.json conflicts and
// the destination's record is kept (spec.md §4.5's decided policy).
func ArchiveMergedRecord(ctx context.Context, ws *vfs.Workspace, sourceBranch string, sourceRecord *Record) error {
	raw, err := json.MarshalIndent(sourceRecord, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding archived record: %w", err)
	}
	return ws.Write(ctx, MergedArchivePath(sourceBranch), string(raw))
}
