// Package vfs implements the branch-scoped virtual filesystem: a
// read-only CommitView over a git commit's tree, and a writable
// Workspace overlay on top of it. Grounded on
// _examples/original_source/forge/vfs/{base,git_commit,work_in_progress,binary}.py.
package vfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"forge/internal/ferrors"
	"forge/internal/gitstore"
	"forge/internal/logging"
)

// Reader is the read-only surface shared by CommitView and Workspace.
type Reader interface {
	Read(path string) (string, error)
	ReadRaw(path string) ([]byte, error)
	List() ([]string, error)
	Exists(path string) bool
	IsBinary(path string) bool
}

// Writer extends Reader with mutation, available only on a claimed
// Workspace.
type Writer interface {
	Reader
	Write(path, content string) error
	Delete(path string) error
}

// NormalizePath enforces the path invariants from the data model:
// forward slashes, no leading slash, no "..".
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", ferrors.InvalidPathDetail(p, "empty path")
	}
	clean := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(clean, "/") {
		return "", ferrors.InvalidPathDetail(p, "leading slash")
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", ferrors.InvalidPathDetail(p, "contains ..")
		}
	}
	return clean, nil
}

// CommitView is a read-only view of a single commit's tree.
type CommitView struct {
	store *gitstore.Store
	ref   gitstore.CommitRef
}

// NewCommitView wraps a commit for read-only access.
func NewCommitView(store *gitstore.Store, ref gitstore.CommitRef) *CommitView {
	return &CommitView{store: store, ref: ref}
}

func (v *CommitView) Read(path string) (string, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return "", err
	}
	return v.store.ReadBlob(v.ref, p)
}

func (v *CommitView) ReadRaw(path string) ([]byte, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return v.store.ReadRaw(v.ref, p)
}

func (v *CommitView) List() ([]string, error) {
	return v.store.ListFiles(v.ref)
}

func (v *CommitView) Exists(path string) bool {
	p, err := NormalizePath(path)
	if err != nil {
		return false
	}
	return v.store.Exists(v.ref, p)
}

func (v *CommitView) IsBinary(path string) bool { return IsBinaryPath(path) }

// Ref returns the commit this view resolves reads against.
func (v *CommitView) Ref() gitstore.CommitRef { return v.ref }

// claimKey is the context key under which the current goroutine's claim
// token is stored so _assertOwner can check it without a thread-id
// primitive (Go has none) — every call into a claimed Workspace must
// thread the claimed ctx through.
type claimKey struct{}

// Claim is the mutable-access token for a Workspace, mirroring
// base.py's claim_thread()/release_thread()/_assert_owner() assertions.
// A Workspace is claimed by exactly one logical owner (a live session's
// worker) at a time; operations performed without holding the claim
// return a ClaimViolation error and a release from a non-owner panics.
// Only Poison makes the Workspace permanently unusable.
type Claim struct {
	mu      sync.Mutex
	token   atomic.Int64
	claimed bool
	poisoned bool
	poisonReason string
}

var claimGen atomic.Int64

// ClaimFor returns a context carrying ownership of c, panicking if c is
// already claimed by someone else — the same fail-fast discipline as the
// Python original's AssertionError.
func (c *Claim) ClaimFor(ctx context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed {
		panic("vfs: claim already held by another owner")
	}
	tok := claimGen.Add(1)
	c.token.Store(tok)
	c.claimed = true
	return context.WithValue(ctx, claimKey{}, tok)
}

// Release gives up ownership. Panics if ctx does not carry the current
// owning token.
func (c *Claim) Release(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, _ := ctx.Value(claimKey{}).(int64)
	if !c.claimed || tok != c.token.Load() {
		panic("vfs: release by non-owner")
	}
	c.claimed = false
}

// Poison marks the claim permanently unusable after a crash mid-mutation.
// The owning live session must transition to ERROR; no further claim can
// succeed.
func (c *Claim) Poison(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poisoned = true
	c.poisonReason = reason
}

func (c *Claim) assertOwner(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		return ferrors.PoisonedSession(c.poisonReason)
	}
	tok, ok := ctx.Value(claimKey{}).(int64)
	if !c.claimed || !ok || tok != c.token.Load() {
		return ferrors.ClaimViolationDetail("operation attempted without holding the claim")
	}
	return nil
}

// Workspace is the writable overlay for a branch's pending turn: an
// in-memory map of writes/deletes layered over a CommitView, exactly
// matching work_in_progress.py's pending_changes/deleted_files split.
//
// NOTE: delete() is intentionally idempotent here (never errors whether
// or not the path currently exists), diverging from the Python
// original's WorkInProgressVFS.delete_file (which raises
// FileNotFoundError on an absent path) because the authoritative
// invariant is "delete(p) is idempotent, even if base absent."
type Workspace struct {
	claim  *Claim
	base   *CommitView
	branch string

	mu      sync.RWMutex
	pending map[string]string
	deleted map[string]bool
}

// NewWorkspace opens a fresh writable overlay over branch's current head.
func NewWorkspace(store *gitstore.Store, branch string) (*Workspace, gitstore.CommitRef, error) {
	ref, err := store.BranchHead(branch)
	if err != nil {
		return nil, gitstore.CommitRef{}, err
	}
	return &Workspace{
		claim:   &Claim{},
		base:    NewCommitView(store, ref),
		branch:  branch,
		pending: map[string]string{},
		deleted: map[string]bool{},
	}, ref, nil
}

// Claim exposes the workspace's claim token for the owning live session.
func (w *Workspace) Claim() *Claim { return w.claim }

func (w *Workspace) Read(ctx context.Context, path string) (string, error) {
	if err := w.claim.assertOwner(ctx); err != nil {
		return "", err
	}
	p, err := NormalizePath(path)
	if err != nil {
		return "", err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.deleted[p] {
		return "", ferrors.NotFoundPath(p)
	}
	if c, ok := w.pending[p]; ok {
		return c, nil
	}
	return w.base.Read(p)
}

func (w *Workspace) ReadRaw(ctx context.Context, path string) ([]byte, error) {
	s, err := w.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (w *Workspace) Write(ctx context.Context, path, content string) error {
	if err := w.claim.assertOwner(ctx); err != nil {
		return err
	}
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.deleted, p)
	w.pending[p] = content
	logging.Get(logging.CategoryOverlay).Debug("write %s (%d bytes)", p, len(content))
	logging.Audit().FileOp(logging.AuditFileWrite, p, int64(len(content)), true, "")
	return nil
}

// Delete removes path from the overlay. Idempotent: never errors,
// regardless of whether path currently exists in base or pending.
func (w *Workspace) Delete(ctx context.Context, path string) error {
	if err := w.claim.assertOwner(ctx); err != nil {
		return err
	}
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, p)
	w.deleted[p] = true
	logging.Get(logging.CategoryOverlay).Debug("delete %s", p)
	logging.Audit().FileOp(logging.AuditFileDelete, p, 0, true, "")
	return nil
}

func (w *Workspace) List(ctx context.Context) ([]string, error) {
	if err := w.claim.assertOwner(ctx); err != nil {
		return nil, err
	}
	base, err := w.base.List()
	if err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	set := map[string]bool{}
	for _, f := range base {
		set[f] = true
	}
	for f := range w.pending {
		set[f] = true
	}
	for f := range w.deleted {
		delete(set, f)
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (w *Workspace) Exists(ctx context.Context, path string) bool {
	p, err := NormalizePath(path)
	if err != nil {
		return false
	}
	w.mu.RLock()
	if w.deleted[p] {
		w.mu.RUnlock()
		return false
	}
	if _, ok := w.pending[p]; ok {
		w.mu.RUnlock()
		return true
	}
	w.mu.RUnlock()
	return w.base.Exists(p)
}

func (w *Workspace) IsBinary(path string) bool { return IsBinaryPath(path) }

// PendingChanges returns a copy of the overlay's writes.
func (w *Workspace) PendingChanges() map[string]string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]string, len(w.pending))
	for k, v := range w.pending {
		out[k] = v
	}
	return out
}

// DeletedFiles returns a copy of the overlay's pending deletions.
func (w *Workspace) DeletedFiles() map[string]bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]bool, len(w.deleted))
	for k := range w.deleted {
		out[k] = true
	}
	return out
}

// HasPendingChanges reports whether the overlay has any write or delete
// queued.
func (w *Workspace) HasPendingChanges() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.pending) > 0 || len(w.deleted) > 0
}

// ClearPending discards the overlay's pending writes and deletions
// without committing them.
func (w *Workspace) ClearPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = map[string]string{}
	w.deleted = map[string]bool{}
}

// Branch returns the branch name this workspace overlays.
func (w *Workspace) Branch() string { return w.branch }

// Base returns the CommitView the overlay is layered on top of.
func (w *Workspace) Base() *CommitView { return w.base }

// Rebase repoints the overlay's base at a new commit (used after a
// commit completes, so the next turn sees committed state — mirrors
// SessionManager._create_fresh_vfs).
func (w *Workspace) Rebase(ref gitstore.CommitRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.base = NewCommitView(w.base.store, ref)
}

// Commit materialises the overlay into a new tree and advances branch to
// a new commit built on it, per spec.md §4.2's commit() operation. On a
// RefRaced conflict (the branch tip moved since base was captured), it
// computes a three-way merge of base→overlay-tree against base→new-tip
// and retries once with the merged tree and the new tip as parent,
// exactly as spec.md §4.2's "Commit semantics" paragraph specifies;
// an unresolvable conflict returns ferrors.MergeConflict with the
// overlay left untouched so the turn can fail cleanly.
func (w *Workspace) Commit(ctx context.Context, message string, id gitstore.Identity, ct gitstore.CommitType) (gitstore.CommitRef, error) {
	if err := w.claim.assertOwner(ctx); err != nil {
		return gitstore.CommitRef{}, err
	}
	w.mu.RLock()
	changes := gitstore.Changes{
		Writes:    make(map[string]string, len(w.pending)),
		Deletions: make(map[string]bool, len(w.deleted)),
	}
	for k, v := range w.pending {
		changes.Writes[k] = v
	}
	for k := range w.deleted {
		changes.Deletions[k] = true
	}
	store := w.base.store
	base := w.base.ref
	branch := w.branch
	w.mu.RUnlock()

	treeHash, err := store.BuildTree(base, changes)
	if err != nil {
		return gitstore.CommitRef{}, err
	}

	newRef, err := store.CommitTree(branch, base, treeHash, message, id, ct)
	if err == nil {
		w.finishCommit(newRef)
		return newRef, nil
	}
	fe, ok := ferrors.As(err)
	if !ok || fe.Kind != ferrors.KindRefRaced {
		return gitstore.CommitRef{}, err
	}

	newTip, err := store.BranchHead(branch)
	if err != nil {
		return gitstore.CommitRef{}, err
	}
	mergedChanges, err := threeWayMergeOverlay(store, base, newTip, changes)
	if err != nil {
		return gitstore.CommitRef{}, err
	}
	mergedTree, err := store.BuildTree(newTip, mergedChanges)
	if err != nil {
		return gitstore.CommitRef{}, err
	}
	retryRef, err := store.CommitTree(branch, newTip, mergedTree, message, id, ct)
	if err != nil {
		return gitstore.CommitRef{}, err
	}
	w.finishCommit(retryRef)
	return retryRef, nil
}

// threeWayMergeOverlay resolves a RefRaced commit by treating the
// overlay (base + changes) as "ours" and the raced-ahead tip as
// "theirs", both diffed against base at the blob level — the same
// per-path reconciliation gitstore.Store.ThreeWayMerge performs for two
// already-committed branches, but here "ours" only exists as an
// in-memory overlay that was never itself committed, so it cannot be
// named by a CommitRef the way ThreeWayMerge's signature requires. This
// re-expresses that algorithm directly over Changes instead.
func threeWayMergeOverlay(store *gitstore.Store, base, theirs gitstore.CommitRef, changes gitstore.Changes) (gitstore.Changes, error) {
	baseFiles, err := blobSnapshot(store, base)
	if err != nil {
		return gitstore.Changes{}, err
	}
	theirFiles, err := blobSnapshot(store, theirs)
	if err != nil {
		return gitstore.Changes{}, err
	}
	ourFiles := make(map[string][]byte, len(baseFiles))
	for p, b := range baseFiles {
		ourFiles[p] = b
	}
	for p, content := range changes.Writes {
		ourFiles[p] = []byte(content)
	}
	for p := range changes.Deletions {
		delete(ourFiles, p)
	}

	all := map[string]bool{}
	for p := range baseFiles {
		all[p] = true
	}
	for p := range ourFiles {
		all[p] = true
	}
	for p := range theirFiles {
		all[p] = true
	}

	merged := gitstore.Changes{WriteRaw: map[string][]byte{}, Deletions: map[string]bool{}}
	var conflicts []string
	for p := range all {
		b, bOK := baseFiles[p]
		o, oOK := ourFiles[p]
		t, tOK := theirFiles[p]
		switch {
		case oOK && tOK && bytesEqual(o, t):
			merged.WriteRaw[p] = o
		case oOK && bOK && bytesEqual(o, b) && tOK:
			merged.WriteRaw[p] = t
		case oOK && bOK && bytesEqual(o, b) && !tOK:
			merged.Deletions[p] = true
		case tOK && bOK && bytesEqual(t, b) && oOK:
			merged.WriteRaw[p] = o
		case tOK && bOK && bytesEqual(t, b) && !oOK:
			merged.Deletions[p] = true
		case oOK && !bOK && !tOK:
			merged.WriteRaw[p] = o
		case tOK && !bOK && !oOK:
			merged.WriteRaw[p] = t
		case !oOK && !tOK:
			// deleted on both sides
		default:
			conflicts = append(conflicts, p)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return gitstore.Changes{}, ferrors.MergeConflictPaths(conflicts)
	}
	return merged, nil
}

func blobSnapshot(store *gitstore.Store, ref gitstore.CommitRef) (map[string][]byte, error) {
	if ref.IsZero() {
		return map[string][]byte{}, nil
	}
	files, err := store.ListFiles(ref)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(files))
	for _, f := range files {
		data, err := store.ReadRaw(ref, f)
		if err != nil {
			return nil, err
		}
		out[f] = data
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (w *Workspace) finishCommit(newRef gitstore.CommitRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = map[string]string{}
	w.deleted = map[string]bool{}
	w.base = NewCommitView(w.base.store, newRef)
}

// MaterializeToTempDir writes the overlay's resolved file set to a fresh
// temp directory for tools that need real files on disk (e.g. running a
// test suite). Grounded on work_in_progress.py's materialize_to_tempdir.
func (w *Workspace) MaterializeToTempDir(ctx context.Context) (string, error) {
	if err := w.claim.assertOwner(ctx); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp("", "forge_vfs_")
	if err != nil {
		return "", fmt.Errorf("vfs: materialize tempdir: %w", err)
	}
	files, err := w.List(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if w.IsBinary(f) {
			data, err := w.ReadRaw(ctx, f)
			if err != nil {
				return "", err
			}
			full := filepath.Join(dir, filepath.FromSlash(f))
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return "", err
			}
			if err := os.WriteFile(full, data, 0o644); err != nil {
				return "", err
			}
			continue
		}
		content, err := w.Read(ctx, f)
		if err != nil {
			return "", err
		}
		full := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}
