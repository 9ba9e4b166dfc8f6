// Package session implements live-session state, the turn executor, and
// the process-wide session registry for forge. Grounded on
// original_source/forge/session/{manager,registry,startup}.py, restructured
// per spec.md §9 into: Live (state + coordination), Executor (streaming +
// tool pipeline), and Registry (load/unload + parent/child notification),
// instead of one god-object SessionManager.
package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"forge/internal/ferrors"
	"forge/internal/gitstore"
	"forge/internal/vfs"
)

// Registry tracks every loaded Live session, enforcing spec.md §4.7's
// invariants: RUNNING/WAITING_CHILDREN sessions must stay loaded, and a
// session may only unload from IDLE/COMPLETED/ERROR with no observers.
type Registry struct {
	mu    sync.Mutex
	store *gitstore.Store
	live  map[string]*Live // keyed by branch
}

// NewRegistry creates an empty registry bound to store.
func NewRegistry(store *gitstore.Store) *Registry {
	return &Registry{store: store, live: map[string]*Live{}}
}

// Store returns the gitstore.Store this registry is bound to, for
// callers (e.g. the CLI) that need to hand the same store to a Spawner.
func (r *Registry) Store() *gitstore.Store { return r.store }

// Load opens (or returns the already-loaded) Live session for branch.
func (r *Registry) Load(ctx context.Context, branch string) (*Live, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.live[branch]; ok {
		return l, nil
	}
	ws, _, err := vfs.NewWorkspace(r.store, branch)
	if err != nil {
		return nil, fmt.Errorf("session: opening workspace for %s: %w", branch, err)
	}
	claimCtx := ws.Claim().ClaimFor(ctx)
	rec, err := LoadRecord(claimCtx, ws)
	ws.Claim().Release(claimCtx)
	if err != nil {
		return nil, fmt.Errorf("session: loading record for %s: %w", branch, err)
	}
	live := NewLive(branch, ws, rec)
	r.live[branch] = live
	return live, nil
}

// Get returns the already-loaded session for branch, if any.
func (r *Registry) Get(branch string) (*Live, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.live[branch]
	return l, ok
}

// Unload removes branch from the registry, refusing per spec.md §4.7 if
// the session's state requires it stay loaded or an observer is still
// attached.
func (r *Registry) Unload(branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.live[branch]
	if !ok {
		return nil
	}
	s := l.State()
	if s == StateRunning || s == StateWaitingChildren {
		return ferrors.InvalidStateDetail(fmt.Sprintf("cannot unload %s: session is %s", branch, s))
	}
	if l.HasObservers() {
		return ferrors.InvalidStateDetail(fmt.Sprintf("cannot unload %s: observers attached", branch))
	}
	delete(r.live, branch)
	return nil
}

// Loaded reports whether branch currently has a Live session.
func (r *Registry) Loaded(branch string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[branch]
	return ok
}

// WouldCycle reports whether spawning childBranch from parentBranch
// would create a parent/child cycle: true if childBranch already
// appears in parentBranch's ancestor chain (spec.md §9, §4.7).
func (r *Registry) WouldCycle(ctx context.Context, parentBranch, childBranch string) (bool, error) {
	branch := parentBranch
	seen := map[string]bool{}
	for branch != "" {
		if branch == childBranch {
			return true, nil
		}
		if seen[branch] {
			// Existing data already cyclic; don't loop forever resolving it.
			return true, nil
		}
		seen[branch] = true
		rec, err := r.recordForBranch(ctx, branch)
		if err != nil {
			return false, err
		}
		if rec.ParentBranch == nil {
			break
		}
		branch = *rec.ParentBranch
	}
	return false, nil
}

func (r *Registry) recordForBranch(ctx context.Context, branch string) (*Record, error) {
	if l, ok := r.Get(branch); ok {
		return l.Record, nil
	}
	head, err := r.store.BranchHead(branch)
	if err != nil {
		return nil, err
	}
	view := vfs.NewCommitView(r.store, head)
	raw, err := view.ReadRaw(RecordPath)
	if err != nil {
		if fe, ok := ferrors.As(err); ok && fe.Kind == ferrors.KindNotFound {
			return NewRecord(), nil
		}
		return nil, err
	}
	return Decode(raw)
}

// NotifyChildCompleted is called by the turn executor when a child
// session's turn reaches IDLE or COMPLETED. If the parent is loaded and
// WAITING_CHILDREN with all awaited children now non-running, the
// parent's executor is signaled to resume — grounded on
// original_source/forge/session/registry.py's notify_parent.
func (r *Registry) NotifyChildCompleted(childBranch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, parent := range r.live {
		if parent.State() != StateWaitingChildren {
			continue
		}
		if parent.Record.PendingWait == nil {
			continue
		}
		if !containsBranch(parent.Record.PendingWait.Branches, childBranch) {
			continue
		}
		if r.allChildrenSettled(parent.Record.PendingWait.Branches) {
			parent.resumeSignal.notify()
		}
	}
}

func (r *Registry) allChildrenSettled(branches []string) bool {
	for _, b := range branches {
		if l, ok := r.live[b]; ok {
			switch l.State() {
			case StateRunning, StateWaitingChildren:
				return false
			}
			continue
		}
		// Not loaded: a session only stays unloaded while settled
		// (IDLE/COMPLETED/ERROR), per the Unload invariant above, so its
		// absence from r.live itself signals settlement.
	}
	return true
}

func containsBranch(list []string, b string) bool {
	for _, v := range list {
		if v == b {
			return true
		}
	}
	return false
}

// Startup scans every branch for a session record and reconciles
// lifecycle state per spec.md §4.7: WAITING_CHILDREN sessions (and their
// children) load eagerly; RUNNING resets to IDLE (crash recovery, no
// auto-resume); everything else stays SUSPENDED (not loaded). Branches
// are scanned concurrently — each is an independent git read — grounded
// on the teacher's campaign/intelligence_gatherer.go errgroup-fan-out
// pattern, bounded implicitly by Load's own per-registry mutex.
func (r *Registry) Startup(ctx context.Context, branches []string) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, branch := range branches {
		branch := branch
		eg.Go(func() error {
			return r.reconcileBranch(egCtx, branch)
		})
	}
	return eg.Wait()
}

func (r *Registry) reconcileBranch(ctx context.Context, branch string) error {
	rec, err := r.recordForBranch(ctx, branch)
	if err != nil {
		return fmt.Errorf("session: startup scan of %s: %w", branch, err)
	}
	switch rec.State {
	case StateWaitingChildren:
		if _, err := r.Load(ctx, branch); err != nil {
			return err
		}
		for _, child := range rec.ChildBranches {
			if _, err := r.Load(ctx, child); err != nil {
				return err
			}
		}
	case StateRunning:
		// Crash recovery: the record on disk is stale RUNNING from a
		// process that died mid-turn. Loading and immediately persisting
		// IDLE keeps .forge/session.json truthful without resuming any
		// turn.
		if _, err := r.Load(ctx, branch); err != nil {
			return err
		}
		l, _ := r.Get(branch)
		l.SetState(StateIdle)
	}
	return nil
}
