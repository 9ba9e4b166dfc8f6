package session

import (
	"context"
	"fmt"

	"forge/internal/ferrors"
	"forge/internal/gitstore"
	"forge/internal/vfs"
)

// Spawner creates child sessions on fresh branches forked from a
// parent's current commit, per spec.md §4.3's SpawnChild directive and
// §9's branch-name-forest cycle prevention. Grounded on the teacher's
// Spawner shape (a single entry point guarding a shared resource) but
// retargeted from in-process SubAgent goroutines to git branches: a
// child session is exactly a Live session on its own branch, not a
// separate runtime type.
type Spawner struct {
	store    *gitstore.Store
	registry *Registry
}

// NewSpawner creates a spawner bound to store and registry.
func NewSpawner(store *gitstore.Store, registry *Registry) *Spawner {
	return &Spawner{store: store, registry: registry}
}

// SpawnRequest describes a child session to create.
type SpawnRequest struct {
	ParentBranch   string
	ChildBranch    string
	InitialMessage string
}

// Spawn forks ChildBranch from ParentBranch's current head, seeds its
// session record with parent/child linkage and an initial user message,
// and loads it into the registry. Refuses with ferrors.Cycle if
// ChildBranch already appears in ParentBranch's ancestor chain.
func (s *Spawner) Spawn(ctx context.Context, req SpawnRequest) (*Live, error) {
	if req.ChildBranch == "" {
		return nil, fmt.Errorf("session: spawn requires a child branch name")
	}
	if req.ChildBranch == req.ParentBranch {
		return nil, ferrors.CycleBranch(req.ChildBranch)
	}
	cyclic, err := s.registry.WouldCycle(ctx, req.ParentBranch, req.ChildBranch)
	if err != nil {
		return nil, fmt.Errorf("session: checking spawn cycle: %w", err)
	}
	if cyclic {
		return nil, ferrors.CycleBranch(req.ChildBranch)
	}

	parentHead, err := s.store.BranchHead(req.ParentBranch)
	if err != nil {
		return nil, fmt.Errorf("session: resolving parent head: %w", err)
	}
	if err := s.store.CreateSessionBranch(req.ChildBranch, parentHead); err != nil {
		return nil, fmt.Errorf("session: creating child branch: %w", err)
	}

	ws, _, err := vfs.NewWorkspace(s.store, req.ChildBranch)
	if err != nil {
		return nil, fmt.Errorf("session: opening child workspace: %w", err)
	}

	rec := NewRecord()
	parent := req.ParentBranch
	rec.ParentBranch = &parent
	if req.InitialMessage != "" {
		rec.Messages = append(rec.Messages, Message{Role: "user", Content: req.InitialMessage})
	}

	claimCtx := ws.Claim().ClaimFor(ctx)
	saveErr := SaveRecord(claimCtx, ws, rec)
	ws.Claim().Release(claimCtx)
	if saveErr != nil {
		return nil, fmt.Errorf("session: seeding child record: %w", saveErr)
	}

	child := NewLive(req.ChildBranch, ws, rec)
	s.registry.mu.Lock()
	s.registry.live[req.ChildBranch] = child
	s.registry.mu.Unlock()

	parentLive, ok := s.registry.Get(req.ParentBranch)
	if ok {
		parentLive.Record.ChildBranches = append(parentLive.Record.ChildBranches, req.ChildBranch)
	}

	return child, nil
}
