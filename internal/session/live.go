package session

import (
	"context"
	"sync"

	"forge/internal/promptstream"
	"forge/internal/vfs"
)

// Live is the runtime projection of a session record: a writable VFS, a
// queue of user messages awaiting the next turn boundary, the event bus
// observers attach to, and the prompt stream. Grounded on
// spec.md §3's "Live session" data-model entry and
// original_source/forge/session/manager.py's SessionManager instance
// state, split per spec.md §9 into state+coordination (this type) and
// streaming+tool pipeline (Executor).
type Live struct {
	mu sync.Mutex

	Branch    string
	Workspace *vfs.Workspace
	Record    *Record
	Bus       *EventBus

	pendingInput []string
	touched      map[string]bool

	state        State
	resumeSignal resumeSignal

	Stream *promptstream.Stream
}

// resumeSignal wakes a parent session's executor out of WAITING_CHILDREN
// without polling, mirroring the registry's notify_parent call in
// original_source/forge/session/registry.py reaching back into a
// waiting SessionManager instance.
type resumeSignal struct {
	mu sync.Mutex
	ch chan struct{}
}

func (s *resumeSignal) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		s.ch = make(chan struct{}, 1)
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// wait blocks until notify() has been called (possibly before this call,
// in which case it returns immediately per spec.md Scenario F's race
// case) or ctx is cancelled.
func (s *resumeSignal) wait(ctx context.Context) error {
	s.mu.Lock()
	if s.ch == nil {
		s.ch = make(chan struct{}, 1)
	}
	ch := s.ch
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewLive wraps a freshly opened workspace and record into a Live
// session in IDLE state.
func NewLive(branch string, ws *vfs.Workspace, rec *Record) *Live {
	if rec.State == "" {
		rec.State = StateIdle
	}
	return &Live{
		Branch:  branch,
		Workspace: ws,
		Record:  rec,
		Bus:     NewEventBus(),
		touched: map[string]bool{},
		state:   rec.State,
	}
}

// State returns the current lifecycle state.
func (l *Live) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetState transitions state and emits EventStateChanged. Callers are
// responsible for persisting Record.State alongside the next commit;
// this only updates the in-memory projection and notifies observers
// immediately so a UI reflects WAITING_INPUT/WAITING_CHILDREN/etc.
// without waiting for a commit.
func (l *Live) SetState(s State) {
	l.mu.Lock()
	l.state = s
	l.Record.State = s
	l.mu.Unlock()
	l.Bus.Emit(Event{Kind: EventStateChanged, Branch: l.Branch, State: s})
}

// EnqueueInput appends a user message to the pending queue, consumed at
// the next turn's Start step (spec.md §4.6 "snapshot pending
// user-queue").
func (l *Live) EnqueueInput(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pendingInput = append(l.pendingInput, text)
}

// DrainInput returns and clears the pending input queue.
func (l *Live) DrainInput() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	drained := l.pendingInput
	l.pendingInput = nil
	return drained
}

// MarkTouched records that path was written or deleted this turn, for
// diagnostics and for the commit-message fallback.
func (l *Live) MarkTouched(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touched[path] = true
}

// DrainTouched returns the set of paths touched this turn, in no
// particular order, and clears it.
func (l *Live) DrainTouched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.touched))
	for p := range l.touched {
		out = append(out, p)
	}
	l.touched = map[string]bool{}
	return out
}

// HasObservers reports whether any UI has attached to this session's
// event bus — the registry's unload precondition (spec.md §4.7).
func (l *Live) HasObservers() bool {
	return l.Bus.SubscriberCount() > 0
}

// EnsureStream lazily builds the in-memory prompt stream from the
// persisted record on first use (process startup or right after
// NewLive), replaying active files from the workspace's current base and
// the conversation history so a resumed session's stream matches what a
// freshly-rendered one would look like. The prompt stream itself is
// never persisted — spec.md §3 describes it as a runtime-only structure
// derived from the session record.
func (l *Live) EnsureStream(ctx context.Context, systemPrompt string) *promptstream.Stream {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Stream != nil {
		return l.Stream
	}
	s := promptstream.New(systemPrompt)
	base := l.Workspace.Base()
	for _, path := range l.Record.ActiveFiles {
		content, err := base.Read(path)
		if err != nil {
			continue
		}
		s.AppendFileContent(path, content, "restored active file", "")
	}
	for _, m := range l.Record.Messages {
		switch m.Role {
		case "user":
			s.AppendUserMessage(m.Content)
		case "assistant":
			s.AppendAssistantMessage(m.Content)
		case "tool":
			// Reconstructed history: whether the original result was
			// tagged EphemeralResult isn't persisted on Message, so
			// restored tool blocks are treated as durable rather than
			// risking an immediate CollapseEphemeral wipe on resume.
			_ = s.AppendToolResult(m.ToolCallID, m.Content, false)
		}
	}
	l.Stream = s
	return s
}
