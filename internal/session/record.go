package session

import (
	"encoding/json"
	"fmt"
)

// CurrentVersion is the schema version written by this build. Grounded
// on codenerd/internal/store/migrations.go's versioned-migration
// pattern: unknown fields are ignored on read (forward compatible);
// a backward-incompatible change bumps this and registers a migration.
const CurrentVersion = 1

// State is a live or persisted session's lifecycle state, exactly the
// set from spec.md §4.7.
type State string

const (
	StateSuspended       State = "SUSPENDED"
	StateIdle            State = "IDLE"
	StateRunning         State = "RUNNING"
	StateWaitingInput    State = "WAITING_INPUT"
	StateWaitingChildren State = "WAITING_CHILDREN"
	StateCompleted       State = "COMPLETED"
	StateError           State = "ERROR"
)

// ToolCallRef is a turn-unique tool invocation identifier bound to an
// eventual result, carried on assistant messages per spec.md §3.
type ToolCallRef struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry in the session's conversation, following the
// common chat-tool-protocol shape named in spec.md §6.
type Message struct {
	Role       string        `json:"role"` // "user", "assistant", "tool"
	Content    string        `json:"content"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Cancelled  bool          `json:"cancelled,omitempty"`
}

// PendingWait describes what a WAITING_CHILDREN session is blocked on.
type PendingWait struct {
	Branches []string `json:"branches"`
}

// Record is the on-disk session schema persisted at .forge/session.json
// on the owning branch (spec.md §3, §6).
type Record struct {
	Version       int           `json:"version"`
	Messages      []Message     `json:"messages"`
	ActiveFiles   []string      `json:"active_files"`
	ParentBranch  *string       `json:"parent_branch"`
	ChildBranches []string      `json:"child_branches"`
	State         State         `json:"state"`
	PendingWait   *PendingWait  `json:"pending_wait"`
}

// NewRecord returns an empty record for a freshly created branch/session.
func NewRecord() *Record {
	return &Record{
		Version:       CurrentVersion,
		Messages:      []Message{},
		ActiveFiles:   []string{},
		ChildBranches: []string{},
		State:         StateIdle,
	}
}

// migration upgrades a raw record one version forward.
type migration func(json.RawMessage) (json.RawMessage, error)

// migrations maps "upgrade from version N" to its transform. Empty for
// now — CurrentVersion is 1, the format's birth version — but the slot
// exists so a future bump has a home, mirroring
// codenerd/internal/store/migrations.go's registry-by-version shape.
var migrations = map[int]migration{}

// Decode parses raw into a Record, running any registered migrations to
// bring it up to CurrentVersion. Unknown fields in raw are ignored
// (json.Unmarshal's default, forward-compatible behavior).
func Decode(raw []byte) (*Record, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("session: decoding version probe: %w", err)
	}

	if probe.Version > CurrentVersion {
		return nil, fmt.Errorf("session: record version %d is newer than supported version %d", probe.Version, CurrentVersion)
	}

	current := json.RawMessage(raw)
	for probe.Version < CurrentVersion {
		m, ok := migrations[probe.Version]
		if !ok {
			return nil, fmt.Errorf("session: no migration registered from version %d", probe.Version)
		}
		next, err := m(current)
		if err != nil {
			return nil, fmt.Errorf("session: migrating from version %d: %w", probe.Version, err)
		}
		current = next
		probe.Version++
	}

	var rec Record
	if err := json.Unmarshal(current, &rec); err != nil {
		return nil, fmt.Errorf("session: decoding record: %w", err)
	}
	rec.Version = CurrentVersion
	if rec.Messages == nil {
		rec.Messages = []Message{}
	}
	if rec.ActiveFiles == nil {
		rec.ActiveFiles = []string{}
	}
	if rec.ChildBranches == nil {
		rec.ChildBranches = []string{}
	}
	return &rec, nil
}

// Encode serialises rec at CurrentVersion.
func Encode(rec *Record) ([]byte, error) {
	rec.Version = CurrentVersion
	return json.MarshalIndent(rec, "", "  ")
}
