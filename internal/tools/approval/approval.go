// Package approval implements the hash-gated approval record for
// user-authored tools loaded from ./tools/. Grounded on
// original_source/forge/tools/manager.py's is_tool_approved /
// approve_tool / reject_tool / commit_pending_approvals, with one
// deliberate divergence recorded in DESIGN.md: the Python original stores
// approved_tools.json per-branch inside the VFS and amends it onto the
// last commit as a [follow-up]; this port stores it repo-wide on local
// disk at .forge/approved_tools.json, since a tool file lives on the
// filesystem (./tools/), not inside any one branch's overlay, so gating
// it per-branch would let the same tool content require separate
// approval on every branch for no safety benefit.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"forge/internal/logging"
)

const recordFile = ".forge/approved_tools.json"

// Record tracks the content hash each user tool was last approved at,
// satisfying tools.ApprovalChecker. Safe for concurrent use.
type Record struct {
	mu       sync.Mutex
	path     string
	approved map[string]string // tool name -> approved content hash
}

// Open loads (or creates empty) the approval record rooted at repoRoot.
func Open(repoRoot string) (*Record, error) {
	r := &Record{
		path:     filepath.Join(repoRoot, recordFile),
		approved: map[string]string{},
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &r.approved); err != nil {
		return nil, err
	}
	return r, nil
}

// HashContent computes the content hash used for comparison.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IsApproved reports whether tool name's approved hash matches
// contentHash. An empty contentHash (the registry's ExecuteTool call
// site doesn't re-read tool source) only checks that name has some
// recorded approval; no hash is compared in that case. The userload
// loader calls IsApprovedContent with the freshly-read source instead.
func (r *Record) IsApproved(name, contentHash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contentHash == "" {
		_, ok := r.approved[name]
		return ok
	}
	return r.approved[name] == contentHash
}

// IsApprovedContent hashes content itself and compares against the
// recorded approval, used by userload at tool-load time when the source
// bytes are already in hand.
func (r *Record) IsApprovedContent(name string, content []byte) bool {
	return r.IsApproved(name, HashContent(content))
}

// Approve records name's current content hash as approved and persists
// the record immediately (atomic temp-file-then-rename).
func (r *Record) Approve(name string, content []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approved[name] = HashContent(content)
	return r.saveLocked()
}

// Reject removes name from the approved set, if present.
func (r *Record) Reject(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.approved[name]; !ok {
		return nil
	}
	delete(r.approved, name)
	return r.saveLocked()
}

func (r *Record) saveLocked() error {
	data, err := json.MarshalIndent(r.approved, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return err
	}
	logging.Get(logging.CategoryApproval).Debug("approval record saved: %d entries", len(r.approved))
	return nil
}
