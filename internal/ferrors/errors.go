// Package ferrors defines the error taxonomy shared by every core package:
// VFS, git, model-transport, execution, and session-state errors all wrap
// a *Error so callers can classify failures with errors.Is/errors.As instead
// of matching on message strings.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error from the taxonomy.
type Kind int

const (
	// KindNotFound: path absent from the tree being read.
	KindNotFound Kind = iota
	// KindInvalidPath: path fails the normalization invariants (leading
	// slash, "..", backslash).
	KindInvalidPath
	// KindClaimViolation: a VFS operation ran without holding the claim,
	// or a claim was released by a non-owner.
	KindClaimViolation
	// KindPoisoned: the overlay crashed mid-mutation and can no longer be
	// trusted; the owning session is terminal.
	KindPoisoned
	// KindRefRaced: the branch ref moved between read and compare-and-swap.
	KindRefRaced
	// KindWorkdirDirty: WorkingTreeSync refused because the checked-out
	// working tree has uncommitted user changes.
	KindWorkdirDirty
	// KindMergeConflict: ThreeWayMerge could not reconcile both sides.
	KindMergeConflict
	// KindModelUnavailable: the model stream failed after retry budget
	// was exhausted.
	KindModelUnavailable
	// KindModelRejected: a non-retriable model error (auth, quota, bad
	// schema).
	KindModelRejected
	// KindToolNotApproved: a user tool was invoked before its content
	// hash was approved.
	KindToolNotApproved
	// KindToolNotFound: no registered tool matches the requested name.
	KindToolNotFound
	// KindCycle: a spawn_session call would create a branch-name cycle.
	KindCycle
	// KindInvalidState: an operation was attempted from a session state
	// that does not permit it.
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidPath:
		return "invalid_path"
	case KindClaimViolation:
		return "claim_violation"
	case KindPoisoned:
		return "poisoned"
	case KindRefRaced:
		return "ref_raced"
	case KindWorkdirDirty:
		return "workdir_dirty"
	case KindMergeConflict:
		return "merge_conflict"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindModelRejected:
		return "model_rejected"
	case KindToolNotApproved:
		return "tool_not_approved"
	case KindToolNotFound:
		return "tool_not_found"
	case KindCycle:
		return "cycle"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error is the concrete type every taxonomy error wraps.
type Error struct {
	Kind   Kind
	Path   string // file/branch path, when relevant
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Detail != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Detail)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ferrors.NotFound) match any *Error of that Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Path != "" && t.Path != e.Path {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(k Kind, path, detail string, cause error) *Error {
	return &Error{Kind: k, Path: path, Detail: detail, Cause: cause}
}

// Sentinel marker values usable with errors.Is — they carry no Path so Is
// only compares on Kind.
var (
	NotFound        = &Error{Kind: KindNotFound}
	InvalidPath     = &Error{Kind: KindInvalidPath}
	ClaimViolation  = &Error{Kind: KindClaimViolation}
	Poisoned        = &Error{Kind: KindPoisoned}
	RefRaced        = &Error{Kind: KindRefRaced}
	WorkdirDirty    = &Error{Kind: KindWorkdirDirty}
	MergeConflict   = &Error{Kind: KindMergeConflict}
	ModelUnavailable = &Error{Kind: KindModelUnavailable}
	ModelRejected   = &Error{Kind: KindModelRejected}
	ToolNotApproved = &Error{Kind: KindToolNotApproved}
	ToolNotFound    = &Error{Kind: KindToolNotFound}
	Cycle           = &Error{Kind: KindCycle}
	InvalidState    = &Error{Kind: KindInvalidState}
)

// Constructors used by callers that need a Path/Detail attached.

func NotFoundPath(path string) error { return newErr(KindNotFound, path, "", nil) }

func InvalidPathDetail(path, why string) error { return newErr(KindInvalidPath, path, why, nil) }

func ClaimViolationDetail(detail string) error { return newErr(KindClaimViolation, "", detail, nil) }

func PoisonedSession(detail string) error { return newErr(KindPoisoned, "", detail, nil) }

func RefRacedBranch(branch string, cause error) error {
	return newErr(KindRefRaced, branch, "ref moved during compare-and-swap", cause)
}

func WorkdirDirtyBranch(branch string) error {
	return newErr(KindWorkdirDirty, branch, "working tree has uncommitted changes", nil)
}

func MergeConflictPaths(paths []string) error {
	detail := fmt.Sprintf("%d conflicting path(s)", len(paths))
	return newErr(KindMergeConflict, "", detail, nil)
}

func ModelUnavailableAfter(attempts int, cause error) error {
	return newErr(KindModelUnavailable, "", fmt.Sprintf("exhausted %d attempt(s)", attempts), cause)
}

func ModelRejectedDetail(detail string, cause error) error {
	return newErr(KindModelRejected, "", detail, cause)
}

func ToolNotApprovedName(name string) error { return newErr(KindToolNotApproved, name, "", nil) }

func ToolNotFoundName(name string) error { return newErr(KindToolNotFound, name, "", nil) }

func CycleBranch(branch string) error {
	return newErr(KindCycle, branch, "would create a parent/child cycle", nil)
}

func InvalidStateDetail(detail string) error { return newErr(KindInvalidState, "", detail, nil) }

// As is a thin convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
