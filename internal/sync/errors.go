package sync

import "errors"

var (
	// ErrNetworkUnavailable is returned by fetchers when the remote cannot be
	// reached. Reconciliation treats it as "no data": local state is kept
	// verbatim, never deleted.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrCurrentMailboxInvalidated is returned by a mailbox reconciliation
	// that committed successfully but removed the mailbox the caller had
	// selected. The caller must clear its selection down to the root and
	// must not keep using the mailbox's content scope.
	ErrCurrentMailboxInvalidated = errors.New("current mailbox no longer exists")

	// ErrNoMailboxSelected is returned by operations that need an active
	// mailbox selection.
	ErrNoMailboxSelected = errors.New("no mailbox selected")

	// ErrNoFolderSelected is returned by operations that need an active
	// folder selection.
	ErrNoFolderSelected = errors.New("no folder selected")
)
