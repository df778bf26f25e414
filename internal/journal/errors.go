package journal

import "errors"

var (
	// ErrNoBoot is returned by operations that need RecordBoot first.
	ErrNoBoot = errors.New("journal: boot not recorded")

	// ErrClosed is returned after Run has returned.
	ErrClosed = errors.New("journal: closed")
)
