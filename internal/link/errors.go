package link

import "errors"

// Sentinel errors for link acquisition.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTimeout is returned when the interface did not come up within the
	// poll budget.
	ErrTimeout = errors.New("link: timed out waiting for link")

	// ErrRejected is returned when the driver reported a disconnect while
	// the attempt was in progress, or refused to start it.
	ErrRejected = errors.New("link: attempt rejected by network stack")
)
