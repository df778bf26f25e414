package otahttp

import "errors"

var (
	// ErrUnauthorized is returned when the upload token is missing or
	// invalid.
	ErrUnauthorized = errors.New("otahttp: unauthorized")

	// ErrBusy is returned when an update is already in progress.
	ErrBusy = errors.New("otahttp: update already in progress")

	// ErrImageTooLarge is returned when an upload exceeds the image limit.
	ErrImageTooLarge = errors.New("otahttp: image exceeds size limit")

	// ErrNotConfigured is returned by Begin before Configure.
	ErrNotConfigured = errors.New("otahttp: listener not configured")
)
