package session

import "errors"

// Sentinel errors for session management.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned when a connect attempt was made and
	// failed.
	ErrConnectFailed = errors.New("session: connect failed")

	// ErrCooldown is returned when no attempt was made because the last one
	// was too recent.
	ErrCooldown = errors.New("session: reconnect cooldown active")

	// ErrLinkLost is returned when the link dropped during the post-failure
	// wait.
	ErrLinkLost = errors.New("session: link lost while waiting to reconnect")

	// ErrPumpFailed is returned when the transport could not process
	// traffic. The session should be treated as lost.
	ErrPumpFailed = errors.New("session: pump failed")

	// ErrNotConnected is returned by transports when no session is open.
	ErrNotConnected = errors.New("session: not connected")
)
