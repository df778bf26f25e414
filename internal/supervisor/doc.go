// Package supervisor runs the node's connectivity state machine.
//
// A Context owns every component the loop touches: the link manager, the
// broker session, the update arbiter, the status reporter and the liveness
// watchdog. Step performs one blocking unit of work and reports the
// resulting state:
//
//	LinkDown          -> acquire the link (scan, rank, associate)
//	LinkUpSessionDown -> one broker connect attempt, gated by the cooldown
//	SessionUp         -> service updates, pump inbound messages, run the
//	                     connected hook
//
// A disconnect event always sends the machine back to LinkDown and drops the
// session, so the link is re-acquired before any reconnect.
//
// Only the supervisor goroutine calls Step. State, Snapshot and
// ReportInitFailure are safe from any goroutine.
package supervisor
