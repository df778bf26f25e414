// Package session keeps the broker session alive with bounded retries.
//
// EnsureConnected makes at most one connect attempt per call and never
// more than one per cooldown window. After a failed attempt it spends a
// short wait servicing the update listener and watching the link, so a
// struggling broker does not starve firmware updates. A successful connect
// feeds the watchdog, subscribes the liveness topic and publishes the
// retained presence payload to the will topic.
//
// Pump dispatches queued inbound messages on the caller's goroutine. Every
// inbound message is liveness evidence and feeds the watchdog, unless the
// application has reported an initialization failure; in that case the
// watchdog is left to expire so the node restarts and retries
// initialization.
package session
