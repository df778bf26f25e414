// Package journal keeps a persistent record of node boots and supervisor
// state transitions in SQLite.
//
// Each process start inserts a boot row identified by a random UUID. The
// journal then observes the supervisor: transitions are queued without
// blocking the supervisor goroutine and written by Run. If the queue is
// full the transition is counted as dropped and otherwise ignored.
//
// The journal survives reboots, so the boot counter and the tail of the
// transition log explain a watchdog reset after the fact.
package journal
