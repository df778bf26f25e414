package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-node/internal/clock"
	"github.com/nerrad567/gray-logic-node/internal/supervisor"
)

const (
	// DefaultQueueSize bounds transitions waiting to be written.
	DefaultQueueSize = 64

	defaultLimit = 50
	maxLimit     = 500
)

// Boot is one recorded process start.
type Boot struct {
	BootID      string    `json:"boot_id"`
	Device      string    `json:"device,omitempty"`
	Version     string    `json:"version,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	InitFailure string    `json:"init_failure,omitempty"`
}

// Entry is one recorded transition.
type Entry struct {
	ID     int64     `json:"id"`
	BootID string    `json:"boot_id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Logger defines the logging interface for the journal.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Journal writes boots and transitions to SQLite.
//
// Thread Safety: ObserveTransition may be called from any goroutine; Run
// must be called at most once.
type Journal struct {
	db     *sql.DB
	clock  clock.Clock
	logger Logger

	queue   chan supervisor.Transition
	dropped atomic.Uint64
	written atomic.Uint64

	mu     sync.RWMutex
	bootID string
	closed bool
}

var _ supervisor.Observer = (*Journal)(nil)

// New creates a journal over db. The schema must already be migrated.
func New(db *sql.DB, clk clock.Clock, queueSize int) *Journal {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Journal{
		db:     db,
		clock:  clk,
		logger: noopLogger{},
		queue:  make(chan supervisor.Transition, queueSize),
	}
}

// SetLogger sets the logger.
func (j *Journal) SetLogger(logger Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// RecordBoot inserts a row for this process start and returns its id.
func (j *Journal) RecordBoot(ctx context.Context, version string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO boots (boot_id, version, started_at) VALUES (?, ?, ?)",
		id, version, formatTime(j.clock.Now()))
	if err != nil {
		return "", fmt.Errorf("inserting boot: %w", err)
	}

	j.mu.Lock()
	j.bootID = id
	j.mu.Unlock()
	return id, nil
}

// BootID returns the current boot id, or "" before RecordBoot.
func (j *Journal) BootID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.bootID
}

// SetDevice stores the device identity on the current boot row.
func (j *Journal) SetDevice(ctx context.Context, device string) error {
	return j.updateBoot(ctx, "device", device)
}

// RecordInitFailure stores the application's failure text on the current
// boot row.
func (j *Journal) RecordInitFailure(ctx context.Context, text string) error {
	return j.updateBoot(ctx, "init_failure", text)
}

func (j *Journal) updateBoot(ctx context.Context, column, value string) error {
	id := j.BootID()
	if id == "" {
		return ErrNoBoot
	}
	// column is one of two constants above.
	query := fmt.Sprintf("UPDATE boots SET %s = ? WHERE boot_id = ?", column) //nolint:gosec // constant column name
	if _, err := j.db.ExecContext(ctx, query, value, id); err != nil {
		return fmt.Errorf("updating boot %s: %w", column, err)
	}
	return nil
}

// ObserveTransition queues t for writing. It never blocks.
func (j *Journal) ObserveTransition(t supervisor.Transition) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.queue <- t:
	default:
		j.dropped.Add(1)
	}
}

// Run writes queued transitions until ctx is cancelled, then writes what
// is still queued and returns.
func (j *Journal) Run(ctx context.Context) error {
	if j.BootID() == "" {
		return ErrNoBoot
	}
	for {
		select {
		case t := <-j.queue:
			j.write(ctx, t)
		case <-ctx.Done():
			j.mu.Lock()
			j.closed = true
			j.mu.Unlock()
			j.drain()
			return nil
		}
	}
}

func (j *Journal) drain() {
	// The caller's context is done; give the final writes their own.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd // shutdown bound
	defer cancel()
	for {
		select {
		case t := <-j.queue:
			j.write(ctx, t)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, t supervisor.Transition) {
	if err := j.Append(ctx, t); err != nil {
		j.logger.Error("journal write failed", "error", err, "to", t.To.String())
		return
	}
	j.written.Add(1)
}

// Append writes t synchronously.
func (j *Journal) Append(ctx context.Context, t supervisor.Transition) error {
	id := j.BootID()
	if id == "" {
		return ErrNoBoot
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (boot_id, from_state, to_state, reason, at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, t.From.String(), t.To.String(), t.Reason, formatTime(t.At))
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// BootCount returns the number of recorded boots.
func (j *Journal) BootCount(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM boots").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting boots: %w", err)
	}
	return n, nil
}

// Boots returns the most recent boots, newest first.
func (j *Journal) Boots(ctx context.Context, limit int) ([]Boot, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT boot_id, device, version, started_at, init_failure
		 FROM boots ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying boots: %w", err)
	}
	defer rows.Close()

	boots := []Boot{}
	for rows.Next() {
		var b Boot
		var startedAt string
		if err := rows.Scan(&b.BootID, &b.Device, &b.Version, &startedAt, &b.InitFailure); err != nil {
			return nil, fmt.Errorf("scanning boot: %w", err)
		}
		if b.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		boots = append(boots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating boots: %w", err)
	}
	return boots, nil
}

// Recent returns the most recent transitions across all boots, newest
// first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, boot_id, from_state, to_state, reason, at
		 FROM transitions ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.BootID, &e.From, &e.To, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return entries, nil
}

// Dropped returns transitions discarded because the queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Written returns transitions written by Run.
func (j *Journal) Written() uint64 { return j.written.Load() }

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing journal timestamp %q: %w", s, err)
	}
	return t, nil
}
