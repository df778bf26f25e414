package otahttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-node/internal/update"
)

const (
	eventQueueSize    = 64
	readHeaderTimeout = 10 * time.Second

	// DefaultMaxImageSize bounds an upload when no limit is set.
	DefaultMaxImageSize int64 = 16 << 20
)

type eventKind int

const (
	eventStart eventKind = iota
	eventProgress
	eventEnd
	eventError
)

type event struct {
	kind  eventKind
	done  int64
	total int64
	err   error
}

// Logger defines the logging interface for the listener.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Listener is an update.Listener serving uploads over HTTP.
type Listener struct {
	addr      string
	installer Installer
	logger    Logger

	mu       sync.RWMutex
	hostname string
	secret   string
	hooks    update.Hooks
	server   *http.Server
	boundTo  net.Addr

	maxImageSize atomic.Int64

	busy   atomic.Bool
	events chan event
}

// New creates a listener that will serve on addr once begun.
func New(addr string, installer Installer) *Listener {
	l := &Listener{
		addr:      addr,
		installer: installer,
		logger:    noopLogger{},
		events:    make(chan event, eventQueueSize),
	}
	l.maxImageSize.Store(DefaultMaxImageSize)
	return l
}

// SetMaxImageSize sets the largest accepted upload in bytes. Values below
// one are ignored.
func (l *Listener) SetMaxImageSize(n int64) {
	if n > 0 {
		l.maxImageSize.Store(n)
	}
}

// SetLogger sets the logger.
func (l *Listener) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Configure sets the hostname the upload token must name and the signing
// secret.
func (l *Listener) Configure(hostname, secret string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hostname = hostname
	l.secret = secret
}

// SetHooks installs the update hooks.
func (l *Listener) SetHooks(h update.Hooks) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = h
}

// Begin starts serving.
func (l *Listener) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.secret == "" {
		return ErrNotConfigured
	}
	if l.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}
	l.boundTo = ln.Addr()
	l.server = &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv := l.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("update listener stopped", "error", err)
		}
	}()
	l.logger.Info("update listener serving", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Begin.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.boundTo
}

// Service delivers queued events to the hooks.
func (l *Listener) Service() {
	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()

	for {
		select {
		case ev := <-l.events:
			dispatch(hooks, ev)
		default:
			return
		}
	}
}

// Shutdown stops the HTTP server.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.server = nil
	l.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the update routes.
func (l *Listener) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/update", l.handleStatus)
	r.Post("/update", l.handleUpload)
	return r
}

func (l *Listener) handleStatus(w http.ResponseWriter, _ *http.Request) {
	l.mu.RLock()
	hostname := l.hostname
	l.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"hostname": hostname,
		"busy":     l.busy.Load(),
	})
}

func (l *Listener) handleUpload(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	hostname, secret := l.hostname, l.secret
	l.mu.RUnlock()

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || secret == "" {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized)
		return
	}
	if err := verifyToken(token, secret, hostname); err != nil {
		l.logger.Warn("update rejected", "error", err, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, ErrUnauthorized)
		return
	}
	if !l.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, ErrBusy)
		return
	}
	defer l.busy.Store(false)

	limit := l.maxImageSize.Load()
	total := r.ContentLength
	if total > limit {
		l.logger.Warn("update rejected", "error", ErrImageTooLarge, "bytes", total, "limit", limit)
		writeError(w, http.StatusRequestEntityTooLarge, ErrImageTooLarge)
		return
	}

	body := http.MaxBytesReader(w, r.Body, limit)
	l.emit(r.Context(), event{kind: eventStart, total: total})
	err := l.installer.Install(r.Context(), body, total, func(done int64) {
		l.tryEmit(event{kind: eventProgress, done: done, total: total})
	})
	if err != nil {
		l.emit(r.Context(), event{kind: eventError, err: err})
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrImageTooLarge)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	l.emit(r.Context(), event{kind: eventEnd})
	writeJSON(w, http.StatusOK, map[string]any{"status": "installed", "bytes": total})
}

// emit queues a lifecycle event, waiting for room unless the request ends.
func (l *Listener) emit(ctx context.Context, ev event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

// tryEmit queues a progress event if there is room.
func (l *Listener) tryEmit(ev event) {
	select {
	case l.events <- ev:
	default:
	}
}

func dispatch(h update.Hooks, ev event) {
	switch ev.kind {
	case eventStart:
		if h.OnStart != nil {
			h.OnStart()
		}
	case eventProgress:
		if h.OnProgress != nil {
			h.OnProgress(ev.done, ev.total)
		}
	case eventEnd:
		if h.OnEnd != nil {
			h.OnEnd()
		}
	case eventError:
		if h.OnError != nil {
			h.OnError(ev.err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var _ update.Listener = (*Listener)(nil)
