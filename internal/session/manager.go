package session

import (
	"context"
	"log/slog"
	"sync"

	"zmesh/internal/util/logger/sl"
)

// Manager owns at most one live session. Open and CloseSession may be
// called from any goroutine; overlapping Open calls are dropped rather
// than queued.
type Manager struct {
	dialer Dialer
	log    *slog.Logger

	mu      sync.Mutex
	opening bool
	closed  bool
	handle  Handle
	lastErr string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(ctx context.Context, dialer Dialer, log *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(ctx)

	return &Manager{
		dialer: dialer,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Open establishes a new session from cfg. Any previously held session
// is closed first. The returned bool reports whether the call actually
// attempted an open: false means another open was already in flight (or
// the manager is closed) and the call was a no-op.
//
// A failed open leaves the manager without a session and the error
// captured for Status; it stays usable for a retry without any reset
// step.
func (m *Manager) Open(ctx context.Context, cfg Config) (bool, error) {
	op := "session.Manager.Open"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		log.Debug("Manager closed, open dropped")
		return false, ErrManagerClosed
	}
	if m.opening {
		m.mu.Unlock()
		log.Debug("Open already in progress, call dropped")
		return false, nil
	}
	m.opening = true
	prior := m.handle
	m.handle = nil
	m.mu.Unlock()

	// close-before-open: the old session must be released before a new
	// one is dialed, otherwise the handle leaks
	if prior != nil {
		if err := prior.Close(); err != nil {
			log.Warn("Failed to close prior session", sl.Err(err))
		} else {
			log.Info("Closed prior session", slog.String("session_id", prior.ID()))
		}
	}

	log.Info("Opening session",
		slog.String("mode", string(cfg.Mode())),
		slog.Any("endpoints", cfg.Endpoints()),
	)

	handle, err := m.dialer.Open(ctx, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opening = false

	if err != nil {
		m.handle = nil
		m.lastErr = err.Error()
		log.Error("Failed to open session", sl.Err(err))
		return true, err
	}

	if m.closed {
		// manager was torn down while the dial was in flight
		m.mu.Unlock()
		closeErr := handle.Close()
		m.mu.Lock()
		if closeErr != nil {
			log.Warn("Failed to close session after shutdown", sl.Err(closeErr))
		}
		return true, ErrManagerClosed
	}

	m.handle = handle
	m.lastErr = ""

	log.Info("Session opened", slog.String("session_id", handle.ID()))
	return true, nil
}

// CloseSession releases the owned session. Closing when nothing is open
// is a no-op.
func (m *Manager) CloseSession() {
	op := "session.Manager.CloseSession"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	m.lastErr = ""
	m.mu.Unlock()

	if handle == nil {
		return
	}

	if err := handle.Close(); err != nil {
		log.Warn("Failed to close session", sl.Err(err))
		return
	}
	log.Info("Session closed", slog.String("session_id", handle.ID()))
}

// Status reads the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.opening:
		return Status{State: StateOpening}
	case m.handle != nil:
		return Status{State: StateOpen, SessionID: m.handle.ID()}
	case m.lastErr != "":
		return Status{State: StateError, LastError: m.lastErr}
	default:
		return Status{State: StateClosed}
	}
}

// Close tears down the manager and any owned session. Further Open
// calls return ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.CloseSession()
}
