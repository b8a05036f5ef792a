package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/infrastructure"
)

// Store keeps live sessions in memory
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	opts      Options
	telemetry *infrastructure.Telemetry
	logger    *slog.Logger
}

// NewStore creates an empty store whose sessions share opts
func NewStore(opts Options, telemetry *infrastructure.Telemetry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if telemetry == nil {
		telemetry = infrastructure.NewNoopTelemetry()
	}
	return &Store{
		sessions:  make(map[string]*Session),
		opts:      opts,
		telemetry: telemetry,
		logger:    logger.With(slog.String("component", "session_store")),
	}
}

// Create opens a session under a fresh ID
func (s *Store) Create(ctx context.Context) *Session {
	sess := New(uuid.NewString(), s.opts, s.telemetry, s.logger)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.telemetry.Metrics.SessionOpened(ctx)
	s.logger.InfoContext(ctx, "session created", slog.String("session_id", sess.ID))
	return sess
}

// Get returns a session by ID
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("session " + id)
	}
	return sess, nil
}

// Delete removes a session. A session with an operation in flight cannot be
// deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return apperrors.NewNotFoundError("session " + id)
	}
	if sess.Busy() {
		return apperrors.NewBusyError(id)
	}
	delete(s.sessions, id)

	s.telemetry.Metrics.SessionClosed(ctx)
	s.logger.InfoContext(ctx, "session deleted", slog.String("session_id", id))
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
