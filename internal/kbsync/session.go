package kbsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/pkg/ctxutil"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

// Session is one mounted UI: a Reconciler plus the Listener feeding it.
type Session struct {
	ID         uuid.UUID
	Reconciler *Reconciler

	store store.Store
	log   *logger.Logger

	mu       sync.Mutex
	listener *Listener
	lastSeen time.Time
	closed   bool
}

// SessionState is the snapshot pushed to the session's stream.
type SessionState struct {
	SessionID string `json:"session_id"`
	Realtime  bool   `json:"realtime"`
	State
}

// Open builds and loads a session. Load and subscription failures are kept as
// observable state rather than returned: the session stays usable either way.
// The subscription opens before the fetch so that no write falls between them.
func Open(ctx context.Context, st store.Store, baseLog *logger.Logger, cfg Config) *Session {
	ctx = ctxutil.Default(ctx)
	id := uuid.New()
	log := baseLog.With("session_id", id.String())
	rec := NewReconciler(st, log, cfg)
	s := &Session{
		ID:         id,
		Reconciler: rec,
		store:      st,
		log:        log,
		lastSeen:   time.Now(),
	}

	s.listen(ctx)
	_ = rec.Load(ctx)
	return s
}

// listen starts a listener unless a live one exists. The listener outlives
// the request that started it.
func (s *Session) listen(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.listener != nil && s.listener.Active()) {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	l := NewListener(s.store, s.Reconciler, s.log)
	if err := l.Start(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("session running without realtime updates", "error", err)
		return
	}
	s.listener = l
}

// Reload re-subscribes when the previous subscription ended, then reloads
// the cache.
func (s *Session) Reload(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	s.listen(ctx)
	return s.Reconciler.Load(ctx)
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	return SessionState{
		SessionID: s.ID.String(),
		Realtime:  l != nil && l.Active(),
		State:     s.Reconciler.Snapshot(),
	}
}

// Close tears the listener down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	s.mu.Unlock()

	if l == nil {
		return nil
	}
	return l.Close()
}
