package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/kbsync"
	"github.com/yungbote/course-assistant-backend/internal/pkg/errors"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/realtime"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

const DefaultSessionIdleTTL = 30 * time.Minute

type SessionConfig struct {
	Sync    kbsync.Config
	IdleTTL time.Duration
}

type SessionService interface {
	Open(ctx context.Context) (*kbsync.Session, error)
	// Get returns the session and marks it as seen.
	Get(id uuid.UUID) (*kbsync.Session, error)
	Close(id uuid.UUID) error
	CloseAll()
	// ReapIdle closes sessions not seen since before now minus the idle TTL.
	ReapIdle(now time.Time) int
	// RunReaper calls ReapIdle periodically until ctx ends.
	RunReaper(ctx context.Context) error
	Count() int
}

type sessionService struct {
	store store.Store
	emit  SSEEmitter
	log   *logger.Logger
	cfg   SessionConfig

	mu       sync.RWMutex
	sessions map[uuid.UUID]*kbsync.Session
}

func NewSessionService(st store.Store, emit SSEEmitter, baseLog *logger.Logger, cfg SessionConfig) SessionService {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultSessionIdleTTL
	}
	return &sessionService{
		store:    st,
		emit:     emit,
		log:      baseLog.With("service", "SessionService"),
		cfg:      cfg,
		sessions: map[uuid.UUID]*kbsync.Session{},
	}
}

func (s *sessionService) Open(ctx context.Context) (*kbsync.Session, error) {
	sess := kbsync.Open(ctx, s.store, s.log, s.cfg.Sync)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	sess.Reconciler.OnChange(func() { s.publish(sess) })
	s.publish(sess)
	s.log.Info("session opened", "session_id", sess.ID.String())
	return sess, nil
}

func (s *sessionService) Get(id uuid.UUID) (*kbsync.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	sess.Touch()
	return sess, nil
}

func (s *sessionService) Close(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	return s.teardown(sess, "closed")
}

func (s *sessionService) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = map[uuid.UUID]*kbsync.Session{}
	s.mu.Unlock()
	for _, sess := range all {
		_ = s.teardown(sess, "shutdown")
	}
}

func (s *sessionService) ReapIdle(now time.Time) int {
	cutoff := now.Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var idle []*kbsync.Session
	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		_ = s.teardown(sess, "idle")
	}
	return len(idle)
}

func (s *sessionService) RunReaper(ctx context.Context) error {
	interval := s.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if n := s.ReapIdle(now); n > 0 {
				s.log.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

func (s *sessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *sessionService) teardown(sess *kbsync.Session, reason string) error {
	err := sess.Close()
	if err != nil {
		s.log.Warn("session teardown failed", "session_id", sess.ID.String(), "error", err)
	}
	if s.emit != nil {
		s.emit.Emit(context.Background(), realtime.SSEMessage{
			Channel: realtime.SessionChannel(sess.ID),
			Event:   realtime.SSEEventSessionClosed,
			Data:    map[string]any{"session_id": sess.ID.String(), "reason": reason},
		})
	}
	s.log.Info("session closed", "session_id", sess.ID.String(), "reason", reason)
	return err
}

func (s *sessionService) publish(sess *kbsync.Session) {
	if s.emit == nil {
		return
	}
	s.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.SessionChannel(sess.ID),
		Event:   realtime.SSEEventSessionStateChanged,
		Data:    sess.State(),
	})
}
