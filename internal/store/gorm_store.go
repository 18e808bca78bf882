package store

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/course-assistant-backend/internal/data/repos"
	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

// announceTimeout bounds how long a write waits on slow change subscribers.
const announceTimeout = 5 * time.Second

type gormStore struct {
	repo repos.KnowledgeBaseRepo
	feed Feed
	log  *logger.Logger
}

// NewGormStore backs Store with the knowledge_bases repo. Successful writes are
// announced on feed; Subscribe is served by feed as well.
func NewGormStore(repo repos.KnowledgeBaseRepo, feed Feed, baseLog *logger.Logger) Store {
	return &gormStore{repo: repo, feed: feed, log: baseLog.With("component", "KnowledgeStore")}
}

func (s *gormStore) FetchAll(ctx context.Context) ([]*knowledge.CourseRecord, error) {
	rows, err := s.repo.List(ctx, nil)
	if err != nil {
		return nil, MapError("fetch", err)
	}
	return rows, nil
}

func (s *gormStore) Upsert(ctx context.Context, rec *knowledge.CourseRecord) (*knowledge.CourseRecord, error) {
	if rec == nil || strings.TrimSpace(rec.Course) == "" {
		return nil, NewError(CodeInvalid, "upsert", "course name is required", knowledge.ErrBlankCourse)
	}
	saved, inserted, err := s.repo.UpsertByCourse(ctx, nil, rec)
	if err != nil {
		return nil, MapError("upsert", err)
	}
	if saved == nil || !saved.Persisted() {
		return nil, NewError(CodeNotReturned, "upsert", "no row returned for "+rec.Course, nil)
	}

	kind := knowledge.ChangeUpdate
	if inserted {
		kind = knowledge.ChangeInsert
	}
	if payload, perr := RecordPayload(kind, saved); perr == nil {
		s.announce(ctx, payload)
	}
	return saved, nil
}

func (s *gormStore) Delete(ctx context.Context, id int64) error {
	n, err := s.repo.DeleteByID(ctx, nil, id)
	if err != nil {
		return MapError("delete", err)
	}
	if n > 0 {
		s.announce(ctx, DeletePayload(id))
	}
	return nil
}

func (s *gormStore) Subscribe(ctx context.Context) (Subscription, error) {
	sub, err := s.feed.Subscribe(ctx)
	if err != nil {
		return nil, MapError("subscribe", err)
	}
	return sub, nil
}

// announce never fails the write that triggered it.
func (s *gormStore) announce(ctx context.Context, payload ChangePayload) {
	if s.feed == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
	defer cancel()
	if err := s.feed.Publish(ctx, payload); err != nil {
		s.log.Warn("publish change failed", "type", payload.Type, "error", err)
	}
}
