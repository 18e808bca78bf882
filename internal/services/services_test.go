package services

import (
	"context"
	"sync"
	"testing"

	"github.com/yungbote/course-assistant-backend/internal/data/repos"
	"github.com/yungbote/course-assistant-backend/internal/data/repos/testutil"
	"github.com/yungbote/course-assistant-backend/internal/realtime"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	e.msgs = append(e.msgs, msg)
	e.mu.Unlock()
}

func (e *recordingEmitter) events(channel string) []realtime.SSEEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []realtime.SSEEvent
	for _, m := range e.msgs {
		if m.Channel == channel {
			out = append(out, m.Event)
		}
	}
	return out
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	log := testutil.Logger(t)
	feed := store.NewLocalFeed(log)
	t.Cleanup(func() { _ = feed.Close() })
	return store.NewGormStore(repos.NewKnowledgeBaseRepo(testutil.DB(t), log), feed, log)
}
