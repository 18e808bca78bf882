package kbsync

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

// memStore is an in-memory Store whose writes are announced on a LocalFeed.
type memStore struct {
	feed *store.LocalFeed

	mu        sync.Mutex
	rows      map[int64]*knowledge.CourseRecord
	nextID    int64
	fetchErr  error
	upsertErr error
	deleteErr error
	subErr    error
	// upsertGate, when set, blocks Upsert until it is closed.
	upsertGate chan struct{}
	upserts    int
}

func newMemStore(rows ...*knowledge.CourseRecord) *memStore {
	m := &memStore{feed: store.NewLocalFeed(logger.Nop()), rows: map[int64]*knowledge.CourseRecord{}}
	for _, r := range rows {
		m.rows[r.ID] = r.Clone()
		if r.ID > m.nextID {
			m.nextID = r.ID
		}
	}
	return m
}

func (m *memStore) FetchAll(ctx context.Context) ([]*knowledge.CourseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]*knowledge.CourseRecord, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Upsert(ctx context.Context, rec *knowledge.CourseRecord) (*knowledge.CourseRecord, error) {
	m.mu.Lock()
	gate := m.upsertGate
	m.upserts++
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	if m.upsertErr != nil {
		err := m.upsertErr
		m.mu.Unlock()
		return nil, err
	}
	row := rec.Clone()
	kind := knowledge.ChangeInsert
	row.ID = 0
	for id, existing := range m.rows {
		if existing.Course == strings.TrimSpace(row.Course) {
			row.ID = id
			kind = knowledge.ChangeUpdate
		}
	}
	if row.ID == 0 {
		m.nextID++
		row.ID = m.nextID
	}
	m.rows[row.ID] = row.Clone()
	m.mu.Unlock()

	if p, err := store.RecordPayload(kind, row); err == nil {
		_ = m.feed.Publish(ctx, p)
	}
	return row, nil
}

func (m *memStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	if m.deleteErr != nil {
		err := m.deleteErr
		m.mu.Unlock()
		return err
	}
	_, ok := m.rows[id]
	delete(m.rows, id)
	m.mu.Unlock()

	if ok {
		_ = m.feed.Publish(ctx, store.DeletePayload(id))
	}
	return nil
}

func (m *memStore) Subscribe(ctx context.Context) (store.Subscription, error) {
	m.mu.Lock()
	err := m.subErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.feed.Subscribe(ctx)
}
