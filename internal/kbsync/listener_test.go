package kbsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListenerForwardsEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := newMemStore()
	defer st.feed.Close()
	r := newTestReconciler(t, st)
	l := NewListener(st, r, logger.Nop())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx := context.Background()
	saved, err := st.Upsert(ctx, &knowledge.CourseRecord{Course: "Arte", Content: "a"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	eventually(t, func() bool { return len(r.Records()) == 1 })

	_ = st.feed.Publish(ctx, store.ChangePayload{Table: knowledge.TableKnowledgeBases, Type: "TRUNCATE"})
	if err := st.Delete(ctx, saved.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	eventually(t, func() bool { return len(r.Records()) == 0 })

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// events after teardown are dropped
	if _, err := st.Upsert(ctx, &knowledge.CourseRecord{Course: "Tarde"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(r.Records()) != 0 {
		t.Fatalf("closed listener applied an event")
	}
	if err := l.Start(ctx); !errors.Is(err, ErrListenerStarted) {
		t.Fatalf("restart must fail, got %v", err)
	}
}

func TestListenerSubscriptionError(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := newMemStore()
	defer st.feed.Close()
	st.subErr = errors.New("realtime disabled")
	r := newTestReconciler(t, st)
	l := NewListener(st, r, logger.Nop())

	err := l.Start(context.Background())
	if !IsKind(err, KindSubscription) {
		t.Fatalf("want SubscriptionError, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close after failed start: %v", err)
	}
}

func TestListenerExitsWhenFeedCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := newMemStore()
	r := newTestReconciler(t, st)
	l := NewListener(st, r, logger.Nop())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !l.Active() {
		t.Fatalf("started listener should be active")
	}
	_ = st.feed.Close()
	eventually(t, func() bool { return !l.Active() })
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDecodeChangeEvent(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    knowledge.ChangeEvent
		wantErr bool
	}{
		{
			name: "insert",
			raw:  `{"table":"knowledge_bases","type":"INSERT","record":{"id":4,"course":"Arte","content":"c","links":""}}`,
			want: knowledge.Inserted(&knowledge.CourseRecord{ID: 4, Course: "Arte", Content: "c"}),
		},
		{
			name: "update",
			raw:  `{"table":"knowledge_bases","type":"UPDATE","record":{"id":4,"course":"Arte","content":"d"}}`,
			want: knowledge.Updated(&knowledge.CourseRecord{ID: 4, Course: "Arte", Content: "d"}),
		},
		{
			name: "delete",
			raw:  `{"table":"knowledge_bases","type":"DELETE","old_record":{"id":4}}`,
			want: knowledge.Deleted(4),
		},
		{name: "other table", raw: `{"table":"users","type":"DELETE","old_record":{"id":4}}`, wantErr: true},
		{name: "unknown type", raw: `{"type":"TRUNCATE"}`, wantErr: true},
		{name: "insert without record", raw: `{"type":"INSERT"}`, wantErr: true},
		{name: "insert without id", raw: `{"type":"INSERT","record":{"course":"Arte"}}`, wantErr: true},
		{name: "delete without id", raw: `{"type":"DELETE","old_record":{}}`, wantErr: true},
		{name: "garbage", raw: `not json`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeChangeEvent([]byte(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeChangeEvent: %v", err)
			}
			if got.Kind != tc.want.Kind || got.TargetID() != tc.want.TargetID() {
				t.Fatalf("want %+v, got %+v", tc.want, got)
			}
			if tc.want.Record != nil && got.Record.Content != tc.want.Record.Content {
				t.Fatalf("record content: want %q got %q", tc.want.Record.Content, got.Record.Content)
			}
		})
	}
}
