package kbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

var ErrListenerStarted = errors.New("listener already started")

type Subscriber interface {
	Subscribe(ctx context.Context) (store.Subscription, error)
}

// Listener bridges one store subscription into Reconciler.ApplyChangeEvent.
type Listener struct {
	src Subscriber
	rec *Reconciler
	log *logger.Logger

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	sub       store.Subscription
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewListener(src Subscriber, rec *Reconciler, baseLog *logger.Logger) *Listener {
	return &Listener{src: src, rec: rec, log: baseLog.With("component", "Listener")}
}

// Start opens the subscription and begins forwarding events. It may be called once.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrListenerStarted
	}
	l.started = true

	ctx, cancel := context.WithCancel(ctx)
	sub, err := l.src.Subscribe(ctx)
	if err != nil {
		cancel()
		return newError(KindSubscription, err)
	}
	l.cancel = cancel
	l.sub = sub
	l.done = make(chan struct{})
	go l.run(ctx, sub)
	return nil
}

func (l *Listener) run(ctx context.Context, sub store.Subscription) {
	defer close(l.done)
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				if ctx.Err() == nil {
					l.log.Warn("change subscription ended")
				}
				return
			}
			ev, err := DecodeChangeEvent(raw)
			if err != nil {
				l.log.Warn("skipping change payload", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if err := l.rec.ApplyChangeEvent(ev); err != nil {
				l.log.Warn("skipping change event", "kind", ev.Kind, "error", err)
			}
		}
	}
}

// Active reports whether the listener is still forwarding events. It turns
// false once the subscription ends, whether by Close or because the feed
// dropped it.
func (l *Listener) Active() bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Close stops forwarding, closes the subscription and waits for the
// forwarding goroutine. Safe to call more than once, or before Start.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.started = true
		cancel, sub, done := l.cancel, l.sub, l.done
		l.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()
		l.closeErr = sub.Close()
		<-done
	})
	return l.closeErr
}

// DecodeChangeEvent turns a change feed payload into a ChangeEvent.
func DecodeChangeEvent(raw []byte) (knowledge.ChangeEvent, error) {
	var p store.ChangePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return knowledge.ChangeEvent{}, fmt.Errorf("decode change payload: %w", err)
	}
	if p.Table != "" && p.Table != knowledge.TableKnowledgeBases {
		return knowledge.ChangeEvent{}, fmt.Errorf("change for unexpected table %q", p.Table)
	}

	var ev knowledge.ChangeEvent
	switch knowledge.ChangeKind(p.Type) {
	case knowledge.ChangeInsert, knowledge.ChangeUpdate:
		if len(p.Record) == 0 {
			return knowledge.ChangeEvent{}, fmt.Errorf("%s payload without record", p.Type)
		}
		var rec knowledge.CourseRecord
		if err := json.Unmarshal(p.Record, &rec); err != nil {
			return knowledge.ChangeEvent{}, fmt.Errorf("decode record: %w", err)
		}
		if knowledge.ChangeKind(p.Type) == knowledge.ChangeInsert {
			ev = knowledge.Inserted(&rec)
		} else {
			ev = knowledge.Updated(&rec)
		}
	case knowledge.ChangeDelete:
		var old struct {
			ID int64 `json:"id"`
		}
		if len(p.OldRecord) == 0 {
			return knowledge.ChangeEvent{}, fmt.Errorf("DELETE payload without old_record")
		}
		if err := json.Unmarshal(p.OldRecord, &old); err != nil {
			return knowledge.ChangeEvent{}, fmt.Errorf("decode old_record: %w", err)
		}
		ev = knowledge.Deleted(old.ID)
	default:
		return knowledge.ChangeEvent{}, fmt.Errorf("unknown change type %q", p.Type)
	}
	if err := ev.Validate(); err != nil {
		return knowledge.ChangeEvent{}, err
	}
	return ev, nil
}
