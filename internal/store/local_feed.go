package store

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

var (
	ErrFeedClosed = errors.New("change feed closed")
	// ErrChangesDropped ends a subscription that could not keep up; its owner
	// has missed at least one change and must reload.
	ErrChangesDropped = errors.New("subscriber fell behind, changes dropped")
)

const localInboxSize = 64

type localSub struct {
	inbox chan []byte
	// gone is closed when the subscription ends.
	gone chan struct{}
	// dropped is closed when the feed gives up on delivering to this subscriber.
	dropped  chan struct{}
	dropOnce sync.Once
}

func (s *localSub) drop() { s.dropOnce.Do(func() { close(s.dropped) }) }

// LocalFeed fans payloads out to subscribers inside this process.
type LocalFeed struct {
	log  *logger.Logger
	done chan struct{}

	mu     sync.Mutex
	subs   map[*localSub]struct{}
	closed bool
}

func NewLocalFeed(log *logger.Logger) *LocalFeed {
	return &LocalFeed{
		log:  log.With("feed", "local"),
		done: make(chan struct{}),
		subs: map[*localSub]struct{}{},
	}
}

func (f *LocalFeed) Subscribe(ctx context.Context) (Subscription, error) {
	sub := &localSub{
		inbox:   make(chan []byte, localInboxSize),
		gone:    make(chan struct{}),
		dropped: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	produce := func(ctx context.Context, out chan<- []byte) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-f.done:
				return ErrFeedClosed
			case <-sub.dropped:
				return ErrChangesDropped
			case msg := <-sub.inbox:
				if !Send(ctx, out, msg) {
					return nil
				}
			}
		}
	}
	release := func() error {
		f.mu.Lock()
		if _, ok := f.subs[sub]; ok {
			delete(f.subs, sub)
			close(sub.gone)
		}
		f.mu.Unlock()
		return nil
	}
	return Pump(ctx, f.log, localInboxSize, produce, release), nil
}

// Publish delivers payload to every subscriber, waiting on full inboxes until
// ctx ends. A subscriber still full at that point is cut off with
// ErrChangesDropped rather than left silently behind.
func (f *LocalFeed) Publish(ctx context.Context, payload ChangePayload) error {
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	subs := make([]*localSub, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	var dropped int
	for _, sub := range subs {
		select {
		case sub.inbox <- raw:
			continue
		default:
		}
		select {
		case sub.inbox <- raw:
		case <-sub.gone:
		case <-f.done:
			return ErrFeedClosed
		case <-ctx.Done():
			sub.drop()
			dropped++
		}
	}
	if dropped > 0 {
		f.log.Warn("subscribers fell behind and were disconnected", "type", payload.Type, "count", dropped)
		return ErrChangesDropped
	}
	return nil
}

func (f *LocalFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)
	return nil
}
