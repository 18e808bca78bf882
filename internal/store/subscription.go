package store

import (
	"context"
	"sync"

	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

// Producer sends payloads to out until ctx is cancelled or the source fails.
type Producer func(ctx context.Context, out chan<- []byte) error

type pumpSubscription struct {
	out    chan []byte
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	err       error
}

// Pump runs produce on its own goroutine and exposes what it sends as a
// Subscription. release runs exactly once after produce returns, before
// Messages is closed.
func Pump(parent context.Context, log *logger.Logger, buffer int, produce Producer, release func() error) Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &pumpSubscription{
		out:    make(chan []byte, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.out)
		err := produce(ctx, s.out)
		if err != nil && ctx.Err() == nil && log != nil {
			log.Warn("change feed subscription ended", "error", err)
		}
		if release != nil {
			if rerr := release(); rerr != nil {
				s.err = rerr
			}
		}
	}()
	return s
}

func (s *pumpSubscription) Messages() <-chan []byte { return s.out }

func (s *pumpSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return s.err
}

// Send delivers msg unless ctx ends first.
func Send(ctx context.Context, out chan<- []byte, msg []byte) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- msg:
		return true
	}
}
