package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

type SSEClient struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Channels  map[string]bool
	Outbound  chan SSEMessage
	done      chan struct{}
	closeOnce sync.Once
	Logger    *logger.Logger
}

// SessionChannel is the stream channel for one knowledge-base session.
func SessionChannel(sessionID uuid.UUID) string { return "session:" + sessionID.String() }
