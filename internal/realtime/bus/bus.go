package bus

import (
	"context"

	"github.com/yungbote/course-assistant-backend/internal/store"
)

// Bus carries knowledge base change payloads between service instances.
type Bus interface {
	store.Feed
	Ping(ctx context.Context) error
}
