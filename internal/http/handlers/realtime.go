package handlers

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/http/middleware"
	"github.com/yungbote/course-assistant-backend/internal/http/response"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/realtime"
	"github.com/yungbote/course-assistant-backend/internal/services"
)

type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	sessions services.SessionService

	mu      sync.Mutex
	clients map[uuid.UUID]*realtime.SSEClient // one stream per session
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, sessions services.SessionService) *RealtimeHandler {
	return &RealtimeHandler{
		log:      log.With("handler", "RealtimeHandler"),
		hub:      hub,
		sessions: sessions,
		clients:  make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sessions/:id/stream
func (h *RealtimeHandler) Stream(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}

	h.mu.Lock()
	// a reconnect replaces the previous stream
	if existing, ok := h.clients[sessionID]; ok {
		h.hub.CloseClient(existing)
	}
	client := h.hub.NewSSEClient(sessionID)
	client.Logger = h.log.With("sse_client_id", client.ID.String(), "session_id", sessionID.String())
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, realtime.SessionChannel(sessionID))
	// the first frame carries the current state so the UI never waits for a change
	h.hub.Send(client, realtime.SSEMessage{
		Channel: realtime.SessionChannel(sessionID),
		Event:   realtime.SSEEventSessionStateChanged,
		Data:    sess.State(),
	})

	h.log.Info("SSE stream open", "session_id", sessionID.String())
	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
}
