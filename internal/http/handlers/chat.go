package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/http/middleware"
	"github.com/yungbote/course-assistant-backend/internal/http/response"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/services"
)

type ChatHandler struct {
	log  *logger.Logger
	chat services.ChatService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat}
}

type chatReq struct {
	History []gemini.Message `json:"history"`
	Message string           `json:"message"`
}

// POST /api/sessions/:id/chat
func (h *ChatHandler) Send(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	msg, err := h.chat.Send(c.Request.Context(), middleware.SessionID(c), req.History, req.Message)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": msg})
}
