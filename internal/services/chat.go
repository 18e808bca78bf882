package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/pkg/errors"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

type ChatService interface {
	// Send answers text using the session's selected courses as context. AI
	// failures come back as an error-role message, not as an error.
	Send(ctx context.Context, sessionID uuid.UUID, history []gemini.Message, text string) (*gemini.Message, error)
}

type chatService struct {
	log      *logger.Logger
	sessions SessionService
	ai       gemini.Client
}

func NewChatService(baseLog *logger.Logger, sessions SessionService, ai gemini.Client) ChatService {
	return &chatService{
		log:      baseLog.With("service", "ChatService"),
		sessions: sessions,
		ai:       ai,
	}
}

func (cs *chatService) Send(ctx context.Context, sessionID uuid.UUID, history []gemini.Message, text string) (*gemini.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text: %w", errors.ErrInvalidArgument)
	}
	sess, err := cs.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	turns := make([]gemini.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == gemini.RoleError || strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, m)
	}
	turns = append(turns, gemini.Message{Role: gemini.RoleUser, Content: text})

	selected := sess.Reconciler.SelectedRecords()
	parts := gemini.BuildContext(selected)

	answer, err := cs.ai.Complete(ctx, turns, gemini.SystemInstruction, parts)
	if err != nil {
		cs.log.Warn("chat completion failed", "session_id", sessionID.String(), "courses", len(selected), "error", err)
		return &gemini.Message{Role: gemini.RoleError, Content: gemini.UserMessage(err)}, nil
	}
	return &gemini.Message{Role: gemini.RoleModel, Content: answer}, nil
}
