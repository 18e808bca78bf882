package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/clients/gemini/geminitest"
	"github.com/yungbote/course-assistant-backend/internal/data/repos/testutil"
	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	apperrors "github.com/yungbote/course-assistant-backend/internal/pkg/errors"
)

func TestChatUsesSelectedCourses(t *testing.T) {
	sessions := NewSessionService(newTestStore(t), nil, testutil.Logger(t), SessionConfig{})
	defer sessions.CloseAll()
	sess, _ := sessions.Open(context.Background())
	ctx := context.Background()
	for _, c := range []string{"Arte", "Biología"} {
		if _, err := sess.Reconciler.SaveCourse(ctx, &knowledge.CourseRecord{Course: c, Content: "contenido de " + c}); err != nil {
			t.Fatalf("SaveCourse: %v", err)
		}
	}
	sess.Reconciler.Toggle("Biología")

	ai := geminitest.NewMock().EnqueueComplete(geminitest.Result{Text: "La célula es..."})
	chat := NewChatService(testutil.Logger(t), sessions, ai)

	history := []gemini.Message{
		{Role: gemini.RoleUser, Content: "hola"},
		{Role: gemini.RoleError, Content: "Error: algo"},
		{Role: gemini.RoleModel, Content: "¡hola!"},
	}
	reply, err := chat.Send(ctx, sess.ID, history, "  ¿qué es la célula?  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Role != gemini.RoleModel || reply.Content != "La célula es..." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	call := ai.CompleteCalls[0]
	if len(call.History) != 3 || call.History[2].Content != "¿qué es la célula?" {
		t.Fatalf("history must drop error turns and end with the new message: %+v", call.History)
	}
	kb := call.ContextParts[0].Text
	if !strings.Contains(kb, "Biología") || strings.Contains(kb, "## Course: Arte") {
		t.Fatalf("context must hold only selected courses:\n%s", kb)
	}
	if call.SystemInstruction != gemini.SystemInstruction {
		t.Fatalf("system instruction not passed")
	}
}

func TestChatTurnsAIFailuresIntoMessages(t *testing.T) {
	sessions := NewSessionService(newTestStore(t), nil, testutil.Logger(t), SessionConfig{})
	defer sessions.CloseAll()
	sess, _ := sessions.Open(context.Background())

	ai := geminitest.NewMock().EnqueueComplete(geminitest.Result{Error: gemini.NewError(gemini.KindAuth, "complete", "API key not valid", nil)})
	chat := NewChatService(testutil.Logger(t), sessions, ai)

	reply, err := chat.Send(context.Background(), sess.ID, nil, "hola")
	if err != nil {
		t.Fatalf("AI failures must not escape: %v", err)
	}
	if reply.Role != gemini.RoleError || !strings.Contains(reply.Content, "GEMINI_API_KEY") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if !strings.Contains(ai.CompleteCalls[0].ContextParts[0].Text, "knowledge base is empty") {
		t.Fatalf("empty knowledge base should be explicit in context")
	}
}

func TestChatRejectsBadInput(t *testing.T) {
	sessions := NewSessionService(newTestStore(t), nil, testutil.Logger(t), SessionConfig{})
	defer sessions.CloseAll()
	chat := NewChatService(testutil.Logger(t), sessions, geminitest.NewMock())

	if _, err := chat.Send(context.Background(), uuid.New(), nil, "   "); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("blank text: %v", err)
	}
	if _, err := chat.Send(context.Background(), uuid.New(), nil, "hola"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown session: %v", err)
	}
}
