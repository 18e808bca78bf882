package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/course-assistant-backend/internal/http/response"
	"github.com/yungbote/course-assistant-backend/internal/pkg/ctxutil"
)

// AttachSessionContext resolves the :id path parameter into RequestData.
// Requests with a malformed id stop here with 400.
func AttachSessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Param("id"))
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_session_id", fmt.Errorf("invalid session id %q", raw))
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{SessionID: id})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SessionID returns the session resolved by AttachSessionContext.
func SessionID(c *gin.Context) uuid.UUID {
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		return rd.SessionID
	}
	return uuid.Nil
}
