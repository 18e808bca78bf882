package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/course-assistant-backend/internal/domain/knowledge"
	"github.com/yungbote/course-assistant-backend/internal/http/middleware"
	"github.com/yungbote/course-assistant-backend/internal/http/response"
	"github.com/yungbote/course-assistant-backend/internal/kbsync"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	sessions services.SessionService
}

func NewSessionHandler(log *logger.Logger, sessions services.SessionService) *SessionHandler {
	return &SessionHandler{log: log.With("handler", "SessionHandler"), sessions: sessions}
}

func (h *SessionHandler) session(c *gin.Context) (*kbsync.Session, bool) {
	sess, err := h.sessions.Get(middleware.SessionID(c))
	if err != nil {
		response.RespondAppError(c, err)
		return nil, false
	}
	return sess, true
}

// POST /api/sessions
func (h *SessionHandler) Open(c *gin.Context) {
	sess, err := h.sessions.Open(c.Request.Context())
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, sess.State())
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.RespondOK(c, sess.State())
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.sessions.Close(middleware.SessionID(c)); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/sessions/:id/reload
func (h *SessionHandler) Reload(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Reload(c.Request.Context()); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, sess.State())
}

// GET /api/sessions/:id/courses
func (h *SessionHandler) ListCourses(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"records": sess.Reconciler.Records()})
}

type saveCourseReq struct {
	ID      int64            `json:"id"`
	Course  string           `json:"course"`
	Content string           `json:"content"`
	Links   string           `json:"links"`
	Image   *knowledge.Image `json:"image"`
}

// PUT /api/sessions/:id/courses
func (h *SessionHandler) SaveCourse(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req saveCourseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rec := &knowledge.CourseRecord{
		ID:      req.ID,
		Course:  req.Course,
		Content: req.Content,
		Links:   req.Links,
	}
	rec.SetImage(req.Image)

	saved, err := sess.Reconciler.SaveCourse(c.Request.Context(), rec)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"record": saved})
}

// DELETE /api/sessions/:id/courses/:courseID
func (h *SessionHandler) DeleteCourse(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("courseID")), 10, 64)
	if err != nil || id <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", fmt.Errorf("invalid course id %q", c.Param("courseID")))
		return
	}
	if err := sess.Reconciler.DeleteCourse(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"id": id})
}

type courseNameReq struct {
	Course string `json:"course"`
}

// POST /api/sessions/:id/selection/toggle
func (h *SessionHandler) Toggle(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req courseNameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Course) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", knowledge.ErrBlankCourse)
		return
	}
	on := sess.Reconciler.Toggle(req.Course)
	response.RespondOK(c, gin.H{
		"course":   strings.TrimSpace(req.Course),
		"selected": on,
		"names":    sess.Reconciler.Selected(),
	})
}

// GET /api/sessions/:id/selection
func (h *SessionHandler) Selection(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{
		"names":   sess.Reconciler.Selected(),
		"records": sess.Reconciler.SelectedRecords(),
	})
}

// PUT /api/sessions/:id/editing
func (h *SessionHandler) SetEditing(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req courseNameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	sess.Reconciler.SetEditing(req.Course)
	response.RespondOK(c, gin.H{"editing": sess.Reconciler.Editing()})
}
