package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/course-assistant-backend/internal/http/handlers"
	httpMW "github.com/yungbote/course-assistant-backend/internal/http/middleware"
	"github.com/yungbote/course-assistant-backend/internal/observability"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string

	HealthHandler   *httpH.HealthHandler
	SessionHandler  *httpH.SessionHandler
	ChatHandler     *httpH.ChatHandler
	DocumentHandler *httpH.DocumentHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")

	// Documents
	if cfg.DocumentHandler != nil {
		api.POST("/documents/extract", cfg.DocumentHandler.Extract)
	}

	if cfg.SessionHandler != nil {
		api.POST("/sessions", cfg.SessionHandler.Open)
	}

	session := api.Group("/sessions/:id")
	session.Use(httpMW.AttachSessionContext())
	{
		if cfg.SessionHandler != nil {
			session.GET("", cfg.SessionHandler.Get)
			session.DELETE("", cfg.SessionHandler.Close)
			session.POST("/reload", cfg.SessionHandler.Reload)

			// Knowledge base
			session.GET("/courses", cfg.SessionHandler.ListCourses)
			session.PUT("/courses", cfg.SessionHandler.SaveCourse)
			session.DELETE("/courses/:courseID", cfg.SessionHandler.DeleteCourse)

			// Selection / editor
			session.GET("/selection", cfg.SessionHandler.Selection)
			session.POST("/selection/toggle", cfg.SessionHandler.Toggle)
			session.PUT("/editing", cfg.SessionHandler.SetEditing)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			session.GET("/stream", cfg.RealtimeHandler.Stream)
		}

		// Chat
		if cfg.ChatHandler != nil {
			session.POST("/chat", cfg.ChatHandler.Send)
		}
	}

	return r
}
