package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/data/db"
	"github.com/yungbote/course-assistant-backend/internal/data/repos"
	httpserver "github.com/yungbote/course-assistant-backend/internal/http"
	httpH "github.com/yungbote/course-assistant-backend/internal/http/handlers"
	"github.com/yungbote/course-assistant-backend/internal/observability"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/realtime"
	"github.com/yungbote/course-assistant-backend/internal/realtime/bus"
	"github.com/yungbote/course-assistant-backend/internal/services"
	"github.com/yungbote/course-assistant-backend/internal/store"
)

type Services struct {
	Sessions  services.SessionService
	Chat      services.ChatService
	Documents services.DocumentService
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Store    store.Store
	Feed     store.Feed
	SSEHub   *realtime.SSEHub
	Services Services
	Server   *httpserver.Server
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

// Deps lets callers supply collaborators instead of the ones built from Config.
type Deps struct {
	DB *gorm.DB
	AI gemini.Client
}

func New(ctx context.Context, log *logger.Logger, cfg Config, deps Deps) (*App, error) {
	a := &App{Log: log, Cfg: cfg}

	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	if cfg.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}

	theDB := deps.DB
	if theDB == nil {
		log.Info("Connecting to knowledge store...")
		svc, err := db.NewService(log, db.Config{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN})
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		if err := db.AutoMigrateAll(svc.DB()); err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("store automigrate: %w", err)
		}
		a.dbService = svc
		theDB = svc.DB()
	}
	a.DB = theDB
	repo := repos.NewKnowledgeBaseRepo(theDB, log)

	feed, checks, err := wireFeed(log, cfg, repo)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Feed = feed
	a.Store = instrumentStore(store.NewGormStore(repo, feed, log), a.Metrics)

	ai := deps.AI
	if ai == nil {
		ai, err = gemini.NewClient(ctx, log, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			Timeout:    cfg.GeminiTimeout,
			MaxRetries: cfg.GeminiMaxRetries,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init gemini: %w", err)
		}
	}
	ai = instrumentAI(ai, a.Metrics)

	log.Info("Wiring services...")
	a.SSEHub = realtime.NewSSEHub(log)
	sessions := services.NewSessionService(a.Store, &services.HubEmitter{Hub: a.SSEHub}, log, services.SessionConfig{
		Sync:    cfg.Sync,
		IdleTTL: cfg.SessionIdleTTL,
	})
	a.Services = Services{
		Sessions:  sessions,
		Chat:      services.NewChatService(log, sessions, ai),
		Documents: services.NewDocumentService(log, ai, cfg.DocumentMaxBytes),
	}
	a.Metrics.TrackSessions(sessions.Count)

	checks["store"] = func(ctx context.Context) error {
		sqlDB, err := theDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	log.Info("Wiring handlers...")
	a.Server = httpserver.NewServer(httpserver.RouterConfig{
		Log:             log,
		Metrics:         a.Metrics,
		ServiceName:     tracingName(cfg),
		AllowedOrigins:  cfg.AllowedOrigins,
		HealthHandler:   httpH.NewHealthHandler(log, checks),
		SessionHandler:  httpH.NewSessionHandler(log, sessions),
		ChatHandler:     httpH.NewChatHandler(log, a.Services.Chat),
		DocumentHandler: httpH.NewDocumentHandler(log, a.Services.Documents, cfg.DocumentMaxBytes),
		RealtimeHandler: httpH.NewRealtimeHandler(log, a.SSEHub, sessions),
	})
	return a, nil
}

func wireFeed(log *logger.Logger, cfg Config, repo repos.KnowledgeBaseRepo) (store.Feed, map[string]httpH.Pinger, error) {
	checks := map[string]httpH.Pinger{}
	switch cfg.RealtimeBackend {
	case RealtimePostgres:
		log.Info("Realtime changes via postgres LISTEN/NOTIFY", "channel", db.ChangeChannel)
		return store.NewPGFeed(cfg.StoreDSN, repo, log), checks, nil
	case RealtimeRedis:
		b, err := bus.NewRedisBus(log, bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			return nil, nil, fmt.Errorf("init redis bus: %w", err)
		}
		checks["redis"] = b.Ping
		log.Info("Realtime changes via redis pub/sub", "channel", cfg.RedisChannel)
		return b, checks, nil
	default:
		log.Info("Realtime changes via in-process feed")
		return store.NewLocalFeed(log), checks, nil
	}
}

func tracingName(cfg Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return cfg.Otel.ServiceName
}

// Run serves HTTP and the background loops until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, ctx := errgroup.WithContext(ctx)

	addr := net.JoinHostPort("", a.Cfg.Port)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", addr)
		return a.Server.Serve(ctx, addr)
	})
	g.Go(func() error {
		return a.Services.Sessions.RunReaper(ctx)
	})
	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartDBCollector(ctx, a.Log, a.DB, 0)
	}

	err := g.Wait()
	a.Services.Sessions.CloseAll()
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Sessions != nil {
		a.Services.Sessions.CloseAll()
	}
	if a.Feed != nil {
		if err := a.Feed.Close(); err != nil {
			a.Log.Warn("change feed close failed", "error", err)
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("store close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

// Migrate creates the knowledge_bases table and, on postgres, its change trigger.
func Migrate(log *logger.Logger, cfg Config) error {
	svc, err := db.NewService(log, db.Config{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer svc.Close()
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		return fmt.Errorf("store automigrate: %w", err)
	}
	log.Info("Migrations applied", "driver", svc.Driver())
	return nil
}
