package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// Server holds all server dependencies
type Server struct {
	config      *Config
	repo        *repository.Repository
	blobs       storage.BlobStore
	cache       Cache
	engine      *Engine
	tts         *TTSService
	transcriber *TranscriptionService
	feedback    *FeedbackService
	authService *AuthService

	interviewEndpoints *InterviewEndpoints
	aiEndpoints        *AIEndpoints
	audioEndpoints     *AudioEndpoints

	pingRedis func(ctx context.Context) error
}

type ServerDeps struct {
	Repo        *repository.Repository
	Blobs       storage.BlobStore
	Cache       Cache
	Engine      *Engine
	TTS         *TTSService
	Transcriber *TranscriptionService
	Feedback    *FeedbackService
	Auth        *AuthService

	// PingRedis reports cache backend health; nil when running on the
	// in-memory cache.
	PingRedis func(ctx context.Context) error
}

// NewServer creates a new server instance
func NewServer(config *Config, deps ServerDeps) *Server {
	return &Server{
		config:             config,
		repo:               deps.Repo,
		blobs:              deps.Blobs,
		cache:              deps.Cache,
		engine:             deps.Engine,
		tts:                deps.TTS,
		transcriber:        deps.Transcriber,
		feedback:           deps.Feedback,
		authService:        deps.Auth,
		interviewEndpoints: NewInterviewEndpoints(deps.Repo, deps.Engine, config),
		aiEndpoints:        NewAIEndpoints(deps.Engine, deps.TTS, deps.Transcriber, deps.Feedback),
		audioEndpoints:     NewAudioEndpoints(deps.Repo, deps.Blobs, config),
		pingRedis:          deps.PingRedis,
	}
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authService.AuthMiddleware)
			// Chat and TTS streams outlive the default ceiling; they
			// carry their own per-phase timeouts instead.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.config.Server.RequestCeiling()))
				s.interviewEndpoints.RegisterRoutes(r)
				s.audioEndpoints.RegisterRoutes(r)
			})
			s.aiEndpoints.RegisterRoutes(r)
		})
	})

	return r
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() {
	addr := s.config.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		slog.Info("Starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"
	cacheStatus := "in-memory"

	if s.repo != nil {
		dbStatus = "up"
		if err := pingGorm(r.Context(), s.repo.DB()); err != nil {
			dbStatus = "down"
			status = "degraded"
		}
	}
	if s.pingRedis != nil {
		cacheStatus = "up"
		if err := s.pingRedis(r.Context()); err != nil {
			cacheStatus = "down"
			status = "degraded"
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"cache":    cacheStatus,
	})
	slog.Info("Health check", "status", status, "database", dbStatus, "cache", cacheStatus)
}

func pingGorm(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
