package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-exp-cases/internal/client"
	"github.com/pesio-ai/be-exp-cases/internal/config"
	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/handler"
	"github.com/pesio-ai/be-exp-cases/internal/logger"
	"github.com/pesio-ai/be-exp-cases/internal/middleware"
	"github.com/pesio-ai/be-exp-cases/internal/repository"
	"github.com/pesio-ai/be-exp-cases/internal/service"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Expropriation Cases Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the stage catalog (read-only for the lifetime of the process)
	registry, err := stage.LoadCatalog(cfg.Stages.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Stages.CatalogPath).Msg("Failed to load stage catalog")
	}
	log.Info().
		Int("main_stages", len(registry.OrderedMainStages())).
		Msg("Stage catalog loaded")

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories and the transactional store
	caseRepo := repository.NewCaseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)
	progressionRepo := repository.NewProgressionRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	userRepo := repository.NewUserRepository(db)
	store := repository.NewTransitionStore(db, caseRepo, assignmentRepo, checklistRepo, progressionRepo, historyRepo, userRepo)

	// Optional NATS connection for notification fan-out
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer natsConn.Drain()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set; notification publishing disabled")
	}
	notifier := client.NewNotificationPublisher(natsConn, log.Logger)

	// Initialize services
	transitionService := service.NewTransitionService(registry, store, notifier, log)
	caseService := service.NewCaseService(registry, store, notifier, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(caseService, transitionService, registry, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Case routes
	mux.HandleFunc("/api/v1/cases", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListCases(w, r)
		case http.MethodPost:
			httpHandler.CreateCase(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/cases/get", httpHandler.GetCase)
	mux.HandleFunc("/api/v1/cases/delete", httpHandler.DeleteCase)
	mux.HandleFunc("/api/v1/cases/transition", httpHandler.RequestTransition)
	mux.HandleFunc("/api/v1/cases/progressions", httpHandler.ListProgressions)
	mux.HandleFunc("/api/v1/cases/assignments", httpHandler.ListAssignments)
	mux.HandleFunc("/api/v1/cases/history", httpHandler.ListHistory)
	mux.HandleFunc("/api/v1/cases/checklist", httpHandler.ChecklistStatus)
	mux.HandleFunc("/api/v1/cases/checklist/mark", httpHandler.MarkChecklistItem)
	mux.HandleFunc("/api/v1/stages", httpHandler.ListStages)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
