package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wavehub/instance-server-go/internal/config"
	"github.com/wavehub/instance-server-go/internal/database"
	"github.com/wavehub/instance-server-go/internal/dispatch"
	"github.com/wavehub/instance-server-go/internal/handler"
	"github.com/wavehub/instance-server-go/internal/health"
	"github.com/wavehub/instance-server-go/internal/jobs"
	"github.com/wavehub/instance-server-go/internal/middleware"
	"github.com/wavehub/instance-server-go/internal/redis"
	"github.com/wavehub/instance-server-go/internal/repository"
	"github.com/wavehub/instance-server-go/internal/service"
	"github.com/wavehub/instance-server-go/internal/session"
	"github.com/wavehub/instance-server-go/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	instanceRepo := repository.NewInstanceRepository(db.DB)
	messageRepo := repository.NewOutgoingMessageRepository(db.DB)

	registry := session.NewRegistry(transport.NewWhatsmeowFactory(cfg.SessionStoreDir))

	publisher := session.NewPublisher(instanceRepo, config.StatusPublishTimeout)
	supervisor := session.NewSupervisor(registry, cfg.ReconnectDelay())
	registry.Subscribe(publisher)
	registry.Subscribe(supervisor)
	defer supervisor.Close()
	defer registry.Close()

	dispatcher := dispatch.NewDispatcher(
		messageRepo, registry, dispatch.AddressResolver{}, redisClient,
		cfg.DispatchPollInterval(), cfg.PendingAge(), cfg.DispatchConcurrency,
	)
	dispatcher.Start()
	defer dispatcher.Stop()

	messageService := service.NewMessageService(messageRepo, dispatcher, redisClient)

	reporter := health.NewReporter(registry)

	resurrectInstances(instanceRepo, registry)

	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(cfg.APIKey)

	instanceHandler := handler.NewInstanceHandler(registry)
	messageHandler := handler.NewMessageHandler(messageService)
	healthHandler := handler.NewHealthHandler(reporter)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", healthHandler.Report)
	r.Get("/status", healthHandler.Report)

	r.Route("/instances", func(r chi.Router) {
		r.Use(apiKeyMiddleware.Handler)
		r.Mount("/", instanceHandler.Routes())
	})

	r.Group(func(r chi.Router) {
		r.Use(apiKeyMiddleware.Handler)
		r.Post("/send-message", messageHandler.Send)
		r.Get("/messages/{id}", messageHandler.Get)
	})

	cleanupJob := jobs.NewCleanupJob(
		messageRepo, instanceRepo, registry,
		config.CleanupJobInterval, cfg.MessageRetention(),
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// resurrectInstances recreates sessions for every instance row left in the
// durable mirror by a previous run, so paired devices reconnect after a
// restart without operator intervention.
func resurrectInstances(instanceRepo repository.InstanceRepository, registry *session.Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()

	rows, err := instanceRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list persisted instances")
		return
	}

	for _, row := range rows {
		if _, err := registry.Create(row.ID, row.Name); err != nil {
			log.Warn().Err(err).Str("instanceId", row.ID).Msg("skipping persisted instance")
			continue
		}
		if err := registry.StartSession(row.ID); err != nil {
			log.Error().Err(err).Str("instanceId", row.ID).Msg("failed to start persisted instance")
			registry.Remove(row.ID)
		}
	}

	if len(rows) > 0 {
		log.Info().Int("count", len(rows)).Msg("resurrected persisted instances")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
