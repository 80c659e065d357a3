// Entry point for REST API
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"attendance.gateway/internal/api"
	"attendance.gateway/internal/cache"
	"attendance.gateway/internal/config"
	"attendance.gateway/internal/core"
	"attendance.gateway/internal/events"
	"attendance.gateway/internal/journal"
	"attendance.gateway/internal/upstream"
	"attendance.gateway/internal/worker"
	"attendance.gateway/internal/worker/invalidation"
	"attendance.gateway/pkg/aws"
	"attendance.gateway/pkg/database"
	"attendance.gateway/pkg/logger"
	"attendance.gateway/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	// Configure structured logging
	logger.Setup("attendance-api", cfg.IsLocalDev)

	// Configure OpenTelemetry Tracing
	shutdownTracer, err := telemetry.InitTracer("attendance-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	// DB connection for the mutation journal
	db, err := database.NewInstrumentedConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	// AWS SDK Config
	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	// Initialize dependencies
	sqsClient := sqs.NewFromConfig(awsCfg)
	journalRepo := journal.NewPostgresRepository(db)
	hrClient := upstream.NewHTTPClient(cfg.HRAPIBaseURL, cfg.HRAPIMaxRetries)
	store := cache.New(cache.Options{
		StaleAfter: cfg.CacheStaleAfter,
		EvictAfter: cfg.CacheEvictAfter,
	})
	producer := events.NewSQSProducer(sqsClient, cfg.InvalidationQueueURL, cfg.NotifyQueueURL)
	service := core.NewAttendanceService(store, hrClient, journalRepo, producer)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Other gateway replicas publish invalidations for the writes they apply;
	// this consumer keeps the local cache in step with them.
	invalidationWorker := worker.NewWorker(sqsClient, cfg.InvalidationQueueURL, invalidation.NewProcessor(service))
	go invalidationWorker.Start(rootCtx)

	// Periodically drop entries nobody has read for a while.
	go func() {
		ticker := time.NewTicker(cfg.CacheEvictAfter / 2)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if evicted := store.Sweep(); evicted > 0 {
					log.Debug().Int("evicted", evicted).Msg("cache sweep")
				}
			}
		}
	}()

	// Setup router and server
	router := api.NewRouter(service)

	// Middleware to inject logger with trace ID
	loggerMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.EnrichContextWithLogger(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	// Wrap the router with OpenTelemetry middleware to create spans for each request
	handler := otelhttp.NewHandler(loggerMiddleware(router), "api")

	serverAddr := ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: handler,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Attendance gateway starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	<-rootCtx.Done()
	log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
