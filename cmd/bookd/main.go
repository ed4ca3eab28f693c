package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tenantly/bookd/internal/availability"
	"github.com/tenantly/bookd/internal/booking"
	"github.com/tenantly/bookd/internal/handlers"
	"github.com/tenantly/bookd/internal/metrics"
	"github.com/tenantly/bookd/internal/outbox"
	"github.com/tenantly/bookd/internal/schedule"
	"github.com/tenantly/bookd/internal/storage"
	"github.com/tenantly/bookd/libs/config"
	"github.com/tenantly/bookd/libs/db"
	"github.com/tenantly/bookd/libs/httpx"
	"github.com/tenantly/bookd/libs/kafkax"
	otelx "github.com/tenantly/bookd/libs/otel"
	"github.com/tenantly/bookd/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	logger := runtime.NewLogger("bookd")
	ctx, stop := runtime.SignalContext()
	defer stop()

	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing configuration", "err", err)
		os.Exit(1)
	}
	port, err := config.Port("PORT", "8080")
	if err != nil {
		logger.Error("invalid PORT", "err", err)
		os.Exit(1)
	}
	addr := listenAddr(port)

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv("bookd"))
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	pool, err := db.Open(ctx, databaseURL, db.DefaultOptions())
	if err != nil {
		logger.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	scheduleRepo := storage.NewScheduleRepository(pool)
	directoryRepo := storage.NewDirectoryRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	sink := outbox.NewSink(outboxRepo)
	committer := booking.NewCommitter(
		booking.NewPgStore(bookingRepo, scheduleRepo),
		booking.WithTimeout(time.Duration(config.Int("BOOKING_COMMIT_TIMEOUT_SECONDS", 5))*time.Second),
		booking.WithEventSink(sink),
		booking.WithCommitStatus(config.String("BOOKING_COMMIT_STATUS", "pending")),
	)

	resolver := schedule.NewResolver(scheduleRepo)
	orchestrator := availability.NewOrchestrator(resolver, bookingRepo, directoryRepo)

	m := metrics.New()
	bookingHandler := handlers.NewBookingHandler(
		orchestrator, committer, directoryRepo, bookingRepo, sink, logger, m)
	adminHandler := handlers.NewAdminHandler(scheduleRepo, directoryRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "postgres", Check: db.ReadyCheck(pool)},
	}

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers),
		})
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   kafkaBrokers,
			PollEvery: time.Duration(config.Int("OUTBOX_POLL_SECONDS", 2)) * time.Second,
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 100),
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS unset, outbox events will accumulate unpublished")
	}

	rateLimitMax := config.Int("RATE_LIMIT_REQUESTS", 120)
	rateLimitWindow := config.DurationMinutes("RATE_LIMIT_WINDOW_MINUTES", time.Minute)

	var rateLimit httpx.Middleware
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimitMax, rateLimitWindow, "bookd:rl")
		rateLimit = limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name: "redis", Check: httpx.RedisReadyCheck(rdb),
		})
	} else {
		rateLimit = httpx.NewRateLimiter(rateLimitMax, rateLimitWindow).Middleware()
	}

	mux := runtime.NewBaseMux(readyChecks...)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/slots/check", bookingHandler.Check)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/admin/businesses", adminHandler.CreateBusiness)
	mux.HandleFunc("/api/v1/admin/services", adminHandler.CreateService)
	mux.HandleFunc("/api/v1/admin/employees", adminHandler.CreateEmployee)
	mux.HandleFunc("/api/v1/admin/employees/assign", adminHandler.AssignService)
	mux.HandleFunc("/api/v1/admin/working-hours", adminHandler.WorkingHours)
	mux.HandleFunc("/api/v1/admin/overrides", adminHandler.Overrides)

	corsOrigins := strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ",")
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(corsOrigins),
		rateLimit,
	)
	handler = otelhttp.NewHandler(handler, "bookd.http")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

// listenAddr turns the bare port from config.Port into the host:port form
// net.Listen expects.
func listenAddr(port string) string {
	return ":" + port
}
