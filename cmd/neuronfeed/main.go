package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/satorinet/neuronfeed/internal/adapter/http"
	cfnats "github.com/satorinet/neuronfeed/internal/adapter/nats"
	"github.com/satorinet/neuronfeed/internal/adapter/natskv"
	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/adapter/postgres"
	"github.com/satorinet/neuronfeed/internal/adapter/ristretto"
	"github.com/satorinet/neuronfeed/internal/adapter/tiered"
	"github.com/satorinet/neuronfeed/internal/adapter/ws"
	"github.com/satorinet/neuronfeed/internal/config"
	"github.com/satorinet/neuronfeed/internal/logger"
	"github.com/satorinet/neuronfeed/internal/middleware"
	"github.com/satorinet/neuronfeed/internal/port/cache"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/resilience"
	"github.com/satorinet/neuronfeed/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := run(flags); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(flags config.CLIFlags) error {
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_stream", cfg.NATS.Stream,
		"heartbeat", cfg.Stream.Heartbeat,
		"status_poll_interval", cfg.Stream.StatusPollInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownTelemetry, err := cfotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	// NATS
	queue, err := cfnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}()

	// Overview cache: ristretto L1, optional NATS KV L2 shared across instances.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("overview cache: %w", err)
	}
	defer l1.Close()

	var l2 cache.Cache
	if cfg.Cache.L2Bucket != "" {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.OverviewTTL)
		if err != nil {
			slog.Warn("overview L2 cache unavailable, using L1 only", "bucket", cfg.Cache.L2Bucket, "error", err)
		} else {
			l2 = natskv.New(kv)
		}
	}
	overviews := tiered.New(l1, l2, cfg.Cache.OverviewTTL)

	// --- Services ---

	breaker := resilience.NewBreaker("catalog", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	engine := service.NewEngineService(queue, postgres.NewStore(pool), breaker, overviews, cfg.Cache.OverviewTTL)
	binder := service.NewBinder(metrics)
	gens := service.NewGenerationRegistry()

	predictions := service.NewPredictionStreamer(gens, engine, binder, cfg.Stream.Heartbeat, metrics)
	working := service.NewQueueProducer("working", messagequeue.SubjectWorking, queue, service.DecodeStatus)
	status := service.NewStatusStreamer(working, cfg.Stream.StatusPollInterval, metrics)
	synapse := service.NewSynapseService(queue, engine, binder, cfg.Stream.Heartbeat, metrics)

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &cfhttp.Handlers{
		Predictions:  predictions,
		Status:       status,
		Synapse:      synapse,
		Engine:       engine,
		Binder:       binder,
		Generations:  gens,
		Queue:        queue,
		WebSocket:    ws.NewHandler(predictions, cfg.Server.CORSOrigin, cfg.Stream.WriteTimeout),
		WriteTimeout: cfg.Stream.WriteTimeout,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)

	cfhttp.MountRoutes(r, handlers, cfhttp.RouteOptions{
		Limiter:        limiter,
		ControlKeyHash: cfg.Control.KeyHash,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Streams live as long as the process: no server-wide write timeout, each
	// frame carries its own deadline. Cancelling gctx ends every stream.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		if err := engine.Run(gctx); err != nil {
			return fmt.Errorf("engine registry: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
