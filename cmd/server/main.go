package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neetpg/battle-backend/internal/broadcast"
	"github.com/neetpg/battle-backend/internal/clock"
	"github.com/neetpg/battle-backend/internal/config"
	"github.com/neetpg/battle-backend/internal/database"
	"github.com/neetpg/battle-backend/internal/handler"
	"github.com/neetpg/battle-backend/internal/logger"
	"github.com/neetpg/battle-backend/internal/metrics"
	"github.com/neetpg/battle-backend/internal/middleware"
	"github.com/neetpg/battle-backend/internal/repository"
	"github.com/neetpg/battle-backend/internal/router"
	"github.com/neetpg/battle-backend/internal/service"
	"github.com/neetpg/battle-backend/internal/validator"
	"github.com/neetpg/battle-backend/internal/worker"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	httpShutdownTimeout   = 5 * time.Second
	battleShutdownTimeout = 10 * time.Second
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.Setup("info", "pretty")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("timezone", cfg.Schedule.Location().String()).
		Msg("Starting Battle Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	battleRepo := repository.NewBattleRepository(pool)
	scheduleRepo := repository.NewScheduleRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	m := metrics.New()
	clk := clock.NewReal()
	registry := service.NewBattleRegistry()
	broadcaster := broadcast.NewRedisBroadcaster(rdb, cfg.Battle.SnapshotTTL())

	orchestrator := service.NewBattleOrchestrator(
		battleRepo, scheduleRepo, broadcaster, registry, clk,
		service.BattleTiming{
			Question:    cfg.Battle.QuestionDwell(),
			Stats:       cfg.Battle.StatsDwell(),
			Leaderboard: cfg.Battle.LeaderboardDwell(),
			Countdown:   cfg.Battle.Countdown,
		},
		service.CallPolicy{
			Timeout:     cfg.Battle.CallTimeout(),
			ReadRetries: cfg.Battle.ReadRetries,
			Backoff:     cfg.Battle.RetryBackoff(),
		},
		m, log,
	)
	launcher := service.NewBattleLauncher(
		orchestrator, participantRepo, scheduleRepo, broadcaster, registry, clk,
		service.LauncherConfig{
			GracePeriod: cfg.Battle.GracePeriod(),
			GracePoll:   cfg.Battle.GracePoll(),
			CallTimeout: cfg.Battle.CallTimeout(),
		},
		m, log,
	)
	authService := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry())
	queryService := service.NewBattleQueryService(battleRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Battle: handler.NewBattleHandler(launcher, queryService, log),
		WS:     handler.NewWSHandler(broadcaster, log, cfg.AllowedOrigins()),
		System: handler.NewSystemHandler(map[string]handler.Pinger{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, log),
	}

	startLimiter := middleware.NewRateLimiter(cfg.StartRateLimitPerMinute, time.Minute)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, router.Options{
		GinMode:        cfg.GinMode,
		AllowedOrigins: cfg.AllowedOrigins(),
		Auth:           authService,
		StartLimiter:   startLimiter,
		Metrics:        m,
		MetricsGauges:  func() { m.SetRunning(registry.Len()) },
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Run ───────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		startLimiter.RunCleanup(gctx)
		return nil
	})

	if cfg.Schedule.AutostartEnabled {
		autostart := worker.NewAutostartWorker(scheduleRepo, launcher, clk, cfg.Schedule.Location(), m, log)
		g.Go(func() error {
			autostart.Start(gctx)
			return nil
		})
	}

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		shutdown(srv, launcher, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops the HTTP server first so no new battle can be started, then
// the battle loops and grace watchdogs. Each step has its own deadline.
func shutdown(srv, battles shutdowner, log zerolog.Logger) {
	httpCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	battleCtx, cancelBattles := context.WithTimeout(context.Background(), battleShutdownTimeout)
	defer cancelBattles()
	if err := battles.Shutdown(battleCtx); err != nil {
		log.Error().Err(err).Msg("Battle loops did not stop in time")
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
