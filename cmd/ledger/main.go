package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/lesson-ledger/internal/api"
	"github.com/Proton-105/lesson-ledger/internal/auth"
	"github.com/Proton-105/lesson-ledger/internal/database"
	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/health"
	"github.com/Proton-105/lesson-ledger/internal/i18n"
	"github.com/Proton-105/lesson-ledger/internal/idempotency"
	"github.com/Proton-105/lesson-ledger/internal/jobs"
	"github.com/Proton-105/lesson-ledger/internal/jobs/handlers"
	"github.com/Proton-105/lesson-ledger/internal/leaderboardcache"
	"github.com/Proton-105/lesson-ledger/internal/lifecycle"
	"github.com/Proton-105/lesson-ledger/internal/pda"
	"github.com/Proton-105/lesson-ledger/internal/progress"
	"github.com/Proton-105/lesson-ledger/internal/projection"
	"github.com/Proton-105/lesson-ledger/internal/ratelimit"
	"github.com/Proton-105/lesson-ledger/internal/repository"
	"github.com/Proton-105/lesson-ledger/pkg/config"
	"github.com/Proton-105/lesson-ledger/pkg/graceful"
	"github.com/Proton-105/lesson-ledger/pkg/logger"
	"github.com/Proton-105/lesson-ledger/pkg/metrics"
	redisclient "github.com/Proton-105/lesson-ledger/pkg/redis"
)

const (
	idempotencyWait         = 2 * time.Second
	rateLimitSweepInterval  = time.Minute
	accountsCollectInterval = 30 * time.Second
	readHeaderTimeout       = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lesson-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	log, level := logger.NewWithLevel(*cfg, os.Stdout)
	slog.SetDefault(log)

	flushSentry, err := logger.InitSentry(*cfg)
	if err != nil {
		log.Warn("sentry disabled", slog.Any("error", err))
		flushSentry = func() {}
	}
	defer flushSentry()

	config.Watch(v, func(next *config.Config) {
		level.Set(logger.ParseLevel(next.Logger.Level))
		log.Info("configuration reloaded", slog.String("log_level", next.Logger.Level))
	}, func(err error) {
		log.Warn("configuration reload rejected", slog.Any("error", err))
	})

	log.Info("starting lesson ledger",
		slog.String("program_id", cfg.Program.ID),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("addr", cfg.HTTP.Addr),
	)

	programID, err := solana.PublicKeyFromBase58(cfg.Program.ID)
	if err != nil {
		return fmt.Errorf("parse program id: %w", err)
	}
	deriver, err := pda.NewDeriver(programID, pda.WithSeed(cfg.Program.Seed))
	if err != nil {
		return fmt.Errorf("build deriver: %w", err)
	}

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)
	probes := lifecycle.NewProbes(checker, log)

	var rdb *redis.Client
	err = apperrors.WithRetry(ctx, func() error {
		client, connErr := redisclient.New(ctx, cfg.Redis)
		if connErr != nil {
			return apperrors.NewStorageError(connErr)
		}
		rdb = client
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	checker.AddCheck("redis", health.NewRedisChecker(rdb))
	shutdown.Register(lifecycle.PhaseResources, "redis", func(context.Context) error { return rdb.Close() })

	var storage progress.Storage = progress.NewRedisStorage(rdb, log)
	if cfg.Storage.Backend == "memory" {
		log.Warn("using in-memory account storage, records are lost on restart")
		storage = progress.NewMemoryStorage()
	}

	ledgerOpts := []progress.Option{
		progress.WithLocker(rdb, cfg.Redis.LockTTL),
		progress.WithLimits(progress.Limits{
			MaxLessons:        cfg.Program.MaxLessons,
			MaxLessonIDLength: cfg.Program.MaxLessonIDLength,
		}),
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	projecting := cfg.Database.Enabled && cfg.Jobs.Enabled

	if projecting {
		queue := jobs.NewManager(redisOpt, log)
		shutdown.Register(lifecycle.PhaseResources, "jobs-client", func(context.Context) error { return queue.Close() })
		ledgerOpts = append(ledgerOpts, progress.WithCommitHook(jobs.ProjectionHook(queue, log)))
	}

	ledger := progress.NewLedger(deriver, storage, auth.NewEd25519Authenticator(programID), log, ledgerOpts...)

	var (
		leaderboard api.Leaderboard
		projected   api.ProjectedProgress
	)
	if cfg.Database.Enabled {
		projector, err := setupProjection(ctx, cfg, rdb, checker, shutdown, log)
		if err != nil {
			return err
		}
		leaderboard = projector
		projected = projector

		if cfg.Jobs.Enabled {
			if err := startJobs(cfg, redisOpt, ledger, projector, shutdown, log); err != nil {
				return err
			}
		}
	}

	translations, err := i18n.Load(cfg.I18n.DefaultLang)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var guard *ratelimit.Guard
	if cfg.RateLimit.Enabled {
		memory := ratelimit.NewMemoryLimiter(log)
		rules := ratelimit.NewRules(cfg.RateLimit)
		guard = ratelimit.NewGuard(ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb, log), memory, log), rules, log)

		cleaner := ratelimit.NewCleaner(rdb, memory, log, rateLimitSweepInterval, maxWindow(rules))
		g.Go(func() error {
			cleaner.Run(gctx)
			return nil
		})
	}

	idemCleaner := idempotency.NewCleaner(rdb, log, cfg.Idempotency.CleanupInterval, cfg.Idempotency.TTL)
	g.Go(func() error {
		idemCleaner.Run(gctx)
		return nil
	})

	collector := metrics.NewAccountsCollector(ledger, accountsCollectInterval, log)
	g.Go(func() error {
		collector.Run(gctx)
		return nil
	})

	server := api.NewServer(api.Deps{
		Ledger:         ledger,
		Leaderboard:    leaderboard,
		Projected:      projected,
		Idempotency:    idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log, idempotencyWait),
		IdempotencyTTL: cfg.Idempotency.TTL,
		Guard:          guard,
		Probes:         probes,
		Translations:   translations,
		Errors:         apperrors.NewHandler(log, cfg.Sentry.Enabled),
		Log:            log,
	})

	httpServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Routes(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}, cfg.HTTP.ShutdownTimeout)
	httpServer.OnShutdown(probes.Drain)

	g.Go(func() error {
		return httpServer.ListenAndServe(gctx)
	})

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("service stopped with error", slog.Any("error", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown completed with errors", slog.Any("error", err))
	}

	log.Info("lesson ledger stopped")
	return runErr
}

func setupProjection(ctx context.Context, cfg *config.Config, rdb *redis.Client, checker *health.Checker, shutdown *lifecycle.Shutdown, log *slog.Logger) (*projection.Projector, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	shutdown.Register(lifecycle.PhaseResources, "postgres", func(context.Context) error { return db.Close() })

	err = apperrors.WithRetry(ctx, func() error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			return apperrors.NewStorageError(pingErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	checker.AddCheck("postgres", health.NewDBChecker(db))

	if err := database.NewMigrator(db, log).ApplyDir(ctx, cfg.Database.MigrationsDir); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database migrations applied", slog.String("dir", cfg.Database.MigrationsDir))

	repo := repository.NewProgressRepository(db, log)
	return projection.NewProjector(repo, leaderboardcache.NewCache(rdb), log), nil
}

func startJobs(cfg *config.Config, redisOpt asynq.RedisConnOpt, ledger *progress.Ledger, projector *projection.Projector, shutdown *lifecycle.Shutdown, log *slog.Logger) error {
	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, cfg.Jobs.Queues, log)
	worker.RegisterHandler(jobs.TaskTypeProject, handlers.NewProjectHandler(ledger, projector, log))
	worker.RegisterHandler(jobs.TaskTypeReconcile, handlers.NewReconcileHandler(ledger, projector, log))
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start jobs worker: %w", err)
	}
	shutdown.Register(lifecycle.PhaseWorkers, "jobs-worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	if cfg.Jobs.ReconcileCron == "" {
		return nil
	}

	scheduler := jobs.NewScheduler(redisOpt, log)
	if err := scheduler.RegisterTasks(cfg.Jobs.ReconcileCron); err != nil {
		return fmt.Errorf("register reconcile task: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	shutdown.Register(lifecycle.PhaseIngress, "scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})

	return nil
}

// maxWindow returns the longest configured rate-limit window.
func maxWindow(rules *ratelimit.Rules) time.Duration {
	longest := time.Minute
	if _, window, err := rules.GetGlobalLimit(); err == nil && window > longest {
		longest = window
	}
	if _, window, err := rules.GetPerSignerLimit(); err == nil && window > longest {
		longest = window
	}
	return longest
}
