package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/meli-sales-relay/api/routes"
	"github.com/angelmondragon/meli-sales-relay/internal/cron"
	"github.com/angelmondragon/meli-sales-relay/internal/ledger"
	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/angelmondragon/meli-sales-relay/internal/notify"
	"github.com/angelmondragon/meli-sales-relay/internal/processed"
	"github.com/angelmondragon/meli-sales-relay/internal/queue"
	"github.com/angelmondragon/meli-sales-relay/internal/reports"
	"github.com/angelmondragon/meli-sales-relay/internal/settle"
	"github.com/angelmondragon/meli-sales-relay/internal/token"
	"github.com/angelmondragon/meli-sales-relay/internal/triage"
	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	"github.com/angelmondragon/meli-sales-relay/pkg/db"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
	"github.com/angelmondragon/meli-sales-relay/pkg/metrics"
	"github.com/angelmondragon/meli-sales-relay/pkg/redis"
)

const lockKeyFormat = "melirelay:reports:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "relay"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "relay",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	queueStore, ledgerStore, closeStores, err := buildStores(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stores", err)
		os.Exit(1)
	}
	defer closeStores()

	meliClient, err := meli.NewClient(cfg.Marketplace)
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace client", err)
		os.Exit(1)
	}

	tokenRegistry, err := token.NewRegistry(meliClient, logg, cfg.Sellers)
	if err != nil {
		logg.Error(context.Background(), "failed to build token registry", err)
		os.Exit(1)
	}

	notifier, err := notify.NewTelegram(cfg.Telegram, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create telegram notifier", err)
		os.Exit(1)
	}

	processedSet := processed.NewSet()

	// Orders created before startup are never settled, even if the upstream
	// replays old webhooks.
	cutoff := time.Now().UTC()

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	triageService, err := triage.NewService(triage.ServiceParams{
		Logger:    logg,
		Tokens:    tokenRegistry,
		Payments:  meliClient,
		Processed: processedSet,
		Queue:     queueStore,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create triage service", err)
		os.Exit(1)
	}

	worker, err := settle.NewWorker(settle.WorkerParams{
		Logger:    logg,
		Queue:     queueStore,
		Ledger:    ledgerStore,
		Processed: processedSet,
		Tokens:    tokenRegistry,
		Market:    meliClient,
		Notifier:  notifier,
		Sellers:   cfg.Sellers,
		Metrics:   settlementMetrics,
		Settings:  cfg.Settlement,
		Cutoff:    cutoff,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement worker", err)
		os.Exit(1)
	}

	scheduler, closeRedis, err := buildScheduler(cfg, logg, ledgerStore, notifier, cronMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create report scheduler", err)
		os.Exit(1)
	}
	defer closeRedis()

	router := routes.NewRouter(cfg, logg, triageService, prometheus.DefaultGatherer, func(ctx context.Context) error {
		_, err := queueStore.Len(ctx)
		return err
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(ctx, fmt.Sprintf("starting relay with %d managed accounts", tokenRegistry.Size()))

	errCh := make(chan error, 3)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("webhook server: %w", err)
		}
	}()
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("settlement worker: %w", err)
		}
	}()
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("report scheduler: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		logg.Error(ctx, "relay component stopped unexpectedly", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "error shutting down webhook server", err)
	}
	logg.Info(context.Background(), "relay shut down gracefully")
}

// buildStores picks the queue and ledger backend from the configured driver.
func buildStores(cfg *config.Config, logg *logger.Logger) (queue.Store, ledger.Store, func(), error) {
	if !cfg.DB.UsesSQL() {
		queueStore, err := queue.NewFileStore(cfg.Queue.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("queue store: %w", err)
		}
		ledgerStore, err := ledger.NewFileStore(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("ledger store: %w", err)
		}
		return queueStore, ledgerStore, func() {}, nil
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	closeFn := func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}
	queueStore, err := queue.NewGormStore(dbClient.DB())
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("queue store: %w", err)
	}
	ledgerStore, err := ledger.NewGormStore(dbClient.DB())
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("ledger store: %w", err)
	}
	return queueStore, ledgerStore, closeFn, nil
}

// buildScheduler wires the daily and monthly report jobs behind a lock. With
// no Redis configured the lock only excludes runs within this process.
func buildScheduler(
	cfg *config.Config,
	logg *logger.Logger,
	ledgerStore ledger.Store,
	notifier *notify.Telegram,
	cronMetrics *metrics.CronJobMetrics,
) (*cron.Service, func(), error) {
	dailyJob, err := reports.NewDailyJob(logg, ledgerStore, notifier)
	if err != nil {
		return nil, nil, fmt.Errorf("daily report job: %w", err)
	}
	monthlyJob, err := reports.NewMonthlyJob(logg, ledgerStore, notifier)
	if err != nil {
		return nil, nil, fmt.Errorf("monthly report job: %w", err)
	}

	var lock cron.Lock = cron.NewLocalLock()
	closeFn := func() {}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		closeFn = func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}
		lock, err = cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("report lock: %w", err)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(dailyJob, monthlyJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Reports.Interval,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return service, closeFn, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
