// cmd/automation-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"automation-engine/internal/automation"
	"automation-engine/internal/common/config"
	"automation-engine/internal/common/database"
	"automation-engine/internal/common/events"
	"automation-engine/internal/common/lock"
	"automation-engine/internal/common/logger"
	"automation-engine/internal/common/observability"
	"automation-engine/internal/notifier"
	"automation-engine/internal/repository"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting automation engine...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := repository.Migrate(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	// --- Init Redis with retry (optional) ---
	var locker automation.Locker
	if cfg.Database.Redis.Enabled() {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb.Client)
		zapLog.Info("Redis connected successfully, using distributed locks")
	} else {
		zapLog.Info("Redis not configured, using in-process locks")
	}

	// --- Event sinks ---
	sinks := []events.Sink{events.NewLogSink(log)}

	if cfg.Events.Kafka.Enabled {
		kafkaSink := events.NewKafkaSink(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		zapLog.Info("Kafka event sink enabled", zap.String("topic", cfg.Events.Kafka.Topic))
	}

	if cfg.Events.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		sinks = append(sinks, events.NewElasticsearchSink(esClient.Client, cfg.Events.Elasticsearch.Index))
		zapLog.Info("Elasticsearch event sink enabled", zap.String("index", cfg.Events.Elasticsearch.Index))
	}

	// --- Notifier ---
	n, err := notifier.NewFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	engine, err := automation.NewEngine(automation.NewConfig(cfg), automation.Dependencies{
		Settings:      repository.NewSettingsRepository(pg.DB),
		Subjects:      repository.NewSubjectRepository(pg.DB),
		Ledger:        repository.NewLedgerRepository(pg.DB),
		Notifier:      n,
		Sink:          events.NewMultiSink(sinks...),
		Locker:        locker,
		Logger:        log,
		Observability: obs,
	})
	if err != nil {
		zapLog.Fatal("engine init failed", zap.Error(err))
	}

	if cfg.Scheduler.SeedOnStart {
		if err := engine.SeedDefaults(ctx); err != nil {
			zapLog.Fatal("seeding default settings failed", zap.Error(err))
		}
	}

	if err := engine.Start(ctx); err != nil {
		zapLog.Fatal("scheduler start failed", zap.Error(err))
	}

	// --- Health & Metrics Server ---
	var shuttingDown atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if shuttingDown.Load() || !engine.IsRunning() {
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		if err := pg.Ping(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scheduler...")
	shuttingDown.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		zapLog.Warn("Scheduler stopped before the running tick finished", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Automation engine stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
