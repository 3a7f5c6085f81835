// Command worker runs one task-queue worker: claim, process, heartbeat,
// and (unless WORKER_SWEEP=false) recover stuck tasks. Wiring order (config →
// backend → observability → start/stop) follows the teacher's construction
// style, with signal-based graceful shutdown modeled on
// jorgemgr94-go-learning/cmd/rest-api/main.go.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/imageflow/applog"
	"github.com/Skryldev/imageflow/config"
	"github.com/Skryldev/imageflow/metrics"
	"github.com/Skryldev/imageflow/pipeline/factory"
	"github.com/Skryldev/imageflow/queue/redisqueue"
	"github.com/Skryldev/imageflow/registry/redisregistry"
	"github.com/Skryldev/imageflow/worker"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("worker: config: %v", err)
	}
	if err := config.ValidateWorker(cfg); err != nil {
		log.Fatalf("worker: config: %v", err)
	}

	logger := applog.NewFromEnv(os.Getenv("LOG_LEVEL"))

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr(),
		DB:   cfg.RedisDB,
	})
	defer client.Close()

	q := redisqueue.New(client, redisqueue.Config{
		QueueName:         cfg.QueueName,
		MaxRetries:        cfg.MaxRetries,
		ProcessingTimeout: cfg.ProcessingTimeout,
	}, logger)

	reg := redisregistry.New(client, redisregistry.Config{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	}, logger)

	loopCfg := worker.DefaultConfig()
	if cfg.WorkerID != "" {
		loopCfg.WorkerID = cfg.WorkerID
	}
	loopCfg.ClaimTimeout = cfg.ClaimTimeout
	loopCfg.HeartbeatInterval = cfg.HeartbeatInterval
	loopCfg.RecoveryInterval = cfg.RecoveryInterval
	loopCfg.BackoffInitial = cfg.BackoffInitial
	loopCfg.BackoffMax = cfg.BackoffMax
	loopCfg.Sweep = os.Getenv("WORKER_SWEEP") != "false"

	collector := metrics.New(prometheus.DefaultRegisterer, "image_processor_worker")
	metricsAddr := envOr("METRICS_ADDR", ":9101")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker.metrics_server_error", "error", err.Error())
		}
	}()
	defer metricsSrv.Close()

	loop := worker.New(loopCfg, q, reg, factory.New(), logger, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loop.Start(ctx); err != nil {
		log.Fatalf("worker: start: %v", err)
	}
	logger.Info("worker.started", "worker_id", loop.WorkerID(), "queue", cfg.QueueName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("worker.shutting_down", "worker_id", loop.WorkerID())
	cancel()
	loop.Stop()
	logger.Info("worker.stopped", "worker_id", loop.WorkerID(),
		"processed", loop.ProcessedCount(), "errors", loop.ErrorCount())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
