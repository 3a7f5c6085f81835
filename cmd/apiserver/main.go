// Command apiserver runs the HTTP façade: task submission, status lookup,
// worker/queue introspection, health, and the dead-letter operator surface.
// Graceful shutdown follows jorgemgr94-go-learning/cmd/rest-api/main.go
// exactly: goroutine-run ListenAndServe, SIGINT/SIGTERM via signal.Notify,
// bounded-context Shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/imageflow/applog"
	"github.com/Skryldev/imageflow/config"
	"github.com/Skryldev/imageflow/httpapi"
	"github.com/Skryldev/imageflow/metrics"
	"github.com/Skryldev/imageflow/queue"
	"github.com/Skryldev/imageflow/queue/redisqueue"
	"github.com/Skryldev/imageflow/registry/redisregistry"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("apiserver: config: %v", err)
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

	collector := metrics.New(prometheus.DefaultRegisterer, "image_processor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pollQueueDepth(ctx, q, collector, logger)

	api := httpapi.New(httpapi.Config{
		AppRoot:      envOr("APP_ROOT", "/app"),
		OutputSubdir: envOr("OUTPUT_SUBDIR", "output"),
	}, q, reg, logger, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	router := api.Router()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := envOr("API_PORT", "8000")
	server := &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: router}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("apiserver: listen: %v", err)
		}
	}()
	logger.Info("apiserver.started", "port", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("apiserver.shutting_down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("apiserver.shutdown_error", "error", err.Error())
	}
	logger.Info("apiserver.stopped")
}

// pollQueueDepth refreshes the queue_depth gauge every 5s until ctx is
// cancelled, the same ticker-based background-goroutine idiom the teacher
// uses for periodic work.
func pollQueueDepth(ctx context.Context, q queue.Queue, c *metrics.Collector, log applog.Logger) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stats, err := q.Stats(ctx)
			if err != nil {
				log.Warn("apiserver.queue_depth_poll_error", "error", err.Error())
				continue
			}
			c.QueueDepth.WithLabelValues("pending").Set(float64(stats.Pending))
			c.QueueDepth.WithLabelValues("processing").Set(float64(stats.Processing))
			c.QueueDepth.WithLabelValues("dead_letter").Set(float64(stats.DeadLetter))
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
