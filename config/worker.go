package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// WorkerConfig configures a worker process, the task queue it claims from,
// and the registry it heartbeats into. Defaults mirror spec.md §3/§4/§6.
type WorkerConfig struct {
	WorkerID string // default: "worker-{8 hex}"

	RedisHost string // default "localhost"
	RedisPort int    // default 6379
	RedisDB   int    // default 0

	QueueName         string        // default "image_processing_v2"
	MaxRetries        int           // default 3
	ProcessingTimeout time.Duration // default 300s
	ClaimTimeout      time.Duration // default 5s

	HeartbeatInterval time.Duration // default 10s
	HeartbeatTimeout  time.Duration // default 30s
	RecoveryInterval  time.Duration // default ProcessingTimeout/3

	BackoffInitial time.Duration // default 1s
	BackoffMax     time.Duration // default 30s
}

// DefaultWorkerConfig returns the spec-mandated defaults.
func DefaultWorkerConfig() WorkerConfig {
	pt := 300 * time.Second
	return WorkerConfig{
		RedisHost:         "localhost",
		RedisPort:         6379,
		QueueName:         "image_processing_v2",
		MaxRetries:        3,
		ProcessingTimeout: pt,
		ClaimTimeout:      5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		RecoveryInterval:  pt / 3,
		BackoffInitial:    1 * time.Second,
		BackoffMax:        30 * time.Second,
	}
}

// LoadWorkerConfig loads a WorkerConfig starting from defaults, applying a
// ".env" file if present (ignored if missing, matching jorgemgr94's
// godotenv.Load() convention), then environment variable overrides.
func LoadWorkerConfig() (WorkerConfig, error) {
	_ = godotenv.Load()

	cfg := DefaultWorkerConfig()

	if v := os.Getenv("WORKER_ID"); v != "" {
		cfg.WorkerID = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: HEARTBEAT_INTERVAL: %w", err)
		}
		cfg.HeartbeatInterval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("PROCESSING_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: PROCESSING_TIMEOUT: %w", err)
		}
		cfg.ProcessingTimeout = time.Duration(secs) * time.Second
		cfg.RecoveryInterval = cfg.ProcessingTimeout / 3
	}

	return cfg, nil
}

// RedisAddr returns "host:port" for the go-redis client.
func (c WorkerConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// ValidateWorker checks invariants the worker loop depends on.
func ValidateWorker(c WorkerConfig) error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: MaxRetries must be >= 0")
	}
	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("config: ProcessingTimeout must be positive")
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("config: HeartbeatTimeout must be positive")
	}
	return nil
}
