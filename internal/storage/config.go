// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"os"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/pkg/utils"
)

// Defaults applied by ConfigFromEnv.
const (
	DefaultDurablePath  = "meeting-scheduler.db"
	DefaultFallbackPath = "meeting-scheduler-fallback.db"
	DefaultSessionID    = "default"
)

// Config selects a storage backend and carries its connection options.
type Config struct {
	Backend domain.Backend `json:"backend"`
	Options Options        `json:"options"`
}

// Options holds the per-backend settings. Only the block matching the
// selected backend is read.
type Options struct {
	Durable       DurableOptions       `json:"durable"`
	Memory        MemoryOptions        `json:"memory"`
	NatsKV        NatsKVOptions        `json:"natsKv"`
	CloudDocument CloudDocumentOptions `json:"cloudDocument"`
}

// DurableOptions configures the SQLite backend.
type DurableOptions struct {
	Path string `json:"path"`
	// MaxValueBytes bounds each stored collection; zero selects the store default.
	MaxValueBytes int `json:"maxValueBytes,omitempty"`
}

// MemoryOptions configures the in-memory backend. Persistent mirrors every
// collection to Redis for the lifetime of the session.
type MemoryOptions struct {
	Persistent bool          `json:"persistent"`
	RedisURL   string        `json:"redisUrl,omitempty"`
	SessionID  string        `json:"sessionId,omitempty"`
	SessionTTL time.Duration `json:"sessionTtl,omitempty"`
}

// NatsKVOptions configures the JetStream key-value backend.
type NatsKVOptions struct {
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
}

// CloudDocumentOptions configures the MongoDB backend.
type CloudDocumentOptions struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// Validate collects every problem with c.
func (c Config) Validate() error {
	var problems []string
	switch c.Backend {
	case "":
		problems = append(problems, "storage backend is required")
	case domain.BackendDurable:
		if c.Options.Durable.Path == "" {
			problems = append(problems, "durable backend requires a path")
		}
		if c.Options.Durable.MaxValueBytes < 0 {
			problems = append(problems, "durable max value bytes must not be negative")
		}
	case domain.BackendMemory:
		if c.Options.Memory.Persistent && c.Options.Memory.RedisURL == "" {
			problems = append(problems, "persistent memory backend requires a Redis URL")
		}
	case domain.BackendNatsKV:
		if c.Options.NatsKV.URL == "" {
			problems = append(problems, "nats-kv backend requires a NATS URL")
		}
		if c.Options.NatsKV.Bucket == "" {
			problems = append(problems, "nats-kv backend requires a bucket")
		}
	case domain.BackendCloudDocument:
		if c.Options.CloudDocument.URI == "" {
			problems = append(problems, "cloud-document backend requires a MongoDB URI")
		}
		if c.Options.CloudDocument.Database == "" {
			problems = append(problems, "cloud-document backend requires a database")
		}
	default:
		problems = append(problems, "unsupported storage backend: "+string(c.Backend))
	}
	if len(problems) > 0 {
		return domain.NewValidationErrors("invalid storage configuration", problems)
	}
	return nil
}

// ConfigFromEnv reads the storage configuration from the environment. An
// unset STORAGE_BACKEND selects the durable backend.
func ConfigFromEnv() Config {
	backend := domain.Backend(utils.Getenv("STORAGE_BACKEND", string(domain.BackendDurable)))

	return Config{
		Backend: backend,
		Options: Options{
			Durable: DurableOptions{
				Path:          utils.Getenv("STORAGE_DURABLE_PATH", DefaultDurablePath),
				MaxValueBytes: utils.GetenvInt("STORAGE_DURABLE_MAX_BYTES", 0),
			},
			Memory: MemoryOptions{
				Persistent: os.Getenv("STORAGE_MEMORY_PERSISTENT") == "true",
				RedisURL:   os.Getenv("REDIS_URL"),
				SessionID:  utils.Getenv("STORAGE_SESSION_ID", DefaultSessionID),
				SessionTTL: time.Duration(utils.GetenvInt("STORAGE_SESSION_TTL_MINUTES", 0)) * time.Minute,
			},
			NatsKV: NatsKVOptions{
				URL:    os.Getenv("NATS_URL"),
				Bucket: utils.Getenv("NATS_KV_BUCKET", store.DefaultKVBucket),
			},
			CloudDocument: CloudDocumentOptions{
				URI:      os.Getenv("MONGODB_URI"),
				Database: os.Getenv("MONGODB_DATABASE"),
			},
		},
	}
}
