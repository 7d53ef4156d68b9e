// Package config loads engine, worker and gossip configuration from
// environment variables and optional YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a node.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Routing  RoutingConfig  `yaml:"routing"`
	Worker   WorkerConfig   `yaml:"worker"`
	Engine   EngineConfig   `yaml:"engine"`
	Persist  PersistConfig  `yaml:"persist"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies the local peer.
type NodeConfig struct {
	PeerID     string `yaml:"peer_id"`      // hex-encoded peer id; empty means random
	PeerIDSeed string `yaml:"peer_id_seed"` // alternatively, derive the id from a seed string
	ListenAddr string `yaml:"listen_addr"`
}

// RoutingConfig controls the gossip overlay.
type RoutingConfig struct {
	Topology             string        `yaml:"topology"` // flat | structured | supernode
	K                    int           `yaml:"k"`
	Alpha                int           `yaml:"alpha"`
	TargetSupernodeCount int           `yaml:"target_supernode_count"`
	MaxLeavesPerSupernode int          `yaml:"max_leaves_per_supernode"`
	SeenSetCapacity      int           `yaml:"seen_set_capacity"`
	BroadcastTTL         int           `yaml:"broadcast_ttl"`
	SendDeadline         time.Duration `yaml:"send_deadline"`
	FailureThreshold     int           `yaml:"failure_threshold"`
	NATSURL              string        `yaml:"nats_url"`
}

// WorkerConfig controls the worker runtime.
type WorkerConfig struct {
	PoolSize      int           `yaml:"pool_size"`
	BatchWindow   time.Duration `yaml:"batch_window"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// EngineConfig controls the simulation engine.
type EngineConfig struct {
	SnapshotInterval int    `yaml:"snapshot_interval"`
	RNGSeed          int64  `yaml:"rng_seed"`
	HasRNGSeed       bool   `yaml:"has_rng_seed"`
	ActorID          string `yaml:"actor_id"`
}

// PersistConfig controls snapshot storage.
type PersistConfig struct {
	Backend   string `yaml:"backend"` // file | memory | redis
	Dir       string `yaml:"dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Node: NodeConfig{
			PeerID:     getEnv("PEER_ID", ""),
			PeerIDSeed: getEnv("PEER_ID_SEED", ""),
			ListenAddr: getEnv("LISTEN_ADDR", "0.0.0.0:7420"),
		},
		Routing: RoutingConfig{
			Topology:              getEnv("TOPOLOGY", "structured"),
			K:                     getEnvInt("BUCKET_K", 20),
			Alpha:                 getEnvInt("ALPHA", 3),
			TargetSupernodeCount:  getEnvInt("TARGET_SUPERNODE_COUNT", 8),
			MaxLeavesPerSupernode: getEnvInt("MAX_LEAVES_PER_SUPERNODE", 32),
			SeenSetCapacity:       getEnvInt("SEEN_SET_CAPACITY", 4096),
			BroadcastTTL:          getEnvInt("BROADCAST_TTL", 10),
			SendDeadline:          time.Duration(getEnvInt("SEND_DEADLINE_MS", 2000)) * time.Millisecond,
			FailureThreshold:      getEnvInt("FAILURE_THRESHOLD", 5),
			NATSURL:               getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Worker: WorkerConfig{
			PoolSize:      getEnvInt("WORKER_POOL_SIZE", 4),
			BatchWindow:   time.Duration(getEnvInt("WORKER_BATCH_WINDOW_MS", 0)) * time.Millisecond,
			ShutdownGrace: time.Duration(getEnvInt("WORKER_SHUTDOWN_GRACE_MS", 5000)) * time.Millisecond,
		},
		Engine: EngineConfig{
			SnapshotInterval: getEnvInt("SNAPSHOT_INTERVAL", 100),
			RNGSeed:          int64(getEnvInt("RNG_SEED", 0)),
			HasRNGSeed:       os.Getenv("RNG_SEED") != "",
			ActorID:          getEnv("ACTOR_ID", ""),
		},
		Persist: PersistConfig{
			Backend:   getEnv("PERSIST_BACKEND", "file"),
			Dir:       getEnv("PERSIST_DIR", "./snapshots"),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:   getEnvInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// LoadFile loads configuration from a YAML file, overlaying environment
// defaults for keys the file does not set.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
