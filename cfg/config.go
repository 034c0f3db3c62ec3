// Package cfg holds the process-wide configuration for the fanout pipeline.
package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// IndexMode is the per-transaction policy for document index propagation.
type IndexMode string

const (
	IndexIgnore IndexMode = "ignore" // no index updates for this transaction
	IndexSync   IndexMode = "sync"   // bulk ops applied on the background task
	IndexQueued IndexMode = "queued" // ops queued for out-of-band delivery
)

// QueueFullPolicy decides what happens when the background task queue is full.
type QueueFullPolicy string

const (
	QueueFullBlock      QueueFullPolicy = "block"       // committing thread waits for a slot
	QueueFullDropOldest QueueFullPolicy = "drop_oldest" // evict the oldest pending task
	QueueFullReject     QueueFullPolicy = "reject"      // fail the submission, log and drop
)

// ClusterConfiguration controls cluster cache-invalidation broadcast.
type ClusterConfiguration struct {
	Enabled bool   `toml:"enabled"`
	NatsURL string `toml:"nats_url"`
	Subject string `toml:"subject"` // broadcast subject, all members subscribe
}

// IndexConfiguration controls document index propagation.
type IndexConfiguration struct {
	Enabled        bool      `toml:"enabled"`
	DefaultMode    IndexMode `toml:"default_mode"`
	BulkBatchSize  int       `toml:"bulk_batch_size"` // 0 = doc store default
	EnabledTypes   []string  `toml:"enabled_types"`   // glob patterns of index-enabled bean types
	QueueSink      string    `toml:"queue_sink"`      // "kafka", "nats" or "" (queued mode disabled)
	QueueTopic     string    `toml:"queue_topic"`
	KafkaBrokers   []string  `toml:"kafka_brokers"`
	SinkNatsURL    string    `toml:"sink_nats_url"`
	PollIntervalMS int       `toml:"poll_interval_ms"`
}

// WorkerConfiguration controls the background listener/index task pool.
type WorkerConfiguration struct {
	PoolSize        int             `toml:"pool_size"`
	QueueSize       int             `toml:"queue_size"`
	QueueFullPolicy QueueFullPolicy `toml:"queue_full_policy"`
}

// CacheConfiguration controls the in-process cache buckets.
type CacheConfiguration struct {
	BucketSize int `toml:"bucket_size"` // max entries per bean-type bucket
}

// LoggingConfiguration controls logging behavior.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics.
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// AdminConfiguration for the admin HTTP endpoints.
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure.
type Configuration struct {
	ServerName string `toml:"server_name"` // cluster-unique, auto-derived when empty
	DataDir    string `toml:"data_dir"`

	Cluster    ClusterConfiguration    `toml:"cluster"`
	Index      IndexConfiguration      `toml:"index"`
	Worker     WorkerConfiguration     `toml:"worker"`
	Cache      CacheConfiguration      `toml:"cache"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	ServerNameFlag = flag.String("server-name", "", "Server name (overrides config, empty=auto)")
)

// Default configuration
var Config = &Configuration{
	ServerName: "", // Auto-derive
	DataDir:    "./fanout-data",

	Cluster: ClusterConfiguration{
		Enabled: false,
		NatsURL: "nats://127.0.0.1:4222",
		Subject: "fanout.txn",
	},

	Index: IndexConfiguration{
		Enabled:        false,
		DefaultMode:    IndexSync,
		BulkBatchSize:  0, // doc store decides
		EnabledTypes:   []string{"*"},
		QueueSink:      "",
		QueueTopic:     "fanout.index",
		PollIntervalMS: 100,
	},

	Worker: WorkerConfiguration{
		PoolSize:        2,
		QueueSize:       256,
		QueueFullPolicy: QueueFullBlock,
	},

	Cache: CacheConfiguration{
		BucketSize: 10000,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},

	Admin: AdminConfiguration{
		Enabled: true,
		Address: "127.0.0.1",
		Port:    8080,
	},
}

// Load loads configuration from file and applies CLI overrides.
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *ServerNameFlag != "" {
		Config.ServerName = *ServerNameFlag
	}

	// Auto-derive server name if not set
	if Config.ServerName == "" {
		name, err := generateServerName()
		if err != nil {
			return fmt.Errorf("failed to generate server name: %w", err)
		}
		Config.ServerName = name
		log.Info().Str("server_name", Config.ServerName).Msg("Auto-derived server name")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateServerName derives a stable cluster-unique name from the machine ID.
func generateServerName() (string, error) {
	id, err := machineid.ProtectedID("fanout")
	if err != nil {
		return "", err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("fanout-%x", h.Sum64()), nil
}

// Validate checks configuration for errors.
func Validate() error {
	switch Config.Index.DefaultMode {
	case IndexIgnore, IndexSync, IndexQueued:
	default:
		return fmt.Errorf("invalid index default_mode: %q", Config.Index.DefaultMode)
	}

	if Config.Index.BulkBatchSize < 0 {
		return fmt.Errorf("index bulk_batch_size must be >= 0")
	}

	if Config.Index.QueueSink != "" && Config.Index.QueueSink != "kafka" && Config.Index.QueueSink != "nats" {
		return fmt.Errorf("invalid index queue_sink: %q", Config.Index.QueueSink)
	}

	if Config.Index.QueueSink == "kafka" && len(Config.Index.KafkaBrokers) == 0 {
		return fmt.Errorf("index queue_sink kafka requires kafka_brokers")
	}

	if Config.Index.PollIntervalMS < 1 {
		return fmt.Errorf("index poll_interval_ms must be >= 1")
	}

	if Config.Worker.PoolSize < 1 {
		return fmt.Errorf("worker pool_size must be >= 1")
	}

	if Config.Worker.QueueSize < 1 {
		return fmt.Errorf("worker queue_size must be >= 1")
	}

	switch Config.Worker.QueueFullPolicy {
	case QueueFullBlock, QueueFullDropOldest, QueueFullReject:
	default:
		return fmt.Errorf("invalid worker queue_full_policy: %q", Config.Worker.QueueFullPolicy)
	}

	if Config.Cache.BucketSize < 1 {
		return fmt.Errorf("cache bucket_size must be >= 1")
	}

	if Config.Cluster.Enabled {
		if Config.Cluster.NatsURL == "" {
			return fmt.Errorf("cluster enabled but nats_url is empty")
		}
		if Config.Cluster.Subject == "" {
			return fmt.Errorf("cluster enabled but subject is empty")
		}
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	return nil
}
