package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfig snapshots the package-global Config around a test mutation.
func withConfig(t *testing.T, mutate func()) {
	t.Helper()
	saved := *Config
	t.Cleanup(func() { *Config = saved })
	mutate()
}

func TestValidateDefaults(t *testing.T) {
	withConfig(t, func() {})
	assert.NoError(t, Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func()
	}{
		{"bad index mode", func() { Config.Index.DefaultMode = "sometimes" }},
		{"negative bulk batch size", func() { Config.Index.BulkBatchSize = -1 }},
		{"unknown sink", func() { Config.Index.QueueSink = "rabbitmq" }},
		{"kafka without brokers", func() { Config.Index.QueueSink = "kafka"; Config.Index.KafkaBrokers = nil }},
		{"zero poll interval", func() { Config.Index.PollIntervalMS = 0 }},
		{"zero pool size", func() { Config.Worker.PoolSize = 0 }},
		{"zero queue size", func() { Config.Worker.QueueSize = 0 }},
		{"bad queue policy", func() { Config.Worker.QueueFullPolicy = "panic" }},
		{"zero bucket size", func() { Config.Cache.BucketSize = 0 }},
		{"cluster without url", func() { Config.Cluster.Enabled = true; Config.Cluster.NatsURL = "" }},
		{"cluster without subject", func() { Config.Cluster.Enabled = true; Config.Cluster.Subject = "" }},
		{"bad prometheus port", func() { Config.Prometheus.Enabled = true; Config.Prometheus.Port = 0 }},
		{"bad admin port", func() { Config.Admin.Enabled = true; Config.Admin.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfig(t, tt.mutate)
			assert.Error(t, Validate())
		})
	}
}

func TestValidateAcceptsSinks(t *testing.T) {
	withConfig(t, func() {
		Config.Index.QueueSink = "nats"
	})
	assert.NoError(t, Validate())

	withConfig(t, func() {
		Config.Index.QueueSink = "kafka"
		Config.Index.KafkaBrokers = []string{"localhost:9092"}
	})
	assert.NoError(t, Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	content := `
server_name = "node-test"
data_dir = "` + dataDir + `"

[cluster]
enabled = true
nats_url = "nats://10.0.0.1:4222"
subject = "fanout.test"

[index]
enabled = true
default_mode = "queued"
enabled_types = ["customer", "order*"]

[worker]
pool_size = 4
queue_full_policy = "drop_oldest"
`
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	withConfig(t, func() {})
	require.NoError(t, Load(path))

	assert.Equal(t, "node-test", Config.ServerName)
	assert.True(t, Config.Cluster.Enabled)
	assert.Equal(t, "nats://10.0.0.1:4222", Config.Cluster.NatsURL)
	assert.Equal(t, IndexQueued, Config.Index.DefaultMode)
	assert.Equal(t, []string{"customer", "order*"}, Config.Index.EnabledTypes)
	assert.Equal(t, 4, Config.Worker.PoolSize)
	assert.Equal(t, QueueFullDropOldest, Config.Worker.QueueFullPolicy)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10000, Config.Cache.BucketSize)

	// Data dir was created.
	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	withConfig(t, func() {
		Config.ServerName = "preset"
		Config.DataDir = filepath.Join(t.TempDir(), "data")
	})
	require.NoError(t, Load(filepath.Join(t.TempDir(), "nope.toml")))
	assert.Equal(t, "preset", Config.ServerName)
}
