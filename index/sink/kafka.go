// Package sink provides delivery destinations for queued index operations.
// Importing it registers the sink factories with the index package.
package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/index"
)

const (
	DefaultKafkaBatchSize  = 100
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

func init() {
	index.RegisterSink("kafka", func(config cfg.IndexConfiguration) (index.Sink, error) {
		return NewKafkaSink(KafkaConfig{
			Brokers:          config.KafkaBrokers,
			RequiredAcks:     kafka.RequireAll,
			AutoCreateTopics: true,
		})
	})
}

// KafkaSink implements index.Sink for Kafka publishing.
type KafkaSink struct {
	writer *kafka.Writer
}

// KafkaConfig holds configuration for KafkaSink.
type KafkaConfig struct {
	Brokers          []string           // Kafka broker addresses
	BatchSize        int                // Batch size for writes (default: 100)
	BatchBytes       int64              // Max batch bytes (default: 1MB)
	RequiredAcks     kafka.RequiredAcks // Ack requirement (default: RequireAll)
	AutoCreateTopics bool               // Auto-create topics if missing
}

// NewKafkaSink creates a sink over the given brokers.
func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}

	if config.BatchSize == 0 {
		config.BatchSize = DefaultKafkaBatchSize
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{}, // Partition by document id for per-doc ordering
		BatchSize:              config.BatchSize,
		BatchBytes:             config.BatchBytes,
		RequiredAcks:           config.RequiredAcks,
		Async:                  false, // Sync writes for durability
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}

	return &KafkaSink{writer: writer}, nil
}

// Publish sends one encoded op to Kafka. The key is the document id, so all
// ops for a document land on one partition in order.
//
// Uses context.Background() because the delivery worker manages timeouts and
// retries at a higher level.
func (k *KafkaSink) Publish(topic, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	return k.writer.WriteMessages(context.Background(), msg)
}

// Close releases resources held by the KafkaSink.
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
