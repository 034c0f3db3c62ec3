package index

import (
	"fmt"
	"sync"

	"github.com/beandb/fanout/cfg"
)

// Sink is a destination for queued index operations (e.g. Kafka, NATS).
type Sink interface {
	// Publish sends one encoded op to the sink.
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink.
	Close() error
}

// SinkFactory creates a Sink from the index configuration.
type SinkFactory func(cfg.IndexConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a type name. Called from sink
// package init functions.
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// NewSink creates the sink named by config.QueueSink.
func NewSink(config cfg.IndexConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.QueueSink]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.QueueSink)
	}

	return factory(config)
}
