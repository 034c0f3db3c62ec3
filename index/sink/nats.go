package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/index"
)

func init() {
	index.RegisterSink("nats", func(config cfg.IndexConfiguration) (index.Sink, error) {
		if config.SinkNatsURL == "" {
			return nil, fmt.Errorf("nats sink requires sink_nats_url")
		}
		return NewNatsSink(config.SinkNatsURL)
	})
}

// NatsSink implements index.Sink over NATS JetStream.
type NatsSink struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNatsSink connects to NATS and creates a JetStream context.
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js}, nil
}

// Publish sends one encoded op to a JetStream subject, ensuring the backing
// stream exists. The document id travels as a header for consumer routing.
func (n *NatsSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	streamName := sanitizeStreamName(topic)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}

	_, err = n.js.PublishMsg(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

// Close releases resources held by the NatsSink.
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// sanitizeStreamName converts a topic to a valid JetStream stream name.
// Stream names can't contain "." so it is replaced with "_".
func sanitizeStreamName(topic string) string {
	return strings.ReplaceAll(topic, ".", "_")
}
