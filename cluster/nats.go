package cluster

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NatsTransport broadcasts envelopes over a shared NATS subject. Every
// member publishes to and subscribes on the same subject; NATS fans the
// message out, so one publish covers the whole cluster and per-member
// delivery tracking collapses to the single publish outcome.
type NatsTransport struct {
	url     string
	subject string

	nc     *nats.Conn
	sub    *nats.Subscription
	joined atomic.Bool
}

// NewNatsTransport creates a transport for the given server URL and subject.
func NewNatsTransport(url, subject string) *NatsTransport {
	return &NatsTransport{url: url, subject: subject}
}

// Join connects to NATS and subscribes for inbound envelopes.
func (t *NatsTransport) Join(onPayload func(payload []byte)) error {
	if t.joined.Load() {
		return fmt.Errorf("transport already joined")
	}

	nc, err := nats.Connect(t.url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", t.url, err)
	}

	sub, err := nc.Subscribe(t.subject, func(msg *nats.Msg) {
		onPayload(msg.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", t.subject, err)
	}

	t.nc = nc
	t.sub = sub
	t.joined.Store(true)

	log.Info().Str("url", t.url).Str("subject", t.subject).Msg("Joined cluster transport")
	return nil
}

// Leave unsubscribes and drains the connection.
func (t *NatsTransport) Leave() error {
	if !t.joined.CompareAndSwap(true, false) {
		return nil
	}

	if t.sub != nil {
		if err := t.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("Failed to unsubscribe from cluster subject")
		}
	}
	if t.nc != nil {
		// Drain lets in-flight inbound messages finish before closing.
		if err := t.nc.Drain(); err != nil {
			t.nc.Close()
			return fmt.Errorf("failed to drain NATS connection: %w", err)
		}
	}

	log.Info().Str("subject", t.subject).Msg("Left cluster transport")
	return nil
}

// Send publishes the payload to the cluster subject. Publish buffers and
// returns without waiting for any acknowledgement.
func (t *NatsTransport) Send(payload []byte) []MemberOutcome {
	if !t.joined.Load() {
		return []MemberOutcome{{Member: t.subject, Err: fmt.Errorf("transport not joined")}}
	}

	err := t.nc.Publish(t.subject, payload)
	return []MemberOutcome{{Member: t.subject, Err: err}}
}

// Members reports the NATS servers currently known to the connection.
func (t *NatsTransport) Members() []MemberInfo {
	if !t.joined.Load() || t.nc == nil {
		return nil
	}

	out := []MemberInfo{{Name: "connected", Address: t.nc.ConnectedUrl(), Status: t.nc.Status().String()}}
	for _, u := range t.nc.DiscoveredServers() {
		out = append(out, MemberInfo{Name: "discovered", Address: u, Status: "KNOWN"})
	}
	return out
}
