package cluster

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/cache"
	"github.com/beandb/fanout/change"
	"github.com/beandb/fanout/encoding"
	"github.com/beandb/fanout/telemetry"
)

// Broadcaster sends remote transaction events to the cluster and routes
// inbound ones into the local cache notifier. Inbound events touch the cache
// only: they are never re-broadcast and never reach persist listeners, which
// is what keeps a change from ping-ponging between nodes forever.
type Broadcaster struct {
	serverName string
	transport  Transport
	notifier   *cache.Notifier
	dedup      *dedupFilter
}

// NewBroadcaster creates a broadcaster. A nil transport means clustering is
// disabled and every call is a cheap no-op.
func NewBroadcaster(serverName string, transport Transport, notifier *cache.Notifier) *Broadcaster {
	return &Broadcaster{
		serverName: serverName,
		transport:  transport,
		notifier:   notifier,
		dedup:      newDedupFilter(),
	}
}

// IsClustering reports whether a transport is configured.
func (b *Broadcaster) IsClustering() bool {
	return b != nil && b.transport != nil
}

// Join connects the transport and registers the inbound handler. Call once
// at startup, before any commit can broadcast.
func (b *Broadcaster) Join() error {
	if !b.IsClustering() {
		return nil
	}
	return b.transport.Join(b.onRemotePayload)
}

// Leave tears the transport down at shutdown.
func (b *Broadcaster) Leave() error {
	if !b.IsClustering() {
		return nil
	}
	return b.transport.Leave()
}

// Members returns the transport's membership view for the admin surface.
func (b *Broadcaster) Members() []MemberInfo {
	if !b.IsClustering() {
		return nil
	}
	return b.transport.Members()
}

// Broadcast serializes the envelope and fires it at the cluster. No-op when
// clustering is disabled or the envelope is empty. Per-member failures are
// logged and absorbed: there is no retry and no redelivery queue.
func (b *Broadcaster) Broadcast(evt *change.RemoteTransactionEvent) {
	if !b.IsClustering() || evt == nil {
		return
	}
	if evt.IsEmpty() {
		telemetry.BroadcastsTotal.With("skipped_empty").Inc()
		return
	}

	payload, eventID, err := encoding.EncodeEnvelope(evt)
	if err != nil {
		telemetry.BroadcastsTotal.With("failed").Inc()
		log.Error().Err(err).Str("origin", evt.OriginServer).Msg("Failed to encode remote transaction event")
		return
	}

	// Own broadcasts come back on the shared subject; remember the id so the
	// inbound path drops the echo instead of re-applying the cache work.
	b.dedup.seen(eventID)

	failed := 0
	for _, outcome := range b.transport.Send(payload) {
		if outcome.Err != nil {
			failed++
			telemetry.BroadcastMemberErrorsTotal.Inc()
			log.Warn().
				Err(outcome.Err).
				Str("member", outcome.Member).
				Uint64("event_id", eventID).
				Msg("Failed to send remote transaction event to member")
		}
	}

	if failed > 0 {
		telemetry.BroadcastsTotal.With("failed").Inc()
	} else {
		telemetry.BroadcastsTotal.With("sent").Inc()
	}
	log.Debug().Uint64("event_id", eventID).Int("bytes", len(payload)).Msg("Cluster send")
}

// onRemotePayload handles one inbound envelope from the transport.
func (b *Broadcaster) onRemotePayload(payload []byte) {
	evt, eventID, err := encoding.DecodeEnvelope(payload)
	if err != nil {
		telemetry.RemoteEventsTotal.With("decode_error").Inc()
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("Failed to decode remote transaction event")
		return
	}

	b.OnRemoteEvent(evt, eventID)
}

// OnRemoteEvent applies a decoded remote event to the local cache, exactly
// once per event id. Origin-echo and transport redelivery both land here as
// duplicates and are dropped.
func (b *Broadcaster) OnRemoteEvent(evt *change.RemoteTransactionEvent, eventID uint64) {
	if evt.OriginServer == b.serverName || b.dedup.seen(eventID) {
		telemetry.RemoteEventsTotal.With("duplicate").Inc()
		log.Debug().Uint64("event_id", eventID).Str("origin", evt.OriginServer).Msg("Dropping duplicate remote event")
		return
	}

	set := evt.ToChangeSet()
	b.notifier.ApplyChangeSet(set)

	telemetry.RemoteEventsTotal.With("applied").Inc()
	telemetry.CommitsProcessedTotal.With("cluster").Inc()
	log.Debug().
		Uint64("event_id", eventID).
		Str("origin", evt.OriginServer).
		Msg("Applied remote transaction event to local cache")
}

// String describes the broadcaster for logs.
func (b *Broadcaster) String() string {
	if !b.IsClustering() {
		return "cluster disabled"
	}
	return fmt.Sprintf("cluster server=%s", b.serverName)
}
