// Package cluster broadcasts committed change sets to other nodes and
// replays inbound remote events into the local cache. Delivery is best-effort
// and fire-and-forget: a member that misses an update reconciles through its
// own cache expiry, never through redelivery.
package cluster

// MemberInfo describes a cluster member as the transport sees it.
type MemberInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

// MemberOutcome is the per-member result of one broadcast attempt.
type MemberOutcome struct {
	Member string
	Err    error
}

// Transport carries envelopes between cluster members. Lifecycle: Join at
// startup registers the inbound handler and connects; Leave at shutdown tears
// down; between the two the membership view is read-only for broadcasters.
type Transport interface {
	// Join connects and registers the handler for inbound envelopes.
	Join(onPayload func(payload []byte)) error
	// Leave disconnects. Safe to call once after a successful Join.
	Leave() error
	// Send fires the payload at all known members without waiting for
	// acknowledgement, returning a best-effort per-member outcome.
	Send(payload []byte) []MemberOutcome
	// Members returns the current membership view.
	Members() []MemberInfo
}
