package change

// RemoteTransactionEvent is the wire-level envelope broadcast to other
// cluster nodes. It carries only what remote caches need: identities by type,
// table-level deltas and delete-by-id sets. Bean snapshots and changed
// property names never leave the originating node.
type RemoteTransactionEvent struct {
	OriginServer string                   `msgpack:"origin"`
	BeanIDs      []*PersistIDs            `msgpack:"beans,omitempty"`
	TableEvents  []TableIUD               `msgpack:"tables,omitempty"`
	DeleteByID   map[string][]interface{} `msgpack:"del_by_id,omitempty"`
}

// NewRemoteTransactionEvent builds the envelope for a locally committed set.
// Call only when clustering is active; the caller gates the actual broadcast
// on IsEmpty.
func NewRemoteTransactionEvent(originServer string, set *Set) *RemoteTransactionEvent {
	evt := &RemoteTransactionEvent{OriginServer: originServer}
	if m := BuildPersistIDMap(set); m != nil {
		evt.BeanIDs = m.Values()
	}
	if len(set.tableEvents) > 0 {
		evt.TableEvents = set.tableEvents
	}
	if len(set.deleteByID) > 0 {
		evt.DeleteByID = set.deleteByID
	}
	return evt
}

// IsEmpty reports whether the envelope carries no cache-relevant change.
// Empty envelopes are never broadcast.
func (e *RemoteTransactionEvent) IsEmpty() bool {
	return len(e.BeanIDs) == 0 && len(e.TableEvents) == 0 && len(e.DeleteByID) == 0
}

// ToChangeSet reconstructs a local cache-only view of the remote event. The
// result is tagged as cluster-sourced: it feeds LocalCacheNotifier and
// nothing else.
func (e *RemoteTransactionEvent) ToChangeSet() *Set {
	set := &Set{fromCluster: true}
	for _, p := range e.BeanIDs {
		for _, id := range p.InsertIDs {
			set.inserted = append(set.inserted, BeanChange{BeanType: p.BeanType, ID: id, Kind: KindInsert})
		}
		for _, id := range p.UpdateIDs {
			set.updated = append(set.updated, BeanChange{BeanType: p.BeanType, ID: id, Kind: KindUpdate})
		}
		for _, id := range p.DeleteIDs {
			set.deleted = append(set.deleted, BeanChange{BeanType: p.BeanType, ID: id, Kind: KindDelete})
		}
	}
	set.tableEvents = e.TableEvents
	if len(e.DeleteByID) > 0 {
		set.deleteByID = e.DeleteByID
	}
	return set
}
