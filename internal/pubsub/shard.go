// shard.go picks which of a fixed set of broadcast channels a cluster-wide
// notification belongs on. Direct user messages are still routed to the
// single gateway a session names (see pubsub.go's Publish); shards exist
// for the broadcast path, where every gateway instance might need to see a
// notification (e.g. "this user's presence changed") but a channel per
// physical gateway process would make the fan-in too wide as the cluster
// grows. Bucketing into a fixed shard count instead bounds subscriber
// fan-in independent of cluster size.
package pubsub

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// ShardRouter assigns keys to one of a fixed set of shard channels using
// rendezvous (highest random weight) hashing: adding or removing a shard
// only remaps the keys that belonged to that shard, unlike a plain modulo
// hash.
type ShardRouter struct {
	shards []string
	rdv    *rendezvous.Rendezvous
}

// NewShardRouter builds a router over the given shard names. shards must be
// non-empty and is typically a small fixed list such as
// []string{"shard-0", "shard-1", "shard-2", "shard-3"}.
func NewShardRouter(shards []string) *ShardRouter {
	cp := append([]string(nil), shards...)
	return &ShardRouter{
		shards: cp,
		rdv:    rendezvous.New(cp, xxhashString),
	}
}

func xxhashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Shard returns the channel name key is assigned to.
func (r *ShardRouter) Shard(key string) string {
	return r.rdv.Lookup(key)
}

// Shards returns the router's configured shard names.
func (r *ShardRouter) Shards() []string {
	return r.shards
}
