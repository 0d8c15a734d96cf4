package reconcile

import (
	"hash/fnv"
	"io"
	"sync"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

const lockShards = 64

// keyLocks is a sharded mutex table giving per-content-key mutual exclusion
// around read-modify-write cycles. Keys hash to shards; two keys on the same
// shard serialize, which is acceptable false sharing at this scale.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

// lock acquires the shard for key and returns its release func. Callers hold
// at most one shard at a time, so acquisition order cannot deadlock.
func (l *keyLocks) lock(key model.Key) func() {
	s := &l.shards[shardIndex(key)]
	s.Lock()
	return s.Unlock
}

func shardIndex(key model.Key) uint32 {
	h := fnv.New32a()
	io.WriteString(h, key.String()) //nolint:errcheck
	return h.Sum32() % lockShards
}
