// Package syncutil provides keyed locking primitives.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// ShardedMutex provides a fixed-size pool of mutexes keyed by string.
// It is used to serialize all mutations of a single wager: unlike
// sync.Map-based per-key locks, memory stays bounded regardless of how
// many wager IDs are seen, at the cost of occasional false sharing
// between IDs that hash to the same shard.
type ShardedMutex struct {
	shards [256]sync.Mutex
}

// NewShardedMutex creates an empty mutex pool.
func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%256]
}
