// Package keylock provides sharded per-key mutexes. The KV contract has no
// compare-and-swap, so every get/mutate/put cycle against one entity id must
// run under that id's lock to keep last-write-wins races out of the core.
package keylock

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

type KeyLock struct {
	shards [shardCount]sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{}
}

func (l *KeyLock) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}

// Lock acquires the shard owning key and returns its unlock func.
func (l *KeyLock) Lock(key string) func() {
	m := l.shard(key)
	m.Lock()
	return m.Unlock
}
