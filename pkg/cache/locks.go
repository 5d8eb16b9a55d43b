package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// keyLocks hands out one mutex per key. Entries live only while a caller holds or
// waits for them, so the table never grows beyond the number of keys in flight.
type keyLocks struct {
	shards []lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks(shards int) *keyLocks {
	if shards < 1 {
		shards = 1
	}
	kl := &keyLocks{shards: make([]lockShard, shards)}
	for i := range kl.shards {
		kl.shards[i].locks = make(map[string]*keyLock)
	}
	return kl
}

// lock blocks until the caller owns key and returns the matching unlock.
func (kl *keyLocks) lock(key string) (unlock func()) {
	shard := &kl.shards[xxhash.Sum64String(key)%uint64(len(kl.shards))]

	shard.mu.Lock()
	l, ok := shard.locks[key]
	if !ok {
		l = &keyLock{}
		shard.locks[key] = l
	}
	l.refs++
	shard.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		shard.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(shard.locks, key)
		}
		shard.mu.Unlock()
	}
}

// size returns the number of live entries.
func (kl *keyLocks) size() int {
	n := 0
	for i := range kl.shards {
		kl.shards[i].mu.Lock()
		n += len(kl.shards[i].locks)
		kl.shards[i].mu.Unlock()
	}
	return n
}
