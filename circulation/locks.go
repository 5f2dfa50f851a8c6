package circulation

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes operations per entity id. Operations on unrelated
// copies or loans never block each other; two operations racing on the same
// key run one after the other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu      sync.Mutex
	holders int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[uuid.UUID]*keyedLock),
	}
}

// lock acquires the mutex for the given key, creating it on first use.
func (km *keyedMutex) lock(key uuid.UUID) {
	km.mu.Lock()
	kl, ok := km.locks[key]
	if !ok {
		kl = &keyedLock{}
		km.locks[key] = kl
	}
	kl.holders++
	km.mu.Unlock()

	kl.mu.Lock()
}

// unlock releases the mutex for the given key and drops it from the map once
// no other operation is waiting on it.
func (km *keyedMutex) unlock(key uuid.UUID) {
	km.mu.Lock()
	kl := km.locks[key]
	kl.holders--
	if kl.holders == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	kl.mu.Unlock()
}
