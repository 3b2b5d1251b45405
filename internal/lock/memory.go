package lock

import (
	"context"
	"sync"
)

type memoryEntry struct {
	slot    chan struct{}
	waiters int
}

// MemoryLocker serializes holders of a key inside one process.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

func (memoryLocker *MemoryLocker) Lock(ctx context.Context, key string) (Lease, error) {
	memoryLocker.mu.Lock()

	entry, ok := memoryLocker.entries[key]
	if !ok {
		entry = &memoryEntry{slot: make(chan struct{}, 1)}
		memoryLocker.entries[key] = entry
	}

	entry.waiters++
	memoryLocker.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
		return &memoryLease{locker: memoryLocker, key: key, entry: entry}, nil
	case <-ctx.Done():
		memoryLocker.forget(key, entry)
		return nil, ErrLockNotAcquired
	}
}

// forget drops the entry once nobody holds or waits on it.
func (memoryLocker *MemoryLocker) forget(key string, entry *memoryEntry) {
	memoryLocker.mu.Lock()
	defer memoryLocker.mu.Unlock()

	entry.waiters--
	if entry.waiters == 0 {
		delete(memoryLocker.entries, key)
	}
}

func (memoryLocker *MemoryLocker) size() int {
	memoryLocker.mu.Lock()
	defer memoryLocker.mu.Unlock()

	return len(memoryLocker.entries)
}

type memoryLease struct {
	once   sync.Once
	locker *MemoryLocker
	key    string
	entry  *memoryEntry
}

func (lease *memoryLease) Release(_ context.Context) error {
	err := ErrLockNotHeld

	lease.once.Do(func() {
		<-lease.entry.slot
		lease.locker.forget(lease.key, lease.entry)

		err = nil
	})

	return err
}
