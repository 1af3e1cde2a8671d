package store

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps redeemed hashes in a mutex-guarded map with TTL
// eviction. Entries older than the TTL are swept out to bound memory; the
// TTL should match the challenge's maxTimeoutSeconds so a record lives at
// least as long as the proof it blocks is plausibly presented.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]int64
	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

// NewMemoryStore builds a store whose records expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]int64),
		ttl:  ttl,
		done: make(chan struct{}),
	}
}

// Consume records the hash and reports whether it was fresh. Hashes are
// hexadecimal, so keys are compared case-insensitively.
func (s *MemoryStore) Consume(txHash string) bool {
	key := strings.ToLower(txHash)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return false
	}
	s.data[key] = time.Now().Unix()
	return true
}

// Len reports the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// StartSweeper launches a background goroutine that evicts expired records
// on the given interval. Close stops it.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl).Unix()
	for key, redeemedAt := range s.data {
		if redeemedAt < cutoff {
			delete(s.data, key)
		}
	}
}
