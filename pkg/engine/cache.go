package engine

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/catalogfi/swapper/pkg/swap"
)

// DefaultCacheCapacity bounds the in-memory store across a long running
// process tracking many historical orders.
const DefaultCacheCapacity = 4096

type memClaim struct {
	claim     Claim
	expiresAt time.Time
}

type memStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memClaim]
}

// NewInMemStore returns a Store for a single process, claims are lost on
// restart. Entries are evicted by LRU capacity and checked against their TTL
// at read time, an entry past either bound cannot block a claim.
func NewInMemStore(capacity int) (Store, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	entries, err := lru.New[string, memClaim](capacity)
	if err != nil {
		return nil, err
	}
	return &memStore{entries: entries}, nil
}

func (ms *memStore) TryClaim(orderID string, action swap.Action, ttl time.Duration) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := claimKey(orderID, action)
	if entry, ok := ms.entries.Get(key); ok && time.Now().Before(entry.expiresAt) {
		return false, nil
	}
	now := time.Now()
	ms.entries.Add(key, memClaim{
		claim:     Claim{SubmittedAt: now},
		expiresAt: now.Add(ttl),
	})
	return true, nil
}

func (ms *memStore) RecordResult(orderID string, action swap.Action, txHash string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := claimKey(orderID, action)
	entry, ok := ms.entries.Get(key)
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	entry.claim.TxHash = txHash
	ms.entries.Add(key, entry)
	return nil
}

func (ms *memStore) Release(orderID string, action swap.Action) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries.Remove(claimKey(orderID, action))
	return nil
}

func (ms *memStore) Claim(orderID string, action swap.Action) (Claim, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Peek, a read must not refresh the entry's recency
	entry, ok := ms.entries.Peek(claimKey(orderID, action))
	if !ok || time.Now().After(entry.expiresAt) {
		return Claim{}, false, nil
	}
	return entry.claim, true, nil
}

func (ms *memStore) RemainingTTL(orderID string, action swap.Action) (time.Duration, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, ok := ms.entries.Peek(claimKey(orderID, action))
	if !ok {
		return 0, nil
	}
	remaining := time.Until(entry.expiresAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
