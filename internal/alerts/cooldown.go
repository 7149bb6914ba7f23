package alerts

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

var _ domain.CooldownSet = (*CooldownSet)(nil)

// CooldownSet is the in-memory dedup set. Expiries live in one min-heap;
// expired keys are evicted lazily on every call.
type CooldownSet struct {
	mu      sync.Mutex
	window  time.Duration
	expires map[domain.AlertKey]time.Time
	queue   expiryHeap
}

// NewCooldownSet returns a set whose entries live for window.
func NewCooldownSet(window time.Duration) *CooldownSet {
	return &CooldownSet{
		window:  window,
		expires: make(map[domain.AlertKey]time.Time),
	}
}

// Claim implements domain.CooldownSet.
func (s *CooldownSet) Claim(_ context.Context, key domain.AlertKey, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(now)
	if _, ok := s.expires[key]; ok {
		return false, nil
	}
	at := now.Add(s.window)
	s.expires[key] = at
	heap.Push(&s.queue, expiry{key: key, at: at})
	return true, nil
}

// Contains implements domain.CooldownSet.
func (s *CooldownSet) Contains(_ context.Context, key domain.AlertKey, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(now)
	_, ok := s.expires[key]
	return ok, nil
}

// Len returns the number of keys still cooling down as of the last call.
func (s *CooldownSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

func (s *CooldownSet) evictLocked(now time.Time) {
	for s.queue.Len() > 0 && !now.Before(s.queue[0].at) {
		e := heap.Pop(&s.queue).(expiry)
		delete(s.expires, e.key)
	}
}

type expiry struct {
	key domain.AlertKey
	at  time.Time
}

type expiryHeap []expiry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
