package notification

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type entryState int

const (
	stateQueued entryState = iota
	stateFailed
)

// entry is an in-memory work item for notifications that are never written
// to the offline store.
type entry struct {
	item
	retryCount int
	lastError  string
	state      entryState
}

// memQueue holds unpersisted entries. Each entry expires from the cache at
// its own TTL, which is how ephemeral notifications are abandoned.
type memQueue struct {
	mu    sync.Mutex
	items *cache.Cache

	// sent and failed only grow; entries leave the cache but stay counted.
	sent   int64
	failed int64
}

func newMemQueue() *memQueue {
	return &memQueue{items: cache.New(cache.NoExpiration, time.Minute)}
}

func (q *memQueue) add(it item, now time.Time) {
	ttl := it.expiresAt.Sub(now)
	if ttl <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Set(it.id, &entry{item: it}, ttl)
}

// ready returns queued entries due at now, optionally for a single user.
func (q *memQueue) ready(now time.Time, userID string) []item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []item
	for _, v := range q.items.Items() {
		e := v.Object.(*entry)
		if e.state != stateQueued || e.scheduledAt.After(now) || !now.Before(e.expiresAt) {
			continue
		}
		if userID != "" && e.userID != userID {
			continue
		}
		out = append(out, e.item)
	}
	return out
}

func (q *memQueue) markSent(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Delete(id)
	q.sent++
}

func (q *memQueue) drop(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Delete(id)
}

// recordFailure bumps the retry count and reports whether the entry is now
// terminal. Terminal entries stay in the cache until they expire so they are
// never picked up again.
func (q *memQueue) recordFailure(id, cause string, maxRetries int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.items.Get(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.retryCount++
	e.lastError = cause
	if e.retryCount > maxRetries {
		e.state = stateFailed
		q.failed++
		return true
	}
	return false
}

type memSnapshot struct {
	queuedByPriority map[int]int64
	failed           int64
	sent             int64
}

func (q *memQueue) snapshot(now time.Time) memSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := memSnapshot{queuedByPriority: make(map[int]int64), sent: q.sent, failed: q.failed}
	for _, v := range q.items.Items() {
		e := v.Object.(*entry)
		if e.state != stateQueued || !now.Before(e.expiresAt) {
			continue
		}
		s.queuedByPriority[e.priority]++
	}
	return s
}
