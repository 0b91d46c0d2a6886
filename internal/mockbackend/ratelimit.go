package mockbackend

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	rateWindow        = time.Minute
	maxTrackedClients = 4096
)

type clientWindow struct {
	hits   []time.Time
	unique map[string]time.Time
}

// RateLimiter is a per-client sliding-window limiter. A client may send at most
// limit requests and at most uniqueLimit distinct texts per minute; repeating a
// text already seen in the window does not count towards uniqueLimit.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	uniqueLimit int
	clients     *expirable.LRU[string, *clientWindow]
	now         func() time.Time
}

// NewRateLimiter returns a limiter. A zero limit disables that check.
func NewRateLimiter(limit, uniqueLimit int) *RateLimiter {
	return &RateLimiter{
		limit:       limit,
		uniqueLimit: uniqueLimit,
		clients:     expirable.NewLRU[string, *clientWindow](maxTrackedClients, nil, rateWindow),
		now:         time.Now,
	}
}

// Allow records a request for key carrying the text hashed as contentHash and
// reports whether it is within both limits. Rejected requests are not recorded.
func (rl *RateLimiter) Allow(key, contentHash string) bool {
	if rl.limit == 0 && rl.uniqueLimit == 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients.Get(key)
	if !ok {
		w = &clientWindow{unique: make(map[string]time.Time)}
	}

	cutoff := now.Add(-rateWindow)
	kept := w.hits[:0]
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	w.hits = kept
	for hash, seen := range w.unique {
		if !seen.After(cutoff) {
			delete(w.unique, hash)
		}
	}

	if rl.limit > 0 && len(w.hits) >= rl.limit {
		rl.clients.Add(key, w)
		return false
	}
	if _, seen := w.unique[contentHash]; !seen && rl.uniqueLimit > 0 && len(w.unique) >= rl.uniqueLimit {
		rl.clients.Add(key, w)
		return false
	}

	w.hits = append(w.hits, now)
	w.unique[contentHash] = now
	rl.clients.Add(key, w)
	return true
}
