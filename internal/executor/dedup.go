package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// RecentTxs remembers the message fingerprints of recent broadcasts so the
// same trade is not resubmitted while the first attempt is still waiting for
// a block. It is safe for concurrent use.
type RecentTxs struct {
	seen map[string]time.Time // fingerprint -> broadcast time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewRecentTxs creates a RecentTxs that forgets entries after ttl. A zero ttl
// disables the guard.
func NewRecentTxs(ttl time.Duration) *RecentTxs {
	return &RecentTxs{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Fingerprint hashes encoded messages.
func Fingerprint(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// Seen reports whether fp was marked within the ttl.
func (r *RecentTxs) Seen(fp string) bool {
	if r == nil || r.ttl <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[fp]
	return ok && r.now().Sub(at) < r.ttl
}

// Mark records a broadcast of fp and drops expired entries.
func (r *RecentTxs) Mark(fp string) {
	if r == nil || r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, at := range r.seen {
		if now.Sub(at) >= r.ttl {
			delete(r.seen, k)
		}
	}
	r.seen[fp] = now
}
