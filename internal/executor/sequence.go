package executor

import (
	"strings"
	"sync"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// codeWrongSequence is the SDK error code for an incorrect account sequence.
const codeWrongSequence = 32

// Sequences tracks the next sequence number of each signing account between
// a sync broadcast and the block that includes it. The LCD keeps returning
// the old sequence until then, so a second tx signed from that read would be
// rejected. It is safe for concurrent use and is shared by every sender that
// signs for the same account.
type Sequences struct {
	mu   sync.Mutex
	next map[string]uint64
}

// NewSequences returns an empty tracker.
func NewSequences() *Sequences {
	return &Sequences{next: make(map[string]uint64)}
}

// Resolve returns acc with its sequence raised to the locally known next
// sequence. A chain sequence that has caught up replaces the local one.
func (s *Sequences) Resolve(acc domain.Account) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next, ok := s.next[acc.Address]; ok {
		if next > acc.Sequence {
			acc.Sequence = next
		} else {
			delete(s.next, acc.Address)
		}
	}
	return acc
}

// Advance records that used was accepted into the mempool.
func (s *Sequences) Advance(addr string, used uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if used+1 > s.next[addr] {
		s.next[addr] = used + 1
	}
}

// Reset forgets the local sequence so the next send trusts the chain.
func (s *Sequences) Reset(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.next, addr)
}

// wrongSequence reports whether a broadcast failed on the account sequence.
func wrongSequence(res domain.BroadcastResult) bool {
	return res.Code == codeWrongSequence || strings.Contains(res.RawLog, "incorrect account sequence")
}
