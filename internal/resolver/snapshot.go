package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/askbase/askbase/internal/answer"
)

// snapshot holds the popularity-ordered candidate set used by the
// semantic path. It is refreshed from the store at most once per TTL
// rather than on every semantic miss, trading slight staleness of the
// "top N" ranking for one less store round-trip per lookup.
type snapshot struct {
	store candidateSource
	limit int
	ttl   time.Duration

	mu        sync.RWMutex
	answers   []answer.CanonicalAnswer
	loadedAt  time.Time
	populated bool
}

// candidateSource provides the popularity-ordered candidate rows.
type candidateSource interface {
	TopByUsage(ctx context.Context, limit int) ([]answer.CanonicalAnswer, error)
}

func newSnapshot(store candidateSource, limit int, ttl time.Duration) *snapshot {
	return &snapshot{store: store, limit: limit, ttl: ttl}
}

// get returns the current candidate set, refreshing it when stale.
// A failed refresh falls back to the previous (stale) set when one
// exists; the error is returned only when no candidates are available
// at all.
func (s *snapshot) get(ctx context.Context) ([]answer.CanonicalAnswer, error) {
	s.mu.RLock()
	if s.populated && time.Since(s.loadedAt) < s.ttl {
		answers := s.answers
		s.mu.RUnlock()
		return answers, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check: another goroutine may have refreshed while we waited.
	if s.populated && time.Since(s.loadedAt) < s.ttl {
		return s.answers, nil
	}

	answers, err := s.store.TopByUsage(ctx, s.limit)
	if err != nil {
		if s.populated {
			return s.answers, nil
		}
		return nil, err
	}

	s.answers = answers
	s.loadedAt = time.Now()
	s.populated = true
	return s.answers, nil
}

// invalidate forces the next get to reload from the store. Used by the
// admin refresh surface and after promotions.
func (s *snapshot) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.populated = false
	s.answers = nil
}
