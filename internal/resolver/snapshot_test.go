package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/askbase/askbase/internal/answer"
)

// countingSource counts loads and can be switched to failing.
type countingSource struct {
	answers []answer.CanonicalAnswer
	err     error
	calls   int
}

func (c *countingSource) TopByUsage(_ context.Context, _ int) ([]answer.CanonicalAnswer, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.answers, nil
}

func TestSnapshotCachesWithinTTL(t *testing.T) {
	src := &countingSource{answers: []answer.CanonicalAnswer{{ClusterID: "c_a"}}}
	snap := newSnapshot(src, 100, time.Hour)

	for i := 0; i < 5; i++ {
		got, err := snap.get(context.Background())
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if len(got) != 1 || got[0].ClusterID != "c_a" {
			t.Fatalf("get %d: unexpected candidates %v", i, got)
		}
	}

	if src.calls != 1 {
		t.Errorf("store loaded %d times within TTL, want 1", src.calls)
	}
}

func TestSnapshotRefreshesWhenStale(t *testing.T) {
	src := &countingSource{answers: []answer.CanonicalAnswer{{ClusterID: "c_a"}}}
	snap := newSnapshot(src, 100, time.Nanosecond)

	if _, err := snap.get(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	src.answers = []answer.CanonicalAnswer{{ClusterID: "c_b"}}
	got, err := snap.get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ClusterID != "c_b" {
		t.Errorf("stale snapshot not refreshed, got %v", got)
	}
}

func TestSnapshotStaleFallbackOnRefreshFailure(t *testing.T) {
	src := &countingSource{answers: []answer.CanonicalAnswer{{ClusterID: "c_a"}}}
	snap := newSnapshot(src, 100, time.Nanosecond)

	if _, err := snap.get(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	// A failed refresh serves the previous set rather than erroring.
	src.err = errors.New("db down")
	got, err := snap.get(context.Background())
	if err != nil {
		t.Fatalf("refresh failure with a prior set should not error: %v", err)
	}
	if len(got) != 1 || got[0].ClusterID != "c_a" {
		t.Errorf("want stale candidates [c_a], got %v", got)
	}
}

func TestSnapshotInitialLoadFailure(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	snap := newSnapshot(src, 100, time.Hour)

	if _, err := snap.get(context.Background()); err == nil {
		t.Error("first load with no fallback must return the error")
	}
}

func TestSnapshotInvalidateForcesReload(t *testing.T) {
	src := &countingSource{answers: []answer.CanonicalAnswer{{ClusterID: "c_a"}}}
	snap := newSnapshot(src, 100, time.Hour)

	if _, err := snap.get(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap.invalidate()
	if _, err := snap.get(context.Background()); err != nil {
		t.Fatal(err)
	}

	if src.calls != 2 {
		t.Errorf("store loaded %d times after invalidate, want 2", src.calls)
	}
}
