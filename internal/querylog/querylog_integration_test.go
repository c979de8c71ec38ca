package querylog

import (
	"context"
	"testing"
	"time"

	"github.com/askbase/askbase/internal/testutil"
)

func TestAppendAndListWindow(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewStore(db.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	queries := []string{"first question", "second question", "first question"}
	for _, q := range queries {
		if err := store.Append(ctx, q, "some response", "model-x"); err != nil {
			t.Fatal(err)
		}
	}

	now := time.Now().UTC()
	records, err := store.ListWindow(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	// Oldest first.
	if records[0].Query != "first question" || records[1].Query != "second question" {
		t.Errorf("unexpected order: %v", records)
	}
	if records[0].Response != "some response" || records[0].ModelUsed != "model-x" {
		t.Errorf("record fields not persisted: %+v", records[0])
	}

	// A window in the past excludes everything.
	old, err := store.ListWindow(ctx, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 0 {
		t.Errorf("past window returned %d records", len(old))
	}
}

func TestAppendRequiresQuery(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, _ := NewStore(db.Pool, testutil.DiscardLogger())
	if err := store.Append(context.Background(), "", "r", "m"); err == nil {
		t.Error("empty query must be rejected")
	}
}

func TestListWindowValidation(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, _ := NewStore(db.Pool, testutil.DiscardLogger())
	now := time.Now()
	if _, err := store.ListWindow(context.Background(), now, now); err == nil {
		t.Error("empty window must be rejected")
	}
	if _, err := store.ListWindow(context.Background(), now, now.Add(-time.Hour)); err == nil {
		t.Error("inverted window must be rejected")
	}
}
