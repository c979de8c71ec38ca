package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/testutil"
)

// mockStore is a hand-rolled answerStore for unit tests.
type mockStore struct {
	variants map[string]answer.Variant
	answers  map[string]answer.CanonicalAnswer
	top      []answer.CanonicalAnswer

	getVariantErr error
	getClusterErr error
	topErr        error
	putErr        error

	variantCalls int
	topCalls     int
	recordedUse  []string
	putVariants  []answer.Variant
}

func newMockStore() *mockStore {
	return &mockStore{
		variants: make(map[string]answer.Variant),
		answers:  make(map[string]answer.CanonicalAnswer),
	}
}

func (m *mockStore) GetByCluster(_ context.Context, clusterID string) (*answer.CanonicalAnswer, error) {
	if m.getClusterErr != nil {
		return nil, m.getClusterErr
	}
	a, ok := m.answers[clusterID]
	if !ok {
		return nil, answer.ErrNotFound
	}
	return &a, nil
}

func (m *mockStore) TopByUsage(_ context.Context, _ int) ([]answer.CanonicalAnswer, error) {
	m.topCalls++
	if m.topErr != nil {
		return nil, m.topErr
	}
	return m.top, nil
}

func (m *mockStore) RecordUse(_ context.Context, clusterID string) error {
	m.recordedUse = append(m.recordedUse, clusterID)
	return nil
}

func (m *mockStore) GetVariant(_ context.Context, queryHash string) (*answer.Variant, error) {
	m.variantCalls++
	if m.getVariantErr != nil {
		return nil, m.getVariantErr
	}
	v, ok := m.variants[queryHash]
	if !ok {
		return nil, answer.ErrNotFound
	}
	return &v, nil
}

func (m *mockStore) PutVariant(_ context.Context, v answer.Variant) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.putVariants = append(m.putVariants, v)
	return nil
}

func newTestResolver(store *mockStore, embedder *testutil.MockEmbedder, cfg Config) *Resolver {
	return New(store, embedder, testutil.DiscardLogger(), cfg)
}

func TestResolveEmptyQuery(t *testing.T) {
	store := newMockStore()
	embedder := &testutil.MockEmbedder{}
	r := newTestResolver(store, embedder, Config{})

	for _, q := range []string{"", "   ", "\t\n"} {
		res := r.Resolve(context.Background(), q, "u1")
		if res.Hit {
			t.Errorf("Resolve(%q) = hit, want miss", q)
		}
	}

	if store.variantCalls != 0 || store.topCalls != 0 {
		t.Errorf("empty query touched the store: variant=%d top=%d",
			store.variantCalls, store.topCalls)
	}
	if embedder.Calls != 0 {
		t.Errorf("empty query reached the embedder: %d calls", embedder.Calls)
	}
}

func TestResolveExactHit(t *testing.T) {
	store := newMockStore()
	hash := HashQuery("How do I extend my KITAS?")
	store.variants[hash] = answer.Variant{QueryHash: hash, ClusterID: "c_kitas"}
	store.answers["c_kitas"] = answer.CanonicalAnswer{
		ClusterID:  "c_kitas",
		AnswerText: "Submit form E23 at the immigration office.",
		Sources:    []string{"kb/kitas-extension"},
		Confidence: 0.95,
	}

	embedder := &testutil.MockEmbedder{}
	r := newTestResolver(store, embedder, Config{})

	res := r.Resolve(context.Background(), "how do i extend my kitas?", "u1")
	if !res.Hit {
		t.Fatal("want exact hit")
	}
	if res.MatchType != MatchExact {
		t.Errorf("MatchType = %q, want %q", res.MatchType, MatchExact)
	}
	if res.ClusterID != "c_kitas" {
		t.Errorf("ClusterID = %q, want c_kitas", res.ClusterID)
	}
	if res.Answer != "Submit form E23 at the immigration office." {
		t.Errorf("unexpected answer %q", res.Answer)
	}
	if res.Similarity != 0 {
		t.Errorf("exact hit should report zero similarity, got %g", res.Similarity)
	}

	// Exact path never computes embeddings.
	if embedder.Calls != 0 {
		t.Errorf("exact hit reached the embedder: %d calls", embedder.Calls)
	}
	if len(store.recordedUse) != 1 || store.recordedUse[0] != "c_kitas" {
		t.Errorf("recordedUse = %v, want [c_kitas]", store.recordedUse)
	}
}

func TestResolveExactHitRepeated(t *testing.T) {
	store := newMockStore()
	hash := HashQuery("repeat me")
	store.variants[hash] = answer.Variant{QueryHash: hash, ClusterID: "c_rep"}
	store.answers["c_rep"] = answer.CanonicalAnswer{ClusterID: "c_rep", AnswerText: "a"}

	r := newTestResolver(store, &testutil.MockEmbedder{}, Config{})

	for i := 0; i < 3; i++ {
		if res := r.Resolve(context.Background(), "repeat me", "u1"); !res.Hit {
			t.Fatalf("resolve %d: want hit", i)
		}
	}
	if len(store.recordedUse) != 3 {
		t.Errorf("usage recorded %d times, want 3", len(store.recordedUse))
	}
}

func TestResolveDanglingVariant(t *testing.T) {
	store := newMockStore()
	hash := HashQuery("orphaned query")
	store.variants[hash] = answer.Variant{QueryHash: hash, ClusterID: "c_gone"}
	// No canonical answer for c_gone, and no semantic candidates.

	embedder := &testutil.MockEmbedder{Default: []float32{1, 0}}
	r := newTestResolver(store, embedder, Config{})

	res := r.Resolve(context.Background(), "orphaned query", "u1")
	if res.Hit {
		t.Error("dangling variant reference should be a miss, not an error")
	}
	if len(store.recordedUse) != 0 {
		t.Errorf("miss should not record usage, got %v", store.recordedUse)
	}
}

func TestResolveStoreErrorFailsOpen(t *testing.T) {
	store := newMockStore()
	store.getVariantErr = errors.New("connection refused")
	store.topErr = errors.New("connection refused")

	r := newTestResolver(store, &testutil.MockEmbedder{}, Config{})

	res := r.Resolve(context.Background(), "any query", "u1")
	if res.Hit {
		t.Error("storage failure should degrade to a miss")
	}
}

func TestResolveSemanticHit(t *testing.T) {
	store := newMockStore()
	store.top = []answer.CanonicalAnswer{
		{
			ClusterID:         "c_kitas",
			CanonicalQuestion: "how do i extend my kitas?",
			AnswerText:        "Submit form E23 at the immigration office.",
			Sources:           []string{"kb/kitas-extension"},
			Confidence:        0.95,
			UsageCount:        40,
			QuestionEmbedding: []float32{1, 0},
		},
		{
			ClusterID:         "c_other",
			CanonicalQuestion: "unrelated",
			UsageCount:        5,
			QuestionEmbedding: []float32{0, 1},
		},
	}

	// cos([4,3], [1,0]) = 4/5 = 0.80, exactly at the inclusive threshold.
	embedder := &testutil.MockEmbedder{
		Vectors: map[string][]float32{
			"what's the process for kitas renewal": {4, 3},
		},
	}
	r := newTestResolver(store, embedder, Config{Threshold: 0.80})

	res := r.Resolve(context.Background(), "What's the process for KITAS renewal", "u1")
	if !res.Hit {
		t.Fatal("similarity exactly at threshold must hit")
	}
	if res.MatchType != MatchSemantic {
		t.Errorf("MatchType = %q, want %q", res.MatchType, MatchSemantic)
	}
	if res.ClusterID != "c_kitas" {
		t.Errorf("ClusterID = %q, want c_kitas", res.ClusterID)
	}
	if res.Similarity < 0.80 {
		t.Errorf("Similarity = %g, want >= 0.80", res.Similarity)
	}

	// The new phrasing becomes an exact-match variant.
	if len(store.putVariants) != 1 {
		t.Fatalf("putVariants = %d, want 1", len(store.putVariants))
	}
	v := store.putVariants[0]
	if v.ClusterID != "c_kitas" {
		t.Errorf("variant cluster = %q, want c_kitas", v.ClusterID)
	}
	if v.QueryHash != HashQuery("What's the process for KITAS renewal") {
		t.Error("variant hash must match the exact-path hash of the raw query")
	}
	if len(store.recordedUse) != 1 {
		t.Errorf("recordedUse = %v, want one entry", store.recordedUse)
	}
}

func TestResolveSemanticBelowThreshold(t *testing.T) {
	store := newMockStore()
	store.top = []answer.CanonicalAnswer{
		{ClusterID: "c_a", QuestionEmbedding: []float32{1, 0}},
	}

	// cos([3,4], [1,0]) = 0.60 < 0.80.
	embedder := &testutil.MockEmbedder{
		Vectors: map[string][]float32{"distant query": {3, 4}},
	}
	r := newTestResolver(store, embedder, Config{Threshold: 0.80})

	res := r.Resolve(context.Background(), "distant query", "u1")
	if res.Hit {
		t.Errorf("similarity 0.60 must miss at threshold 0.80, got hit on %s", res.ClusterID)
	}
	if len(store.putVariants) != 0 {
		t.Error("miss must not write variants")
	}
}

func TestResolveSemanticTiePrefersMostUsed(t *testing.T) {
	store := newMockStore()
	// TopByUsage order is usage descending; both candidates score 1.0.
	store.top = []answer.CanonicalAnswer{
		{ClusterID: "c_popular", UsageCount: 100, QuestionEmbedding: []float32{1, 0}},
		{ClusterID: "c_niche", UsageCount: 2, QuestionEmbedding: []float32{1, 0}},
	}

	embedder := &testutil.MockEmbedder{
		Vectors: map[string][]float32{"tied query": {1, 0}},
	}
	r := newTestResolver(store, embedder, Config{})

	for i := 0; i < 5; i++ {
		res := r.Resolve(context.Background(), "tied query", "u1")
		if !res.Hit || res.ClusterID != "c_popular" {
			t.Fatalf("run %d: tie must deterministically pick c_popular, got %+v", i, res)
		}
	}
}

func TestResolveSemanticSkipsAnomalousCandidate(t *testing.T) {
	store := newMockStore()
	store.top = []answer.CanonicalAnswer{
		// Dimension mismatch yields a NaN similarity; the candidate is
		// skipped, not treated as a hit or an abort.
		{ClusterID: "c_bad", QuestionEmbedding: []float32{1, 0, 0}},
		{ClusterID: "c_good", QuestionEmbedding: []float32{1, 0}},
	}

	embedder := &testutil.MockEmbedder{
		Vectors: map[string][]float32{"query": {1, 0}},
	}
	r := newTestResolver(store, embedder, Config{})

	res := r.Resolve(context.Background(), "query", "u1")
	if !res.Hit || res.ClusterID != "c_good" {
		t.Errorf("want hit on c_good past the anomalous candidate, got %+v", res)
	}
}

func TestResolveEmbeddingFailure(t *testing.T) {
	store := newMockStore()
	store.top = []answer.CanonicalAnswer{
		{ClusterID: "c_a", QuestionEmbedding: []float32{1, 0}},
	}
	embedder := &testutil.MockEmbedder{Err: errors.New("quota exhausted")}
	r := newTestResolver(store, embedder, Config{})

	if res := r.Resolve(context.Background(), "some query", "u1"); res.Hit {
		t.Error("embedding failure must degrade to a miss")
	}
}

func TestResolveEmbeddingTimeout(t *testing.T) {
	store := newMockStore()
	store.top = []answer.CanonicalAnswer{
		{ClusterID: "c_a", QuestionEmbedding: []float32{1, 0}},
	}
	embedder := &testutil.MockEmbedder{
		Vectors: map[string][]float32{"slow query": {1, 0}},
		Delay:   200 * time.Millisecond,
	}
	r := newTestResolver(store, embedder, Config{EmbedTimeout: 5 * time.Millisecond})

	start := time.Now()
	res := r.Resolve(context.Background(), "slow query", "u1")
	if res.Hit {
		t.Error("embedding timeout must degrade to a miss")
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("resolution waited %v, should abandon the embed call early", elapsed)
	}
}

func TestResolveVariantWriteFailureStillHits(t *testing.T) {
	store := newMockStore()
	store.top = []answer.CanonicalAnswer{
		{ClusterID: "c_a", AnswerText: "a", QuestionEmbedding: []float32{1, 0}},
	}
	store.putErr = errors.New("write conflict")

	embedder := &testutil.MockEmbedder{
		Vectors: map[string][]float32{"query": {1, 0}},
	}
	r := newTestResolver(store, embedder, Config{})

	if res := r.Resolve(context.Background(), "query", "u1"); !res.Hit {
		t.Error("variant write failure must not turn a hit into a miss")
	}
}
