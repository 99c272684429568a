package search

import (
	"context"
	"errors"
	"testing"

	"github.com/appsight/core/internal/models"
	"github.com/appsight/core/internal/pkg/reportkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([]models.Vector, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([]models.Vector, len(texts))
	for i := range texts {
		vecs[i] = models.Vector{1, 0, 0}
	}
	return vecs, nil
}

type fakeMatcher struct {
	matches  []Match
	descSims map[string]float64
	err      error
}

func (f *fakeMatcher) MatchChunks(context.Context, models.Vector, float64, int) ([]Match, error) {
	return f.matches, f.err
}

func (f *fakeMatcher) DescriptionSimilarities(_ context.Context, _ models.Vector, hashes []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, h := range hashes {
		if sim, ok := f.descSims[h]; ok {
			out[h] = sim
		}
	}
	return out, nil
}

type fakeStore struct {
	rows []models.EmbeddingModel
}

func (f *fakeStore) InsertEmbeddings(_ context.Context, rows []models.EmbeddingModel) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func testOptions() Options {
	return Options{
		SemanticEnabled:     true,
		SimilarityThreshold: 0.75,
		TopK:                30,
		ChunkWords:          120,
	}
}

func testDocs() []Document {
	return []Document{
		doc("aaa", "dark mode please"),
		doc("bbb", "I love dark mode"),
		doc("ccc", "no feature request"),
	}
}

func TestRankSemanticExclusiveWhenNonEmpty(t *testing.T) {
	matcher := &fakeMatcher{
		matches: []Match{
			{ReportHash: "ccc", Similarity: 0.95},
			{ReportHash: "aaa", Similarity: 0.80},
		},
		descSims: map[string]float64{"ccc": 0.90, "aaa": 0.80},
	}
	svc := NewService(&fakeEmbedder{}, matcher, nil, testOptions(), zap.NewNop())

	ranked := svc.Rank(context.Background(), "dark mode", testDocs())
	require.Len(t, ranked, 2)

	// semantic ordering wins even where BM25 would disagree
	assert.Equal(t, reportkey.Key("ccc"), ranked[0].Key)
	assert.InDelta(t, (0.95+0.90)/2, ranked[0].Score, 1e-9)
	assert.Equal(t, reportkey.Key("aaa"), ranked[1].Key)
}

func TestRankWeakDescriptionDiscardsReport(t *testing.T) {
	matcher := &fakeMatcher{
		matches: []Match{
			{ReportHash: "aaa", Similarity: 0.99},
			{ReportHash: "bbb", Similarity: 0.90},
		},
		descSims: map[string]float64{"aaa": 0.50, "bbb": 0.80},
	}
	svc := NewService(&fakeEmbedder{}, matcher, nil, testOptions(), zap.NewNop())

	ranked := svc.Rank(context.Background(), "dark mode", testDocs())
	require.Len(t, ranked, 1)
	assert.Equal(t, reportkey.Key("bbb"), ranked[0].Key)
}

func TestRankFallsBackToLexicalWhenSemanticEmpty(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, &fakeMatcher{}, nil, testOptions(), zap.NewNop())

	ranked := svc.Rank(context.Background(), "dark mode", testDocs())
	require.Len(t, ranked, 2)
	assert.Equal(t, reportkey.Key("aaa"), ranked[0].Key)
	assert.Equal(t, reportkey.Key("bbb"), ranked[1].Key)
}

func TestRankFallsBackToLexicalWhenDisabled(t *testing.T) {
	embedder := &fakeEmbedder{}
	opts := testOptions()
	opts.SemanticEnabled = false
	svc := NewService(embedder, &fakeMatcher{}, nil, opts, zap.NewNop())

	ranked := svc.Rank(context.Background(), "dark mode", testDocs())
	require.Len(t, ranked, 2)
	assert.Zero(t, embedder.calls)
}

func TestRankFallsBackToLexicalOnEmbedError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("upstream down")}
	svc := NewService(embedder, &fakeMatcher{}, nil, testOptions(), zap.NewNop())

	ranked := svc.Rank(context.Background(), "dark mode", testDocs())
	require.Len(t, ranked, 2)
	assert.Equal(t, reportkey.Key("aaa"), ranked[0].Key)
}

func TestRankIgnoresMatchesOutsideCandidateSet(t *testing.T) {
	matcher := &fakeMatcher{
		matches:  []Match{{ReportHash: "zzz", Similarity: 0.99}},
		descSims: map[string]float64{"zzz": 0.99},
	}
	svc := NewService(&fakeEmbedder{}, matcher, nil, testOptions(), zap.NewNop())

	// the only semantic hit is invisible to the caller, lexical ranks
	ranked := svc.Rank(context.Background(), "dark mode", testDocs())
	require.Len(t, ranked, 2)
	assert.Equal(t, reportkey.Key("aaa"), ranked[0].Key)
}

func TestIndexReportChunksAndPersists(t *testing.T) {
	store := &fakeStore{}
	opts := testOptions()
	opts.ChunkWords = 3
	svc := NewService(&fakeEmbedder{}, &fakeMatcher{}, store, opts, zap.NewNop())

	key := reportkey.ForURL("https://play.example/app")
	err := svc.IndexReport(context.Background(), key, "a weather app", "one two three four five")
	require.NoError(t, err)

	require.Len(t, store.rows, 3)
	assert.Equal(t, "one two three", store.rows[0].Chunk)
	assert.Equal(t, kindContent, store.rows[0].Kind)
	assert.Equal(t, "four five", store.rows[1].Chunk)
	assert.Equal(t, "a weather app", store.rows[2].Chunk)
	assert.Equal(t, kindDescription, store.rows[2].Kind)
	for _, row := range store.rows {
		assert.Equal(t, key.String(), row.ReportHash)
		assert.Equal(t, 3, row.Dimensions)
	}
}

func TestIndexReportNoopWhenDisabled(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	opts := testOptions()
	opts.SemanticEnabled = false
	svc := NewService(embedder, &fakeMatcher{}, store, opts, zap.NewNop())

	require.NoError(t, svc.IndexReport(context.Background(), reportkey.ForURL("https://x.example"), "d", "text"))
	assert.Empty(t, store.rows)
	assert.Zero(t, embedder.calls)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine(models.Vector{1, 0}, models.Vector{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine(models.Vector{1, 0}, models.Vector{0, 3}), 1e-9)
	assert.Zero(t, cosine(models.Vector{1, 0}, models.Vector{1}))
}
