package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appsight/core/internal/models"
	"github.com/appsight/core/internal/modules/appstore"
	"github.com/appsight/core/internal/modules/archive"
	"github.com/appsight/core/internal/modules/search"
	"github.com/appsight/core/internal/modules/store"
	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/reportkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memIndex is an in-memory MetadataIndex for coordinator tests.
type memIndex struct {
	mu          sync.Mutex
	reports     map[string]models.ReportModel
	comparisons map[string]models.ComparisonModel
}

func newMemIndex() *memIndex {
	return &memIndex{
		reports:     make(map[string]models.ReportModel),
		comparisons: make(map[string]models.ComparisonModel),
	}
}

func (m *memIndex) InsertReport(_ context.Context, row *models.ReportModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[row.Hash] = *row
	return nil
}

func (m *memIndex) GetReport(_ context.Context, hash string) (*models.ReportModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.reports[hash]
	if !ok {
		return nil, fault.ErrNotFound
	}
	return &row, nil
}

func (m *memIndex) DeleteReport(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, hash)
	return nil
}

func (m *memIndex) ListReports(_ context.Context, q store.ListQuery) ([]models.ReportModel, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.ReportModel
	for _, row := range m.reports {
		if !q.CreatedAfter.IsZero() && row.CreatedAt.Before(q.CreatedAfter) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, int64(len(rows)), nil
}

func (m *memIndex) InsertComparison(_ context.Context, row *models.ComparisonModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comparisons[row.Hash] = *row
	return nil
}

func (m *memIndex) GetComparison(_ context.Context, hash string) (*models.ComparisonModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.comparisons[hash]
	if !ok {
		return nil, fault.ErrNotFound
	}
	return &row, nil
}

func (m *memIndex) DeleteComparison(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comparisons, hash)
	return nil
}

func (m *memIndex) DeleteEmbeddings(context.Context, string) error { return nil }

func (m *memIndex) ExpiredHashes(_ context.Context, cutoff time.Time) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reports, comparisons []string
	for hash, row := range m.reports {
		if row.CreatedAt.Before(cutoff) {
			reports = append(reports, hash)
		}
	}
	for hash, row := range m.comparisons {
		if row.CreatedAt.Before(cutoff) {
			comparisons = append(comparisons, hash)
		}
	}
	return reports, comparisons, nil
}

type fakeApps struct{}

func (fakeApps) Details(_ context.Context, provider, appID string) (*appstore.Details, error) {
	return &appstore.Details{
		Listing: appstore.Listing{
			AppID:     appID,
			Title:     "App " + appID,
			Developer: "Dev",
			Score:     4.2,
		},
		Description: "description of " + appID,
		Reviews:     10,
		Histogram:   map[string]int64{"5": 8, "1": 2},
	}, nil
}

func (fakeApps) Reviews(context.Context, string, string, int) ([]appstore.Review, error) {
	return []appstore.Review{{ID: "r1", Score: 5, Text: "great"}}, nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	text   string
	err    error
	delay  time.Duration
	tokens []string
}

func (f *fakeGenerator) Generate(_ context.Context, _, _ string, onToken func(string)) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}

	tokens := f.tokens
	if tokens == nil {
		tokens = []string{f.text}
	}
	var full strings.Builder
	for _, token := range tokens {
		full.WriteString(token)
		if onToken != nil {
			onToken(token)
		}
	}
	return full.String(), nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCoordinator(t *testing.T, gen *fakeGenerator, ttl time.Duration) (*Coordinator, *memIndex) {
	t.Helper()
	blob, err := archive.NewLocal(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)
	index := newMemIndex()
	durable := store.NewService(index, blob, ttl, zap.NewNop())

	searcher := search.NewService(nil, nil, nil, search.Options{}, zap.NewNop())

	coordinator, err := NewCoordinator(durable, searcher, fakeApps{}, gen, Options{
		BaseURL:            "https://appsight.example.com",
		AnalysisCapacity:   100,
		ComparisonCapacity: 50,
		TTL:                ttl,
	}, zap.NewNop())
	require.NoError(t, err)
	return coordinator, index
}

const playURL = "https://play.google.com/store/apps/details?id=com.example.weather"

func collectChunks() (*[]string, *[]bool, ChunkFunc) {
	var chunks []string
	var cachedFlags []bool
	return &chunks, &cachedFlags, func(cached bool, chunk string) {
		chunks = append(chunks, chunk)
		cachedFlags = append(cachedFlags, cached)
	}
}

func TestGenerateThenCachedReplayPreservesText(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"## Summary\n", "line two\n", "line three"}}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	liveChunks, liveCached, onLive := collectChunks()
	report, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, onLive)
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nline two\nline three", report.FullText)
	assert.Equal(t, []bool{false, false, false}, *liveCached)
	assert.Equal(t, report.FullText, strings.Join(*liveChunks, ""))

	cachedChunks, cachedFlags, onCached := collectChunks()
	again, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, onCached)
	require.NoError(t, err)

	// repeat read never re-invokes generation
	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, report.FullText, again.FullText)
	for _, cached := range *cachedFlags {
		assert.True(t, cached)
	}
	// line-split replay reassembles to the exact original text
	assert.Equal(t, report.FullText, strings.Join(*cachedChunks, ""))
}

func TestCachedReplayFromDurableAfterHotLoss(t *testing.T) {
	gen := &fakeGenerator{text: "line a\nline b"}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	report, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
	require.NoError(t, err)

	// simulate process restart: hot tier empty, durable intact
	coordinator.hotAnalysis.Delete(report.Key.String())

	chunks, flags, onChunk := collectChunks()
	_, err = coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, onChunk)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, []string{"line a\n", "line b"}, *chunks)
	assert.Equal(t, []bool{true, true}, *flags)
}

func TestForceRefreshReplacesEntity(t *testing.T) {
	gen := &fakeGenerator{text: "first version"}
	coordinator, index := newTestCoordinator(t, gen, time.Hour)

	first, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
	require.NoError(t, err)

	gen.text = "second version"
	second, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, true, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, "second version", second.FullText)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
	assert.Equal(t, 2, gen.callCount())

	// only the replacement remains durable
	row, err := index.GetReport(context.Background(), first.Key.String())
	require.NoError(t, err)
	assert.Equal(t, second.CreatedAt.Unix(), row.CreatedAt.Unix())
}

func TestDelayedExpiryLeavesFreshReport(t *testing.T) {
	gen := &fakeGenerator{text: "first version"}
	coordinator, index := newTestCoordinator(t, gen, time.Hour)

	first, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
	require.NoError(t, err)

	gen.text = "second version"
	second, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, true, nil)
	require.NoError(t, err)
	require.Equal(t, first.Key, second.Key)

	// a hot-tier expiry scheduled before the refresh may only land now;
	// it must not take the fresh durable row with it
	coordinator.expireDurable(second.Key, false)

	row, err := index.GetReport(context.Background(), second.Key.String())
	require.NoError(t, err)
	assert.Equal(t, second.CreatedAt.Unix(), row.CreatedAt.Unix())

	resolved, err := coordinator.Get(context.Background(), second.Key)
	require.NoError(t, err)
	assert.Equal(t, "second version", resolved.Analysis.FullText)
}

func TestForceBypassesInFlightGeneration(t *testing.T) {
	gen := &fakeGenerator{text: "result", delay: 80 * time.Millisecond}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)

	// a force caller regenerates instead of joining the in-flight result
	_, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, true, nil)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, 2, gen.callCount())
}

func TestStreamFailureCachesNothing(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider exploded")}
	coordinator, index := newTestCoordinator(t, gen, time.Hour)

	_, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrGenerationFailure)

	assert.Empty(t, index.reports)
	_, err = coordinator.Get(context.Background(), reportkey.ForURL(playURL))
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestConcurrentRequestsShareOneGeneration(t *testing.T) {
	gen := &fakeGenerator{text: "shared result", delay: 100 * time.Millisecond}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	const callers = 4
	var wg sync.WaitGroup
	results := make([]*store.AnalysisReport, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, gen.callCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared result", results[i].FullText)
	}
}

func TestComparisonKeyOrderIndependent(t *testing.T) {
	gen := &fakeGenerator{text: "comparison text"}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	urls := []string{
		"https://play.google.com/store/apps/details?id=com.b",
		"https://play.google.com/store/apps/details?id=com.a",
	}
	first, err := coordinator.GetOrGenerateComparison(context.Background(), urls, false, nil)
	require.NoError(t, err)

	reversed := []string{urls[1], urls[0]}
	second, err := coordinator.GetOrGenerateComparison(context.Background(), reversed, false, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, gen.callCount())
}

func TestComparisonNeedsTwoListings(t *testing.T) {
	gen := &fakeGenerator{text: "x"}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	_, err := coordinator.GetOrGenerateComparison(context.Background(), []string{playURL}, false, nil)
	assert.ErrorIs(t, err, fault.ErrInvalidInput)
}

func TestUnsupportedHostRejected(t *testing.T) {
	gen := &fakeGenerator{text: "x"}
	coordinator, _ := newTestCoordinator(t, gen, time.Hour)

	_, err := coordinator.GetOrGenerateAnalysis(context.Background(), "https://example.com/app", false, nil)
	assert.ErrorIs(t, err, fault.ErrInvalidInput)
	assert.Zero(t, gen.callCount())
}

func TestSweepEmptiesExpiredTiers(t *testing.T) {
	gen := &fakeGenerator{text: "short lived"}
	coordinator, index := newTestCoordinator(t, gen, 30*time.Millisecond)

	report, err := coordinator.GetOrGenerateAnalysis(context.Background(), playURL, false, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	removed, err := coordinator.Sweep(context.Background())
	require.NoError(t, err)
	assert.Positive(t, removed)

	assert.Empty(t, index.reports)
	_, err = coordinator.Get(context.Background(), report.Key)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestListRanksWithSearchTerm(t *testing.T) {
	gen := &fakeGenerator{text: "text"}
	coordinator, index := newTestCoordinator(t, gen, time.Hour)

	now := time.Now()
	for _, row := range []models.ReportModel{
		{Hash: strings.Repeat("a", 32), Title: "Dark mode planner", Description: "dark mode everywhere"},
		{Hash: strings.Repeat("b", 32), Title: "Flashlight", Description: "a bright light"},
	} {
		row.CreatedAt = now
		require.NoError(t, index.InsertReport(context.Background(), &row))
	}

	items, total, err := coordinator.List(context.Background(), store.ListQuery{
		Page: 1, Size: 10, Search: "dark mode",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Dark mode planner", items[0].Title)
	assert.Positive(t, items[0].Relevance)
	assert.Contains(t, items[0].ShareLink, items[0].Hash)
}
