// Package report orchestrates the check-then-generate-then-populate
// flow: hot cache, durable store, and the streaming generation path
// behind one coordinator.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appsight/core/internal/models"
	"github.com/appsight/core/internal/modules/appstore"
	"github.com/appsight/core/internal/modules/generate"
	"github.com/appsight/core/internal/modules/search"
	"github.com/appsight/core/internal/modules/store"
	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/hotcache"
	"github.com/appsight/core/internal/pkg/pagination"
	"github.com/appsight/core/internal/pkg/reportkey"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ChunkFunc receives streamed report text. cached marks chunks replayed
// from a stored report rather than produced live by the provider.
type ChunkFunc func(cached bool, chunk string)

// AppDirectory is the slice of the upstream appstore service the
// coordinator needs.
type AppDirectory interface {
	Details(ctx context.Context, provider, appID string) (*appstore.Details, error)
	Reviews(ctx context.Context, provider, appID string, limit int) ([]appstore.Review, error)
}

// Options sizes the hot tier and anchors share links.
type Options struct {
	BaseURL            string
	AnalysisCapacity   int
	ComparisonCapacity int
	TTL                time.Duration
}

// searchCandidateLimit bounds the candidate set loaded for in-memory
// ranking of free-text list queries.
const searchCandidateLimit = 1000

// Coordinator owns the per-request state machine and the expiration
// sweep. All tiers are injected; nothing here is ambient state.
type Coordinator struct {
	opts          Options
	hotAnalysis   *hotcache.Cache[*store.AnalysisReport]
	hotComparison *hotcache.Cache[*store.ComparisonReport]
	durable       *store.Service
	searcher      *search.Service
	apps          AppDirectory
	generator     generate.Generator
	group         singleflight.Group
	logger        *zap.Logger
	now           func() time.Time
}

func NewCoordinator(durable *store.Service, searcher *search.Service, apps AppDirectory, generator generate.Generator, opts Options, logger *zap.Logger) (*Coordinator, error) {
	hotAnalysis, err := hotcache.New[*store.AnalysisReport](opts.AnalysisCapacity, opts.TTL)
	if err != nil {
		return nil, err
	}
	hotComparison, err := hotcache.New[*store.ComparisonReport](opts.ComparisonCapacity, opts.TTL)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		opts:          opts,
		hotAnalysis:   hotAnalysis,
		hotComparison: hotComparison,
		durable:       durable,
		searcher:      searcher,
		apps:          apps,
		generator:     generator,
		logger:        logger,
		now:           time.Now,
	}

	// a hot-tier TTL miss invalidates the durable copy from the read path
	hotAnalysis.OnExpire(func(key string) {
		go c.expireDurable(reportkey.Key(key), false)
	})
	hotComparison.OnExpire(func(key string) {
		go c.expireDurable(reportkey.Key(key), true)
	})
	return c, nil
}

// expireDurable runs asynchronously, so it must not delete a row that a
// force refresh has replaced in the meantime. The store re-checks the
// TTL and leaves fresh rows alone.
func (c *Coordinator) expireDurable(key reportkey.Key, comparison bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if comparison {
		err = c.durable.DeleteComparisonExpired(ctx, key)
	} else {
		err = c.durable.DeleteAnalysisExpired(ctx, key)
	}
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		c.logger.Warn("durable invalidation after hot expiry failed",
			zap.String("key", key.String()), zap.Error(err))
	}
}

// GetOrGenerateAnalysis serves the report for rawURL, generating it if
// no tier holds a live copy. force invalidates both tiers first.
// Cached hits and live tokens both arrive through onChunk, so consumers
// see one streaming interface regardless of hit or miss.
func (c *Coordinator) GetOrGenerateAnalysis(ctx context.Context, rawURL string, force bool, onChunk ChunkFunc) (*store.AnalysisReport, error) {
	ref, err := parseListing(rawURL)
	if err != nil {
		return nil, err
	}
	key := reportkey.ForURL(rawURL)

	// force bypasses the tiers and the singleflight group: the caller
	// asked for a regeneration, not for someone else's in-flight result
	if force {
		c.invalidateAnalysis(ctx, key)
		return c.generateAnalysis(ctx, key, ref, onChunk)
	}

	if entry, ok := c.hotAnalysis.Get(key.String()); ok {
		replay(entry.Value.FullText, onChunk)
		return entry.Value, nil
	}

	report, err := c.durable.GetAnalysis(ctx, key)
	switch {
	case err == nil:
		c.hotAnalysis.Put(key.String(), report, report.CreatedAt)
		replay(report.FullText, onChunk)
		return report, nil
	case treatAsAbsent(err):
		// fall through to generation
	default:
		return nil, err
	}

	// concurrent requests for the same key share one generation
	var ran bool
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		ran = true
		return c.generateAnalysis(ctx, key, ref, onChunk)
	})
	if err != nil {
		return nil, err
	}
	report = v.(*store.AnalysisReport)
	if !ran {
		replay(report.FullText, onChunk)
	}
	return report, nil
}

func (c *Coordinator) generateAnalysis(ctx context.Context, key reportkey.Key, ref listingRef, onChunk ChunkFunc) (*store.AnalysisReport, error) {
	details, err := c.apps.Details(ctx, ref.Provider, ref.AppID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch listing: %v", fault.ErrGenerationFailure, err)
	}
	reviews, err := c.apps.Reviews(ctx, ref.Provider, ref.AppID, maxReviewsInPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch reviews: %v", fault.ErrGenerationFailure, err)
	}

	fullText, err := c.generator.Generate(ctx, analysisSystemPrompt, buildAnalysisPrompt(details, reviews), func(token string) {
		if onChunk != nil {
			onChunk(false, token)
		}
	})
	if err != nil {
		// nothing has been cached at this point
		return nil, fmt.Errorf("%w: %v", fault.ErrGenerationFailure, err)
	}

	report := &store.AnalysisReport{
		Key: key,
		App: store.AppMetadata{
			Title:       details.Title,
			Description: details.Description,
			Developer:   details.Developer,
			Score:       details.Score,
			Platform:    ref.Provider,
			Icon:        details.Icon,
			ReviewCount: details.Reviews,
		},
		Reviews: store.ReviewSummary{
			Total:             details.Reviews,
			AverageRating:     details.Score,
			ScoreDistribution: details.Histogram,
		},
		FullText:  fullText,
		SourceURL: ref.URL,
		CreatedAt: c.now(),
	}

	// the caller already has the streamed text; population is best-effort
	if err := c.durable.PutAnalysis(ctx, report); err != nil {
		c.logger.Error("durable population failed",
			zap.String("key", key.String()), zap.Error(err))
		return report, nil
	}
	if err := c.searcher.IndexReport(ctx, key, details.Description, fullText); err != nil {
		c.logger.Warn("embedding indexing failed",
			zap.String("key", key.String()), zap.Error(err))
	}
	c.hotAnalysis.Put(key.String(), report, report.CreatedAt)
	return report, nil
}

// GetOrGenerateComparison is the comparison-report twin of
// GetOrGenerateAnalysis, keyed by the sorted URL set.
func (c *Coordinator) GetOrGenerateComparison(ctx context.Context, rawURLs []string, force bool, onChunk ChunkFunc) (*store.ComparisonReport, error) {
	if len(rawURLs) < 2 {
		return nil, fmt.Errorf("%w: a comparison needs at least two listings", fault.ErrInvalidInput)
	}
	refs := make([]listingRef, len(rawURLs))
	for i, raw := range rawURLs {
		ref, err := parseListing(raw)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	key := reportkey.ForComparison(rawURLs)

	if force {
		c.invalidateComparison(ctx, key)
		return c.generateComparison(ctx, key, rawURLs, refs, onChunk)
	}

	if entry, ok := c.hotComparison.Get(key.String()); ok {
		replay(entry.Value.FullText, onChunk)
		return entry.Value, nil
	}

	report, err := c.durable.GetComparison(ctx, key)
	switch {
	case err == nil:
		c.hotComparison.Put(key.String(), report, report.CreatedAt)
		replay(report.FullText, onChunk)
		return report, nil
	case treatAsAbsent(err):
	default:
		return nil, err
	}

	var ran bool
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		ran = true
		return c.generateComparison(ctx, key, rawURLs, refs, onChunk)
	})
	if err != nil {
		return nil, err
	}
	report = v.(*store.ComparisonReport)
	if !ran {
		replay(report.FullText, onChunk)
	}
	return report, nil
}

func (c *Coordinator) generateComparison(ctx context.Context, key reportkey.Key, rawURLs []string, refs []listingRef, onChunk ChunkFunc) (*store.ComparisonReport, error) {
	competitors := make([]*appstore.Details, len(refs))
	for i, ref := range refs {
		details, err := c.apps.Details(ctx, ref.Provider, ref.AppID)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch listing %s: %v", fault.ErrGenerationFailure, ref.URL, err)
		}
		competitors[i] = details
	}

	fullText, err := c.generator.Generate(ctx, comparisonSystemPrompt, buildComparisonPrompt(competitors), func(token string) {
		if onChunk != nil {
			onChunk(false, token)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrGenerationFailure, err)
	}

	report := &store.ComparisonReport{
		Key:         key,
		Title:       comparisonTitle(competitors),
		Competitors: rawURLs,
		FullText:    fullText,
		CreatedAt:   c.now(),
	}

	if err := c.durable.PutComparison(ctx, report); err != nil {
		c.logger.Error("durable population failed",
			zap.String("key", key.String()), zap.Error(err))
		return report, nil
	}
	c.hotComparison.Put(key.String(), report, report.CreatedAt)
	return report, nil
}

// Resolved is a key lookup result; exactly one report field is set.
type Resolved struct {
	Analysis   *store.AnalysisReport   `json:"analysis,omitempty"`
	Comparison *store.ComparisonReport `json:"comparison,omitempty"`
	ShareLink  string                  `json:"share_link"`
}

// Get resolves a key against the hot then durable tiers without ever
// triggering generation.
func (c *Coordinator) Get(ctx context.Context, key reportkey.Key) (*Resolved, error) {
	if entry, ok := c.hotAnalysis.Get(key.String()); ok {
		return &Resolved{Analysis: entry.Value, ShareLink: store.ShareLink(c.opts.BaseURL, key)}, nil
	}
	if entry, ok := c.hotComparison.Get(key.String()); ok {
		return &Resolved{Comparison: entry.Value, ShareLink: store.ShareLink(c.opts.BaseURL, key)}, nil
	}

	analysis, err := c.durable.GetAnalysis(ctx, key)
	if err == nil {
		c.hotAnalysis.Put(key.String(), analysis, analysis.CreatedAt)
		return &Resolved{Analysis: analysis, ShareLink: store.ShareLink(c.opts.BaseURL, key)}, nil
	}
	if !treatAsAbsent(err) {
		return nil, err
	}

	comparison, err := c.durable.GetComparison(ctx, key)
	if err == nil {
		c.hotComparison.Put(key.String(), comparison, comparison.CreatedAt)
		return &Resolved{Comparison: comparison, ShareLink: store.ShareLink(c.opts.BaseURL, key)}, nil
	}
	if !treatAsAbsent(err) {
		return nil, err
	}
	return nil, fault.ErrNotFound
}

// Invalidate removes the key from every tier. Removing an absent key is
// not an error.
func (c *Coordinator) Invalidate(ctx context.Context, key reportkey.Key) error {
	c.invalidateAnalysis(ctx, key)
	c.invalidateComparison(ctx, key)
	return nil
}

func (c *Coordinator) invalidateAnalysis(ctx context.Context, key reportkey.Key) {
	c.hotAnalysis.Delete(key.String())
	if err := c.durable.DeleteAnalysis(ctx, key); err != nil && !errors.Is(err, fault.ErrNotFound) {
		c.logger.Warn("analysis invalidation failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (c *Coordinator) invalidateComparison(ctx context.Context, key reportkey.Key) {
	c.hotComparison.Delete(key.String())
	if err := c.durable.DeleteComparison(ctx, key); err != nil && !errors.Is(err, fault.ErrNotFound) {
		c.logger.Warn("comparison invalidation failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// ListItem is one row of the report listing.
type ListItem struct {
	models.ReportModel
	ShareLink string  `json:"share_link"`
	Relevance float64 `json:"relevance,omitempty"`
}

// List pages the metadata index. A free-text query routes through the
// ranker; pagination is applied after ranking in that case.
func (c *Coordinator) List(ctx context.Context, q store.ListQuery) ([]ListItem, int64, error) {
	if strings.TrimSpace(q.Search) == "" {
		rows, total, err := c.durable.List(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		items := make([]ListItem, len(rows))
		for i, row := range rows {
			items[i] = ListItem{
				ReportModel: row,
				ShareLink:   store.ShareLink(c.opts.BaseURL, reportkey.Key(row.Hash)),
			}
		}
		return items, total, nil
	}

	candidates := q
	candidates.Page = 1
	candidates.Size = searchCandidateLimit
	candidates.Search = ""
	rows, _, err := c.durable.List(ctx, candidates)
	if err != nil {
		return nil, 0, err
	}

	byHash := make(map[string]models.ReportModel, len(rows))
	docs := make([]search.Document, len(rows))
	for i, row := range rows {
		byHash[row.Hash] = row
		docs[i] = search.Document{
			Key:  reportkey.Key(row.Hash),
			Text: row.Title + " " + row.Description + " " + row.Developer,
		}
	}

	ranked := c.searcher.Rank(ctx, q.Search, docs)
	items := make([]ListItem, 0, len(ranked))
	for _, hit := range ranked {
		row, ok := byHash[hit.Key.String()]
		if !ok {
			continue
		}
		items = append(items, ListItem{
			ReportModel: row,
			ShareLink:   store.ShareLink(c.opts.BaseURL, hit.Key),
			Relevance:   hit.Score,
		})
	}

	total := int64(len(items))
	page := pagination.Slice(items, pagination.Query{Page: q.Page, Size: q.Size})
	return page, total, nil
}

// Sweep removes every expired entry from all tiers. Registered on the
// cron scheduler; also callable from the admin surface.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	removed, err := c.durable.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	for _, key := range removed {
		c.hotAnalysis.Delete(key.String())
		c.hotComparison.Delete(key.String())
	}

	// hot entries whose durable rows are already gone still age out here
	count := len(removed)
	for _, key := range c.hotAnalysis.ExpiredKeys() {
		c.hotAnalysis.Delete(key)
		c.expireDurable(reportkey.Key(key), false)
		count++
	}
	for _, key := range c.hotComparison.ExpiredKeys() {
		c.hotComparison.Delete(key)
		c.expireDurable(reportkey.Key(key), true)
		count++
	}
	return count, nil
}

// HotEntries exposes the live hot-tier contents for the admin surface.
func (c *Coordinator) HotEntries() (analyses []*store.AnalysisReport, comparisons []*store.ComparisonReport) {
	for _, entry := range c.hotAnalysis.Entries() {
		analyses = append(analyses, entry.Value)
	}
	for _, entry := range c.hotComparison.Entries() {
		comparisons = append(comparisons, entry.Value)
	}
	return analyses, comparisons
}

// replay streams a stored report back as line-delimited chunks.
// Concatenating the chunks reproduces the original text exactly.
func replay(fullText string, onChunk ChunkFunc) {
	if onChunk == nil {
		return
	}
	lines := strings.Split(fullText, "\n")
	for i, line := range lines {
		if i < len(lines)-1 {
			line += "\n"
		}
		onChunk(true, line)
	}
}

// treatAsAbsent reports whether a durable read error means "no usable
// entry". Corrupt and inconsistent entries count: they are logged at
// the store layer and the safe behavior is to regenerate.
func treatAsAbsent(err error) bool {
	return errors.Is(err, fault.ErrNotFound) ||
		errors.Is(err, fault.ErrCorruptArchive) ||
		errors.Is(err, fault.ErrInconsistentState)
}
