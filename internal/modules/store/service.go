package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/appsight/core/internal/models"
	"github.com/appsight/core/internal/modules/archive"
	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/reportkey"
	"go.uber.org/zap"
)

// Service coordinates the two durable sub-stores. Writes go blob-first
// with a compensating delete, so a metadata row never outlives a failed
// blob upload. Reads snapshot the row before the TTL check so a
// concurrent sweep cannot yank an entry mid-read.
type Service struct {
	index  MetadataIndex
	blob   archive.Blob
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds the durable store facade.
func NewService(index MetadataIndex, blob archive.Blob, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{index: index, blob: blob, ttl: ttl, logger: logger, now: time.Now}
}

// PutAnalysis persists a freshly generated report: blob first, then the
// metadata row. If the row insert fails the orphan blob is removed.
func (s *Service) PutAnalysis(ctx context.Context, report *AnalysisReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("serialize report: %w", err)
	}
	if err := s.blob.Put(ctx, report.Key, payload); err != nil {
		return fmt.Errorf("blob upload: %w", err)
	}

	row := &models.ReportModel{
		Hash:          report.Key.String(),
		Title:         report.App.Title,
		Description:   report.App.Description,
		Developer:     report.App.Developer,
		SourceURL:     report.SourceURL,
		Score:         report.App.Score,
		Icon:          report.App.Icon,
		Platform:      report.App.Platform,
		TotalReviews:  report.Reviews.Total,
		AverageRating: report.Reviews.AverageRating,
		Distribution:  report.Reviews.ScoreDistribution,
	}
	row.CreatedAt = report.CreatedAt
	if err := s.index.InsertReport(ctx, row); err != nil {
		if delErr := s.blob.Delete(ctx, report.Key); delErr != nil {
			s.logger.Error("orphan blob cleanup failed",
				zap.String("key", report.Key.String()), zap.Error(delErr))
		}
		return fmt.Errorf("metadata insert: %w", err)
	}
	return nil
}

// GetAnalysis returns the live report for key, or fault.ErrNotFound /
// fault.ErrInconsistentState / fault.ErrCorruptArchive.
func (s *Service) GetAnalysis(ctx context.Context, key reportkey.Key) (*AnalysisReport, error) {
	row, err := s.index.GetReport(ctx, key.String())
	if err != nil {
		return nil, err
	}

	if s.expired(row.CreatedAt) {
		// expired durable entries are physically deleted on next touch
		s.deleteAnalysis(ctx, key)
		return nil, fault.ErrNotFound
	}

	payload, err := s.blob.Get(ctx, key)
	if err != nil {
		if isAbsent(err) {
			s.logger.Error("metadata row present but blob missing",
				zap.String("key", key.String()), zap.Error(err))
			return nil, fmt.Errorf("%w: blob missing for %s", fault.ErrInconsistentState, key)
		}
		return nil, err
	}

	var report AnalysisReport
	if err := json.Unmarshal(payload, &report); err != nil {
		s.logger.Error("stored report is unparseable",
			zap.String("key", key.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", fault.ErrCorruptArchive, err)
	}
	return &report, nil
}

// DeleteAnalysis removes the metadata row, the blob and the cascaded
// embedding rows for key.
func (s *Service) DeleteAnalysis(ctx context.Context, key reportkey.Key) error {
	return s.deleteAnalysis(ctx, key)
}

func (s *Service) deleteAnalysis(ctx context.Context, key reportkey.Key) error {
	hash := key.String()
	if err := s.index.DeleteReport(ctx, hash); err != nil {
		return err
	}
	if err := s.index.DeleteEmbeddings(ctx, hash); err != nil {
		s.logger.Warn("embedding cascade failed", zap.String("key", hash), zap.Error(err))
	}
	return s.blob.Delete(ctx, key)
}

// DeleteAnalysisExpired removes the entry for key only when its row is
// actually past the TTL. The hot-tier expiry path runs asynchronously,
// so an unconditional delete there could race a force refresh and drop
// a freshly written row.
func (s *Service) DeleteAnalysisExpired(ctx context.Context, key reportkey.Key) error {
	row, err := s.index.GetReport(ctx, key.String())
	if err != nil {
		return err
	}
	if !s.expired(row.CreatedAt) {
		return nil
	}
	return s.deleteAnalysis(ctx, key)
}

// PutComparison persists a comparison report with the same compensating
// write order as PutAnalysis.
func (s *Service) PutComparison(ctx context.Context, report *ComparisonReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("serialize report: %w", err)
	}
	if err := s.blob.Put(ctx, report.Key, payload); err != nil {
		return fmt.Errorf("blob upload: %w", err)
	}

	row := &models.ComparisonModel{
		Hash:        report.Key.String(),
		Title:       report.Title,
		Competitors: report.Competitors,
	}
	row.CreatedAt = report.CreatedAt
	if err := s.index.InsertComparison(ctx, row); err != nil {
		if delErr := s.blob.Delete(ctx, report.Key); delErr != nil {
			s.logger.Error("orphan blob cleanup failed",
				zap.String("key", report.Key.String()), zap.Error(delErr))
		}
		return fmt.Errorf("metadata insert: %w", err)
	}
	return nil
}

// GetComparison mirrors GetAnalysis for comparison reports.
func (s *Service) GetComparison(ctx context.Context, key reportkey.Key) (*ComparisonReport, error) {
	row, err := s.index.GetComparison(ctx, key.String())
	if err != nil {
		return nil, err
	}

	if s.expired(row.CreatedAt) {
		s.deleteComparison(ctx, key)
		return nil, fault.ErrNotFound
	}

	payload, err := s.blob.Get(ctx, key)
	if err != nil {
		if isAbsent(err) {
			s.logger.Error("metadata row present but blob missing",
				zap.String("key", key.String()), zap.Error(err))
			return nil, fmt.Errorf("%w: blob missing for %s", fault.ErrInconsistentState, key)
		}
		return nil, err
	}

	var report ComparisonReport
	if err := json.Unmarshal(payload, &report); err != nil {
		s.logger.Error("stored report is unparseable",
			zap.String("key", key.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", fault.ErrCorruptArchive, err)
	}
	return &report, nil
}

// DeleteComparison removes the comparison row and blob for key.
func (s *Service) DeleteComparison(ctx context.Context, key reportkey.Key) error {
	return s.deleteComparison(ctx, key)
}

func (s *Service) deleteComparison(ctx context.Context, key reportkey.Key) error {
	if err := s.index.DeleteComparison(ctx, key.String()); err != nil {
		return err
	}
	return s.blob.Delete(ctx, key)
}

// DeleteComparisonExpired is the TTL-guarded twin of DeleteAnalysisExpired.
func (s *Service) DeleteComparisonExpired(ctx context.Context, key reportkey.Key) error {
	row, err := s.index.GetComparison(ctx, key.String())
	if err != nil {
		return err
	}
	if !s.expired(row.CreatedAt) {
		return nil
	}
	return s.deleteComparison(ctx, key)
}

// List returns one page of metadata rows. The TTL cutoff is pushed into
// the index query so expired rows are excluded from both the page and
// the total; physical deletion stays the sweep's job.
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.ReportModel, int64, error) {
	q.CreatedAfter = s.now().Add(-s.ttl)
	return s.index.ListReports(ctx, q)
}

// Sweep physically deletes every durable entry older than the TTL and
// reports the removed keys so callers can drop hot copies too.
func (s *Service) Sweep(ctx context.Context) (removed []reportkey.Key, err error) {
	cutoff := s.now().Add(-s.ttl)
	reportHashes, comparisonHashes, err := s.index.ExpiredHashes(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, hash := range reportHashes {
		key := reportkey.Key(hash)
		if err := s.deleteAnalysis(ctx, key); err != nil {
			s.logger.Warn("sweep: report delete failed", zap.String("key", hash), zap.Error(err))
			continue
		}
		removed = append(removed, key)
	}
	for _, hash := range comparisonHashes {
		key := reportkey.Key(hash)
		if err := s.deleteComparison(ctx, key); err != nil {
			s.logger.Warn("sweep: comparison delete failed", zap.String("key", hash), zap.Error(err))
			continue
		}
		removed = append(removed, key)
	}
	return removed, nil
}

// TTL exposes the configured report lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

func (s *Service) expired(createdAt time.Time) bool {
	return s.now().Sub(createdAt) > s.ttl
}

func isAbsent(err error) bool {
	return errors.Is(err, fault.ErrNotFound)
}
