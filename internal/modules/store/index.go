package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appsight/core/internal/models"
	"github.com/appsight/core/internal/pkg/fault"
	"gorm.io/gorm"
)

// MetadataIndex is the relational half of the durable store. Implemented
// by gormIndex in production; tests substitute an in-memory fake.
type MetadataIndex interface {
	InsertReport(ctx context.Context, row *models.ReportModel) error
	GetReport(ctx context.Context, hash string) (*models.ReportModel, error)
	DeleteReport(ctx context.Context, hash string) error
	ListReports(ctx context.Context, q ListQuery) ([]models.ReportModel, int64, error)

	InsertComparison(ctx context.Context, row *models.ComparisonModel) error
	GetComparison(ctx context.Context, hash string) (*models.ComparisonModel, error)
	DeleteComparison(ctx context.Context, hash string) error

	// DeleteEmbeddings cascades removal of embedding rows for a report.
	DeleteEmbeddings(ctx context.Context, hash string) error

	// ExpiredHashes lists report and comparison hashes created before cutoff.
	ExpiredHashes(ctx context.Context, cutoff time.Time) (reports, comparisons []string, err error)
}

// sortColumns whitelists ListQuery.SortBy values against SQL injection.
var sortColumns = map[SortField]string{
	SortByCreatedAt:     "created_at",
	SortByTitle:         "title",
	SortByDeveloper:     "developer",
	SortByScore:         "score",
	SortByPlatform:      "platform",
	SortByTotalReviews:  "total_reviews",
	SortByAverageRating: "average_rating",
}

type gormIndex struct {
	db *gorm.DB
}

// NewIndex wraps a GORM connection as a MetadataIndex.
func NewIndex(db *gorm.DB) MetadataIndex {
	return &gormIndex{db: db}
}

func (g *gormIndex) InsertReport(ctx context.Context, row *models.ReportModel) error {
	return g.db.WithContext(ctx).Create(row).Error
}

func (g *gormIndex) GetReport(ctx context.Context, hash string) (*models.ReportModel, error) {
	var row models.ReportModel
	err := g.db.WithContext(ctx).Where("hash = ?", hash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}
	return &row, nil
}

func (g *gormIndex) DeleteReport(ctx context.Context, hash string) error {
	return g.db.WithContext(ctx).Where("hash = ?", hash).Delete(&models.ReportModel{}).Error
}

func (g *gormIndex) ListReports(ctx context.Context, q ListQuery) ([]models.ReportModel, int64, error) {
	tx := g.db.WithContext(ctx).Model(&models.ReportModel{})

	if q.Search != "" {
		like := "%" + q.Search + "%"
		tx = tx.Where("title LIKE ? OR developer LIKE ? OR description LIKE ?", like, like, like)
	}
	if !q.CreatedAfter.IsZero() {
		tx = tx.Where("created_at >= ?", q.CreatedAfter)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	tx = tx.Order(column + " " + direction)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ReportModel
	offset := (q.Page - 1) * q.Size
	if err := tx.Offset(offset).Limit(q.Size).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (g *gormIndex) InsertComparison(ctx context.Context, row *models.ComparisonModel) error {
	return g.db.WithContext(ctx).Create(row).Error
}

func (g *gormIndex) GetComparison(ctx context.Context, hash string) (*models.ComparisonModel, error) {
	var row models.ComparisonModel
	err := g.db.WithContext(ctx).Where("hash = ?", hash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrTransientStorage, err)
	}
	return &row, nil
}

func (g *gormIndex) DeleteComparison(ctx context.Context, hash string) error {
	return g.db.WithContext(ctx).Where("hash = ?", hash).Delete(&models.ComparisonModel{}).Error
}

func (g *gormIndex) DeleteEmbeddings(ctx context.Context, hash string) error {
	return g.db.WithContext(ctx).Where("report_hash = ?", hash).Delete(&models.EmbeddingModel{}).Error
}

func (g *gormIndex) ExpiredHashes(ctx context.Context, cutoff time.Time) ([]string, []string, error) {
	var reports []string
	if err := g.db.WithContext(ctx).Model(&models.ReportModel{}).
		Where("created_at < ?", cutoff).Pluck("hash", &reports).Error; err != nil {
		return nil, nil, err
	}
	var comparisons []string
	if err := g.db.WithContext(ctx).Model(&models.ComparisonModel{}).
		Where("created_at < ?", cutoff).Pluck("hash", &comparisons).Error; err != nil {
		return nil, nil, err
	}
	return reports, comparisons, nil
}
