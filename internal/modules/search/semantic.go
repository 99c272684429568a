package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/appsight/core/internal/models"
	"gorm.io/gorm"
)

const (
	kindContent     = "content"
	kindDescription = "description"
)

// Match is one embedding row that cleared the similarity threshold.
type Match struct {
	ReportHash string
	Chunk      string
	Similarity float64
}

// VectorMatcher is the similarity query primitive over stored embedding
// rows. Implemented by gormVectors in production; tests substitute a
// fake.
type VectorMatcher interface {
	// MatchChunks returns up to limit content-chunk rows whose cosine
	// similarity against vec clears threshold, best first.
	MatchChunks(ctx context.Context, vec models.Vector, threshold float64, limit int) ([]Match, error)

	// DescriptionSimilarities computes the similarity of vec against the
	// description embedding of each listed report.
	DescriptionSimilarities(ctx context.Context, vec models.Vector, hashes []string) (map[string]float64, error)
}

// EmbeddingStore persists embedding rows produced at report creation.
type EmbeddingStore interface {
	InsertEmbeddings(ctx context.Context, rows []models.EmbeddingModel) error
}

// gormVectors scans embedding rows and ranks in process. Fine at the
// scale of a report cache; swap the implementation if the corpus ever
// outgrows a table scan.
type gormVectors struct {
	db *gorm.DB
}

// NewVectors wraps a GORM connection as both the matcher and the store.
func NewVectors(db *gorm.DB) interface {
	VectorMatcher
	EmbeddingStore
} {
	return &gormVectors{db: db}
}

func (g *gormVectors) MatchChunks(ctx context.Context, vec models.Vector, threshold float64, limit int) ([]Match, error) {
	var rows []models.EmbeddingModel
	if err := g.db.WithContext(ctx).
		Where("kind = ?", kindContent).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}

	var matches []Match
	for _, row := range rows {
		sim := cosine(vec, row.Vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{ReportHash: row.ReportHash, Chunk: row.Chunk, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (g *gormVectors) DescriptionSimilarities(ctx context.Context, vec models.Vector, hashes []string) (map[string]float64, error) {
	if len(hashes) == 0 {
		return map[string]float64{}, nil
	}
	var rows []models.EmbeddingModel
	if err := g.db.WithContext(ctx).
		Where("kind = ? AND report_hash IN ?", kindDescription, hashes).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load description embeddings: %w", err)
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.ReportHash] = cosine(vec, row.Vector)
	}
	return out, nil
}

func (g *gormVectors) InsertEmbeddings(ctx context.Context, rows []models.EmbeddingModel) error {
	if len(rows) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Create(&rows).Error
}

func cosine(a, b models.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
