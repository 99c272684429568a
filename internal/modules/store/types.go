// Package store is the durable tier: the blob archive and the relational
// metadata index cooperating under one ReportKey.
package store

import (
	"time"

	"github.com/appsight/core/internal/pkg/reportkey"
)

// AppMetadata is the listing summary scraped from the store page.
type AppMetadata struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Developer   string  `json:"developer"`
	Score       float64 `json:"score"`
	Platform    string  `json:"platform"`
	Icon        string  `json:"icon"`
	ReviewCount int     `json:"review_count"`
}

// ReviewSummary aggregates the scraped review set.
type ReviewSummary struct {
	Total             int              `json:"total"`
	AverageRating     float64          `json:"average_rating"`
	ScoreDistribution map[string]int64 `json:"score_distribution"`
}

// AnalysisReport is the full materialized report for one listing.
// Immutable once created; force refresh replaces the whole entity under
// the same key.
type AnalysisReport struct {
	Key       reportkey.Key `json:"key"`
	App       AppMetadata   `json:"app"`
	Reviews   ReviewSummary `json:"reviews"`
	FullText  string        `json:"full_text"`
	SourceURL string        `json:"source_url"`
	CreatedAt time.Time     `json:"created_at"`
}

// ComparisonReport is the full materialized report for a competitor set,
// keyed by the sorted URL set.
type ComparisonReport struct {
	Key         reportkey.Key `json:"key"`
	Title       string        `json:"title"`
	Competitors []string      `json:"competitors"`
	FullText    string        `json:"full_text"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ShareLink derives the public link for a cached report. Computed at the
// boundary from stored data plus the origin base URL; never persisted.
func ShareLink(baseURL string, key reportkey.Key) string {
	return baseURL + "/reports/" + key.String()
}

// SortField names a sortable metadata column.
type SortField string

const (
	SortByCreatedAt     SortField = "created_at"
	SortByTitle         SortField = "title"
	SortByDeveloper     SortField = "developer"
	SortByScore         SortField = "score"
	SortByPlatform      SortField = "platform"
	SortByTotalReviews  SortField = "total_reviews"
	SortByAverageRating SortField = "average_rating"
)

// ListQuery selects a page of metadata rows.
type ListQuery struct {
	Page       int
	Size       int
	SortBy     SortField
	Descending bool
	Search     string // substring match over title/developer/description

	// CreatedAfter, when set, excludes rows created strictly before it.
	// The store layer fills it with the TTL cutoff.
	CreatedAfter time.Time
}
