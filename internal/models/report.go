package models

// ReportModel is the searchable metadata row for one analysis report.
// The full report body lives in the blob archive under the same hash key;
// this row carries only the summary fields the listing and ranking paths
// query. Exactly one non-expired row may exist per key.
type ReportModel struct {
	Base
	Hash          string           `json:"hash"           gorm:"uniqueIndex;not null"` // md5(normalized source url)
	Title         string           `json:"title"          gorm:"index;not null"`
	Description   string           `json:"description"    gorm:"type:text"`
	Developer     string           `json:"developer"      gorm:"index"`
	SourceURL     string           `json:"source_url"     gorm:"not null"`
	Score         float64          `json:"score"`
	Icon          string           `json:"icon"`
	Platform      string           `json:"platform"       gorm:"index"`
	TotalReviews  int              `json:"total_reviews"`
	AverageRating float64          `json:"average_rating"`
	Distribution  map[string]int64 `json:"distribution"   gorm:"type:longtext;serializer:json"`
}

func (ReportModel) TableName() string { return "reports" }

// ComparisonModel is the metadata row for a competitor-comparison report,
// keyed by the hash of the sorted URL set.
type ComparisonModel struct {
	Base
	Hash        string      `json:"hash"        gorm:"uniqueIndex;not null"`
	Title       string      `json:"title"       gorm:"index;not null"`
	Competitors StringArray `json:"competitors" gorm:"type:longtext;serializer:json"`
}

func (ComparisonModel) TableName() string { return "comparisons" }
