package models

// EmbeddingModel is one cached embedding vector for a chunk of report
// content. Rows are many-to-one with a ReportModel via ReportHash and are
// removed together with the parent; an embedding without a live report is
// invalid state.
type EmbeddingModel struct {
	Base
	ReportHash string  `json:"report_hash" gorm:"index;not null"`
	Chunk      string  `json:"chunk"       gorm:"type:text;not null"`
	Kind       string  `json:"kind"        gorm:"index;default:'content'"` // content | description
	Vector     Vector  `json:"-"           gorm:"type:longtext;not null"`
	Dimensions int     `json:"dimensions"`
	Similarity float64 `json:"similarity"  gorm:"-"` // populated by vector matching, never stored
}

func (EmbeddingModel) TableName() string { return "embeddings" }
