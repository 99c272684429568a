package search

import (
	"context"
	"sort"
	"strings"

	"github.com/appsight/core/internal/models"
	"github.com/appsight/core/internal/pkg/reportkey"
	"go.uber.org/zap"
)

// Options tunes the semantic path.
type Options struct {
	SemanticEnabled     bool
	SimilarityThreshold float64
	TopK                int
	ChunkWords          int
}

// Service resolves a free-text query to an ordered list of report keys.
// Policy: when the semantic path is enabled and yields at least one
// result it is used exclusively; otherwise the lexical path ranks. The
// two scores are never blended.
type Service struct {
	embedder Embedder
	vectors  VectorMatcher
	store    EmbeddingStore
	opts     Options
	logger   *zap.Logger
}

func NewService(embedder Embedder, vectors VectorMatcher, store EmbeddingStore, opts Options, logger *zap.Logger) *Service {
	return &Service{embedder: embedder, vectors: vectors, store: store, opts: opts, logger: logger}
}

// Rank orders the candidate documents by relevance to query. The
// semantic path is restricted to keys present in docs so rankings never
// reference reports the caller cannot see.
func (s *Service) Rank(ctx context.Context, query string, docs []Document) []Scored {
	query = strings.TrimSpace(query)
	if query == "" || len(docs) == 0 {
		return nil
	}

	if s.semanticReady() {
		ranked, err := s.rankSemantic(ctx, query, docs)
		if err != nil {
			s.logger.Warn("semantic ranking failed, falling back to lexical",
				zap.String("query", query), zap.Error(err))
		} else if len(ranked) > 0 {
			return ranked
		}
	}
	return rankBM25(query, docs)
}

func (s *Service) semanticReady() bool {
	return s.opts.SemanticEnabled && s.embedder != nil && s.vectors != nil
}

func (s *Service) rankSemantic(ctx context.Context, query string, docs []Document) ([]Scored, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	queryVec := vecs[0]

	matches, err := s.vectors.MatchChunks(ctx, queryVec, s.opts.SimilarityThreshold, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	visible := make(map[string]bool, len(docs))
	for _, doc := range docs {
		visible[doc.Key.String()] = true
	}

	// best chunk similarity per parent report
	bestChunk := make(map[string]float64)
	for _, m := range matches {
		if !visible[m.ReportHash] {
			continue
		}
		if m.Similarity > bestChunk[m.ReportHash] {
			bestChunk[m.ReportHash] = m.Similarity
		}
	}
	if len(bestChunk) == 0 {
		return nil, nil
	}

	hashes := make([]string, 0, len(bestChunk))
	for hash := range bestChunk {
		hashes = append(hashes, hash)
	}
	descSims, err := s.vectors.DescriptionSimilarities(ctx, queryVec, hashes)
	if err != nil {
		return nil, err
	}

	var ranked []Scored
	for hash, chunkSim := range bestChunk {
		descSim, ok := descSims[hash]
		if !ok || descSim < s.opts.SimilarityThreshold {
			// weak description match disqualifies the report entirely
			continue
		}
		ranked = append(ranked, Scored{
			Key:   reportkey.Key(hash),
			Score: (chunkSim + descSim) / 2,
		})
	}
	sortScored(ranked)
	return ranked, nil
}

// IndexReport chunks fullText into fixed-size word windows, embeds the
// chunks plus the description, and persists the rows. Called after a
// report lands in the durable store; rows are cascade-deleted with it.
func (s *Service) IndexReport(ctx context.Context, key reportkey.Key, description, fullText string) error {
	if !s.semanticReady() || s.store == nil {
		return nil
	}

	chunks := chunkWords(fullText, s.opts.ChunkWords)
	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, chunks...)

	description = strings.TrimSpace(description)
	if description != "" {
		texts = append(texts, description)
	}
	if len(texts) == 0 {
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]models.EmbeddingModel, 0, len(texts))
	for i, chunk := range chunks {
		rows = append(rows, models.EmbeddingModel{
			ReportHash: key.String(),
			Chunk:      chunk,
			Kind:       kindContent,
			Vector:     vecs[i],
			Dimensions: len(vecs[i]),
		})
	}
	if description != "" {
		vec := vecs[len(vecs)-1]
		rows = append(rows, models.EmbeddingModel{
			ReportHash: key.String(),
			Chunk:      description,
			Kind:       kindDescription,
			Vector:     vec,
			Dimensions: len(vec),
		})
	}
	return s.store.InsertEmbeddings(ctx, rows)
}

func chunkWords(text string, size int) []string {
	if size <= 0 {
		size = 120
	}
	words := strings.Fields(text)
	var chunks []string
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

func sortScored(ranked []Scored) {
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
}
