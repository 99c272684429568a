// Package search ranks existing reports for a free-text query. Two
// paths: lexical BM25 over metadata fields and semantic matching over
// stored embedding vectors. The paths are an either/or chain, not a
// blend (see Service.Rank).
package search

import (
	"math"
	"strings"
	"unicode"

	"github.com/appsight/core/internal/pkg/reportkey"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Document is one ranking candidate: the concatenated searchable
// metadata fields (title, description, developer) of a live report.
type Document struct {
	Key  reportkey.Key
	Text string
}

// Scored is one ranked result.
type Scored struct {
	Key   reportkey.Key
	Score float64
}

// tokenize splits on non-word boundaries and lower-cases.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// rankBM25 scores every candidate against the query and returns them
// ordered by descending score. Zero-score candidates are dropped.
func rankBM25(query string, docs []Document) []Scored {
	terms := tokenize(query)
	if len(terms) == 0 || len(docs) == 0 {
		return nil
	}

	tokenized := make([][]string, len(docs))
	var totalLen float64
	for i, doc := range docs {
		tokenized[i] = tokenize(doc.Text)
		totalLen += float64(len(tokenized[i]))
	}
	avgLen := totalLen / float64(len(docs))

	// document frequency per query term over the candidate set
	df := make(map[string]int, len(terms))
	for _, tokens := range tokenized {
		seen := make(map[string]bool)
		for _, tok := range tokens {
			seen[tok] = true
		}
		for _, term := range terms {
			if seen[term] {
				df[term]++
			}
		}
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(terms))
	for _, term := range terms {
		nt := float64(df[term])
		idf[term] = math.Log((n-nt+0.5)/(nt+0.5) + 1)
	}

	var out []Scored
	for i, doc := range docs {
		tf := make(map[string]int)
		for _, tok := range tokenized[i] {
			tf[tok]++
		}
		docLen := float64(len(tokenized[i]))

		var score float64
		for _, term := range terms {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			norm := freq + bm25K1*(1-bm25B+bm25B*docLen/avgLen)
			score += idf[term] * freq * (bm25K1 + 1) / norm
		}
		if score > 0 {
			out = append(out, Scored{Key: doc.Key, Score: score})
		}
	}
	sortScored(out)
	return out
}
