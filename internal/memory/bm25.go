package memory

import (
	"github.com/rankbm25/bm25"
)

// BM25Index is the alternative lexical backend. Token weights come from the
// bm25 model fitted over the fingerprint corpus; a document's score is the
// length-normalized sum of the weights of the query tokens it contains.
type BM25Index struct {
	model     *bm25.BM25
	docTokens [][]string
}

// NewBM25Index returns an empty BM25 index.
func NewBM25Index() *BM25Index {
	return &BM25Index{}
}

// Fit rebuilds the bm25 model over the corpus.
func (x *BM25Index) Fit(corpus []string) {
	x.docTokens = make([][]string, len(corpus))
	for i, doc := range corpus {
		x.docTokens[i] = tokenize(doc)
	}
	x.model = bm25.NewBM25(corpus)
}

// Score returns one similarity per corpus document.
func (x *BM25Index) Score(query string) []float64 {
	scores := make([]float64, len(x.docTokens))
	if x.model == nil {
		return scores
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return scores
	}
	weights := x.model.ScoreTokens(queryTokens)

	for i, doc := range x.docTokens {
		if len(doc) == 0 {
			continue
		}
		counts := make(map[string]int, len(doc))
		for _, tok := range doc {
			counts[tok]++
		}
		var sum float64
		for j, tok := range queryTokens {
			if j >= len(weights) {
				break
			}
			sum += weights[j] * float64(counts[tok])
		}
		scores[i] = sum / float64(len(doc))
	}
	return scores
}
