package memory

import (
	"math"
	"strings"
	"unicode"
)

// Index scores stored fingerprints against a query fingerprint. Fit replaces
// the corpus; Score returns one similarity per corpus document, in corpus
// order. Implementations are refit from the full entry list after every
// insert so new vocabulary is always represented.
type Index interface {
	Fit(corpus []string)
	Score(query string) []float64
}

// stopWords are dropped during tokenization. Fingerprints are mostly
// key:value tokens, so this only matters when comment text is mixed in.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "if": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "was": true, "were": true, "will": true, "with": true,
	"you": true, "your": true, "this": true, "that": true,
}

// tokenize lowercases and splits on anything that is not a letter, digit, or
// colon. Colons are kept so "warnings:2" stays one token and state fields
// with different values never collide.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ':'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TFIDFIndex is the default similarity backend: cosine similarity over
// smoothed TF-IDF vectors, refit from scratch on every Fit call.
type TFIDFIndex struct {
	idf     map[string]float64   // term → inverse document frequency
	docVecs []map[string]float64 // per-document l2-normalized tf-idf
}

// NewTFIDFIndex returns an empty TF-IDF index.
func NewTFIDFIndex() *TFIDFIndex {
	return &TFIDFIndex{idf: map[string]float64{}}
}

// Fit builds document frequencies and per-document vectors from the corpus.
func (x *TFIDFIndex) Fit(corpus []string) {
	n := len(corpus)
	df := make(map[string]int)
	docTokens := make([][]string, n)
	for i, doc := range corpus {
		tokens := tokenize(doc)
		docTokens[i] = tokens
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	// Smoothed idf: ln((1+n)/(1+df)) + 1, so terms present in every
	// document still contribute a little instead of vanishing.
	x.idf = make(map[string]float64, len(df))
	for term, count := range df {
		x.idf[term] = math.Log(float64(1+n)/float64(1+count)) + 1
	}

	x.docVecs = make([]map[string]float64, n)
	for i, tokens := range docTokens {
		x.docVecs[i] = x.vectorize(tokens)
	}
}

// Score returns the cosine similarity of the query against each document.
func (x *TFIDFIndex) Score(query string) []float64 {
	qvec := x.vectorize(tokenize(query))
	scores := make([]float64, len(x.docVecs))
	for i, dvec := range x.docVecs {
		scores[i] = dot(qvec, dvec)
	}
	return scores
}

// vectorize builds an l2-normalized tf-idf vector from tokens. Terms outside
// the fitted vocabulary are dropped, matching how a fitted vectorizer
// transforms unseen queries.
func (x *TFIDFIndex) vectorize(tokens []string) map[string]float64 {
	vec := make(map[string]float64)
	for _, tok := range tokens {
		idf, ok := x.idf[tok]
		if !ok {
			continue
		}
		vec[tok] += idf
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for k, v := range vec {
		vec[k] = v / norm
	}
	return vec
}

// dot computes the inner product of two sparse vectors. Both sides are
// l2-normalized, so this is cosine similarity.
func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for k, v := range a {
		sum += v * b[k]
	}
	return sum
}
