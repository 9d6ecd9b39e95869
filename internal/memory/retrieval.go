package memory

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Result is a retrieved neighbor with its similarity score.
type Result struct {
	Entry
	Similarity float64
}

// Retrieval combines the entry store with a similarity index. The corpus is
// cached in insertion order (ascending seq) so index positions map 1:1 to
// entries and ranking ties break on the lowest sequence number for free.
type Retrieval struct {
	store         *Store
	index         Index
	entries       []Entry
	minSimilarity float64
}

// Open loads all entries from the store at dbPath and fits the index over
// their fingerprints.
func Open(dbPath string, index Index, minSimilarity float64) (*Retrieval, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	r := &Retrieval{store: store, index: index, minSimilarity: minSimilarity}
	if err := r.refit(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying store.
func (r *Retrieval) Close() error {
	return r.store.Close()
}

// Size returns the current number of entries.
func (r *Retrieval) Size() int {
	return len(r.entries)
}

// Insert persists the entry and refits the index so the new fingerprint's
// vocabulary is searchable immediately.
func (r *Retrieval) Insert(ctx context.Context, entry *Entry) error {
	if err := r.store.Insert(ctx, entry); err != nil {
		return err
	}
	r.entries = append(r.entries, *entry)
	r.fitIndex()
	return nil
}

// Query returns up to k entries ranked by similarity to the fingerprint:
// score descending, ties broken by lowest sequence number, scores below the
// minimum similarity dropped. An empty memory yields an empty result.
// Ranking is deterministic for a fixed memory state and fingerprint.
func (r *Retrieval) Query(ctx context.Context, fingerprint string, k int) []Result {
	ctx, span := tracer.Start(ctx, "memory.query",
		trace.WithAttributes(attribute.Int("memory.top_k", k)))
	defer span.End()

	recordQuery(ctx)

	if len(r.entries) == 0 || k <= 0 {
		return nil
	}

	scores := r.index.Score(fingerprint)
	ranked := make([]Result, 0, len(r.entries))
	for i := range r.entries {
		ranked = append(ranked, Result{Entry: r.entries[i], Similarity: scores[i]})
	}
	// entries are seq-ascending, so a stable sort by score leaves equal
	// scores ordered by lowest seq first.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	results := make([]Result, 0, k)
	for _, res := range ranked {
		if res.Similarity < r.minSimilarity {
			continue
		}
		results = append(results, res)
		if len(results) == k {
			break
		}
	}
	span.SetAttributes(attribute.Int("memory.retrieved", len(results)))
	return results
}

// Snapshot returns the ordered entry list.
func (r *Retrieval) Snapshot(ctx context.Context) ([]Entry, error) {
	return r.store.Snapshot(ctx)
}

// Restore replaces all entries and rebuilds the index from them.
func (r *Retrieval) Restore(ctx context.Context, entries []Entry) error {
	if err := r.store.Restore(ctx, entries); err != nil {
		return err
	}
	return r.refit(ctx)
}

// refit reloads the corpus cache from the store and rebuilds the index.
func (r *Retrieval) refit(ctx context.Context) error {
	entries, err := r.store.All(ctx)
	if err != nil {
		return err
	}
	r.entries = entries
	r.fitIndex()
	return nil
}

func (r *Retrieval) fitIndex() {
	corpus := make([]string, len(r.entries))
	for i := range r.entries {
		corpus[i] = r.entries[i].Fingerprint
	}
	r.index.Fit(corpus)
}
