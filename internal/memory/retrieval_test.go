package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetrieval(t *testing.T) *Retrieval {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "memory.db"), NewTFIDFIndex(), 0.05)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestQuery_EmptyMemoryReturnsEmpty(t *testing.T) {
	r := testRetrieval(t)
	results := r.Query(context.Background(), "bans:0, warnings:0", 5)
	assert.Empty(t, results)
}

func TestQuery_NeverExceedsK(t *testing.T) {
	r := testRetrieval(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := Entry{Fingerprint: "bans:0, warnings:1, topic:chess", Reasoning: "r", Plan: "warn_user"}
		require.NoError(t, r.Insert(ctx, &e))
	}
	results := r.Query(ctx, "bans:0, warnings:1, topic:chess", 3)
	assert.Len(t, results, 3)
}

func TestQuery_RanksMostSimilarFirst(t *testing.T) {
	r := testRetrieval(t)
	ctx := context.Background()

	near := Entry{Fingerprint: "bans:0, warnings:2, topic:speedrun", Reasoning: "near", Plan: "warn_user"}
	far := Entry{Fingerprint: "bans:3, timeouts:4, topic:cooking", Reasoning: "far", Plan: "ban_user"}
	require.NoError(t, r.Insert(ctx, &far))
	require.NoError(t, r.Insert(ctx, &near))

	results := r.Query(ctx, "bans:0, warnings:2, topic:speedrun", 2)
	require.NotEmpty(t, results)
	assert.Equal(t, "near", results[0].Reasoning)
}

func TestQuery_TieBreaksOnLowestSeq(t *testing.T) {
	r := testRetrieval(t)
	ctx := context.Background()

	a := Entry{Fingerprint: "bans:0, warnings:1", Reasoning: "older", Plan: "warn_user"}
	b := Entry{Fingerprint: "bans:0, warnings:1", Reasoning: "newer", Plan: "warn_user"}
	require.NoError(t, r.Insert(ctx, &a))
	require.NoError(t, r.Insert(ctx, &b))

	results := r.Query(ctx, "bans:0, warnings:1", 2)
	require.Len(t, results, 2)
	assert.Equal(t, a.Seq, results[0].Seq)
	assert.Equal(t, b.Seq, results[1].Seq)
}

func TestQuery_Deterministic(t *testing.T) {
	r := testRetrieval(t)
	ctx := context.Background()

	fingerprints := []string{
		"bans:0, warnings:1, topic:chess",
		"bans:1, warnings:0, topic:chess",
		"bans:0, warnings:0, topic:irl",
	}
	for _, fp := range fingerprints {
		e := Entry{Fingerprint: fp, Reasoning: "r", Plan: "warn_user"}
		require.NoError(t, r.Insert(ctx, &e))
	}

	first := r.Query(ctx, "bans:0, warnings:1, topic:chess", 3)
	second := r.Query(ctx, "bans:0, warnings:1, topic:chess", 3)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Seq, second[i].Seq)
		assert.Equal(t, first[i].Similarity, second[i].Similarity)
	}
}

func TestQuery_DropsBelowMinSimilarity(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "memory.db"), NewTFIDFIndex(), 0.5)
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	unrelated := Entry{Fingerprint: "bans:9, timeouts:9, topic:gardening", Reasoning: "r", Plan: "ban_user"}
	require.NoError(t, r.Insert(ctx, &unrelated))

	results := r.Query(ctx, "followers:100, viewers:3, topic:chess", 5)
	assert.Empty(t, results)
}

func TestRestore_RebuildsIndexFromEntries(t *testing.T) {
	r := testRetrieval(t)
	ctx := context.Background()

	e := Entry{Fingerprint: "bans:0, warnings:2, topic:speedrun", Reasoning: "restored", Plan: "warn_user"}
	require.NoError(t, r.Insert(ctx, &e))
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)

	fresh := testRetrieval(t)
	require.NoError(t, fresh.Restore(ctx, snap))
	assert.Equal(t, 1, fresh.Size())

	results := fresh.Query(ctx, "bans:0, warnings:2, topic:speedrun", 1)
	require.Len(t, results, 1)
	assert.Equal(t, "restored", results[0].Reasoning)
}

func TestBM25Index_RanksSharedVocabularyHigher(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "memory.db"), NewBM25Index(), 0)
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	near := Entry{Fingerprint: "bans:0, warnings:2, topic:speedrun", Reasoning: "near", Plan: "warn_user"}
	far := Entry{Fingerprint: "bans:5, timeouts:3, topic:cooking", Reasoning: "far", Plan: "ban_user"}
	require.NoError(t, r.Insert(ctx, &far))
	require.NoError(t, r.Insert(ctx, &near))

	results := r.Query(ctx, "bans:0, warnings:2, topic:speedrun", 2)
	require.NotEmpty(t, results)
	assert.Equal(t, "near", results[0].Reasoning)
}

func TestTokenize_KeepsFieldValuePairs(t *testing.T) {
	tokens := tokenize("Bans:2, warnings:1, topic:IRL chat")
	assert.Contains(t, tokens, "bans:2")
	assert.Contains(t, tokens, "warnings:1")
	assert.Contains(t, tokens, "topic:irl")
	assert.Contains(t, tokens, "chat")
}
