package retrieval_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/retrieval"
	"github.com/leadscope/crmchat/internal/testutil"
)

// fixedEmbedder maps known texts to fixed 384-dim vectors so similarity
// ordering is deterministic without a real embedding model.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("%w: no fixture for %q", retrieval.ErrEmbedding, text)
	}
	return vec, nil
}

func (f *fixedEmbedder) Dimensions() int { return 384 }

// axisVector returns a 384-dim unit vector pointing along the given axis.
func axisVector(axis int) []float32 {
	vec := make([]float32, 384)
	vec[axis] = 1
	return vec
}

// blendVector leans mostly toward one axis with a small component on another.
func blendVector(major, minor int) []float32 {
	vec := make([]float32, 384)
	vec[major] = 0.9
	vec[minor] = 0.1
	return vec
}

func TestPgxStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"acme berlin lead":   axisVector(0),
		"globex munich lead": axisVector(1),
		"initech lead":       axisVector(2),
		"berlin leads?":      blendVector(0, 1),
	}}
	store := retrieval.NewPgxStore(db.Pool, embedder, log.NewNop())

	docs := []retrieval.Document{
		{ID: "lead-1", Content: "acme berlin lead", Metadata: map[string]string{"company": "Acme", "region": "Berlin"}},
		{ID: "lead-2", Content: "globex munich lead", Metadata: map[string]string{"company": "Globex", "region": "Munich"}},
		{ID: "lead-3", Content: "initech lead"},
	}
	for _, doc := range docs {
		require.NoError(t, store.Upsert(ctx, doc))
	}

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("search orders by similarity", func(t *testing.T) {
		records, err := store.Search(ctx, "berlin leads?", 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "acme berlin lead", records[0].Content)
		assert.Equal(t, "globex munich lead", records[1].Content)
		assert.Equal(t, "Berlin", records[0].Metadata["region"])
	})

	t.Run("topK caps results", func(t *testing.T) {
		records, err := store.Search(ctx, "berlin leads?", 1)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		updated := retrieval.Document{
			ID:       "lead-3",
			Content:  "initech lead",
			Metadata: map[string]string{"milestone": "closed won"},
		}
		require.NoError(t, store.Upsert(ctx, updated))

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		records, err := store.Search(ctx, "initech lead", 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "closed won", records[0].Metadata["milestone"])
	})
}
