package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/crmchat/internal/log"
)

func TestPgxStore_SearchZeroTopKSkipsIndex(t *testing.T) {
	// No pool and no embedder: a non-positive topK must return before
	// touching either.
	store := NewPgxStore(nil, nil, log.NewNop())

	records, err := store.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Nil(t, records)

	records, err = store.Search(context.Background(), "anything", -3)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestDecodeMetadata(t *testing.T) {
	logger := log.NewNop()

	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "flat string map",
			raw:  `{"company":"Acme Corp","region":"Berlin"}`,
			want: map[string]string{"company": "Acme Corp", "region": "Berlin"},
		},
		{
			name: "mixed value types stringified",
			raw:  `{"deal_value":50000,"active":true,"owner":"dana"}`,
			want: map[string]string{"deal_value": "50000", "active": "true", "owner": "dana"},
		},
		{
			name: "malformed json tolerated",
			raw:  `{not json`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeMetadata([]byte(tt.raw), logger)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, decodeMetadata(nil, logger))
		assert.Nil(t, decodeMetadata([]byte{}, logger))
	})
}
