// Package retrieval provides vector similarity search over the lead index.
//
// The index lives in PostgreSQL with the pgvector extension; query text is
// embedded through an OpenAI-compatible embeddings endpoint and matched by
// cosine distance. Records coming back from the index are provider-supplied,
// read-only data: the rest of the system never interprets their metadata
// beyond displaying it.
package retrieval

import (
	"context"
	"errors"
	"time"
)

// Record is one retrieved entry from the vector index: an opaque text blob
// plus flat string metadata. Unknown metadata keys are tolerated and carried
// as-is.
type Record struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result pairs a record with its similarity score (1 = identical direction,
// as defined by the index's cosine distance).
type Result struct {
	Record     Record
	Similarity float64
}

// Document is an entry to be written into the index during ingestion.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Sentinel errors for collaborator failures. The orchestrator relies on
// these to phrase user-facing failure messages.
var (
	// ErrEmbedding indicates the embedding provider failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrRetrieval indicates the vector index search failed.
	ErrRetrieval = errors.New("retrieval failed")
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SearchTimeout bounds a single embed-plus-search round trip.
const SearchTimeout = 10 * time.Second
