package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/leadscope/crmchat/internal/log"
)

// PgxStore is the PostgreSQL-backed vector index. Lead documents live in the
// leads table with a pgvector embedding column; search is cosine distance.
type PgxStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   log.Logger
}

// NewPgxStore creates a store over an existing connection pool.
func NewPgxStore(pool *pgxpool.Pool, embedder Embedder, logger log.Logger) *PgxStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PgxStore{pool: pool, embedder: embedder, logger: logger}
}

// Search embeds the query and returns up to topK records ordered by
// decreasing similarity. A topK of zero or less returns no records without
// touching the index.
func (s *PgxStore) Search(ctx context.Context, query string, topK int) ([]Record, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM leads
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrRetrieval, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			content    string
			rawMeta    []byte
			similarity float64
		)
		if err := rows.Scan(&content, &rawMeta, &similarity); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrRetrieval, err)
		}
		records = append(records, Record{
			Content:  content,
			Metadata: decodeMetadata(rawMeta, s.logger),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrRetrieval, err)
	}

	s.logger.Debug("vector search", "top_k", topK, "results", len(records))
	return records, nil
}

// Upsert writes a document and its embedding into the index, replacing any
// existing document with the same ID.
func (s *PgxStore) Upsert(ctx context.Context, doc Document) error {
	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrRetrieval, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO leads (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding`,
		doc.ID, doc.Content, meta, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrRetrieval, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *PgxStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM leads").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrRetrieval, err)
	}
	return n, nil
}

// decodeMetadata tolerates malformed or missing metadata rather than failing
// the whole search. Non-string values are stringified.
func decodeMetadata(raw []byte, logger log.Logger) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}

	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		logger.Warn("skipping malformed metadata", "error", err)
		return nil
	}
	flat = make(map[string]string, len(loose))
	for k, v := range loose {
		flat[k] = fmt.Sprint(v)
	}
	return flat
}
