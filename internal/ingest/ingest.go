// Package ingest loads lead data from CSV into the vector index. Each row
// is rendered into a text document, chunked, embedded, and upserted.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/retrieval"
)

// Chunking limits, in runes. Oversized documents are split at word
// boundaries with a small overlap so context carries across chunks.
const (
	ChunkSize    = 900
	ChunkOverlap = 20
)

// metadataColumns are the CSV columns copied into record metadata.
// Missing columns become empty strings.
var metadataColumns = []string{
	"id",
	"first_name",
	"last_name",
	"email",
	"company",
	"website",
	"status",
	"milestone",
	"owner",
	"location",
	"last_contact_date",
	"follow_up_date",
	"client_company_name",
}

// Indexer writes documents into the vector index.
type Indexer interface {
	Upsert(ctx context.Context, doc retrieval.Document) error
}

// Loader ingests lead CSV files.
type Loader struct {
	indexer Indexer
	logger  log.Logger
}

// NewLoader creates a loader over the given index.
func NewLoader(indexer Indexer, logger log.Logger) *Loader {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Loader{indexer: indexer, logger: logger}
}

// LoadFile ingests a CSV file and returns the number of chunks written.
func (l *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	return l.Load(ctx, f)
}

// Load ingests CSV data from r. The first row must be a header naming at
// least the company, location, client_company_name, status, milestone,
// enriched_info, and notes columns.
func (l *Loader) Load(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	written := 0
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		row++

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		content := renderLead(field)
		metadata := make(map[string]string, len(metadataColumns))
		for _, name := range metadataColumns {
			metadata[name] = field(name)
		}

		docID := field("id")
		if docID == "" {
			docID = fmt.Sprintf("row-%d", row)
		}

		chunks := splitText(content, ChunkSize, ChunkOverlap)
		for i, chunk := range chunks {
			id := docID
			if len(chunks) > 1 {
				id = fmt.Sprintf("%s-%d", docID, i)
			}
			doc := retrieval.Document{ID: id, Content: chunk, Metadata: metadata}
			if err := l.indexer.Upsert(ctx, doc); err != nil {
				return written, fmt.Errorf("upsert row %d: %w", row, err)
			}
			written++
		}
	}

	l.logger.Info("csv ingested", "rows", row, "chunks", written)
	return written, nil
}

// renderLead formats one CSV row into the document text used for embedding.
func renderLead(field func(string) string) string {
	return fmt.Sprintf(`Lead from %s located in %s.
Client company: %s
Status: %s | Milestone: %s

Enriched Info:
%s

Notes:
%s`,
		field("company"), field("location"),
		field("client_company_name"),
		field("status"), field("milestone"),
		field("enriched_info"),
		field("notes"))
}

// splitText splits text into chunks of at most size runes, breaking at word
// boundaries where possible, with overlap runes carried between chunks.
func splitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		for cut > start && runes[cut] != ' ' && runes[cut] != '\n' {
			cut--
		}
		if cut == start {
			cut = end
		}

		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
