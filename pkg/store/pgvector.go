package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/internal/types"
)

type ArchiveConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
}

// Archive keeps described records of every run in Postgres with an
// embedding for similarity search.
type Archive struct {
	config   ArchiveConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
	table    string
}

// Entry is one archived record returned by Search.
type Entry struct {
	RunID     uuid.UUID
	Document  string
	Record    models.DescribedRecord
	Distance  float64
	CreatedAt time.Time
}

func NewWithConfig(ctx context.Context, config ArchiveConfig, embedder types.Embedder) (*Archive, error) {
	if config.TableName == "" {
		config.TableName = "image_descriptions"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	a := &Archive{
		config:   config,
		pool:     pool,
		embedder: embedder,
		table:    pgx.Identifier{config.TableName}.Sanitize(),
	}

	if err := a.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return a, nil
}

func (a *Archive) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := a.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			document TEXT NOT NULL,
			image_name TEXT NOT NULL,
			title TEXT,
			text_before TEXT,
			text_after TEXT,
			description TEXT,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, a.table, a.config.VectorDim)

	_, err = a.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{a.config.TableName + "_embedding_idx"}.Sanitize(), a.table)

	_, err = a.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Store archives the described records of one run. Records are embedded and
// inserted in batches inside a single transaction.
func (a *Archive) Store(ctx context.Context, runID uuid.UUID, document string, records []models.DescribedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, document, image_name, title, text_before, text_after, description, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			embedding = EXCLUDED.embedding`,
		a.table)

	for start := 0; start < len(records); start += a.config.BatchSize {
		end := min(start+a.config.BatchSize, len(records))
		chunk := records[start:end]

		texts := make([]string, len(chunk))
		for i, r := range chunk {
			texts[i] = embeddingText(r)
		}

		embeddings, err := a.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %v", err)
		}
		if len(embeddings) != len(chunk) {
			return fmt.Errorf("expected %d embeddings, got %d", len(chunk), len(embeddings))
		}

		batch := &pgx.Batch{}
		for i, r := range chunk {
			batch.Queue(stmt,
				runID.String()+"_"+r.ImageName,
				runID.String(),
				sanitizeUTF8(document),
				sanitizeUTF8(r.ImageName),
				sanitizeUTF8(r.Title),
				sanitizeUTF8(r.TextBefore),
				sanitizeUTF8(r.TextAfter),
				sanitizeUTF8(r.Description),
				pgvector.NewVector(embeddings[i]),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert records: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Search returns the archived records closest to query.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = a.config.SearchLimit
	}

	embeddings, err := a.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %v", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	q := fmt.Sprintf(`
		SELECT run_id, document, image_name, title, text_before, text_after, description,
			embedding <=> $1 AS distance, created_at
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		a.table)

	rows, err := a.pool.Query(ctx, q, pgvector.NewVector(embeddings[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %v", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var runID string
		err := rows.Scan(
			&runID,
			&e.Document,
			&e.Record.ImageName,
			&e.Record.Title,
			&e.Record.TextBefore,
			&e.Record.TextAfter,
			&e.Record.Description,
			&e.Distance,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %v", runID, err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// embeddingText is what a record is searched by.
func embeddingText(r models.DescribedRecord) string {
	parts := []string{r.Title, r.TextBefore, r.TextAfter, r.Description}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return sanitizeUTF8(strings.Join(kept, "\n"))
}

// sanitizeUTF8 drops invalid bytes, which Postgres rejects in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
