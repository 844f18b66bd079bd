package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

type PGVectorConfig struct {
	ConnString string
	Logger     *log.Logger
}

// PGVector stores each collection as a PostgreSQL table with a vector column.
type PGVector struct {
	pool     *pgxpool.Pool
	log      *log.Logger
	active   *models.Collection
	mismatch error
}

func NewPGVector(ctx context.Context, config PGVectorConfig) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: database unreachable: %v", types.ErrNetwork, err)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &PGVector{pool: pool, log: logger.With("component", "pgvector")}, nil
}

// operator returns the pgvector distance operator and the expression turning
// the distance into a similarity where larger is closer.
func operator(metric models.Metric) (op string, similarity string) {
	switch metric {
	case models.MetricDot:
		// <#> is the negative inner product
		return "<#>", "-(embedding <#> $1)"
	case models.MetricEuclid:
		return "<->", "-(embedding <-> $1)"
	default:
		return "<=>", "1 - (embedding <=> $1)"
	}
}

func opsClass(metric models.Metric) string {
	switch metric {
	case models.MetricDot:
		return "vector_ip_ops"
	case models.MetricEuclid:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

// existingDimension returns the declared vector dimension of the table, or 0
// when the table does not exist.
func (p *PGVector) existingDimension(ctx context.Context, table string) (int, error) {
	var dim int
	err := p.pool.QueryRow(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1::text) AND a.attname = 'embedding' AND NOT a.attisdropped`,
		table).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return dim, err
}

func (p *PGVector) EnsureCollection(ctx context.Context, c models.Collection) error {
	table := pgx.Identifier{c.Name}.Sanitize()

	dim, err := p.existingDimension(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to inspect collection %s: %w", c.Name, err)
	}
	if dim > 0 {
		existing := models.Collection{Name: c.Name, Dimension: dim, Metric: c.Metric}
		p.active = &existing
		if dim != c.Dimension {
			p.mismatch = mismatchError(c, dim)
			return p.mismatch
		}
		p.mismatch = nil
		return nil
	}

	// Enable pgvector extension
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			summary TEXT NOT NULL,
			markdown TEXT,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, c.Dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding %s)`,
		pgx.Identifier{c.Name + "_embedding_idx"}.Sanitize(), table, opsClass(c.Metric))
	if _, err := p.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	p.log.Info("created collection", "name", c.Name, "dimension", c.Dimension, "metric", c.Metric)
	p.active, p.mismatch = &c, nil
	return nil
}

func (p *PGVector) UpsertBatch(ctx context.Context, docs []models.Document, vectors [][]float32) (types.UpsertReport, error) {
	if p.active == nil {
		return types.UpsertReport{}, errNoCollection
	}
	if p.mismatch != nil {
		return types.UpsertReport{}, p.mismatch
	}

	accepted, failed, err := validate(*p.active, docs, vectors)
	report := types.UpsertReport{Failed: failed}
	if err != nil || len(accepted) == 0 {
		return report, err
	}

	err = p.insert(ctx, docs, vectors, accepted)
	if err == nil {
		for _, i := range accepted {
			report.Stored = append(report.Stored, docs[i].ID)
		}
		return report, nil
	}
	if ctx.Err() != nil {
		return report, err
	}
	p.log.Warn("batch insert failed, retrying per item", "rows", len(accepted), "error", err)

	for _, i := range accepted {
		if err := p.insert(ctx, docs, vectors, []int{i}); err != nil {
			report.Failed = append(report.Failed, types.ItemError{ID: docs[i].ID, URL: docs[i].URL, Err: err})
			continue
		}
		report.Stored = append(report.Stored, docs[i].ID)
	}
	return report, nil
}

// insert writes the selected rows in one transaction.
func (p *PGVector) insert(ctx context.Context, docs []models.Document, vectors [][]float32, idx []int) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, url, title, summary, markdown, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			markdown = EXCLUDED.markdown,
			embedding = EXCLUDED.embedding`,
		pgx.Identifier{p.active.Name}.Sanitize())

	batch := &pgx.Batch{}
	for _, i := range idx {
		d := docs[i]
		batch.Queue(stmt, d.ID, d.URL, d.Title, d.Summary, d.Content, pgvector.NewVector(vectors[i]))
	}

	br := tx.SendBatch(ctx, batch)
	for range idx {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if p.active == nil {
		return nil, errNoCollection
	}
	k = topK(k)

	op, similarity := operator(p.active.Metric)
	query := fmt.Sprintf(`
		SELECT id::text, url, coalesce(title, ''), summary, coalesce(markdown, ''), %s AS score
		FROM %s
		ORDER BY embedding %s $1, id
		LIMIT $2`,
		similarity, pgx.Identifier{p.active.Name}.Sanitize(), op)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		d := &r.Document
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Summary, &d.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.ID = d.ID
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return rank(results, k), nil
}

func (p *PGVector) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
