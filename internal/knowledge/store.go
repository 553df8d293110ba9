// Package knowledge manages the pgvector-backed document store: chunk
// persistence with dimension validation, similarity search with
// oversampling, and pagination-safe metadata filtering.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrDimensionMismatch indicates an embedding that does not match the
	// indexed vector dimension. Writes with the wrong dimension would
	// silently break similarity search, so they are rejected up front.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidPage indicates a non-positive limit or negative offset.
	ErrInvalidPage = errors.New("invalid page")
)

// searchTimeout bounds a single similarity query so a slow scan cannot
// block a request indefinitely.
const searchTimeout = 10 * time.Second

// Querier is the pgx query surface the Store needs. Consumer-defined so
// tests can substitute a fake without a database; *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds the retrieval tuning knobs.
type Config struct {
	// Dimension is the pinned embedding dimension; must match the
	// vector(N) column in db/migrations.
	Dimension int

	// ScanCap is the hard ceiling on candidates scanned per query.
	ScanCap int

	// FilterMultiplier scales the candidate pool when filters are active,
	// compensating for post-filter attrition.
	FilterMultiplier int
}

// Store wraps similarity search over the documents table.
//
// Filtering is deliberately NOT pushed into the vector query: pgvector index
// scans bound candidate generation before the WHERE clause applies, so a
// filtered ORDER BY ... LIMIT can return fewer rows than exist. The store
// instead over-fetches an unfiltered candidate pool and filters, sorts, and
// paginates in memory. This is a correctness requirement, not an
// optimization.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	cfg    Config
	logger *slog.Logger
}

// NewStore creates a Store. db is typically a *pgxpool.Pool created once by
// the app container.
func NewStore(db Querier, cfg Config, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.Dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.ScanCap < 1 {
		cfg.ScanCap = 1000
	}
	if cfg.FilterMultiplier < 1 {
		cfg.FilterMultiplier = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Upsert inserts or updates a chunk. The embedding dimension is validated
// against the pinned dimension before any write reaches the index.
func (s *Store) Upsert(ctx context.Context, chunk DocumentChunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID must not be empty")
	}
	if len(chunk.Embedding) != s.cfg.Dimension {
		return fmt.Errorf("%w: chunk %q has %d, index expects %d",
			ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), s.cfg.Dimension)
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (id, title, url, doc_type, country, year, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, 0), $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   url = EXCLUDED.url,
		   doc_type = EXCLUDED.doc_type,
		   country = EXCLUDED.country,
		   year = EXCLUDED.year,
		   content = EXCLUDED.content,
		   embedding = EXCLUDED.embedding,
		   created_at = EXCLUDED.created_at`,
		chunk.ID, chunk.Title, chunk.URL, chunk.Type, chunk.Country, chunk.Year,
		chunk.Text, pgvector.NewVector(chunk.Embedding), createdAt,
	)
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("upserted chunk", "id", chunk.ID, "text_len", len(chunk.Text))
	return nil
}

// Search runs the staged retrieval pipeline: unfiltered similarity scan of
// an oversampled candidate pool, slim projection with score, metadata
// post-filter, score-descending sort, skip, take limit+1 for HasMore.
func (s *Store) Search(ctx context.Context, queryVec []float32, page Page, filter Filter, sortBy string) (SearchPage, error) {
	if page.Limit < 1 || page.Offset < 0 {
		return SearchPage{}, fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidPage, page.Limit, page.Offset)
	}
	if len(queryVec) != s.cfg.Dimension {
		return SearchPage{}, fmt.Errorf("%w: query has %d, index expects %d",
			ErrDimensionMismatch, len(queryVec), s.cfg.Dimension)
	}

	pool := s.candidatePool(page, filter)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx,
		`SELECT id, title, url, doc_type, COALESCE(country, ''), COALESCE(year, 0),
		        content, 1 - (embedding <=> $1) AS score, created_at
		 FROM documents
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(queryVec), pool,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return SearchPage{}, fmt.Errorf("similarity search timeout: %w", err)
		}
		return SearchPage{}, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	candidates, err := scanScored(rows)
	if err != nil {
		return SearchPage{}, err
	}

	matched := candidates[:0]
	for _, c := range candidates {
		if matchesFilter(c.DocumentChunk, filter) {
			matched = append(matched, c)
		}
	}

	sortScored(matched, sortBy)

	if page.Offset >= len(matched) {
		return SearchPage{Items: []ScoredChunk{}}, nil
	}
	window := matched[page.Offset:]

	if len(window) > page.Limit {
		return SearchPage{Items: window[:page.Limit], HasMore: true}, nil
	}
	return SearchPage{Items: window}, nil
}

// candidatePool computes the oversampled scan size: one extra row beyond
// the window so HasMore is decidable, scaled by the filter multiplier when
// post-filter attrition is possible, capped at the hard scan ceiling.
func (s *Store) candidatePool(page Page, filter Filter) int {
	base := page.Limit + page.Offset + 1
	if filter.Active() {
		base *= s.cfg.FilterMultiplier
	}
	return min(base, s.cfg.ScanCap)
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(count), nil
}

// DeleteDocument removes every chunk of a document by its ID prefix.
func (s *Store) DeleteDocument(ctx context.Context, docID string) (int, error) {
	if docID == "" {
		return 0, fmt.Errorf("document ID must not be empty")
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 OR id LIKE $1 || '#%'`, docID)
	if err != nil {
		return 0, fmt.Errorf("deleting document %q: %w", docID, err)
	}
	n := int(tag.RowsAffected())
	s.logger.Debug("deleted document chunks", "doc_id", docID, "chunks", n)
	return n, nil
}

// Ping verifies database connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("pinging document store: %w", err)
	}
	return nil
}

// matchesFilter applies the metadata post-stage match.
func matchesFilter(c DocumentChunk, f Filter) bool {
	if f.Topic != "" && !strings.EqualFold(c.Type, f.Topic) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(c.Country, f.Country) {
		return false
	}
	if f.Year != 0 && c.Year != f.Year {
		return false
	}
	if f.YearFrom != 0 && c.Year < f.YearFrom {
		return false
	}
	if f.YearTo != 0 && (c.Year == 0 || c.Year > f.YearTo) {
		return false
	}
	return true
}

// sortScored orders candidates. Relevance is the default; year sorts newest
// first with score as tiebreaker. Stable sort keeps the database's distance
// order for equal keys.
func sortScored(items []ScoredChunk, sortBy string) {
	switch sortBy {
	case SortByYear:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Year != items[j].Year {
				return items[i].Year > items[j].Year
			}
			return items[i].Score > items[j].Score
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Score > items[j].Score
		})
	}
}

// scanScored reads the slim projection rows.
func scanScored(rows pgx.Rows) ([]ScoredChunk, error) {
	var out []ScoredChunk
	for rows.Next() {
		var c ScoredChunk
		if err := rows.Scan(&c.ID, &c.Title, &c.URL, &c.Type, &c.Country, &c.Year,
			&c.Text, &c.Score, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading result rows: %w", err)
	}
	return out, nil
}
