package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinfra/beacon/internal/log"
)

const testDim = 4

// fakeQuerier records calls and serves canned rows, standing in for a
// *pgxpool.Pool.
type fakeQuerier struct {
	rows    []rowData
	execTag pgconn.CommandTag
	err     error

	lastSQL  string
	lastArgs []any
	queries  int
}

// rowData mirrors the slim search projection column order.
type rowData struct {
	id, title, url, docType, country string
	year                             int
	content                          string
	score                            float32
	createdAt                        time.Time
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.lastSQL, q.lastArgs = sql, args
	return q.execTag, q.err
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.lastSQL, q.lastArgs = sql, args
	q.queries++
	if q.err != nil {
		return nil, q.err
	}
	return &fakeRows{data: q.rows}, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL, q.lastArgs = sql, args
	if q.err != nil {
		return fakeRow{err: q.err}
	}
	return fakeRow{value: int64(len(q.rows))}
}

type fakeRows struct {
	data []rowData
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	d := r.data[r.idx-1]
	values := []any{d.id, d.title, d.url, d.docType, d.country, d.year, d.content, d.score, d.createdAt}
	if len(dest) != len(values) {
		return fmt.Errorf("expected %d scan targets, got %d", len(values), len(dest))
	}
	for i, v := range values {
		switch t := dest[i].(type) {
		case *string:
			*t = v.(string)
		case *int:
			*t = v.(int)
		case *float32:
			*t = v.(float32)
		case *time.Time:
			*t = v.(time.Time)
		default:
			return fmt.Errorf("unsupported scan target %T at %d", dest[i], i)
		}
	}
	return nil
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

type fakeRow struct {
	value int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch t := dest[0].(type) {
	case *int64:
		*t = r.value
	case *int:
		*t = int(r.value)
	}
	return nil
}

func newTestStore(t *testing.T, q Querier) *Store {
	t.Helper()
	s, err := NewStore(q, Config{Dimension: testDim, ScanCap: 100, FilterMultiplier: 10}, log.NewNop())
	require.NoError(t, err)
	return s
}

func vec(v float32) []float32 {
	return []float32{v, v, v, v}
}

func candidate(id string, score float32, year int, country, docType string) rowData {
	return rowData{
		id:        id,
		title:     "Title " + id,
		url:       "https://example.org/" + id,
		docType:   docType,
		country:   country,
		year:      year,
		content:   "content of " + id,
		score:     score,
		createdAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(nil, Config{Dimension: testDim}, log.NewNop())
	assert.Error(t, err)

	_, err = NewStore(&fakeQuerier{}, Config{Dimension: 0}, log.NewNop())
	assert.Error(t, err)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestStore(t, q)

	err := s.Upsert(context.Background(), DocumentChunk{
		ID:        "doc#0",
		Embedding: []float32{1, 2},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Empty(t, q.lastSQL, "no write should reach the database")
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{})
	err := s.Upsert(context.Background(), DocumentChunk{Embedding: vec(1)})
	assert.Error(t, err)
}

func TestUpsertWritesChunk(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestStore(t, q)

	err := s.Upsert(context.Background(), DocumentChunk{
		ID:        "audit-2024#0",
		Title:     "Audit Report",
		Type:      "report",
		Country:   "Kenya",
		Year:      2024,
		Text:      "chunk body",
		Embedding: vec(0.5),
	})
	require.NoError(t, err)
	assert.Contains(t, q.lastSQL, "INSERT INTO documents")
	assert.Contains(t, q.lastSQL, "ON CONFLICT (id) DO UPDATE")
	assert.Equal(t, "audit-2024#0", q.lastArgs[0])
}

func TestSearchValidation(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{})

	_, err := s.Search(context.Background(), vec(1), Page{Limit: 0}, Filter{}, SortByRelevance)
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = s.Search(context.Background(), vec(1), Page{Limit: 10, Offset: -1}, Filter{}, SortByRelevance)
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = s.Search(context.Background(), []float32{1}, Page{Limit: 10}, Filter{}, SortByRelevance)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchReturnsScoredPage(t *testing.T) {
	q := &fakeQuerier{rows: []rowData{
		candidate("a#0", 0.9, 2023, "Kenya", "report"),
		candidate("b#0", 0.8, 2021, "Ghana", "guidance"),
	}}
	s := newTestStore(t, q)

	page, err := s.Search(context.Background(), vec(1), Page{Limit: 10}, Filter{}, SortByRelevance)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.False(t, page.HasMore)

	assert.Equal(t, "a#0", page.Items[0].ID)
	assert.InDelta(t, 0.9, page.Items[0].Score, 1e-6)
	assert.Equal(t, "Title a#0", page.Items[0].Title)
	assert.Equal(t, 2023, page.Items[0].Year)
}

func TestSearchCandidatePool(t *testing.T) {
	tests := []struct {
		name   string
		page   Page
		filter Filter
		want   int
	}{
		{name: "unfiltered", page: Page{Limit: 10}, want: 11},
		{name: "with offset", page: Page{Limit: 10, Offset: 20}, want: 31},
		{name: "filtered scales by multiplier", page: Page{Limit: 5}, filter: Filter{Country: "Kenya"}, want: 60},
		{name: "capped at scan ceiling", page: Page{Limit: 50}, filter: Filter{Year: 2024}, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{}
			s := newTestStore(t, q)

			_, err := s.Search(context.Background(), vec(1), tt.page, tt.filter, SortByRelevance)
			require.NoError(t, err)
			require.Len(t, q.lastArgs, 2)
			assert.Equal(t, tt.want, q.lastArgs[1])
		})
	}
}

func TestSearchPostFilter(t *testing.T) {
	q := &fakeQuerier{rows: []rowData{
		candidate("a#0", 0.9, 2023, "Kenya", "report"),
		candidate("b#0", 0.8, 2021, "Ghana", "report"),
		candidate("c#0", 0.7, 2023, "kenya", "guidance"),
	}}
	s := newTestStore(t, q)

	page, err := s.Search(context.Background(), vec(1), Page{Limit: 10}, Filter{Country: "KENYA"}, SortByRelevance)
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "country match is case-insensitive")
	assert.Equal(t, "a#0", page.Items[0].ID)
	assert.Equal(t, "c#0", page.Items[1].ID)
}

func TestSearchYearRangeFilter(t *testing.T) {
	q := &fakeQuerier{rows: []rowData{
		candidate("old#0", 0.9, 2015, "", "report"),
		candidate("mid#0", 0.8, 2020, "", "report"),
		candidate("new#0", 0.7, 2024, "", "report"),
		candidate("unknown#0", 0.6, 0, "", "report"),
	}}
	s := newTestStore(t, q)

	page, err := s.Search(context.Background(), vec(1), Page{Limit: 10},
		Filter{YearFrom: 2018, YearTo: 2022}, SortByRelevance)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "mid#0", page.Items[0].ID)
}

func TestSearchSortByYear(t *testing.T) {
	q := &fakeQuerier{rows: []rowData{
		candidate("a#0", 0.9, 2019, "", "report"),
		candidate("b#0", 0.8, 2024, "", "report"),
		candidate("c#0", 0.95, 2024, "", "report"),
	}}
	s := newTestStore(t, q)

	page, err := s.Search(context.Background(), vec(1), Page{Limit: 10}, Filter{}, SortByYear)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	// Newest first, score breaks the tie within a year.
	assert.Equal(t, "c#0", page.Items[0].ID)
	assert.Equal(t, "b#0", page.Items[1].ID)
	assert.Equal(t, "a#0", page.Items[2].ID)
}

func TestSearchPaginationAndHasMore(t *testing.T) {
	q := &fakeQuerier{rows: []rowData{
		candidate("a#0", 0.9, 2023, "", "report"),
		candidate("b#0", 0.8, 2023, "", "report"),
		candidate("c#0", 0.7, 2023, "", "report"),
	}}
	s := newTestStore(t, q)

	first, err := s.Search(context.Background(), vec(1), Page{Limit: 2}, Filter{}, SortByRelevance)
	require.NoError(t, err)
	assert.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)

	second, err := s.Search(context.Background(), vec(1), Page{Limit: 2, Offset: 2}, Filter{}, SortByRelevance)
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)

	beyond, err := s.Search(context.Background(), vec(1), Page{Limit: 2, Offset: 10}, Filter{}, SortByRelevance)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.False(t, beyond.HasMore)
}

func TestSearchQueryError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("connection refused")}
	s := newTestStore(t, q)

	_, err := s.Search(context.Background(), vec(1), Page{Limit: 10}, Filter{}, SortByRelevance)
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	q := &fakeQuerier{rows: make([]rowData, 7)}
	s := newTestStore(t, q)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDeleteDocument(t *testing.T) {
	q := &fakeQuerier{execTag: pgconn.NewCommandTag("DELETE 3")}
	s := newTestStore(t, q)

	n, err := s.DeleteDocument(context.Background(), "audit-2024")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, q.lastSQL, "DELETE FROM documents")

	_, err = s.DeleteDocument(context.Background(), "")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{})
	assert.NoError(t, s.Ping(context.Background()))

	down := newTestStore(t, &fakeQuerier{err: errors.New("down")})
	assert.Error(t, down.Ping(context.Background()))
}

func TestFilterActive(t *testing.T) {
	assert.False(t, Filter{}.Active())
	assert.True(t, Filter{Topic: "report"}.Active())
	assert.True(t, Filter{Country: "Kenya"}.Active())
	assert.True(t, Filter{Year: 2024}.Active())
	assert.True(t, Filter{YearFrom: 2020}.Active())
	assert.True(t, Filter{YearTo: 2024}.Active())
}
