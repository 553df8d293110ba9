package knowledge

import "time"

// DocumentChunk is one embedded segment of a corpus document, the unit owned
// by the document store.
type DocumentChunk struct {
	ID        string    // "<docID>#<chunkIndex>"
	Title     string    // source document title
	URL       string    // canonical source URL
	Type      string    // document category (report, guidance, assurance, ...)
	Country   string    // optional country name, empty if global
	Year      int       // optional publication year, 0 if unknown
	Text      string    // chunk text including injected header context
	Embedding []float32 // pinned-dimension vector, set at write time
	CreatedAt time.Time
}

// ScoredChunk is a DocumentChunk with its similarity score. Only Search
// produces ScoredChunks; Score is the descending sort key.
type ScoredChunk struct {
	DocumentChunk
	Score float32 // cosine similarity in [0, 1]
}

// Filter is the metadata post-filter applied after similarity retrieval.
// Zero values mean "not filtered". Year and YearFrom/YearTo are mutually
// exclusive modes over the same field; the API layer rejects requests
// setting both.
type Filter struct {
	Topic    string // matches Type, case-insensitive
	Country  string // case-insensitive equality
	Year     int    // exact year
	YearFrom int    // inclusive lower bound
	YearTo   int    // inclusive upper bound
}

// Active reports whether any filter constraint is set. Drives the
// oversampling multiplier: filtered queries scan a larger candidate pool.
func (f Filter) Active() bool {
	return f.Topic != "" || f.Country != "" || f.Year != 0 || f.YearFrom != 0 || f.YearTo != 0
}

// Page selects one result window.
type Page struct {
	Limit  int // page size, must be positive
	Offset int // rows to skip
}

// SearchPage is one page of scored results. HasMore is computed from an
// extra fetched row, so it is accurate even under filter attrition.
type SearchPage struct {
	Items   []ScoredChunk
	HasMore bool
}

// Sort orders accepted by Search.
const (
	SortByRelevance = "relevance"
	SortByYear      = "year"
)
