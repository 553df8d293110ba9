package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/livectx"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/query"
	"github.com/openinfra/beacon/internal/reason"
	"github.com/openinfra/beacon/internal/synthesis"
)

// summaryChars truncates item text in the search response.
const summaryChars = 280

// QueryService answers research questions.
type QueryService interface {
	Ask(ctx context.Context, req query.Request) (query.Response, error)
}

// searchHandler serves GET /search.
type searchHandler struct {
	svc             QueryService
	defaultPageSize int
	maxPageSize     int
	logger          log.Logger
}

// searchItem is one result row in the response.
type searchItem struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Type    string  `json:"type"`
	Summary string  `json:"summary"`
	Country string  `json:"country,omitempty"`
	Year    int     `json:"year,omitempty"`
	URL     string  `json:"url"`
	Score   float32 `json:"score"`
}

// searchResponse is the GET /search payload.
type searchResponse struct {
	Answer   []synthesis.Bullet `json:"answer"`
	Items    []searchItem       `json:"items"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
	HasMore  bool               `json:"hasMore"`

	LivingContext *livectx.Summary            `json:"livingContext,omitempty"`
	Connections   []reason.Connection         `json:"connections,omitempty"`
	Evolution     []reason.EvolutionShift     `json:"evolution,omitempty"`
	Predictions   []reason.PredictiveScenario `json:"predictions,omitempty"`
	Alignment     *reason.AlignmentReport     `json:"alignment,omitempty"`
}

func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	req, pageNum, pageSize, errMsg := h.parseRequest(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", errMsg)
		return
	}

	resp, err := h.svc.Ask(r.Context(), req)
	if err != nil {
		if errors.Is(err, query.ErrQueryTooShort) {
			writeError(w, http.StatusBadRequest, "query_too_short", err.Error())
			return
		}
		h.logger.Error("search failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}

	items := make([]searchItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		summary := truncate(it.Text, summaryChars)
		items = append(items, searchItem{
			ID:      it.ID,
			Title:   it.Title,
			Type:    it.Type,
			Summary: summary,
			Country: it.Country,
			Year:    it.Year,
			URL:     it.URL,
			Score:   it.Score,
		})
	}

	answer := resp.Answer.Bullets
	if answer == nil {
		answer = []synthesis.Bullet{}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Answer:        answer,
		Items:         items,
		Page:          pageNum,
		PageSize:      pageSize,
		HasMore:       resp.HasMore,
		LivingContext: resp.LivingContext,
		Connections:   resp.Connections,
		Evolution:     resp.Evolution,
		Predictions:   resp.Predictions,
		Alignment:     resp.Alignment,
	})
}

// parseRequest validates the query string. It returns a non-empty errMsg
// on any client error.
func (h *searchHandler) parseRequest(r *http.Request) (req query.Request, pageNum, pageSize int, errMsg string) {
	q := r.URL.Query()

	req.Query = strings.TrimSpace(q.Get("q"))
	if req.Query == "" {
		return req, 0, 0, "missing required parameter q"
	}

	year, err := intParam(q.Get("year"))
	if err != nil {
		return req, 0, 0, "year must be an integer"
	}
	yearFrom, err := intParam(q.Get("yearFrom"))
	if err != nil {
		return req, 0, 0, "yearFrom must be an integer"
	}
	yearTo, err := intParam(q.Get("yearTo"))
	if err != nil {
		return req, 0, 0, "yearTo must be an integer"
	}
	if year != 0 && (yearFrom != 0 || yearTo != 0) {
		return req, 0, 0, "year is mutually exclusive with yearFrom/yearTo"
	}
	if yearFrom != 0 && yearTo != 0 && yearTo < yearFrom {
		return req, 0, 0, "yearTo must not precede yearFrom"
	}

	req.Filter = knowledge.Filter{
		Topic:    strings.TrimSpace(q.Get("topic")),
		Country:  strings.TrimSpace(q.Get("country")),
		Year:     year,
		YearFrom: yearFrom,
		YearTo:   yearTo,
	}

	switch sortBy := q.Get("sortBy"); sortBy {
	case "", knowledge.SortByRelevance:
		req.SortBy = knowledge.SortByRelevance
	case knowledge.SortByYear:
		req.SortBy = knowledge.SortByYear
	default:
		return req, 0, 0, "sortBy must be relevance or year"
	}

	pageNum, err = intParam(q.Get("page"))
	if err != nil || pageNum < 0 {
		return req, 0, 0, "page must be a positive integer"
	}
	if pageNum == 0 {
		pageNum = 1
	}

	pageSize, err = intParam(q.Get("pageSize"))
	if err != nil || pageSize < 0 {
		return req, 0, 0, "pageSize must be a positive integer"
	}
	if pageSize == 0 {
		pageSize = h.defaultPageSize
	}
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}

	req.Page = knowledge.Page{Limit: pageSize, Offset: (pageNum - 1) * pageSize}

	for _, block := range strings.Split(q.Get("include"), ",") {
		switch strings.TrimSpace(block) {
		case "":
		case "context":
			req.Include.LivingContext = true
		case "connections":
			req.Include.Connections = true
		case "evolution":
			req.Include.Evolution = true
		case "predictions":
			req.Include.Predictions = true
		case "alignment":
			req.Include.Alignment = true
		default:
			return req, 0, 0, "include blocks are context, connections, evolution, predictions, alignment"
		}
	}

	return req, pageNum, pageSize, ""
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune, so
// summaries stay valid UTF-8 in the JSON response.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
