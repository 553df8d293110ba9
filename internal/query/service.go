// Package query orchestrates one research request end to end: cache
// lookup, query embedding, vector retrieval, grounded synthesis and the
// optional analysis passes.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/openinfra/beacon/internal/cache"
	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/livectx"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/reason"
	"github.com/openinfra/beacon/internal/synthesis"
	"github.com/openinfra/beacon/internal/websearch"
)

// MinQueryRunes is the shortest accepted query.
const MinQueryRunes = 3

// ErrQueryTooShort reports a query below MinQueryRunes. It is a client
// error, never retried.
var ErrQueryTooShort = errors.New("query too short")

// Embedder turns a query into a vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the retrieval surface of the document store.
type Searcher interface {
	Search(ctx context.Context, queryVec []float32, page knowledge.Page, filter knowledge.Filter, sortBy string) (knowledge.SearchPage, error)
}

// Synthesizer produces the cited answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, snippets []synthesis.Snippet) (synthesis.Answer, error)
}

// ContextEngine builds the living-context summary.
type ContextEngine interface {
	Summarize(ctx context.Context, query string, internal []knowledge.ScoredChunk, external []websearch.Result) livectx.Summary
}

// Analyzer runs the advisory reasoning passes.
type Analyzer interface {
	Connections(ctx context.Context, query string, docs []knowledge.ScoredChunk) []reason.Connection
	Evolution(ctx context.Context, query string, docs []knowledge.ScoredChunk) []reason.EvolutionShift
	Predictions(ctx context.Context, query string, docs []knowledge.ScoredChunk) []reason.PredictiveScenario
	Alignment(ctx context.Context, query string, docs []knowledge.ScoredChunk) reason.AlignmentReport
}

// Include selects the optional analysis blocks for one request.
type Include struct {
	LivingContext bool
	Connections   bool
	Evolution     bool
	Predictions   bool
	Alignment     bool
}

// Any reports whether any optional block was requested.
func (in Include) Any() bool {
	return in.LivingContext || in.Connections || in.Evolution || in.Predictions || in.Alignment
}

// Request is one research question with its retrieval parameters.
type Request struct {
	Query   string
	Filter  knowledge.Filter
	SortBy  string
	Page    knowledge.Page
	Include Include
}

// Response carries the cited answer, the result page and any requested
// analysis blocks.
type Response struct {
	Answer  synthesis.Answer
	Items   []knowledge.ScoredChunk
	HasMore bool

	// Cached is true when the answer and items were served from cache
	// without touching the embedder, the store or the model.
	Cached bool

	LivingContext *livectx.Summary
	Connections   []reason.Connection
	Evolution     []reason.EvolutionShift
	Predictions   []reason.PredictiveScenario
	Alignment     *reason.AlignmentReport
}

// CachedResult is what a cache entry stores: everything that depends only
// on the request signature.
type CachedResult struct {
	Answer  synthesis.Answer
	Items   []knowledge.ScoredChunk
	HasMore bool
}

// Service wires the retrieval and synthesis pipeline together.
type Service struct {
	embedder Embedder
	store    Searcher
	synth    Synthesizer
	livectx  ContextEngine
	analyzer Analyzer
	cache    *cache.Cache[CachedResult]
	logger   log.Logger
}

// Config collects the Service dependencies. Embedder, Store and
// Synthesizer are required; the analysis engines may be nil, disabling
// their include flags.
type Config struct {
	Embedder    Embedder
	Store       Searcher
	Synthesizer Synthesizer
	Context     ContextEngine
	Analyzer    Analyzer
	Cache       *cache.Cache[CachedResult]
	Logger      log.Logger
}

// NewCache builds a result cache suitable for Config.Cache.
func NewCache(opts ...cache.Option[CachedResult]) *cache.Cache[CachedResult] {
	return cache.New(opts...)
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("query: embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("query: store is required")
	}
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("query: synthesizer is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Service{
		embedder: cfg.Embedder,
		store:    cfg.Store,
		synth:    cfg.Synthesizer,
		livectx:  cfg.Context,
		analyzer: cfg.Analyzer,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}, nil
}

// Ask answers one research question. A cache hit skips embedding,
// retrieval and synthesis entirely; the optional analysis passes always
// run fresh against the result snapshot because they are not cached.
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(query) < MinQueryRunes {
		return Response{}, fmt.Errorf("%w: need at least %d characters", ErrQueryTooShort, MinQueryRunes)
	}
	if req.SortBy == "" {
		req.SortBy = knowledge.SortByRelevance
	}

	sig := cache.NewSignature(query, req.Filter, req.SortBy, req.Page)

	var resp Response
	if hit, ok := s.cache.Get(sig); ok {
		s.logger.Debug("cache hit", "query", query)
		resp = Response{Answer: hit.Answer, Items: hit.Items, HasMore: hit.HasMore, Cached: true}
	} else {
		fresh, err := s.retrieve(ctx, query, req)
		if err != nil {
			return Response{}, err
		}
		s.cache.Set(sig, fresh)
		resp = Response{Answer: fresh.Answer, Items: fresh.Items, HasMore: fresh.HasMore}
	}

	if req.Include.Any() && len(resp.Items) > 0 {
		s.analyze(ctx, query, req.Include, &resp)
	}
	return resp, nil
}

// retrieve runs the embed, search, synthesize chain.
func (s *Service) retrieve(ctx context.Context, query string, req Request) (CachedResult, error) {
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return CachedResult{}, fmt.Errorf("embed query: %w", err)
	}

	page, err := s.store.Search(ctx, vec, req.Page, req.Filter, req.SortBy)
	if err != nil {
		return CachedResult{}, fmt.Errorf("search documents: %w", err)
	}

	answer, err := s.synth.Synthesize(ctx, query, snippetsFrom(page.Items))
	if err != nil {
		return CachedResult{}, fmt.Errorf("synthesize: %w", err)
	}

	return CachedResult{Answer: answer, Items: page.Items, HasMore: page.HasMore}, nil
}

// analyze fans the requested passes out over the same result snapshot.
// The passes are advisory and degrade internally, so the group never
// returns an error.
func (s *Service) analyze(ctx context.Context, query string, include Include, resp *Response) {
	g, gctx := errgroup.WithContext(ctx)
	items := resp.Items

	if include.LivingContext && s.livectx != nil {
		g.Go(func() error {
			summary := s.livectx.Summarize(gctx, query, items, nil)
			resp.LivingContext = &summary
			return nil
		})
	}
	if s.analyzer != nil {
		if include.Connections {
			g.Go(func() error {
				resp.Connections = s.analyzer.Connections(gctx, query, items)
				return nil
			})
		}
		if include.Evolution {
			g.Go(func() error {
				resp.Evolution = s.analyzer.Evolution(gctx, query, items)
				return nil
			})
		}
		if include.Predictions {
			g.Go(func() error {
				resp.Predictions = s.analyzer.Predictions(gctx, query, items)
				return nil
			})
		}
		if include.Alignment {
			g.Go(func() error {
				report := s.analyzer.Alignment(gctx, query, items)
				resp.Alignment = &report
				return nil
			})
		}
	}
	_ = g.Wait()
}

// snippetsFrom numbers the result page for the synthesizer.
func snippetsFrom(items []knowledge.ScoredChunk) []synthesis.Snippet {
	snippets := make([]synthesis.Snippet, 0, len(items))
	for i, item := range items {
		snippets = append(snippets, synthesis.Snippet{
			Number: i + 1,
			Title:  item.Title,
			URL:    item.URL,
			Year:   item.Year,
			Text:   item.Text,
		})
	}
	return snippets
}
