// Package livectx fuses indexed document knowledge with live external
// search coverage into a single summary that flags freshness and
// contradictions. The engine is best-effort end to end: whatever fails,
// the caller always gets a usable summary back.
package livectx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/llm"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/security"
	"github.com/openinfra/beacon/internal/websearch"
)

const (
	// maxInternal and maxExternal bound how many sources enter the prompt.
	maxInternal = 6
	maxExternal = 5

	// fallbackTop is how many sources each side contributes to the
	// deterministic fallback summary.
	fallbackTop = 3

	maxExcerptChars = 800
)

// Searcher is the external search surface the engine needs.
type Searcher interface {
	Search(ctx context.Context, req websearch.Request) ([]websearch.Result, error)
}

// Engine builds living-context summaries.
type Engine struct {
	gen    llm.Generator
	search Searcher
	logger log.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source used for temporal hints and
// recency labels.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine. The searcher may be nil, in which case callers
// must pass pre-fetched external results to Summarize.
func New(gen llm.Generator, search Searcher, logger log.Logger, opts ...Option) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("livectx: generator is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Engine{gen: gen, search: search, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Summarize fuses the scored chunks with external coverage of the same
// query. When external is nil and a searcher is configured, the engine
// runs its own search using any temporal hint detected in the query.
// Summarize never fails: model or search trouble degrades to a
// deterministic summary of the top sources.
func (e *Engine) Summarize(ctx context.Context, query string, internal []knowledge.ScoredChunk, external []websearch.Result) Summary {
	if len(internal) > maxInternal {
		internal = internal[:maxInternal]
	}

	if external == nil && e.search != nil {
		results, err := e.search.Search(ctx, websearch.Request{
			Query:        query,
			NumResults:   maxExternal,
			TemporalHint: TemporalHint(query, e.now()),
		})
		if err != nil {
			e.logger.Warn("external search failed, continuing with indexed sources only",
				"query", query, "error", err)
		} else {
			external = results
		}
	}
	if len(external) > maxExternal {
		external = external[:maxExternal]
	}

	raw, err := e.gen.Generate(ctx, e.buildPrompt(query, internal, external))
	if err != nil {
		e.logger.Warn("living context generation failed", "error", err)
		return e.fallback(query, internal, external)
	}

	summary, ok := e.parse(raw, internal, external)
	if !ok {
		e.logger.Warn("living context response unparseable, using fallback")
		return e.fallback(query, internal, external)
	}
	return summary
}

// modelSummary is the JSON shape requested from the model. Refs are label
// strings (I1, E2) resolved back to sources after parsing.
type modelSummary struct {
	Headline  string `json:"headline"`
	Synthesis string `json:"synthesis"`
	Freshness []struct {
		Kind      string   `json:"kind"`
		Statement string   `json:"statement"`
		Refs      []string `json:"refs"`
	} `json:"freshness"`
	Contradictions []struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Internal    string `json:"internal"`
		External    string `json:"external"`
	} `json:"contradictions"`
}

func (e *Engine) buildPrompt(query string, internal []knowledge.ScoredChunk, external []websearch.Result) string {
	now := e.now()

	var b strings.Builder
	b.WriteString("You are analyzing public infrastructure governance. Two sets of sources follow:\n")
	b.WriteString("indexed documents (labeled #I1, #I2, ...) and live web results (labeled #E1, #E2, ...).\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)

	b.WriteString("Indexed documents:\n")
	for i, c := range internal {
		fmt.Fprintf(&b, "#I%d %s", i+1, c.Title)
		if c.Year > 0 {
			fmt.Fprintf(&b, " (%d)", c.Year)
		}
		fmt.Fprintf(&b, "\n%s\n\n", excerpt(c.Text))
	}

	b.WriteString("Live web results:\n")
	for i, r := range external {
		fmt.Fprintf(&b, "#E%d %s", i+1, r.Title)
		if label := RecencyLabel(r.Published, now); label != "" {
			fmt.Fprintf(&b, " (published %s)", label)
		}
		text := r.Content
		if text == "" {
			text = r.Snippet
		}
		// Web text is untrusted; scrub it again at prompt assembly.
		fmt.Fprintf(&b, "\n%s\n\n", excerpt(security.ScrubExternal(text)))
	}

	b.WriteString(`Respond with a single JSON object, no prose outside it:
{
  "headline": "one line on the current state of this topic",
  "synthesis": "2-4 sentences fusing the stable indexed knowledge with the live coverage, noting what is established and what is still moving",
  "freshness": [{"kind": "reinforces|challenges|emerging", "statement": "...", "refs": ["I1", "E2"]}],
  "contradictions": [{"severity": "low|medium|high", "description": "...", "internal": "I1", "external": "E1"}]
}
Use only the labels given above in refs, internal and external. Report contradictions only where an indexed document and a web result genuinely disagree.`)
	return b.String()
}

// parse validates the model output against the supplied sources. Signals
// with an unknown kind or severity, or with no resolvable reference, are
// dropped rather than repaired.
func (e *Engine) parse(raw string, internal []knowledge.ScoredChunk, external []websearch.Result) (Summary, bool) {
	data, ok := llm.ExtractJSON(raw)
	if !ok {
		return Summary{}, false
	}
	var ms modelSummary
	if err := json.Unmarshal(data, &ms); err != nil {
		return Summary{}, false
	}
	if strings.TrimSpace(ms.Synthesis) == "" {
		return Summary{}, false
	}

	resolve := func(label string) (Ref, bool) {
		label = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(label), "#"))
		var n int
		if _, err := fmt.Sscanf(label, "I%d", &n); err == nil && n >= 1 && n <= len(internal) {
			c := internal[n-1]
			return Ref{Title: c.Title, URL: c.URL}, true
		}
		if _, err := fmt.Sscanf(label, "E%d", &n); err == nil && n >= 1 && n <= len(external) {
			r := external[n-1]
			return Ref{Title: r.Title, URL: r.URL}, true
		}
		return Ref{}, false
	}

	out := Summary{
		Headline:  strings.TrimSpace(ms.Headline),
		Synthesis: strings.TrimSpace(ms.Synthesis),
		Internal:  chunkRefs(internal),
		External:  resultRefs(external),
	}

	for _, f := range ms.Freshness {
		kind := FreshnessKind(strings.ToLower(f.Kind))
		if kind != FreshnessReinforces && kind != FreshnessChallenges && kind != FreshnessEmerging {
			continue
		}
		var refs []Ref
		for _, label := range f.Refs {
			if ref, ok := resolve(label); ok {
				refs = append(refs, ref)
			}
		}
		if len(refs) == 0 {
			continue
		}
		out.Freshness = append(out.Freshness, FreshnessSignal{
			Kind:      kind,
			Statement: strings.TrimSpace(f.Statement),
			Refs:      refs,
		})
	}

	for _, c := range ms.Contradictions {
		sev := Severity(strings.ToLower(c.Severity))
		if sev != SeverityLow && sev != SeverityMedium && sev != SeverityHigh {
			continue
		}
		in, okIn := resolve(c.Internal)
		ex, okEx := resolve(c.External)
		if !okIn || !okEx {
			continue
		}
		out.Contradictions = append(out.Contradictions, Contradiction{
			Severity:    sev,
			Description: strings.TrimSpace(c.Description),
			Internal:    in,
			External:    ex,
		})
	}
	return out, true
}

// fallback assembles a neutral summary from the top sources on each side.
func (e *Engine) fallback(query string, internal []knowledge.ScoredChunk, external []websearch.Result) Summary {
	topInternal := internal
	if len(topInternal) > fallbackTop {
		topInternal = topInternal[:fallbackTop]
	}
	topExternal := external
	if len(topExternal) > fallbackTop {
		topExternal = topExternal[:fallbackTop]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sources retrieved for %q.", query)
	if len(topInternal) > 0 {
		b.WriteString(" Indexed documents:")
		for i, c := range topInternal {
			if i > 0 {
				b.WriteString(";")
			}
			fmt.Fprintf(&b, " %s", c.Title)
		}
		b.WriteString(".")
	}
	if len(topExternal) > 0 {
		b.WriteString(" Recent web coverage:")
		for i, r := range topExternal {
			if i > 0 {
				b.WriteString(";")
			}
			fmt.Fprintf(&b, " %s", r.Title)
		}
		b.WriteString(".")
	}

	return Summary{
		Headline:  "Retrieved sources (automated summary unavailable)",
		Synthesis: b.String(),
		Internal:  chunkRefs(topInternal),
		External:  resultRefs(topExternal),
		Fallback:  true,
	}
}

func chunkRefs(chunks []knowledge.ScoredChunk) []Ref {
	refs := make([]Ref, 0, len(chunks))
	for _, c := range chunks {
		refs = append(refs, Ref{Title: c.Title, URL: c.URL})
	}
	return refs
}

func resultRefs(results []websearch.Result) []Ref {
	refs := make([]Ref, 0, len(results))
	for _, r := range results {
		refs = append(refs, Ref{Title: r.Title, URL: r.URL})
	}
	return refs
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxExcerptChars {
		text = text[:maxExcerptChars]
	}
	return text
}
