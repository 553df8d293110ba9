// Package reason runs advisory analysis passes over retrieved documents:
// cross-document connections, topic evolution, forward projections and
// governance-principle alignment. Every pass is best-effort; a model
// failure degrades to a labeled deterministic fallback, never an error.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/llm"
	"github.com/openinfra/beacon/internal/log"
)

const (
	// maxDocs bounds how many retrieved documents enter an analysis prompt.
	maxDocs = 8

	maxDocExcerptChars = 600

	// fallbackLabel marks deterministic placeholder output.
	fallbackLabel = "automated analysis unavailable"
)

// Engine runs the analysis passes against one generator.
type Engine struct {
	gen    llm.Generator
	logger log.Logger
}

// New creates an Engine.
func New(gen llm.Generator, logger log.Logger) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("reason: generator is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{gen: gen, logger: logger}, nil
}

// Connections relates the retrieved documents pairwise. Entries with a
// kind outside the fixed taxonomy are dropped and confidence is clamped
// into [0,1]. With fewer than two documents there is nothing to relate.
func (e *Engine) Connections(ctx context.Context, query string, docs []knowledge.ScoredChunk) []Connection {
	docs = capDocs(docs)
	if len(docs) < 2 {
		return nil
	}

	prompt := docPrompt(query, docs) + `Identify relationships between the documents above.
Respond with a single JSON object, no prose outside it:
{"connections": [{"kind": "causal|temporal|thematic|contradictory|complementary", "docA": "title", "docB": "title", "relationship": "...", "insight": "...", "confidence": 0.0}]}`

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("connection analysis failed", "error", err)
		return connectionFallback(docs)
	}

	var parsed struct {
		Connections []Connection `json:"connections"`
	}
	if !decode(raw, &parsed) || len(parsed.Connections) == 0 {
		e.logger.Warn("connection analysis unparseable, using fallback")
		return connectionFallback(docs)
	}

	out := parsed.Connections[:0]
	for _, c := range parsed.Connections {
		c.Kind = ConnectionKind(strings.ToLower(string(c.Kind)))
		if !connectionKinds[c.Kind] {
			continue
		}
		c.Confidence = clamp(c.Confidence, 0, 1)
		out = append(out, c)
	}
	if len(out) == 0 {
		return connectionFallback(docs)
	}
	return out
}

// Evolution reconstructs how the topic developed over time. Documents are
// presented in year-ascending order and the returned shifts are sorted by
// period start.
func (e *Engine) Evolution(ctx context.Context, query string, docs []knowledge.ScoredChunk) []EvolutionShift {
	docs = capDocs(docs)
	if len(docs) == 0 {
		return nil
	}
	sorted := make([]knowledge.ScoredChunk, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	prompt := docPrompt(query, sorted) + `The documents above are ordered oldest first. Describe how this topic evolved as distinct phases.
Respond with a single JSON object, no prose outside it:
{"shifts": [{"phase": "short name", "period": {"from": 2019, "to": 2021}, "summary": "...", "drivers": ["..."], "representativeDocs": ["title"]}]}`

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("evolution analysis failed", "error", err)
		return evolutionFallback(sorted)
	}

	var parsed struct {
		Shifts []EvolutionShift `json:"shifts"`
	}
	if !decode(raw, &parsed) || len(parsed.Shifts) == 0 {
		e.logger.Warn("evolution analysis unparseable, using fallback")
		return evolutionFallback(sorted)
	}

	shifts := parsed.Shifts
	sort.SliceStable(shifts, func(i, j int) bool { return shifts[i].Period.From < shifts[j].Period.From })
	return shifts
}

// Predictions projects plausible forward scenarios with clamped
// confidence scores.
func (e *Engine) Predictions(ctx context.Context, query string, docs []knowledge.ScoredChunk) []PredictiveScenario {
	docs = capDocs(docs)
	if len(docs) == 0 {
		return nil
	}

	prompt := docPrompt(query, docs) + `Project 2 or 3 plausible scenarios for how this topic develops next, grounded in the documents above.
Respond with a single JSON object, no prose outside it:
{"scenarios": [{"scenario": "short name", "projection": "...", "confidence": 0.0, "leadingIndicators": ["..."], "references": ["title"]}]}`

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("predictive analysis failed", "error", err)
		return predictionFallback(docs)
	}

	var parsed struct {
		Scenarios []PredictiveScenario `json:"scenarios"`
	}
	if !decode(raw, &parsed) || len(parsed.Scenarios) == 0 {
		e.logger.Warn("predictive analysis unparseable, using fallback")
		return predictionFallback(docs)
	}

	for i := range parsed.Scenarios {
		parsed.Scenarios[i].Confidence = clamp(parsed.Scenarios[i].Confidence, 0, 1)
	}
	return parsed.Scenarios
}

// Alignment grades the retrieved evidence against the governance rubric.
// Scores are clamped into [0,10] and entries for unknown principles are
// dropped; principles the model skipped are filled with a neutral score.
func (e *Engine) Alignment(ctx context.Context, query string, docs []knowledge.ScoredChunk) AlignmentReport {
	docs = capDocs(docs)
	if len(docs) == 0 {
		return alignmentFallback()
	}

	prompt := docPrompt(query, docs) + `Grade the evidence above against these governance principles: disclosure, participation, accountability, value-for-money, sustainability. Score each 0 (no evidence of the principle being honored) to 10 (strong evidence).
Respond with a single JSON object, no prose outside it:
{"overallScore": 0.0, "perPrincipleScores": [{"principle": "disclosure", "score": 0.0, "evidence": "..."}], "risks": ["..."], "stakeholderBalance": ["..."]}`

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("alignment analysis failed", "error", err)
		return alignmentFallback()
	}

	var report AlignmentReport
	if !decode(raw, &report) || len(report.PerPrinciple) == 0 {
		e.logger.Warn("alignment analysis unparseable, using fallback")
		return alignmentFallback()
	}

	seen := make(map[Principle]bool)
	kept := report.PerPrinciple[:0]
	for _, ps := range report.PerPrinciple {
		ps.Principle = Principle(strings.ToLower(string(ps.Principle)))
		if !principleSet[ps.Principle] || seen[ps.Principle] {
			continue
		}
		seen[ps.Principle] = true
		ps.Score = clamp(ps.Score, 0, 10)
		kept = append(kept, ps)
	}
	for _, p := range Principles {
		if !seen[p] {
			kept = append(kept, PrincipleScore{Principle: p, Score: 5})
		}
	}
	report.PerPrinciple = kept
	report.OverallScore = clamp(report.OverallScore, 0, 10)
	return report
}

// docPrompt renders the shared preamble listing the documents.
func docPrompt(query string, docs []knowledge.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("You are analyzing documents about public infrastructure governance.\n")
	fmt.Fprintf(&b, "Research question: %s\n\nDocuments:\n", query)
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s", i+1, d.Title)
		if d.Year > 0 {
			fmt.Fprintf(&b, " (%d)", d.Year)
		}
		text := truncate(strings.TrimSpace(d.Text), maxDocExcerptChars)
		fmt.Fprintf(&b, "\n%s\n\n", text)
	}
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
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

func decode(raw string, v any) bool {
	data, ok := llm.ExtractJSON(raw)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func capDocs(docs []knowledge.ScoredChunk) []knowledge.ScoredChunk {
	if len(docs) > maxDocs {
		return docs[:maxDocs]
	}
	return docs
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func connectionFallback(docs []knowledge.ScoredChunk) []Connection {
	return []Connection{{
		Kind:         KindThematic,
		DocA:         docs[0].Title,
		DocB:         docs[1].Title,
		Relationship: "retrieved for the same query",
		Insight:      fallbackLabel,
		Confidence:   0,
	}}
}

func evolutionFallback(sorted []knowledge.ScoredChunk) []EvolutionShift {
	from, to := 0, 0
	var titles []string
	for _, d := range sorted {
		if d.Year > 0 {
			if from == 0 || d.Year < from {
				from = d.Year
			}
			if d.Year > to {
				to = d.Year
			}
		}
		if len(titles) < 3 {
			titles = append(titles, d.Title)
		}
	}
	return []EvolutionShift{{
		Phase:              "documented period",
		Period:             Period{From: from, To: to},
		Summary:            fallbackLabel,
		RepresentativeDocs: titles,
	}}
}

func predictionFallback(docs []knowledge.ScoredChunk) []PredictiveScenario {
	var titles []string
	for _, d := range docs {
		if len(titles) == 3 {
			break
		}
		titles = append(titles, d.Title)
	}
	return []PredictiveScenario{{
		Scenario:   "continuation of documented trend",
		Projection: fallbackLabel,
		Confidence: 0,
		References: titles,
	}}
}

func alignmentFallback() AlignmentReport {
	scores := make([]PrincipleScore, 0, len(Principles))
	for _, p := range Principles {
		scores = append(scores, PrincipleScore{Principle: p, Score: 5})
	}
	return AlignmentReport{
		OverallScore: 5,
		PerPrinciple: scores,
		Risks:        []string{fallbackLabel},
		Fallback:     true,
	}
}
