package reason

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/testutil"
)

func analysisDocs() []knowledge.ScoredChunk {
	return []knowledge.ScoredChunk{
		{DocumentChunk: knowledge.DocumentChunk{Title: "Kenya PPP framework", Year: 2019, Text: "Framework."}, Score: 0.9},
		{DocumentChunk: knowledge.DocumentChunk{Title: "Ghana audit", Year: 2022, Text: "Audit."}, Score: 0.8},
		{DocumentChunk: knowledge.DocumentChunk{Title: "Uganda review", Year: 2024, Text: "Review."}, Score: 0.7},
	}
}

func newEngine(t *testing.T, gen *testutil.Generator) *Engine {
	t.Helper()
	e, err := New(gen, log.NewNop())
	require.NoError(t, err)
	return e
}

func TestConnectionsParsesAndClamps(t *testing.T) {
	gen := &testutil.Generator{Response: `{"connections": [
		{"kind": "Causal", "docA": "Kenya PPP framework", "docB": "Ghana audit", "relationship": "framework informed the audit", "insight": "i", "confidence": 1.7},
		{"kind": "speculative", "docA": "a", "docB": "b", "relationship": "r", "insight": "i", "confidence": 0.5}
	]}`}
	e := newEngine(t, gen)

	conns := e.Connections(context.Background(), "q", analysisDocs())
	require.Len(t, conns, 1, "unknown kind should be dropped")
	assert.Equal(t, KindCausal, conns[0].Kind)
	assert.Equal(t, 1.0, conns[0].Confidence, "confidence should clamp to 1")
}

func TestConnectionsFallback(t *testing.T) {
	gen := &testutil.Generator{Err: errors.New("model down")}
	e := newEngine(t, gen)

	conns := e.Connections(context.Background(), "q", analysisDocs())
	require.Len(t, conns, 1)
	assert.Equal(t, KindThematic, conns[0].Kind)
	assert.Equal(t, "Kenya PPP framework", conns[0].DocA)
	assert.Equal(t, fallbackLabel, conns[0].Insight)
}

func TestConnectionsTooFewDocs(t *testing.T) {
	gen := &testutil.Generator{Response: "{}"}
	e := newEngine(t, gen)

	assert.Nil(t, e.Connections(context.Background(), "q", analysisDocs()[:1]))
	assert.Equal(t, 0, gen.Calls)
}

func TestEvolutionSortsShifts(t *testing.T) {
	gen := &testutil.Generator{Response: `{"shifts": [
		{"phase": "expansion", "period": {"from": 2022, "to": 2024}, "summary": "s2"},
		{"phase": "pilot", "period": {"from": 2019, "to": 2021}, "summary": "s1"}
	]}`}
	e := newEngine(t, gen)

	shifts := e.Evolution(context.Background(), "q", analysisDocs())
	require.Len(t, shifts, 2)
	assert.Equal(t, "pilot", shifts[0].Phase)
	assert.Equal(t, "expansion", shifts[1].Phase)
}

func TestEvolutionFallbackCoversDocumentedYears(t *testing.T) {
	gen := &testutil.Generator{Response: "not json"}
	e := newEngine(t, gen)

	shifts := e.Evolution(context.Background(), "q", analysisDocs())
	require.Len(t, shifts, 1)
	assert.Equal(t, Period{From: 2019, To: 2024}, shifts[0].Period)
	assert.Equal(t, fallbackLabel, shifts[0].Summary)
	assert.Len(t, shifts[0].RepresentativeDocs, 3)
}

func TestPredictionsClampsConfidence(t *testing.T) {
	gen := &testutil.Generator{Response: `{"scenarios": [
		{"scenario": "s1", "projection": "p1", "confidence": -0.2},
		{"scenario": "s2", "projection": "p2", "confidence": 0.8}
	]}`}
	e := newEngine(t, gen)

	scenarios := e.Predictions(context.Background(), "q", analysisDocs())
	require.Len(t, scenarios, 2)
	assert.Equal(t, 0.0, scenarios[0].Confidence)
	assert.Equal(t, 0.8, scenarios[1].Confidence)
}

func TestPredictionsFallback(t *testing.T) {
	gen := &testutil.Generator{Response: "no structure here"}
	e := newEngine(t, gen)

	scenarios := e.Predictions(context.Background(), "q", analysisDocs())
	require.Len(t, scenarios, 1)
	assert.Equal(t, fallbackLabel, scenarios[0].Projection)
	assert.Equal(t, 0.0, scenarios[0].Confidence)
}

func TestAlignmentClampsAndFillsMissingPrinciples(t *testing.T) {
	gen := &testutil.Generator{Response: `{
		"overallScore": 14,
		"perPrincipleScores": [
			{"principle": "Disclosure", "score": 12, "evidence": "published contracts"},
			{"principle": "honesty", "score": 9},
			{"principle": "accountability", "score": 3}
		],
		"risks": ["weak enforcement"],
		"stakeholderBalance": ["community voices underrepresented"]
	}`}
	e := newEngine(t, gen)

	report := e.Alignment(context.Background(), "q", analysisDocs())
	assert.False(t, report.Fallback)
	assert.Equal(t, 10.0, report.OverallScore)
	require.Len(t, report.PerPrinciple, len(Principles), "unknown principles dropped, missing ones filled")

	byPrinciple := make(map[Principle]float64)
	for _, ps := range report.PerPrinciple {
		byPrinciple[ps.Principle] = ps.Score
	}
	assert.Equal(t, 10.0, byPrinciple[PrincipleDisclosure])
	assert.Equal(t, 3.0, byPrinciple[PrincipleAccountability])
	assert.Equal(t, 5.0, byPrinciple[PrincipleParticipation], "skipped principle gets neutral score")
}

func TestAlignmentFallback(t *testing.T) {
	gen := &testutil.Generator{Err: errors.New("model down")}
	e := newEngine(t, gen)

	report := e.Alignment(context.Background(), "q", analysisDocs())
	assert.True(t, report.Fallback)
	assert.Equal(t, 5.0, report.OverallScore)
	assert.Len(t, report.PerPrinciple, len(Principles))
}

func TestDocPromptExcerptStaysValidUTF8(t *testing.T) {
	docs := []knowledge.ScoredChunk{
		{DocumentChunk: knowledge.DocumentChunk{Title: "Précis", Text: "a" + strings.Repeat("é", maxDocExcerptChars)}, Score: 0.9},
	}
	prompt := docPrompt("q", docs)
	assert.True(t, utf8.ValidString(prompt))
}
