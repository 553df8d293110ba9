// Package synthesis turns ranked passages into a short cited answer. Every
// bullet in the answer must be backed by at least one retrieved snippet;
// bullets the model fails to ground are dropped rather than repaired.
package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openinfra/beacon/internal/llm"
	"github.com/openinfra/beacon/internal/log"
)

const (
	minBullets = 3
	maxBullets = 6

	// maxSnippetChars truncates each passage in the prompt so a handful of
	// long documents cannot crowd out the rest.
	maxSnippetChars = 1200
)

var (
	markerPattern = regexp.MustCompile(`\[(\d+)\]`)
	bulletPrefix  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
)

// Synthesizer produces citation-constrained answers from retrieved snippets.
type Synthesizer struct {
	gen    llm.Generator
	logger log.Logger
}

// New creates a Synthesizer backed by the given generator.
func New(gen llm.Generator, logger log.Logger) (*Synthesizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("synthesis: generator is nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Synthesizer{gen: gen, logger: logger}, nil
}

// Synthesize answers query using only the provided snippets. With no
// snippets there is nothing to cite, so the answer is empty and no model
// call is made. Bullets without at least one valid [n] marker are dropped.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, snippets []Snippet) (Answer, error) {
	if len(snippets) == 0 {
		return Answer{}, nil
	}

	raw, err := s.gen.Generate(ctx, buildPrompt(query, snippets))
	if err != nil {
		return Answer{}, fmt.Errorf("synthesize answer: %w", err)
	}

	bullets, dropped := parseBullets(raw, snippets)
	if dropped > 0 {
		s.logger.Warn("dropped uncited bullets",
			"dropped", dropped,
			"kept", len(bullets))
	}
	return Answer{Bullets: bullets}, nil
}

// buildPrompt numbers the snippets and instructs the model to cite them.
func buildPrompt(query string, snippets []Snippet) string {
	var b strings.Builder
	b.WriteString("You are a research assistant answering questions about public infrastructure governance.\n")
	b.WriteString("Answer the question using ONLY the numbered sources below.\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Respond with %d to %d bullet points, one per line, each starting with \"- \".\n", minBullets, maxBullets)
	b.WriteString("- End every bullet with the source numbers that support it, like [1] or [2][3].\n")
	b.WriteString("- Do not state anything that no source supports. If the sources do not cover the question, say so in a single cited bullet.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nSources:\n", query)

	for _, sn := range snippets {
		text := truncate(sn.Text, maxSnippetChars)
		fmt.Fprintf(&b, "[%d] %s", sn.Number, sn.Title)
		if sn.Year > 0 {
			fmt.Fprintf(&b, " (%d)", sn.Year)
		}
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

// parseBullets extracts cited bullets from the model output. Markers that
// do not refer to a provided snippet are discarded, and a bullet that ends
// up with no valid citation is dropped entirely. At most maxBullets are kept.
func parseBullets(raw string, snippets []Snippet) (bullets []Bullet, dropped int) {
	byNumber := make(map[int]Snippet, len(snippets))
	for _, sn := range snippets {
		byNumber[sn.Number] = sn
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		// Only list items qualify as bullets. Prose around the list, such
		// as a preamble, is ignored even when it carries a marker.
		if !bulletPrefix.MatchString(line) {
			continue
		}
		text := bulletPrefix.ReplaceAllString(line, "")
		if text == "" {
			continue
		}

		var citations []Citation
		seen := make(map[int]bool)
		for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || seen[n] {
				continue
			}
			sn, ok := byNumber[n]
			if !ok {
				continue
			}
			seen[n] = true
			citations = append(citations, Citation{Snippet: n, Title: sn.Title, URL: sn.URL})
		}
		if len(citations) == 0 {
			dropped++
			continue
		}

		text = strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
		if text == "" {
			dropped++
			continue
		}
		bullets = append(bullets, Bullet{Text: text, Citations: citations})
		if len(bullets) == maxBullets {
			break
		}
	}
	return bullets, dropped
}
