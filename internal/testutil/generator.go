package testutil

import (
	"context"
	"strings"
	"sync"
)

// Generator is a scripted llm.Generator for tests. It returns Response for
// every prompt unless a registered pattern matches, and records each prompt
// it receives.
//
// Thread-safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rules   []generatorRule
	prompts []string

	// Response is returned when no pattern matches.
	Response string

	// Err, when set, is returned by every Generate call.
	Err error

	// Calls counts Generate invocations. Read it only after the code
	// under test has finished.
	Calls int
}

type generatorRule struct {
	pattern  string
	response string
}

// AddResponse registers a pattern-response pair. When a prompt contains the
// pattern (case-insensitive), the response is returned. First match wins.
func (g *Generator) AddResponse(pattern, response string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, generatorRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// Prompts returns a copy of all prompts received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]string, len(g.prompts))
	copy(cp, g.prompts)
	return cp
}

// Generate implements llm.Generator.
func (g *Generator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls++
	g.prompts = append(g.prompts, prompt)
	if g.Err != nil {
		return "", g.Err
	}

	lower := strings.ToLower(prompt)
	for _, r := range g.rules {
		if strings.Contains(lower, r.pattern) {
			return r.response, nil
		}
	}
	return g.Response, nil
}
