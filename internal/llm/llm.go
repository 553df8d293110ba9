// Package llm adapts the generative model behind a minimal free-text
// contract. All structured consumers (synthesis, living context, reasoning
// passes) depend on Generator rather than on Genkit directly, so tests can
// substitute deterministic fakes and parse layers stay provider-agnostic.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Generator produces free text from a free-text prompt. The response may be
// prose, fenced JSON, or malformed output; callers must tolerate all three.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenkitGenerator implements Generator on top of a Genkit model.
type GenkitGenerator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	timeout     time.Duration
	retry       RetryConfig
	logger      *slog.Logger
}

// GeneratorConfig configures a GenkitGenerator.
type GeneratorConfig struct {
	ModelName   string        // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Temperature float32
	Timeout     time.Duration // per-call timeout, default 60s
	Retry       RetryConfig
}

// NewGenkitGenerator creates a Generator backed by the given Genkit instance.
func NewGenkitGenerator(g *genkit.Genkit, cfg GeneratorConfig, logger *slog.Logger) (*GenkitGenerator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.Retry = effectiveRetry(cfg.Retry)

	return &GenkitGenerator{
		g:           g,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		retry:       cfg.Retry,
		logger:      logger,
	}, nil
}

// Generate executes the prompt with per-call timeout and retry on transient
// provider failures.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, gg.timeout)
	defer cancel()

	resp, err := Retry(callCtx, gg.retry, gg.logger, func(ctx context.Context) (*ai.ModelResponse, error) {
		return genkit.Generate(ctx, gg.g,
			ai.WithModelName(gg.modelName),
			ai.WithPrompt(prompt),
			ai.WithConfig(map[string]any{"temperature": gg.temperature}),
		)
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return resp.Text(), nil
}
