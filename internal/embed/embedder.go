// Package embed turns text into fixed-dimension vectors, batched with
// backoff.
//
// The Batcher wraps a Genkit ai.Embedder and adds the behavior the provider
// does not give us: capped batch sizes, whole-batch retry degrading to
// per-item calls so one bad text cannot fail an entire batch, index
// preservation so downstream code keeps ordering, and validation that every
// vector has exactly the pinned dimension.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/openinfra/beacon/internal/llm"
)

// MaxBatchSize caps how many texts go into a single provider call.
const MaxBatchSize = 100

// perItemDelay paces the serial fallback so a degraded batch does not burst
// the provider's rate limit.
const perItemDelay = 200 * time.Millisecond

// Embedded pairs a text with its vector and original batch index.
type Embedded struct {
	Index  int
	Text   string
	Vector []float32
}

// Batcher performs capped, retried batch embedding with a pinned output
// dimension. Safe for concurrent use.
type Batcher struct {
	embedder  ai.Embedder
	dimension int32
	batchSize int
	retry     llm.RetryConfig
	logger    *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize overrides the per-call batch cap.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 && n <= MaxBatchSize {
			b.batchSize = n
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg llm.RetryConfig) Option {
	return func(b *Batcher) {
		b.retry = cfg
	}
}

// New creates a Batcher requesting vectors of exactly `dimension` from the
// provider. The dimension must match the vector column in the document
// store; the knowledge store re-validates it at write time.
func New(embedder ai.Embedder, dimension int, logger *slog.Logger, opts ...Option) (*Batcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Batcher{
		embedder:  embedder,
		dimension: int32(dimension), // #nosec G115 -- validated positive, config caps at 4096
		batchSize: MaxBatchSize,
		retry:     llm.DefaultRetryConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Dimension returns the pinned output dimension.
func (b *Batcher) Dimension() int {
	return int(b.dimension)
}

// EmbedOne embeds a single text, typically a search query.
func (b *Batcher) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := b.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in capped sub-batches. On sub-batch failure after
// retries, it degrades to per-item calls with a pacing delay; items that
// still fail are dropped with a logged warning and do not appear in the
// result. Successful results keep their original indices.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([]Embedded, error) {
	results := make([]Embedded, 0, len(texts))

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		sub := texts[start:end]

		vectors, err := b.embedBatch(ctx, sub)
		if err == nil {
			for i, v := range vectors {
				results = append(results, Embedded{Index: start + i, Text: sub[i], Vector: v})
			}
			continue
		}

		// Whole-batch retries exhausted: fall back to serial per-item calls
		// so one unembeddable text cannot sink its batch mates.
		b.logger.Warn("batch embedding failed, degrading to per-item calls",
			"batch_start", start, "batch_size", len(sub), "error", err)

		for i, text := range sub {
			vec, itemErr := b.embedBatch(ctx, []string{text})
			if itemErr != nil {
				b.logger.Warn("dropping unembeddable item",
					"index", start+i, "text_len", len(text), "error", itemErr)
				continue
			}
			results = append(results, Embedded{Index: start + i, Text: text, Vector: vec[0]})

			select {
			case <-ctx.Done():
				return results, fmt.Errorf("embedding interrupted: %w", ctx.Err())
			case <-time.After(perItemDelay):
			}
		}
	}

	return results, nil
}

// embedBatch performs one provider call with retry and validates every
// returned vector against the pinned dimension.
func (b *Batcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := b.dimension
	resp, err := llm.Retry(ctx, b.retry, b.logger, func(ctx context.Context) (*ai.EmbedResponse, error) {
		return b.embedder.Embed(ctx, &ai.EmbedRequest{
			Input:   docs,
			Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != int(b.dimension) {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d",
				i, len(e.Embedding), b.dimension)
		}
		vectors[i] = e.Embedding
	}

	return vectors, nil
}
