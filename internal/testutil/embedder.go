// Package testutil provides deterministic fakes for the model-facing
// interfaces so component tests run without network access or API keys.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// Embedder is a deterministic ai.Embedder for tests. By default it derives
// a unit vector from the content hash, so equal texts embed identically.
// Explicit vectors can be registered for precise similarity control.
//
// Thread-safe for concurrent use.
type Embedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
	calls   int

	// Err, when set, is returned by every Embed call.
	Err error

	// FailFirst makes the first Embed call fail with Err before
	// succeeding on retries. Requires Err to be set.
	FailFirst bool
}

// NewEmbedder creates a mock embedder producing vectors of the given
// dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a content string.
func (e *Embedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// Calls reports how many times Embed was invoked.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Name implements ai.Embedder.
func (e *Embedder) Name() string { return "mock/test-embedder" }

// Register implements ai.Embedder. It is a no-op for the test fake.
func (e *Embedder) Register(api.Registry) {}

// Embed implements ai.Embedder.
func (e *Embedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.Err != nil {
		if !e.FailFirst || e.calls == 1 {
			return nil, e.Err
		}
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := documentText(doc)
		vec, ok := e.vectors[text]
		if !ok {
			vec = deterministicVector(text, e.dim)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector derives a normalized vector from the content hash.
// The same content always produces the same vector.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
