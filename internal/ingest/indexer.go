// Package ingest normalizes source documents into embedded chunks and
// writes them to the document store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openinfra/beacon/internal/chunk"
	"github.com/openinfra/beacon/internal/embed"
	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/log"
)

// Embedder is the batch embedding surface the indexer needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]embed.Embedded, error)
}

// Upserter writes chunks to the document store.
type Upserter interface {
	Upsert(ctx context.Context, c knowledge.DocumentChunk) error
}

// Result summarizes one indexing run.
type Result struct {
	DocID   string
	Chunks  int
	Stored  int
	Dropped int
}

// Indexer runs the chunk, embed, upsert pipeline for one document at a
// time.
type Indexer struct {
	embedder Embedder
	store    Upserter
	logger   log.Logger
	chunker  *chunk.Chunker
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithChunkOptions forwards options to the chunker.
func WithChunkOptions(opts ...chunk.Option) Option {
	return func(ix *Indexer) {
		ix.chunker = chunk.New(opts...)
	}
}

// New creates an Indexer.
func New(embedder Embedder, store Upserter, logger log.Logger, opts ...Option) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: store is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ix := &Indexer{embedder: embedder, store: store, logger: logger, chunker: chunk.New()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Index chunks doc, embeds the chunks in batches and upserts each under
// the id "<docID>#<chunkIndex>". Chunks whose embedding was dropped by the
// batch degrade path are counted in Result.Dropped; a store write failure
// aborts the run.
func (ix *Indexer) Index(ctx context.Context, doc Document) (Result, error) {
	chunks := ix.chunker.Split(doc.Body)
	res := Result{DocID: doc.ID, Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, fmt.Errorf("document %s produced no chunks", doc.ID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text()
	}

	embedded, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return res, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	res.Dropped = len(chunks) - len(embedded)

	now := time.Now().UTC()
	for _, e := range embedded {
		dc := knowledge.DocumentChunk{
			ID:        fmt.Sprintf("%s#%d", doc.ID, chunks[e.Index].Index),
			Title:     doc.Title,
			URL:       doc.URL,
			Type:      doc.Type,
			Country:   doc.Country,
			Year:      doc.Year,
			Text:      e.Text,
			Embedding: e.Vector,
			CreatedAt: now,
		}
		if err := ix.store.Upsert(ctx, dc); err != nil {
			return res, fmt.Errorf("store chunk %s: %w", dc.ID, err)
		}
		res.Stored++
	}

	ix.logger.Info("document indexed",
		"doc_id", doc.ID,
		"chunks", res.Chunks,
		"stored", res.Stored,
		"dropped", res.Dropped)
	return res, nil
}

// IndexFile reads a markdown file, parses its front matter and indexes it.
// The document id defaults to a slug of the filename.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ParseDocument(string(raw), path)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return ix.Index(ctx, doc)
}

// DirResult summarizes an IndexDir run over many files.
type DirResult struct {
	Files   int
	Failed  int
	Stored  int
	Dropped int
}

// IndexDir indexes every .md file under dir. One bad file does not stop
// the run: its error is logged, the file is counted in Failed, and the
// walk continues. Context cancellation aborts the walk.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (DirResult, error) {
	var dr DirResult
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		dr.Files++
		res, err := ix.IndexFile(ctx, path)
		if err != nil {
			dr.Failed++
			ix.logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		dr.Stored += res.Stored
		dr.Dropped += res.Dropped
		return nil
	})
	if err != nil {
		return dr, fmt.Errorf("walk %s: %w", dir, err)
	}
	return dr, nil
}
