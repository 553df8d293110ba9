package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinfra/beacon/internal/llm"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/testutil"
)

const testDim = 8

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}
}

func newBatcher(t *testing.T, mock *testutil.Embedder, opts ...Option) *Batcher {
	t.Helper()
	opts = append([]Option{WithRetry(fastRetry())}, opts...)
	b, err := New(mock, testDim, log.NewNop(), opts...)
	require.NoError(t, err)
	return b
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, testDim, log.NewNop())
	assert.Error(t, err)

	_, err = New(testutil.NewEmbedder(testDim), 0, log.NewNop())
	assert.Error(t, err)

	b, err := New(testutil.NewEmbedder(testDim), testDim, nil)
	require.NoError(t, err)
	assert.Equal(t, testDim, b.Dimension())
}

func TestEmbedOne(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	b := newBatcher(t, mock)

	vec, err := b.EmbedOne(context.Background(), "open contracting data")
	require.NoError(t, err)
	assert.Len(t, vec, testDim)
	assert.Equal(t, 1, mock.Calls())

	// Same text embeds identically.
	again, err := b.EmbedOne(context.Background(), "open contracting data")
	require.NoError(t, err)
	assert.Equal(t, vec, again)
}

func TestEmbedBatchPreservesIndices(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	b := newBatcher(t, mock)

	texts := []string{"first chunk", "second chunk", "third chunk"}
	out, err := b.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, e := range out {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, texts[i], e.Text)
		assert.Len(t, e.Vector, testDim)
	}
	assert.Equal(t, 1, mock.Calls())
}

func TestEmbedBatchRespectsBatchSize(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	b := newBatcher(t, mock, WithBatchSize(2))

	texts := []string{"a", "b", "c", "d", "e"}
	out, err := b.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, out, 5)
	assert.Equal(t, 3, mock.Calls())

	for i, e := range out {
		assert.Equal(t, i, e.Index)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	b := newBatcher(t, mock)

	out, err := b.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, mock.Calls())
}

func TestEmbedBatchDegradesToPerItem(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	mock.Err = errors.New("payload rejected")
	mock.FailFirst = true
	b := newBatcher(t, mock)

	texts := []string{"good one", "good two"}
	out, err := b.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, 0, out[0].Index)
	assert.Equal(t, 1, out[1].Index)
	// One failed batch call plus one per-item call per text.
	assert.Equal(t, 3, mock.Calls())
}

func TestEmbedBatchDropsUnembeddableItems(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	mock.Err = errors.New("payload rejected")
	b := newBatcher(t, mock)

	out, err := b.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 3, mock.Calls())
}

func TestEmbedBatchRetriesTransientError(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	mock.Err = errors.New("429 rate limit exceeded")
	mock.FailFirst = true
	b := newBatcher(t, mock)

	out, err := b.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	// Transient failure retried within the same batch call.
	assert.Equal(t, 2, mock.Calls())
}

func TestEmbedOneDimensionMismatch(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	mock.SetVector("short", []float32{1, 2, 3})
	b := newBatcher(t, mock)

	_, err := b.EmbedOne(context.Background(), "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedOneError(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)
	mock.Err = errors.New("provider down")
	b := newBatcher(t, mock)

	_, err := b.EmbedOne(context.Background(), "anything")
	assert.Error(t, err)
}

func TestWithBatchSizeBounds(t *testing.T) {
	mock := testutil.NewEmbedder(testDim)

	b := newBatcher(t, mock, WithBatchSize(0))
	assert.Equal(t, MaxBatchSize, b.batchSize)

	b = newBatcher(t, mock, WithBatchSize(MaxBatchSize+1))
	assert.Equal(t, MaxBatchSize, b.batchSize)
}

func TestEstimateCost(t *testing.T) {
	est := EstimateCost([]string{"abcd", "efgh"})
	assert.Equal(t, 2, est.Texts)
	assert.Equal(t, 8, est.Chars)
	assert.Equal(t, 2, est.Tokens)
	assert.InDelta(t, 2.0/1e6*0.15, est.USD, 1e-12)
}
