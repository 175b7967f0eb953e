package batch_test

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/jobify-ml/skillner/batch"
	"github.com/jobify-ml/skillner/encode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodingOfLen builds an all-ones encoding of n positions with a
// recognizable first input id, so padding zeros stand out.
func encodingOfLen(n, firstID int) encode.Encoding {
	enc := encode.Encoding{
		InputIDs:      make([]int, n),
		AttentionMask: make([]int, n),
		Labels:        make([]int, n),
		LabelMask:     make([]float32, n),
	}
	for i := 0; i < n; i++ {
		enc.InputIDs[i] = firstID + i
		enc.AttentionMask[i] = 1
		enc.Labels[i] = 1
		enc.LabelMask[i] = 1
	}
	return enc
}

func collect(seq func(yield func(batch.Batch) bool)) []batch.Batch {
	var out []batch.Batch
	for b := range seq {
		out = append(out, b)
	}
	return out
}

func TestBatchesChunking(t *testing.T) {
	encodings := []encode.Encoding{
		encodingOfLen(4, 100),
		encodingOfLen(4, 200),
		encodingOfLen(4, 300),
		encodingOfLen(4, 400),
		encodingOfLen(4, 500),
	}

	batches := collect(batch.Batches(encodings, 2))
	require.Len(t, batches, 3) // ceil(5/2)
	assert.Equal(t, 2, batches[0].Size())
	assert.Equal(t, 2, batches[1].Size())
	assert.Equal(t, 1, batches[2].Size()) // final partial batch

	// Input order is preserved.
	assert.Equal(t, int32(100), batches[0].InputIDs[0][0])
	assert.Equal(t, int32(300), batches[1].InputIDs[0][0])
	assert.Equal(t, int32(500), batches[2].InputIDs[0][0])
}

func TestBatchesPadding(t *testing.T) {
	encodings := []encode.Encoding{
		encodingOfLen(3, 100),
		encodingOfLen(5, 200),
	}

	batches := collect(batch.Batches(encodings, 2))
	require.Len(t, batches, 1)
	b := batches[0]

	// Padded to the chunk max, not a global max.
	assert.Equal(t, 5, b.SeqLen())

	// The short example's tail is all zeros in every channel.
	for j := 3; j < 5; j++ {
		assert.Zero(t, b.InputIDs[0][j])
		assert.Zero(t, b.AttentionMask[0][j])
		assert.Zero(t, b.Labels[0][j])
		assert.Zero(t, b.LabelMask[0][j])
	}
	// Real positions are untouched.
	assert.Equal(t, int32(102), b.InputIDs[0][2])
	assert.Equal(t, int32(1), b.AttentionMask[0][2])
	assert.Equal(t, float32(1), b.LabelMask[1][4])
}

func TestBatchesRestartable(t *testing.T) {
	encodings := []encode.Encoding{
		encodingOfLen(2, 100),
		encodingOfLen(2, 200),
		encodingOfLen(2, 300),
	}
	seq := batch.Batches(encodings, 2)

	first := collect(seq)
	second := collect(seq)
	assert.Equal(t, first, second)
}

func TestBatchesEarlyBreak(t *testing.T) {
	encodings := make([]encode.Encoding, 10)
	for i := range encodings {
		encodings[i] = encodingOfLen(2, i*10)
	}
	seq := batch.Batches(encodings, 2)

	seen := 0
	for range seq {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	// Breaking out does not poison the sequence.
	assert.Len(t, collect(seq), 5)
}

func TestBatchesDefaultSize(t *testing.T) {
	encodings := make([]encode.Encoding, batch.DefaultSize+1)
	for i := range encodings {
		encodings[i] = encodingOfLen(2, i)
	}
	batches := collect(batch.Batches(encodings, 0))
	require.Len(t, batches, 2)
	assert.Equal(t, batch.DefaultSize, batches[0].Size())
	assert.Equal(t, 1, batches[1].Size())
}

func TestPrefetch(t *testing.T) {
	encodings := make([]encode.Encoding, 7)
	for i := range encodings {
		encodings[i] = encodingOfLen(3, i*10)
	}
	plain := collect(batch.Batches(encodings, 2))
	prefetched := collect(batch.Prefetch(batch.Batches(encodings, 2), 2))
	assert.Equal(t, plain, prefetched)
}

func TestPrefetchEarlyBreak(t *testing.T) {
	encodings := make([]encode.Encoding, 20)
	for i := range encodings {
		encodings[i] = encodingOfLen(2, i)
	}
	seq := batch.Prefetch(batch.Batches(encodings, 1), 3)

	seen := 0
	for range seq {
		seen++
		if seen == 2 {
			break // the producer goroutine must shut down cleanly
		}
	}
	assert.Equal(t, 2, seen)

	// Restartable after a break.
	assert.Len(t, collect(seq), 20)
}

func TestTensors(t *testing.T) {
	encodings := []encode.Encoding{
		encodingOfLen(3, 100),
		encodingOfLen(5, 200),
	}
	batches := collect(batch.Batches(encodings, 2))
	require.Len(t, batches, 1)

	inputIDs, attentionMask, labelIDs, labelMask := batches[0].Tensors()
	assert.True(t, inputIDs.Shape().Equal(shapes.Make(dtypes.Int32, 2, 5)))
	assert.True(t, attentionMask.Shape().Equal(shapes.Make(dtypes.Int32, 2, 5)))
	assert.True(t, labelIDs.Shape().Equal(shapes.Make(dtypes.Int32, 2, 5)))
	assert.True(t, labelMask.Shape().Equal(shapes.Make(dtypes.Float32, 2, 5)))
}
