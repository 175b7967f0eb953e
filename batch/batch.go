// Package batch groups aligned encodings into padded batches the training
// and inference runtimes can consume. Batching is a pure, order-preserving
// transformation: shuffling, if wanted, is applied to the input order before
// grouping.
package batch

import (
	"iter"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/jobify-ml/skillner/encode"
)

// DefaultSize is the default number of encodings per batch.
const DefaultSize = 16

// Batch is a fixed-size (or final-partial-size) group of encodings, padded
// to the longest sequence in the group. Padded positions have input-id 0,
// attention-mask 0, label 0 and loss-mask 0.0, so padding never contributes
// to attention or loss.
type Batch struct {
	InputIDs      [][]int32
	AttentionMask [][]int32
	Labels        [][]int32
	LabelMask     [][]float32
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int { return len(b.InputIDs) }

// SeqLen returns the padded sequence length of the batch.
func (b Batch) SeqLen() int {
	if len(b.InputIDs) == 0 {
		return 0
	}
	return len(b.InputIDs[0])
}

// Batches returns a finite, restartable sequence of padded batches: chunks
// of size encodings in input order, the final chunk possibly smaller.
// Ranging over the result again replays the same batches, e.g. once per
// training epoch.
func Batches(encodings []encode.Encoding, size int) iter.Seq[Batch] {
	if size <= 0 {
		size = DefaultSize
	}
	return func(yield func(Batch) bool) {
		for start := 0; start < len(encodings); start += size {
			end := min(start+size, len(encodings))
			if !yield(pad(encodings[start:end])) {
				return
			}
		}
	}
}

// pad builds one Batch from a chunk, padding all four parallel sequences
// independently to the chunk's maximum length.
func pad(chunk []encode.Encoding) Batch {
	maxLen := 0
	for _, enc := range chunk {
		maxLen = max(maxLen, enc.Len())
	}

	b := Batch{
		InputIDs:      make([][]int32, len(chunk)),
		AttentionMask: make([][]int32, len(chunk)),
		Labels:        make([][]int32, len(chunk)),
		LabelMask:     make([][]float32, len(chunk)),
	}
	for i, enc := range chunk {
		b.InputIDs[i] = padInts(enc.InputIDs, maxLen)
		b.AttentionMask[i] = padInts(enc.AttentionMask, maxLen)
		b.Labels[i] = padInts(enc.Labels, maxLen)
		b.LabelMask[i] = padFloats(enc.LabelMask, maxLen)
	}
	return b
}

func padInts(values []int, length int) []int32 {
	out := make([]int32, length) // zero-valued tail is the padding
	for i, v := range values {
		out[i] = int32(v)
	}
	return out
}

func padFloats(values []float32, length int) []float32 {
	out := make([]float32, length)
	copy(out, values)
	return out
}

// Prefetch pipelines a batch sequence through a bounded channel, so the
// producer prepares up to depth batches ahead of the consumer. The returned
// sequence is itself restartable; each range spawns one producer goroutine,
// which exits when the range completes or is broken out of.
func Prefetch(seq iter.Seq[Batch], depth int) iter.Seq[Batch] {
	if depth <= 0 {
		depth = 1
	}
	return func(yield func(Batch) bool) {
		ch := make(chan Batch, depth)
		done := make(chan struct{})
		go func() {
			defer close(ch)
			for b := range seq {
				select {
				case ch <- b:
				case <-done:
					return
				}
			}
		}()
		defer close(done)
		for b := range ch {
			if !yield(b) {
				return
			}
		}
	}
}

// Tensors converts the batch to GoMLX host tensors, shaped
// [batch, seqLen], for runtimes that consume tensors directly.
func (b Batch) Tensors() (inputIDs, attentionMask, labelIDs, labelMask *tensors.Tensor) {
	rows, cols := b.Size(), b.SeqLen()
	inputIDs = tensors.FromFlatDataAndDimensions(flatten(b.InputIDs), rows, cols)
	attentionMask = tensors.FromFlatDataAndDimensions(flatten(b.AttentionMask), rows, cols)
	labelIDs = tensors.FromFlatDataAndDimensions(flatten(b.Labels), rows, cols)
	labelMask = tensors.FromFlatDataAndDimensions(flatten(b.LabelMask), rows, cols)
	return
}

func flatten[T int32 | float32](rows [][]T) []T {
	if len(rows) == 0 {
		return nil
	}
	flat := make([]T, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return flat
}
