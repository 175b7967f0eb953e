// Package encode aligns word-level BIO tags with the sub-word sequences a
// tokenizer produces. One word may split into several sub-word tokens, and
// the tokenizer inserts special tokens that correspond to no word at all;
// training supervision must land on exactly one sub-word per word.
package encode

import (
	"github.com/jobify-ml/skillner/labels"
	"github.com/jobify-ml/skillner/skillspan"
	"github.com/jobify-ml/skillner/tokenizers/api"
	"github.com/pkg/errors"
)

// MaxSeqLen is the default maximum sub-word sequence length, special tokens
// included. Longer inputs are truncated.
const MaxSeqLen = 256

// Encoding is one example ready for batching. The slices are parallel and
// have equal length, at most the configured maximum; only the first four are
// batched, WordIDs is per-example bookkeeping.
type Encoding struct {
	// InputIDs are the sub-word token ids, special tokens included.
	InputIDs []int

	// AttentionMask is 1 for real tokens, 0 for padding.
	AttentionMask []int

	// Labels holds one tag id per sub-word position. Positions whose
	// LabelMask is 0 carry label 0 and are ignored by the loss.
	Labels []int

	// LabelMask is 1.0 where the position carries real supervision, 0.0
	// elsewhere (special tokens, continuation sub-words, padding).
	LabelMask []float32

	// WordIDs maps each position to the index of its originating word, or
	// api.NoWord for special tokens. A word dropped by tokenization (e.g.
	// normalized to nothing) has no position at all, so consumers must not
	// pair positions with words by counting.
	WordIDs []int
}

// Len returns the number of sub-word positions.
func (e Encoding) Len() int { return len(e.InputIDs) }

// Align tokenizes an already-segmented word sequence and aligns the
// word-level tag ids onto the resulting sub-word positions:
//
//   - special tokens get label 0 and mask 0;
//   - the first sub-word of each word gets the word's tag id and mask 1;
//   - continuation sub-words get label 0 and mask 0.
//
// The previous-word state advances on every position, special tokens
// included, so a word following a separator is still recognized as new.
// Exactly one sub-word per surviving word carries supervision, so
// multi-piece words do not inflate the loss.
//
// Truncation at maxLen silently drops trailing words together with their
// tags, matching the tokenizer's own truncation semantics. A tokens/tags
// length mismatch is a precondition violation and fails immediately.
func Align(tok api.WordTokenizer, words []string, tagIDs []int, maxLen int) (Encoding, error) {
	if len(words) != len(tagIDs) {
		return Encoding{}, errors.Errorf("tokens/tags length mismatch: %d tokens, %d tags", len(words), len(tagIDs))
	}
	if maxLen <= 0 {
		maxLen = MaxSeqLen
	}

	wordEnc := tok.EncodeWords(words, maxLen)

	enc := Encoding{
		InputIDs:      wordEnc.IDs,
		AttentionMask: wordEnc.AttentionMask,
		Labels:        make([]int, wordEnc.Len()),
		LabelMask:     make([]float32, wordEnc.Len()),
		WordIDs:       wordEnc.WordIDs,
	}

	prevWord := api.NoWord
	for pos, wordID := range wordEnc.WordIDs {
		switch {
		case wordID == api.NoWord:
			// Special token: never contributes to the loss.
		case wordID != prevWord:
			// First sub-word of a new word carries the supervision.
			enc.Labels[pos] = tagIDs[wordID]
			enc.LabelMask[pos] = 1
		default:
			// Continuation sub-word of the same word.
		}
		prevWord = wordID
	}
	return enc, nil
}

// AlignExamples aligns a whole labeled collection in order, translating the
// string tags through the vocabulary first.
func AlignExamples(tok api.WordTokenizer, examples []skillspan.Example, vocab labels.Vocab, maxLen int) ([]Encoding, error) {
	encodings := make([]Encoding, 0, len(examples))
	for i, ex := range examples {
		if err := ex.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		tagIDs, err := vocab.IDs(ex.TagsSkill)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		enc, err := Align(tok, ex.Tokens, tagIDs, maxLen)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		encodings = append(encodings, enc)
	}
	return encodings, nil
}
