package encode_test

import (
	"testing"

	"github.com/jobify-ml/skillner/encode"
	"github.com/jobify-ml/skillner/labels"
	"github.com/jobify-ml/skillner/skillspan"
	"github.com/jobify-ml/skillner/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenizer splits each word into a fixed number of sub-word pieces and
// wraps the result in [CLS]/[SEP], like a BERT WordPiece tokenizer would.
type fakeTokenizer struct {
	pieces map[string][]int // word -> sub-word ids
}

const (
	fakeCLS = 101
	fakeSEP = 102
	fakeUNK = 100
)

func (f *fakeTokenizer) EncodeWords(words []string, maxLen int) api.WordEncoding {
	enc := api.WordEncoding{
		IDs:     []int{fakeCLS},
		WordIDs: []int{api.NoWord},
	}
	budget := maxLen - 2 // reserve [CLS] and [SEP]
encoding:
	for wordID, w := range words {
		ids, ok := f.pieces[w]
		if !ok {
			ids = []int{fakeUNK}
		}
		for _, id := range ids {
			if budget <= 0 {
				break encoding
			}
			enc.IDs = append(enc.IDs, id)
			enc.WordIDs = append(enc.WordIDs, wordID)
			budget--
		}
	}
	enc.IDs = append(enc.IDs, fakeSEP)
	enc.WordIDs = append(enc.WordIDs, api.NoWord)
	enc.AttentionMask = make([]int, len(enc.IDs))
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	return enc
}

func (f *fakeTokenizer) Encode(string) []int { return nil }
func (f *fakeTokenizer) Decode([]int) string { return "" }
func (f *fakeTokenizer) SpecialTokenID(api.SpecialToken) (int, error) {
	return 0, errors.New("not registered")
}

func newFakeTokenizer() *fakeTokenizer {
	return &fakeTokenizer{pieces: map[string][]int{
		"machine":  {2001},
		"learning": {2002},
		"engineer": {2003, 2004}, // splits into two pieces
		"devops":   {2005, 2006, 2007},
	}}
}

func TestAlign(t *testing.T) {
	tok := newFakeTokenizer()
	words := []string{"machine", "learning", "engineer"}
	tags := []int{1, 2, 0} // B-SKILL I-SKILL O

	enc, err := encode.Align(tok, words, tags, 16)
	require.NoError(t, err)

	// [CLS] machine learning engin ##eer [SEP]
	assert.Equal(t, []int{fakeCLS, 2001, 2002, 2003, 2004, fakeSEP}, enc.InputIDs)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, enc.AttentionMask)
	assert.Equal(t, []int{0, 1, 2, 0, 0, 0}, enc.Labels)
	assert.Equal(t, []float32{0, 1, 1, 1, 0, 0}, enc.LabelMask)
	assert.Equal(t, []int{api.NoWord, 0, 1, 2, 2, api.NoWord}, enc.WordIDs)
}

func TestAlignIdempotent(t *testing.T) {
	tok := newFakeTokenizer()
	words := []string{"devops", "engineer", "machine"}
	tags := []int{1, 2, 0}

	first, err := encode.Align(tok, words, tags, 16)
	require.NoError(t, err)
	second, err := encode.Align(tok, words, tags, 16)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAlignOneMaskPerWord(t *testing.T) {
	tok := newFakeTokenizer()
	words := []string{"devops", "engineer", "machine"}
	tags := []int{1, 0, 0}

	enc, err := encode.Align(tok, words, tags, 32)
	require.NoError(t, err)

	supervised := 0
	for _, m := range enc.LabelMask {
		if m == 1 {
			supervised++
		}
	}
	assert.Equal(t, len(words), supervised)

	// Masked positions must carry label 0, whatever the word's tag.
	for pos, m := range enc.LabelMask {
		if m == 0 {
			assert.Zero(t, enc.Labels[pos], "position %d", pos)
		}
	}
}

func TestAlignParallelLengths(t *testing.T) {
	tok := newFakeTokenizer()
	enc, err := encode.Align(tok, []string{"machine", "devops"}, []int{0, 1}, 0)
	require.NoError(t, err)

	n := enc.Len()
	assert.Equal(t, n, len(enc.AttentionMask))
	assert.Equal(t, n, len(enc.Labels))
	assert.Equal(t, n, len(enc.LabelMask))
}

func TestAlignMismatch(t *testing.T) {
	tok := newFakeTokenizer()
	_, err := encode.Align(tok, []string{"machine", "learning"}, []int{1}, 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestAlignTruncation(t *testing.T) {
	tok := newFakeTokenizer()
	words := []string{"machine", "learning", "engineer"}
	tags := []int{0, 0, 1}

	// Budget of 3 sub-word positions: "engineer" is dropped entirely,
	// together with its tag. No error is reported.
	enc, err := encode.Align(tok, words, tags, 5)
	require.NoError(t, err)

	assert.Equal(t, []int{fakeCLS, 2001, 2002, 2003, fakeSEP}, enc.InputIDs)
	assert.Equal(t, []float32{0, 1, 1, 1, 0}, enc.LabelMask)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, enc.Labels)
}

func TestAlignTruncationMidWord(t *testing.T) {
	tok := newFakeTokenizer()
	words := []string{"machine", "engineer"}
	tags := []int{0, 1}

	// Room for only the first piece of "engineer": its first sub-word
	// survives and still carries the supervision.
	enc, err := encode.Align(tok, words, tags, 4)
	require.NoError(t, err)

	assert.Equal(t, []int{fakeCLS, 2001, 2003, fakeSEP}, enc.InputIDs)
	assert.Equal(t, []int{0, 0, 1, 0}, enc.Labels)
	assert.Equal(t, []float32{0, 1, 1, 0}, enc.LabelMask)
}

func TestAlignExamples(t *testing.T) {
	tok := newFakeTokenizer()
	vocab := labels.Default()
	examples := []skillspan.Example{
		{Tokens: []string{"machine", "learning"}, TagsSkill: []string{labels.BeginSkill, labels.InsideSkill}},
		{Tokens: []string{"engineer"}, TagsSkill: []string{labels.Outside}},
	}

	encodings, err := encode.AlignExamples(tok, examples, vocab, 16)
	require.NoError(t, err)
	require.Len(t, encodings, 2)

	assert.Equal(t, []int{0, 1, 2, 0}, encodings[0].Labels)
	assert.Equal(t, []float32{0, 1, 0, 0}, encodings[1].LabelMask)
}

func TestAlignExamplesUnknownTag(t *testing.T) {
	tok := newFakeTokenizer()
	examples := []skillspan.Example{
		{Tokens: []string{"machine"}, TagsSkill: []string{"B-WRONG"}},
	}
	_, err := encode.AlignExamples(tok, examples, labels.Default(), 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "example 0")
}
