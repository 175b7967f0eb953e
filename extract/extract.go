// Package extract wraps a tokenizer and a token-classification model into a
// single call mapping raw text to extracted skill spans.
package extract

import (
	"math"
	"unicode"

	"github.com/jobify-ml/skillner/batch"
	"github.com/jobify-ml/skillner/encode"
	"github.com/jobify-ml/skillner/labels"
	"github.com/jobify-ml/skillner/tokenizers/api"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Model is the inference contract: per-position class scores for a padded
// batch, shaped [batch][seqLen][classes].
type Model interface {
	Logits(b batch.Batch) ([][][]float32, error)
}

// Span is one extracted skill: the merged text, its byte offsets in the
// input, the entity label and an aggregated confidence in [0, 1]. Spans are
// created per call and never persisted here.
type Span struct {
	Text  string
	Label string
	Score float64

	// Byte offsets into the input text: text[Start:End] covers the span.
	Start int
	End   int
}

// Extractor maps raw text to skill spans.
type Extractor struct {
	tok    api.WordTokenizer
	model  Model
	vocab  labels.Vocab
	maxLen int
}

// New creates an Extractor. maxLen <= 0 selects the default maximum
// sequence length.
func New(tok api.WordTokenizer, model Model, vocab labels.Vocab, maxLen int) *Extractor {
	if maxLen <= 0 {
		maxLen = encode.MaxSeqLen
	}
	return &Extractor{tok: tok, model: model, vocab: vocab, maxLen: maxLen}
}

// Extract runs the model over text and aggregates adjacent B-SKILL/I-SKILL
// word predictions into spans: a B- word merges with any immediately
// following I- words; a bare I- with no preceding B- starts its own span.
// Each span's score is the mean of its constituent word scores.
func (e *Extractor) Extract(text string) ([]Span, error) {
	words := fieldsWithOffsets(text)
	if len(words) == 0 {
		return nil, nil
	}

	wordNames := make([]string, len(words))
	for i, w := range words {
		wordNames[i] = w.text
	}

	// Single-example batch; the aligner's first-sub-word rule tells us
	// which positions speak for which words: mask-1 positions appear in
	// word order, one per surviving word.
	tags := make([]int, len(words)) // all O; only the mask matters here
	enc, err := encode.Align(e.tok, wordNames, tags, e.maxLen)
	if err != nil {
		return nil, err
	}
	var b batch.Batch
	for batchEnc := range batch.Batches([]encode.Encoding{enc}, 1) {
		b = batchEnc
	}

	logits, err := e.model.Logits(b)
	if err != nil {
		return nil, errors.WithMessage(err, "running model")
	}
	if len(logits) != 1 || len(logits[0]) < enc.Len() {
		return nil, errors.Errorf("model returned unexpected logits shape for %d positions", enc.Len())
	}

	// Per-word prediction: the first sub-word position of each word. The
	// originating word comes from the encoding, not from counting: a word
	// the tokenizer drops entirely (normalized to nothing) has no position,
	// and pairing by count would shift every later prediction onto the
	// wrong word.
	type wordPred struct {
		word  int
		label string
		score float64
	}
	preds := make([]wordPred, 0, len(words))
	for pos := 0; pos < enc.Len(); pos++ {
		if enc.LabelMask[pos] == 0 {
			continue
		}
		probs := softmax(logits[0][pos])
		best := argmax(probs)
		name, err := e.vocab.Name(best)
		if err != nil {
			return nil, err
		}
		preds = append(preds, wordPred{word: enc.WordIDs[pos], label: name, score: probs[best]})
	}

	// Merge consecutive B-/I- words into spans. Truncation may have
	// dropped trailing words: preds then covers a prefix of words.
	var spans []Span
	var cur *Span
	var curScores []float64
	flush := func() error {
		if cur == nil {
			return nil
		}
		mean, err := stats.Mean(curScores)
		if err != nil {
			return errors.Wrap(err, "aggregating span confidence")
		}
		cur.Score = mean
		cur.Text = text[cur.Start:cur.End]
		spans = append(spans, *cur)
		cur, curScores = nil, nil
		return nil
	}

	for _, pred := range preds {
		prefix, label := splitTag(pred.label)
		word := words[pred.word]
		switch prefix {
		case "B":
			if err := flush(); err != nil {
				return nil, err
			}
			cur = &Span{Label: label, Start: word.start, End: word.end}
			curScores = []float64{pred.score}
		case "I":
			if cur != nil && cur.Label == label {
				cur.End = word.end
				curScores = append(curScores, pred.score)
			} else {
				// Bare I- with no open span starts its own.
				if err := flush(); err != nil {
					return nil, err
				}
				cur = &Span{Label: label, Start: word.start, End: word.end}
				curScores = []float64{pred.score}
			}
		default:
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return spans, nil
}

type word struct {
	text       string
	start, end int
}

// fieldsWithOffsets splits text on whitespace, keeping byte offsets so spans
// can point back into the original text.
func fieldsWithOffsets(text string) []word {
	var words []word
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, word{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, word{text: text[start:], start: start, end: len(text)})
	}
	return words
}

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(float64(l - maxLogit))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func argmax(probs []float64) int {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best
}

// splitTag splits "B-SKILL" into ("B", "SKILL"); "O" has no label part.
func splitTag(name string) (prefix, label string) {
	if len(name) >= 2 && (name[0] == 'B' || name[0] == 'I') && name[1] == '-' {
		return name[:1], name[2:]
	}
	return name, ""
}
