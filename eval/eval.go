// Package eval converts model outputs back into per-example label sequences
// and scores them at the entity (span) level, the way seqeval does for NER.
package eval

import (
	"iter"

	"github.com/jobify-ml/skillner/batch"
	"github.com/jobify-ml/skillner/labels"
	"github.com/pkg/errors"
)

// Model is the inference-side model contract: per-position class scores for
// a padded batch, shaped [batch][seqLen][classes]. Implementations must not
// update weights.
type Model interface {
	Logits(b batch.Batch) ([][][]float32, error)
}

// Collect runs the model over every batch and gathers, per example, the
// predicted and true label name sequences, ready for span-level scoring.
//
// Only positions with loss-mask 1 are kept, which removes special tokens,
// continuation sub-words and padding: both sequences of an example end up
// with exactly its (surviving) word count. Each example is appended exactly
// once, in input order.
func Collect(m Model, batches iter.Seq[batch.Batch], vocab labels.Vocab) (predicted, truth [][]string, err error) {
	for b := range batches {
		logits, err := m.Logits(b)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "running model on batch")
		}
		if len(logits) != b.Size() {
			return nil, nil, errors.Errorf("model returned %d rows for a batch of %d", len(logits), b.Size())
		}

		for i := 0; i < b.Size(); i++ {
			if len(logits[i]) < b.SeqLen() {
				return nil, nil, errors.Errorf("model returned %d positions for example %d, batch has %d", len(logits[i]), i, b.SeqLen())
			}
			var preds, trues []string
			for j := 0; j < b.SeqLen(); j++ {
				if b.LabelMask[i][j] == 0 {
					continue // masked position: padding, special or continuation
				}
				predName, err := vocab.Name(argmax(logits[i][j]))
				if err != nil {
					return nil, nil, errors.WithMessagef(err, "example %d position %d", i, j)
				}
				trueName, err := vocab.Name(int(b.Labels[i][j]))
				if err != nil {
					return nil, nil, errors.WithMessagef(err, "example %d position %d", i, j)
				}
				preds = append(preds, predName)
				trues = append(trues, trueName)
			}
			predicted = append(predicted, preds)
			truth = append(truth, trues)
		}
	}
	return predicted, truth, nil
}

func argmax(scores []float32) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}

// span is one labeled entity: [start, end) word positions within a sequence.
type span struct {
	seq        int
	start, end int
	label      string
}

// Report holds entity-level scores: a prediction counts as correct only if
// both its boundaries and its label match exactly.
type Report struct {
	Precision float64
	Recall    float64
	F1        float64

	TruePositives  int
	PredictedSpans int
	TrueSpans      int
}

// Score computes the entity-level report over parallel predicted/true label
// sequence collections, as produced by Collect.
func Score(predicted, truth [][]string) (Report, error) {
	if len(predicted) != len(truth) {
		return Report{}, errors.Errorf("got %d predicted sequences but %d true sequences", len(predicted), len(truth))
	}

	predSpans := extractSpans(predicted)
	trueSpans := extractSpans(truth)

	trueSet := make(map[span]bool, len(trueSpans))
	for _, s := range trueSpans {
		trueSet[s] = true
	}
	matched := 0
	for _, s := range predSpans {
		if trueSet[s] {
			matched++
		}
	}

	r := Report{
		TruePositives:  matched,
		PredictedSpans: len(predSpans),
		TrueSpans:      len(trueSpans),
	}
	if r.PredictedSpans > 0 {
		r.Precision = float64(matched) / float64(r.PredictedSpans)
	}
	if r.TrueSpans > 0 {
		r.Recall = float64(matched) / float64(r.TrueSpans)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r, nil
}

// extractSpans decodes BIO sequences into labeled spans. A B- tag opens a
// span; I- extends a span of the same label; an I- without a compatible open
// span opens one (lenient decoding, as seqeval's default scheme).
func extractSpans(sequences [][]string) []span {
	var spans []span
	for seqIdx, seq := range sequences {
		var open *span
		flush := func() {
			if open != nil {
				spans = append(spans, *open)
				open = nil
			}
		}
		for pos, name := range seq {
			prefix, label := splitTag(name)
			switch prefix {
			case "B":
				flush()
				open = &span{seq: seqIdx, start: pos, end: pos + 1, label: label}
			case "I":
				if open != nil && open.label == label && open.end == pos {
					open.end = pos + 1
				} else {
					flush()
					open = &span{seq: seqIdx, start: pos, end: pos + 1, label: label}
				}
			default: // "O" or anything unknown closes the open span
				flush()
			}
		}
		flush()
	}
	return spans
}

// splitTag splits "B-SKILL" into ("B", "SKILL"). "O" has no label part.
func splitTag(name string) (prefix, label string) {
	if len(name) >= 2 && (name[0] == 'B' || name[0] == 'I') && name[1] == '-' {
		return name[:1], name[2:]
	}
	return name, ""
}
