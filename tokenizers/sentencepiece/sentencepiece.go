// Package sentencepiece implements an api.WordTokenizer backed by Google's
// SentencePiece, for checkpoints that ship a "tokenizer.model" proto instead
// of a tokenizer.json (e.g. multilingual skill taggers in the XLM family).
package sentencepiece

import (
	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/jobify-ml/skillner/hub"
	"github.com/jobify-ml/skillner/tokenizers/api"
	"github.com/pkg/errors"
)

// New creates a SentencePiece tokenizer based on the repo's "tokenizer.model"
// file, which must be a SentencePiece Model proto.
func New(repo *hub.Repo) (*Tokenizer, error) {
	if !repo.HasFile("tokenizer.model") {
		return nil, errors.Errorf("\"tokenizer.model\" file not found in repo %q", repo.ID)
	}
	tokenizerFile, err := repo.DownloadFile("tokenizer.model")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer.model file")
	}
	return NewFromFile(tokenizerFile)
}

// NewFromFile creates a SentencePiece tokenizer from a local model proto.
func NewFromFile(path string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", path)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
	}, nil
}

// Tokenizer implements api.WordTokenizer over a SentencePiece processor.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo
}

// Compile time assert that Tokenizer implements the word-mode interface.
var _ api.WordTokenizer = &Tokenizer{}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	return ids
}

// EncodeWords implements pre-split word-mode encoding: each word is encoded
// on its own, so SentencePiece never merges pieces across word boundaries,
// and every piece inherits its word's index. The sequence is wrapped in the
// model's BOS/EOS delimiters when the model defines them, and truncated to
// maxLen positions, delimiters included.
func (p *Tokenizer) EncodeWords(words []string, maxLen int) api.WordEncoding {
	enc := api.WordEncoding{}

	delimiters := 0
	if p.Info.BeginningOfSentenceID >= 0 {
		delimiters++
	}
	if p.Info.EndOfSentenceID >= 0 {
		delimiters++
	}
	budget := -1
	if maxLen > 0 {
		budget = maxLen - delimiters
		if budget < 0 {
			budget = 0
		}
	}

	if p.Info.BeginningOfSentenceID >= 0 {
		enc.IDs = append(enc.IDs, p.Info.BeginningOfSentenceID)
		enc.WordIDs = append(enc.WordIDs, api.NoWord)
	}

	used := 0
	for wordIdx, word := range words {
		for _, tok := range p.Processor.Encode(word) {
			if budget >= 0 && used >= budget {
				break
			}
			enc.IDs = append(enc.IDs, tok.ID)
			enc.WordIDs = append(enc.WordIDs, wordIdx)
			used++
		}
		if budget >= 0 && used >= budget {
			break
		}
	}

	if p.Info.EndOfSentenceID >= 0 {
		enc.IDs = append(enc.IDs, p.Info.EndOfSentenceID)
		enc.WordIDs = append(enc.WordIDs, api.NoWord)
	}

	enc.AttentionMask = make([]int, len(enc.IDs))
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	return enc
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// SpecialTokenID returns the id for the given special token, or an error if
// the model does not define it.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		return p.Info.UnknownID, nil
	case api.TokPad:
		return p.Info.PadID, nil
	case api.TokBeginningOfSentence:
		return p.Info.BeginningOfSentenceID, nil
	case api.TokEndOfSentence:
		return p.Info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}
