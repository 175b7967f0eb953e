// Package api defines the Tokenizer interfaces shared by the tokenizer
// backends. It is a separate package so that backends and their consumers
// can depend on the interfaces without a cyclic dependency.
package api

// NoWord marks a sub-word position with no originating word, i.e. a special
// token such as [CLS] or [SEP].
const NoWord = -1

// WordEncoding is the result of encoding an already-segmented word sequence
// ("pre-split" mode). The three slices are parallel and have equal length.
type WordEncoding struct {
	// IDs are the sub-word token ids, including special tokens.
	IDs []int

	// AttentionMask is 1 for every real token. Padding, applied later at
	// batching time, extends it with zeros.
	AttentionMask []int

	// WordIDs maps each sub-word position to the index of its originating
	// word in the input, or NoWord for special tokens. One word may span
	// several consecutive positions.
	WordIDs []int
}

// Len returns the number of sub-word positions in the encoding.
func (e WordEncoding) Len() int { return len(e.IDs) }

// Tokenizer converts text to integer token ids and back.
//
// It also maps special tokens: tokens with a common semantic (like padding)
// that may map to different ids for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string

	// SpecialTokenID returns the id for the given special token if
	// registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// WordTokenizer extends Tokenizer with pre-split word-mode encoding, the
// mode used for token classification: each input element is treated as an
// already-segmented word, never re-split on whitespace or punctuation.
type WordTokenizer interface {
	Tokenizer

	// EncodeWords encodes words, wrapping the result in the model's
	// sequence delimiters and truncating to at most maxLen sub-word
	// positions (delimiters included). Truncation drops trailing
	// sub-words silently.
	EncodeWords(words []string, maxLen int) WordEncoding
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSeparator
)

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	switch t {
	case TokBeginningOfSentence:
		return "beginning_of_sentence"
	case TokEndOfSentence:
		return "end_of_sentence"
	case TokUnknown:
		return "unknown"
	case TokPad:
		return "pad"
	case TokMask:
		return "mask"
	case TokClassification:
		return "classification"
	case TokSeparator:
		return "separator"
	default:
		return "invalid"
	}
}

// Config carries the special-token strings from a model's tokenizer_config,
// for backends that cannot discover them on their own.
type Config struct {
	UnkToken  string `json:"unk_token"`
	PadToken  string `json:"pad_token"`
	ClsToken  string `json:"cls_token"`
	SepToken  string `json:"sep_token"`
	MaskToken string `json:"mask_token"`
	BosToken  string `json:"bos_token"`
	EosToken  string `json:"eos_token"`
}
