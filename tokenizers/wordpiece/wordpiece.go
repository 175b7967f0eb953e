// Package wordpiece implements a WordPiece tokenizer driven by HuggingFace's
// tokenizer.json format, as used by the BERT family (including
// jobbert-base-cased and the skillner checkpoints fine-tuned from it).
//
// Besides plain text encoding it supports the pre-split word mode needed for
// token classification, where the caller supplies already-segmented words and
// receives a word-to-subword origin map back.
package wordpiece

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/jobify-ml/skillner/hub"
	"github.com/jobify-ml/skillner/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// tokenizerJSON mirrors the subset of HuggingFace's tokenizer.json that
// WordPiece models use.
type tokenizerJSON struct {
	Version      string        `json:"version"`
	AddedTokens  []AddedToken  `json:"added_tokens"`
	Normalizer   *normalizer   `json:"normalizer"`
	PreTokenizer *preTokenizer `json:"pre_tokenizer"`
	Decoder      *decoder      `json:"decoder"`
	Model        model         `json:"model"`
}

// AddedToken represents a special token added to the vocabulary.
type AddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type normalizer struct {
	Type        string       `json:"type"`
	Lowercase   bool         `json:"lowercase"`
	Normalizers []normalizer `json:"normalizers"`
}

type preTokenizer struct {
	Type string `json:"type"`
}

type decoder struct {
	Type   string `json:"type"`
	Prefix string `json:"prefix"`
}

type model struct {
	Type                    string         `json:"type"`
	Vocab                   map[string]int `json:"vocab"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
}

// Tokenizer implements api.WordTokenizer for WordPiece models.
type Tokenizer struct {
	config    *api.Config
	spec      *tokenizerJSON
	idToToken map[int]string

	unkID  int
	padID  int
	clsID  int
	sepID  int
	maskID int

	// Added tokens lookup (content -> id).
	addedTokens map[string]int
}

// Compile time assert that Tokenizer implements the word-mode interface.
var _ api.WordTokenizer = &Tokenizer{}

// New creates a WordPiece tokenizer from the repo's tokenizer.json file.
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
	if !repo.HasFile("tokenizer.json") {
		return nil, errors.Errorf("\"tokenizer.json\" file not found in repo %q", repo.ID)
	}
	tokenizerFile, err := repo.DownloadFile("tokenizer.json")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer.json file")
	}
	return NewFromFile(config, tokenizerFile)
}

// NewFromFile creates a WordPiece tokenizer from a local tokenizer.json path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a WordPiece tokenizer from tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var spec tokenizerJSON
	if err := json.Unmarshal(content, &spec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	if spec.Model.Type != "" && spec.Model.Type != "WordPiece" {
		return nil, errors.Errorf("tokenizer model type %q is not WordPiece", spec.Model.Type)
	}

	t := &Tokenizer{
		config:      config,
		spec:        &spec,
		idToToken:   make(map[int]string),
		addedTokens: make(map[string]int),
		unkID:       -1,
		padID:       -1,
		clsID:       -1,
		sepID:       -1,
		maskID:      -1,
	}

	for token, id := range spec.Model.Vocab {
		t.idToToken[id] = token
	}
	for _, at := range spec.AddedTokens {
		t.addedTokens[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
	}

	t.resolveSpecialTokens()
	return t, nil
}

// resolveSpecialTokens maps special tokens from the spec and config to ids.
func (t *Tokenizer) resolveSpecialTokens() {
	if t.spec.Model.UnkToken != "" {
		if id, ok := t.spec.Model.Vocab[t.spec.Model.UnkToken]; ok {
			t.unkID = id
		}
	}

	for _, at := range t.spec.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]", "<unk>":
			t.unkID = at.ID
		case "[PAD]", "<pad>":
			t.padID = at.ID
		case "[CLS]", "<s>":
			t.clsID = at.ID
		case "[SEP]", "</s>":
			t.sepID = at.ID
		case "[MASK]", "<mask>":
			t.maskID = at.ID
		}
	}

	// Fall back to config special tokens if available.
	if t.config == nil {
		return
	}
	lookup := func(token string, id *int) {
		if *id != -1 || token == "" {
			return
		}
		if vocabID, ok := t.spec.Model.Vocab[token]; ok {
			*id = vocabID
		}
	}
	lookup(t.config.UnkToken, &t.unkID)
	lookup(t.config.PadToken, &t.padID)
	lookup(t.config.ClsToken, &t.clsID)
	lookup(t.config.SepToken, &t.sepID)
	lookup(t.config.MaskToken, &t.maskID)
}

// Encode converts raw text to a sequence of token ids, without sequence
// delimiters.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, word := range t.preTokenize(t.normalize(text)) {
		ids = append(ids, t.tokenizeWord(word)...)
	}
	return ids
}

// EncodeWords encodes an already-segmented word sequence, wrapping the
// result in [CLS]...[SEP] and truncating to at most maxLen sub-word
// positions including the two delimiters. Each word is normalized and
// WordPiece-split, but never re-segmented: punctuation attached to a word
// stays part of that word, so the output positions map 1:n onto input words.
//
// Truncation silently drops trailing sub-words, the same semantics as the
// underlying tokenizer libraries; the cut may fall mid-word, in which case
// the word's leading sub-words survive.
func (t *Tokenizer) EncodeWords(words []string, maxLen int) api.WordEncoding {
	enc := api.WordEncoding{}
	budget := -1 // sub-word positions available for real words
	if maxLen > 0 {
		budget = maxLen - 2
		if budget < 0 {
			budget = 0
		}
	}

	if t.clsID >= 0 {
		enc.IDs = append(enc.IDs, t.clsID)
		enc.WordIDs = append(enc.WordIDs, api.NoWord)
	}

	used := 0
	for wordIdx, word := range words {
		pieces := t.tokenizeWord(t.normalizeWord(word))
		for _, id := range pieces {
			if budget >= 0 && used >= budget {
				break
			}
			enc.IDs = append(enc.IDs, id)
			enc.WordIDs = append(enc.WordIDs, wordIdx)
			used++
		}
		if budget >= 0 && used >= budget {
			break
		}
	}

	if t.sepID >= 0 {
		enc.IDs = append(enc.IDs, t.sepID)
		enc.WordIDs = append(enc.WordIDs, api.NoWord)
	}

	enc.AttentionMask = make([]int, len(enc.IDs))
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	return enc
}

// normalize applies the configured normalizer to raw text.
func (t *Tokenizer) normalize(text string) string {
	if t.spec.Normalizer == nil {
		return text
	}
	return applyNormalizer(text, t.spec.Normalizer)
}

// normalizeWord normalizes a single pre-split word. Unlike normalize, the
// result is still a single word: normalizers never introduce spaces.
func (t *Tokenizer) normalizeWord(word string) string {
	return t.normalize(word)
}

func applyNormalizer(text string, n *normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		result := cleanText(text)
		if n.Lowercase {
			result = strings.ToLower(result)
		}
		return result
	case "Sequence":
		result := text
		for _, child := range n.Normalizers {
			childCopy := child
			result = applyNormalizer(result, &childCopy)
		}
		return result
	default:
		return text
	}
}

// preTokenize splits raw text into words.
func (t *Tokenizer) preTokenize(text string) []string {
	if t.spec.PreTokenizer == nil {
		return strings.Fields(text)
	}
	switch t.spec.PreTokenizer.Type {
	case "BertPreTokenizer":
		return bertPreTokenize(text)
	case "Whitespace", "WhitespaceSplit":
		return strings.Fields(text)
	default:
		return strings.Fields(text)
	}
}

// tokenizeWord splits a single word into WordPiece ids.
func (t *Tokenizer) tokenizeWord(word string) []int {
	if word == "" {
		return nil
	}
	// Added tokens are matched whole, before WordPiece splitting.
	if id, ok := t.addedTokens[word]; ok {
		return []int{id}
	}

	maxChars := t.spec.Model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = 100
	}
	if len(word) > maxChars {
		if t.unkID >= 0 {
			return []int{t.unkID}
		}
		return nil
	}

	prefix := t.spec.Model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}

	var tokens []int
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for start < end {
			substr := word[start:end]
			if start > 0 {
				substr = prefix + substr
			}
			if id, ok := t.spec.Model.Vocab[substr]; ok {
				tokens = append(tokens, id)
				found = true
				break
			}
			end--
		}
		if !found {
			if t.unkID >= 0 {
				return []int{t.unkID}
			}
			return nil
		}
		start = end
	}
	return tokens
}

// Decode converts a sequence of token ids back to text, gluing continuation
// pieces back onto their word.
func (t *Tokenizer) Decode(ids []int) string {
	prefix := t.spec.Model.ContinuingSubwordPrefix
	if t.spec.Decoder != nil && t.spec.Decoder.Prefix != "" {
		prefix = t.spec.Decoder.Prefix
	}
	if prefix == "" {
		prefix = "##"
	}

	var result strings.Builder
	first := true
	for _, id := range ids {
		token, ok := t.idToToken[id]
		if !ok {
			continue
		}
		if strings.HasPrefix(token, prefix) {
			result.WriteString(strings.TrimPrefix(token, prefix))
			continue
		}
		if !first {
			result.WriteString(" ")
		}
		result.WriteString(token)
		first = false
	}
	return result.String()
}

// SpecialTokenID returns the id for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		if t.unkID >= 0 {
			return t.unkID, nil
		}
	case api.TokPad:
		if t.padID >= 0 {
			return t.padID, nil
		}
	case api.TokBeginningOfSentence, api.TokClassification:
		if t.clsID >= 0 {
			return t.clsID, nil
		}
	case api.TokEndOfSentence, api.TokSeparator:
		if t.sepID >= 0 {
			return t.sepID, nil
		}
	case api.TokMask:
		if t.maskID >= 0 {
			return t.maskID, nil
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// VocabSize returns the size of the vocabulary including added tokens.
func (t *Tokenizer) VocabSize() int {
	return len(t.idToToken)
}

// TokenToID converts a token string to its id.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedTokens[token]; ok {
		return id, true
	}
	id, ok := t.spec.Model.Vocab[token]
	return id, ok
}

// IDToToken converts a token id to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// Helper functions.

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			result.WriteRune(r)
		}
	}
	return result.String()
}

func bertPreTokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range text {
		switch {
		case isWhitespace(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case isPunctuation(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
