// Package skillner assembles the skill extraction system: it resolves a
// configuration into a loaded tokenizer, label vocabulary and model runtime,
// with an explicit lifecycle. Nothing is loaded at package init; the caller
// constructs a Handle, reuses it, and closes it.
package skillner

import (
	"context"

	"github.com/jobify-ml/skillner/batch"
	"github.com/jobify-ml/skillner/encode"
	"github.com/jobify-ml/skillner/eval"
	"github.com/jobify-ml/skillner/extract"
	"github.com/jobify-ml/skillner/hub"
	"github.com/jobify-ml/skillner/labels"
	"github.com/jobify-ml/skillner/skillspan"
	"github.com/jobify-ml/skillner/tfmodel"
	"github.com/jobify-ml/skillner/tokenizers/api"
	"github.com/jobify-ml/skillner/tokenizers/sentencepiece"
	"github.com/jobify-ml/skillner/tokenizers/wordpiece"
	"github.com/pkg/errors"
)

// Config enumerates everything that was previously implicit: the model and
// dataset identifiers, split names, label set and sequence/batch geometry.
type Config struct {
	// Model is the hub id of the fine-tuned token classification model,
	// e.g. "ihk/skillner".
	Model string `mapstructure:"model"`

	// Dataset is the hub id of the labeled dataset, e.g. "jjzha/skillspan".
	Dataset string `mapstructure:"dataset"`

	// Splits are the dataset split names, in load order.
	Splits []string `mapstructure:"splits"`

	// Labels is the ordered label vocabulary; ids are list positions.
	Labels []string `mapstructure:"labels"`

	// MaxSeqLen bounds the sub-word sequence length, special tokens
	// included.
	MaxSeqLen int `mapstructure:"max-seq-len"`

	// BatchSize is the number of encodings per padded batch.
	BatchSize int `mapstructure:"batch-size"`

	// CacheDir overrides the hub cache location. Empty selects the
	// default.
	CacheDir string `mapstructure:"cache-dir"`

	// GraphFile is the frozen-graph filename inside the model repo.
	GraphFile string `mapstructure:"graph-file"`

	// AuthToken is a hub bearer token for gated repositories.
	AuthToken string `mapstructure:"auth-token"`
}

// DefaultConfig returns the configuration of the published skillner
// reference model and the SkillSpan dataset.
func DefaultConfig() *Config {
	return &Config{
		Model:     "ihk/skillner",
		Dataset:   "jjzha/skillspan",
		Splits:    []string{"train", "validation", "test"},
		Labels:    []string{labels.Outside, labels.BeginSkill, labels.InsideSkill},
		MaxSeqLen: 256,
		BatchSize: 16,
		GraphFile: "model.frozen.pb",
	}
}

// Handle bundles the loaded collaborators. Load once, reuse across calls,
// Close when done.
type Handle struct {
	Tokenizer api.WordTokenizer
	Model     *tfmodel.Model
	Vocab     labels.Vocab

	cfg *Config
}

// Load resolves cfg into a ready Handle: tokenizer and label mapping come
// from the model's hub repo, the frozen graph is downloaded and opened.
// Retrieval failures are returned without retrying.
func Load(ctx context.Context, cfg *Config) (*Handle, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	repo := hub.New(cfg.Model)
	if cfg.CacheDir != "" {
		repo = repo.WithCacheDir(cfg.CacheDir)
	}
	if cfg.AuthToken != "" {
		repo = repo.WithAuthToken(cfg.AuthToken)
	}

	tok, err := loadTokenizer(repo)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading tokenizer for %q", cfg.Model)
	}

	vocab, err := loadVocab(ctx, repo, cfg)
	if err != nil {
		return nil, err
	}

	graphPath, err := repo.DownloadFileCtx(ctx, cfg.GraphFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "downloading model graph for %q", cfg.Model)
	}
	model, err := tfmodel.Load(graphPath, tfmodel.DefaultOps())
	if err != nil {
		return nil, errors.WithMessagef(err, "loading model graph %q", graphPath)
	}

	return &Handle{Tokenizer: tok, Model: model, Vocab: vocab, cfg: cfg}, nil
}

// loadTokenizer picks the tokenizer backend by what the model repo ships:
// tokenizer.json selects WordPiece (the BERT/jobbert family), a bare
// tokenizer.model selects SentencePiece (XLM-style checkpoints).
func loadTokenizer(repo *hub.Repo) (api.WordTokenizer, error) {
	if repo.HasFile("tokenizer.json") {
		return wordpiece.New(nil, repo)
	}
	if repo.HasFile("tokenizer.model") {
		return sentencepiece.New(repo)
	}
	return nil, errors.Errorf("repo %q has neither tokenizer.json nor tokenizer.model", repo.ID)
}

// loadVocab prefers the label mapping persisted with the model weights
// (config.json id2label), falling back to the configured label list.
func loadVocab(ctx context.Context, repo *hub.Repo, cfg *Config) (labels.Vocab, error) {
	if repo.HasFile("config.json") {
		configPath, err := repo.DownloadFileCtx(ctx, "config.json")
		if err != nil {
			return labels.Vocab{}, errors.WithMessagef(err, "downloading config.json for %q", cfg.Model)
		}
		vocab, err := labels.LoadFile(configPath)
		if err == nil {
			return vocab, nil
		}
		// config.json without id2label: fall through to the configured
		// list.
	}
	return labels.New(cfg.Labels)
}

// Extractor returns the inference pipeline over this handle.
func (h *Handle) Extractor() *extract.Extractor {
	return extract.New(h.Tokenizer, h.Model, h.Vocab, h.cfg.MaxSeqLen)
}

// DatasetRepo returns the hub reference for the configured dataset.
func (h *Handle) DatasetRepo() *hub.Repo {
	repo := hub.NewDataset(h.cfg.Dataset)
	if h.cfg.CacheDir != "" {
		repo = repo.WithCacheDir(h.cfg.CacheDir)
	}
	if h.cfg.AuthToken != "" {
		repo = repo.WithAuthToken(h.cfg.AuthToken)
	}
	return repo
}

// splits resolves the configured split names against the official split
// files. Unknown names are ignored; an empty list selects all splits.
func (h *Handle) splits() []skillspan.Split {
	official := skillspan.DefaultSplits()
	if len(h.cfg.Splits) == 0 {
		return official
	}
	var selected []skillspan.Split
	for _, name := range h.cfg.Splits {
		for _, s := range official {
			if s.Name == name {
				selected = append(selected, s)
			}
		}
	}
	return selected
}

// Encodings loads the configured dataset splits and aligns every example
// through this handle's tokenizer and vocabulary.
func (h *Handle) Encodings(ctx context.Context) ([]encode.Encoding, error) {
	examples, err := skillspan.NewLoader(h.DatasetRepo()).WithSplits(h.splits()).Load(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading dataset %q", h.cfg.Dataset)
	}
	return encode.AlignExamples(h.Tokenizer, examples, h.Vocab, h.cfg.MaxSeqLen)
}

// Evaluate runs the model over the configured dataset splits and returns the
// entity-level span scores.
func (h *Handle) Evaluate(ctx context.Context) (eval.Report, error) {
	encodings, err := h.Encodings(ctx)
	if err != nil {
		return eval.Report{}, err
	}
	batches := batch.Prefetch(batch.Batches(encodings, h.cfg.BatchSize), 1)
	predicted, truth, err := eval.Collect(h.Model, batches, h.Vocab)
	if err != nil {
		return eval.Report{}, err
	}
	return eval.Score(predicted, truth)
}

// Close releases the model runtime.
func (h *Handle) Close() error {
	if h.Model == nil {
		return nil
	}
	return h.Model.Close()
}
