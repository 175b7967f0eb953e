// Package skillspan loads the SkillSpan labeled dataset (Zhang et al. 2022,
// NAACL-HLT, https://aclanthology.org/2022.naacl-main.366): sentences from
// job postings with word-level BIO skill tags. The hub serves each official
// split as a parquet file.
package skillspan

import (
	"context"

	"github.com/jobify-ml/skillner/hub"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

// Example is one labeled sentence: an ordered word sequence and a parallel
// BIO tag sequence of the same length.
type Example struct {
	Tokens    []string `parquet:"tokens,list"`
	TagsSkill []string `parquet:"tags_skill,list"`

	// TagsKnowledge carries SkillSpan's second annotation layer. It is
	// unused by skill extraction but preserved when present.
	TagsKnowledge []string `parquet:"tags_knowledge,list,optional"`
}

// Validate checks the tokens/tags length invariant. A violated invariant is
// a precondition failure: downstream alignment would silently mislabel.
func (e Example) Validate() error {
	if len(e.Tokens) != len(e.TagsSkill) {
		return errors.Errorf("tokens/tags length mismatch: %d tokens, %d tags",
			len(e.Tokens), len(e.TagsSkill))
	}
	return nil
}

// Split names one official dataset split and the parquet file that holds it.
type Split struct {
	Name string
	File string
}

// DefaultSplits returns the three official splits in canonical order.
func DefaultSplits() []Split {
	return []Split{
		{Name: "train", File: "data/train-00000-of-00001.parquet"},
		{Name: "validation", File: "data/validation-00000-of-00001.parquet"},
		{Name: "test", File: "data/test-00000-of-00001.parquet"},
	}
}

// Loader fetches dataset splits from a hub repo.
type Loader struct {
	repo   *hub.Repo
	splits []Split
}

// NewLoader creates a Loader over the given dataset repo, using the official
// splits.
func NewLoader(repo *hub.Repo) *Loader {
	return &Loader{repo: repo, splits: DefaultSplits()}
}

// WithSplits overrides the split list. Order is preserved in the output.
func (l *Loader) WithSplits(splits []Split) *Loader {
	l.splits = splits
	return l
}

// Load downloads every split and returns one collection concatenating them
// in split order, each split's internal record order preserved. No
// shuffling, deduplication or filtering is applied. A fetch failure is
// returned as-is: retrying is the caller's decision.
func (l *Loader) Load(ctx context.Context) ([]Example, error) {
	var all []Example
	for _, split := range l.splits {
		examples, err := l.loadSplit(ctx, split)
		if err != nil {
			return nil, errors.WithMessagef(err, "loading split %q", split.Name)
		}
		all = append(all, examples...)
	}
	return all, nil
}

func (l *Loader) loadSplit(ctx context.Context, split Split) ([]Example, error) {
	localPath, err := l.repo.DownloadFileCtx(ctx, split.File)
	if err != nil {
		return nil, err
	}
	examples, err := parquet.ReadFile[Example](localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading parquet file %q", localPath)
	}
	return examples, nil
}
