// Package labels defines the closed BIO label vocabulary used for skill
// tagging and its bidirectional mapping to integer ids. The mapping is fixed
// for the lifetime of a trained model and is persisted alongside the model
// weights so it remains valid at inference time.
package labels

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// The skill tagging scheme: B- marks a span's first word, I- continuation
// words, O everything else.
const (
	Outside     = "O"
	BeginSkill  = "B-SKILL"
	InsideSkill = "I-SKILL"
)

// Vocab is an ordered, closed label set with a bidirectional id mapping.
// Ids are the positions in the ordered list, starting at 0.
type Vocab struct {
	names []string
	ids   map[string]int
}

// Default returns the skill tagging vocabulary {O, B-SKILL, I-SKILL} with
// ids 0, 1, 2.
func Default() Vocab {
	v, err := New([]string{Outside, BeginSkill, InsideSkill})
	if err != nil {
		panic(err) // static input, cannot fail
	}
	return v
}

// New builds a Vocab from an ordered label list. Labels must be unique and
// non-empty.
func New(names []string) (Vocab, error) {
	if len(names) == 0 {
		return Vocab{}, errors.New("label vocabulary must not be empty")
	}
	v := Vocab{
		names: append([]string(nil), names...),
		ids:   make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return Vocab{}, errors.Errorf("label at position %d is empty", i)
		}
		if _, dup := v.ids[name]; dup {
			return Vocab{}, errors.Errorf("duplicate label %q", name)
		}
		v.ids[name] = i
	}
	return v, nil
}

// Len returns the number of labels.
func (v Vocab) Len() int { return len(v.names) }

// Names returns the ordered label list.
func (v Vocab) Names() []string { return append([]string(nil), v.names...) }

// Name returns the label for an id.
func (v Vocab) Name(id int) (string, error) {
	if id < 0 || id >= len(v.names) {
		return "", errors.Errorf("label id %d out of range [0, %d)", id, len(v.names))
	}
	return v.names[id], nil
}

// ID returns the id for a label.
func (v Vocab) ID(name string) (int, error) {
	id, ok := v.ids[name]
	if !ok {
		return 0, errors.Errorf("unknown label %q", name)
	}
	return id, nil
}

// IDs maps a label sequence to its id sequence.
func (v Vocab) IDs(names []string) ([]int, error) {
	ids := make([]int, len(names))
	for i, name := range names {
		id, err := v.ID(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "at position %d", i)
		}
		ids[i] = id
	}
	return ids, nil
}

// vocabFile is the persisted form: both directions are written out, the way
// HuggingFace configs carry id2label and label2id.
type vocabFile struct {
	ID2Label map[string]string `json:"id2label"`
	Label2ID map[string]int    `json:"label2id"`
}

// SaveFile persists the vocabulary as JSON next to the model weights.
func (v Vocab) SaveFile(path string) error {
	out := vocabFile{
		ID2Label: make(map[string]string, len(v.names)),
		Label2ID: make(map[string]int, len(v.names)),
	}
	for i, name := range v.names {
		out.ID2Label[strconv.Itoa(i)] = name
		out.Label2ID[name] = i
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling label vocabulary")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing label vocabulary to %q", path)
	}
	return nil
}

// LoadFile reads a vocabulary persisted by SaveFile, or any JSON document
// with an "id2label" block (a HuggingFace model config.json works).
func LoadFile(path string) (Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocab{}, errors.Wrapf(err, "reading label vocabulary from %q", path)
	}
	return Parse(data)
}

// Parse builds a Vocab from JSON content containing an "id2label" mapping.
func Parse(data []byte) (Vocab, error) {
	var doc vocabFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return Vocab{}, errors.Wrap(err, "parsing label vocabulary")
	}
	if len(doc.ID2Label) == 0 {
		return Vocab{}, errors.New("no id2label mapping found")
	}

	type entry struct {
		id   int
		name string
	}
	entries := make([]entry, 0, len(doc.ID2Label))
	for idStr, name := range doc.ID2Label {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return Vocab{}, errors.Wrapf(err, "invalid label id %q", idStr)
		}
		entries = append(entries, entry{id: id, name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	names := make([]string, len(entries))
	for i, e := range entries {
		if e.id != i {
			return Vocab{}, errors.Errorf("label ids are not contiguous: expected %d, got %d", i, e.id)
		}
		names[i] = e.name
	}
	return New(names)
}
