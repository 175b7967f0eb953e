// Package tfmodel binds a frozen TensorFlow GraphDef as the token
// classification runtime: it feeds a padded batch's input-id and
// attention-mask matrices and fetches per-position class logits.
//
// The graph is expected to be frozen (variables folded into constants), the
// format TensorFlow's freeze_graph utility produces from a fine-tuned
// checkpoint.
package tfmodel

import (
	"os"

	tf "github.com/kiteco/tensorflow/tensorflow/go"
	"github.com/pkg/errors"

	"github.com/jobify-ml/skillner/batch"
)

// Ops names the graph operations the runtime feeds and fetches.
type Ops struct {
	InputIDs      string
	AttentionMask string
	Logits        string
}

// DefaultOps matches the export naming of the fine-tuned jobbert/skillner
// graphs.
func DefaultOps() Ops {
	return Ops{
		InputIDs:      "input_ids",
		AttentionMask: "attention_mask",
		Logits:        "logits",
	}
}

// Model wraps a TensorFlow session over a frozen graph. It is safe for
// concurrent Logits calls; Close must be called exactly once when done.
type Model struct {
	graph   *tf.Graph
	session *tf.Session
	ops     Ops
}

// Load imports a frozen GraphDef from path and opens a session on it.
func Load(path string, ops Ops) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading graph definition %q", path)
	}

	graph := tf.NewGraph()
	if err := graph.Import(data, ""); err != nil {
		return nil, errors.Wrap(err, "error importing graph")
	}

	session, err := tf.NewSession(graph, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error creating session")
	}

	return &Model{graph: graph, session: session, ops: ops}, nil
}

// Close releases the session.
func (m *Model) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return errors.Wrap(err, "closing session")
}

// Logits runs the graph in inference mode on one padded batch and returns
// per-position class scores, shaped [batch][seqLen][classes].
func (m *Model) Logits(b batch.Batch) ([][][]float32, error) {
	feeds := map[string]interface{}{
		m.ops.InputIDs:      b.InputIDs,
		m.ops.AttentionMask: b.AttentionMask,
	}

	tfFeeds := make(map[tf.Output]*tf.Tensor, len(feeds))
	for name, value := range feeds {
		out, err := m.output(name)
		if err != nil {
			return nil, err
		}
		tensor, err := tf.NewTensor(value)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating tensor for %q", name)
		}
		tfFeeds[out] = tensor
	}

	logitsOut, err := m.output(m.ops.Logits)
	if err != nil {
		return nil, err
	}

	results, err := m.session.Run(tfFeeds, []tf.Output{logitsOut}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error running model")
	}

	logits, ok := results[0].Value().([][][]float32)
	if !ok {
		return nil, errors.Errorf("fetch %q is not [][][]float32", m.ops.Logits)
	}
	return logits, nil
}

func (m *Model) output(opName string) (tf.Output, error) {
	op := m.graph.Operation(opName)
	if op == nil {
		return tf.Output{}, errors.Errorf("could not find op with name: %s", opName)
	}
	return tf.Output{Op: op, Index: 0}, nil
}
