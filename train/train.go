// Package train provides the contract surface between this repository and
// the external training runtime: a checkpointing policy driven by validation
// loss, and a training-history recorder written once at the end of a run.
// The training loop itself (optimization, scheduling) lives in the runtime.
package train

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Metrics are the per-epoch scalars the runtime reports.
type Metrics struct {
	Loss      float64 `json:"loss"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`

	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
	ValPrecision float64 `json:"val_precision"`
	ValRecall    float64 `json:"val_recall"`
}

// SaveFunc persists the current model weights; it is supplied by the
// training runtime (it owns the weights).
type SaveFunc func(epoch int) error

// Checkpointer saves the model after each epoch whose validation loss
// improves on all prior epochs (monitor: val_loss, mode: min).
type Checkpointer struct {
	save SaveFunc
	best float64
}

// NewCheckpointer creates a Checkpointer around the runtime's save
// function.
func NewCheckpointer(save SaveFunc) *Checkpointer {
	return &Checkpointer{save: save, best: math.Inf(1)}
}

// OnEpochEnd evaluates the epoch's metrics and triggers a save when
// validation loss reached a new minimum. It reports whether a save
// happened.
func (c *Checkpointer) OnEpochEnd(epoch int, m Metrics) (bool, error) {
	if m.ValLoss >= c.best {
		return false, nil
	}
	c.best = m.ValLoss
	if err := c.save(epoch); err != nil {
		return false, errors.WithMessagef(err, "saving checkpoint for epoch %d", epoch)
	}
	return true, nil
}

// Best returns the lowest validation loss seen so far, or +Inf before the
// first epoch.
func (c *Checkpointer) Best() float64 { return c.best }

// EpochRecord is one row of the training history.
type EpochRecord struct {
	Epoch   int     `json:"epoch"`
	Metrics Metrics `json:"metrics"`
}

// History accumulates per-epoch metrics over a training run and is written
// out once, at the end of training.
type History struct {
	RunID     uuid.UUID     `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Epochs    []EpochRecord `json:"epochs"`
}

// NewHistory starts an empty history with a fresh run id.
func NewHistory() *History {
	return &History{RunID: uuid.New(), StartedAt: time.Now().UTC()}
}

// Record appends one epoch's metrics.
func (h *History) Record(epoch int, m Metrics) {
	h.Epochs = append(h.Epochs, EpochRecord{Epoch: epoch, Metrics: m})
}

// WriteFile persists the history as a JSON document.
func (h *History) WriteFile(path string) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling training history")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing training history to %q", path)
	}
	return nil
}

// ReadHistory loads a history written by WriteFile.
func ReadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading training history from %q", path)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrap(err, "parsing training history")
	}
	return &h, nil
}
