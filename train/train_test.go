package train_test

import (
	"path/filepath"
	"testing"

	"github.com/jobify-ml/skillner/train"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointerSavesOnImprovement(t *testing.T) {
	var saved []int
	c := train.NewCheckpointer(func(epoch int) error {
		saved = append(saved, epoch)
		return nil
	})

	losses := []float64{0.9, 0.7, 0.8, 0.7, 0.5}
	var savedFlags []bool
	for epoch, loss := range losses {
		ok, err := c.OnEpochEnd(epoch, train.Metrics{ValLoss: loss})
		require.NoError(t, err)
		savedFlags = append(savedFlags, ok)
	}

	// Only new minima save; an equal loss does not.
	assert.Equal(t, []int{0, 1, 4}, saved)
	assert.Equal(t, []bool{true, true, false, false, true}, savedFlags)
	assert.Equal(t, 0.5, c.Best())
}

func TestCheckpointerSaveError(t *testing.T) {
	c := train.NewCheckpointer(func(int) error {
		return errors.New("disk full")
	})
	_, err := c.OnEpochEnd(0, train.Metrics{ValLoss: 0.3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epoch 0")
}

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	h := train.NewHistory()
	h.Record(0, train.Metrics{Loss: 0.9, ValLoss: 0.8, Accuracy: 0.6})
	h.Record(1, train.Metrics{Loss: 0.5, ValLoss: 0.6, Accuracy: 0.8})
	require.NoError(t, h.WriteFile(path))

	loaded, err := train.ReadHistory(path)
	require.NoError(t, err)
	assert.Equal(t, h.RunID, loaded.RunID)
	require.Len(t, loaded.Epochs, 2)
	assert.Equal(t, 0.6, loaded.Epochs[1].Metrics.ValLoss)
}

func TestReadHistoryMissingFile(t *testing.T) {
	_, err := train.ReadHistory(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
