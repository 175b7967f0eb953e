package skillner_test

import (
	"testing"

	"github.com/jobify-ml/skillner/skillner"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := skillner.DefaultConfig()

	assert.Equal(t, "ihk/skillner", cfg.Model)
	assert.Equal(t, "jjzha/skillspan", cfg.Dataset)
	assert.Equal(t, []string{"train", "validation", "test"}, cfg.Splits)
	assert.Equal(t, []string{"O", "B-SKILL", "I-SKILL"}, cfg.Labels)
	assert.Equal(t, 256, cfg.MaxSeqLen)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, "model.frozen.pb", cfg.GraphFile)
}
