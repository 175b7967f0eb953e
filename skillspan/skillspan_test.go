package skillspan_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobify-ml/skillner/hub"
	"github.com/jobify-ml/skillner/skillspan"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	good := skillspan.Example{
		Tokens:    []string{"python", "developer"},
		TagsSkill: []string{"B-SKILL", "I-SKILL"},
	}
	require.NoError(t, good.Validate())

	bad := skillspan.Example{
		Tokens:    []string{"python", "developer"},
		TagsSkill: []string{"B-SKILL"},
	}
	require.Error(t, bad.Validate())
}

func TestDefaultSplits(t *testing.T) {
	splits := skillspan.DefaultSplits()
	require.Len(t, splits, 3)
	assert.Equal(t, "train", splits[0].Name)
	assert.Equal(t, "validation", splits[1].Name)
	assert.Equal(t, "test", splits[2].Name)
}

// serveSplits writes parquet fixtures and serves them under the dataset
// resolve URL layout the hub uses.
func serveSplits(t *testing.T, repoID string, splits map[string][]skillspan.Example) *httptest.Server {
	t.Helper()

	root := t.TempDir()
	for file, examples := range splits {
		path := filepath.Join(root, "datasets", repoID, "resolve", "main", filepath.FromSlash(file))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, parquet.WriteFile(path, examples))
	}

	srv := httptest.NewServer(http.FileServer(http.Dir(root)))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoad(t *testing.T) {
	const repoID = "jjzha/skillspan"
	trainRows := []skillspan.Example{
		{Tokens: []string{"python", "developer"}, TagsSkill: []string{"B-SKILL", "I-SKILL"}},
		{Tokens: []string{"we", "hire"}, TagsSkill: []string{"O", "O"}},
	}
	valRows := []skillspan.Example{
		{Tokens: []string{"aws"}, TagsSkill: []string{"B-SKILL"}},
	}
	testRows := []skillspan.Example{
		{Tokens: []string{"kubernetes", "experience"}, TagsSkill: []string{"B-SKILL", "O"}},
	}
	srv := serveSplits(t, repoID, map[string][]skillspan.Example{
		"data/train-00000-of-00001.parquet":      trainRows,
		"data/validation-00000-of-00001.parquet": valRows,
		"data/test-00000-of-00001.parquet":       testRows,
	})

	repo := hub.NewDataset(repoID).
		WithBaseURL(srv.URL).
		WithCacheDir(t.TempDir())

	examples, err := skillspan.NewLoader(repo).Load(context.Background())
	require.NoError(t, err)

	// Splits concatenate in canonical order, record order preserved.
	require.Len(t, examples, 4)
	assert.Equal(t, []string{"python", "developer"}, examples[0].Tokens)
	assert.Equal(t, []string{"we", "hire"}, examples[1].Tokens)
	assert.Equal(t, []string{"aws"}, examples[2].Tokens)
	assert.Equal(t, []string{"kubernetes", "experience"}, examples[3].Tokens)
	assert.Equal(t, []string{"B-SKILL", "I-SKILL"}, examples[0].TagsSkill)
}

func TestLoadWithSplits(t *testing.T) {
	const repoID = "acme/custom"
	rows := []skillspan.Example{
		{Tokens: []string{"go"}, TagsSkill: []string{"B-SKILL"}},
	}
	srv := serveSplits(t, repoID, map[string][]skillspan.Example{
		"data/dev.parquet": rows,
	})

	repo := hub.NewDataset(repoID).
		WithBaseURL(srv.URL).
		WithCacheDir(t.TempDir())

	loader := skillspan.NewLoader(repo).
		WithSplits([]skillspan.Split{{Name: "dev", File: "data/dev.parquet"}})
	examples, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, []string{"go"}, examples[0].Tokens)
}

func TestLoadMissingSplit(t *testing.T) {
	const repoID = "acme/empty"
	srv := serveSplits(t, repoID, nil)

	repo := hub.NewDataset(repoID).
		WithBaseURL(srv.URL).
		WithCacheDir(t.TempDir())

	_, err := skillspan.NewLoader(repo).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `loading split "train"`)
}
