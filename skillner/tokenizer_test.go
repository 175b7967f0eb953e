package skillner

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobify-ml/skillner/hub"
	"github.com/jobify-ml/skillner/tokenizers/wordpiece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveRepo serves the given files under a model repo's resolve URL layout.
func serveRepo(t *testing.T, repoID string, files map[string]string) *hub.Repo {
	t.Helper()
	prefix := "/" + repoID + "/resolve/main/"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := stripPrefix(r.URL.Path, prefix)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		content, ok := files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)
	return hub.New(repoID).WithBaseURL(srv.URL).WithCacheDir(t.TempDir())
}

func stripPrefix(path, prefix string) (string, bool) {
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return "", false
	}
	return path[len(prefix):], true
}

func TestLoadTokenizerPicksWordPiece(t *testing.T) {
	repo := serveRepo(t, "acme/bert", map[string]string{
		"tokenizer.json": `{"model": {"type": "WordPiece", "vocab": {"[CLS]": 0}}}`,
	})

	tok, err := loadTokenizer(repo)
	require.NoError(t, err)
	assert.IsType(t, &wordpiece.Tokenizer{}, tok)
}

func TestLoadTokenizerFallsBackToSentencePiece(t *testing.T) {
	// No tokenizer.json: the sentencepiece branch is taken, and the bogus
	// model proto fails inside that backend.
	repo := serveRepo(t, "acme/xlm", map[string]string{
		"tokenizer.model": "not a sentencepiece proto",
	})

	_, err := loadTokenizer(repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentencepiece")
}

func TestLoadTokenizerNoTokenizerFiles(t *testing.T) {
	repo := serveRepo(t, "acme/none", nil)

	_, err := loadTokenizer(repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither")
}
