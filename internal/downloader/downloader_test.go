package downloader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobify-ml/skillner/internal/downloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	const body = "hello, hub"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "file.bin")
	m := downloader.New()
	require.NoError(t, m.Download(context.Background(), srv.URL, path, nil))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestDownloadAuthToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "file.bin")
	m := downloader.New().WithAuthToken("secret")
	require.NoError(t, m.Download(context.Background(), srv.URL, path, nil))
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestDownloadBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "file.bin")
	err := downloader.New().Download(context.Background(), srv.URL, path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestDownloadProgress(t *testing.T) {
	body := make([]byte, 1<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	var calls int
	var last int64
	var sawEOF bool
	progress := func(downloaded, total int64, eof bool) {
		calls++
		last = downloaded
		if eof {
			sawEOF = true
			assert.Equal(t, int64(len(body)), total)
		}
	}

	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, downloader.New().Download(context.Background(), srv.URL, path, progress))
	assert.Positive(t, calls)
	assert.True(t, sawEOF)
	assert.Equal(t, int64(len(body)), last)
}

func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "file.bin")
	err := downloader.New().Download(ctx, srv.URL, path, nil)
	require.Error(t, err)
}

func TestHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exists" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	m := downloader.New()
	ok, err := m.Head(context.Background(), srv.URL+"/exists")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Head(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
