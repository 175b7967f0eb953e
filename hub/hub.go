// Package hub retrieves named artifacts (model weights, tokenizer files,
// dataset splits) from a HuggingFace-style hub by string identifier, caching
// them on disk. Retrieval is a blocking call with no internal retries: retry
// policy belongs to the caller.
package hub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobify-ml/skillner/internal/downloader"
	"github.com/jobify-ml/skillner/internal/files"
	"github.com/pkg/errors"
)

// RepoType distinguishes model repositories from dataset repositories; the
// hub serves them under different URL prefixes.
type RepoType string

const (
	RepoTypeModel   RepoType = "models"
	RepoTypeDataset RepoType = "datasets"
)

// DefaultDirCreationPerm is used when creating new cache subdirectories.
const DefaultDirCreationPerm = os.FileMode(0755)

const defaultBaseURL = "https://huggingface.co"

// Repo references a repository in the hub, from which files can be
// downloaded. Configure it with the With* methods, which return the updated
// Repo so calls can be cascaded.
type Repo struct {
	// ID of the repo, e.g. "ihk/skillner" or "jjzha/skillspan".
	ID string

	// MaxParallelDownload limits concurrent transfers for this repo.
	MaxParallelDownload int

	repoType  RepoType
	revision  string
	baseURL   string
	cacheDir  string
	authToken string

	downloadManager *downloader.Manager
}

// New creates a reference to a model repository given its hub id, e.g.
// "jjzha/jobbert-base-cased".
func New(id string) *Repo {
	return &Repo{
		ID:                  id,
		repoType:            RepoTypeModel,
		revision:            "main",
		baseURL:             defaultBaseURL,
		cacheDir:            DefaultCacheDir(),
		MaxParallelDownload: 4,
	}
}

// NewDataset creates a reference to a dataset repository given its hub id,
// e.g. "jjzha/skillspan".
func NewDataset(id string) *Repo {
	r := New(id)
	r.repoType = RepoTypeDataset
	return r
}

// DefaultCacheDir returns the default directory where downloaded files are
// cached. It honors the SKILLNER_CACHE environment variable.
func DefaultCacheDir() string {
	if dir := os.Getenv("SKILLNER_CACHE"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "skillner")
}

// WithCacheDir sets the cache directory used for downloaded files.
func (r *Repo) WithCacheDir(dir string) *Repo {
	r.cacheDir = dir
	return r
}

// WithAuthToken sets a bearer token used for gated repositories.
func (r *Repo) WithAuthToken(token string) *Repo {
	r.authToken = token
	r.downloadManager = nil
	return r
}

// WithRevision sets the git revision (branch, tag or commit) to fetch from.
// Defaults to "main".
func (r *Repo) WithRevision(revision string) *Repo {
	r.revision = revision
	return r
}

// WithBaseURL points the repo at a different hub endpoint. Used in tests.
func (r *Repo) WithBaseURL(baseURL string) *Repo {
	r.baseURL = strings.TrimSuffix(baseURL, "/")
	return r
}

// FileURL returns the resolve URL for the given file in the repo.
func (r *Repo) FileURL(filename string) string {
	if r.repoType == RepoTypeDataset {
		return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s", r.baseURL, r.ID, r.revision, filename)
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", r.baseURL, r.ID, r.revision, filename)
}

// localPath returns where filename is cached on disk.
func (r *Repo) localPath(filename string) string {
	sanitized := strings.ReplaceAll(r.ID, "/", "--")
	return filepath.Join(r.cacheDir, string(r.repoType), sanitized, r.revision, filepath.FromSlash(filename))
}

// DownloadFile fetches filename from the repo, unless already cached, and
// returns the local path of the downloaded copy.
func (r *Repo) DownloadFile(filename string) (string, error) {
	return r.DownloadFileCtx(context.Background(), filename)
}

// DownloadFileCtx is DownloadFile with an explicit context.
func (r *Repo) DownloadFileCtx(ctx context.Context, filename string) (string, error) {
	localPath := r.localPath(filename)
	err := r.lockedDownload(ctx, r.FileURL(filename), localPath, false, nil)
	if err != nil {
		return "", errors.WithMessagef(err, "downloading %q from repo %q", filename, r.ID)
	}
	return localPath, nil
}

// HasFile reports whether filename is available, either already cached
// locally or present in the remote repo.
func (r *Repo) HasFile(filename string) bool {
	if files.Exists(r.localPath(filename)) {
		return true
	}
	ok, err := r.getDownloadManager().Head(context.Background(), r.FileURL(filename))
	return err == nil && ok
}
