// Package downloader implements a small HTTP download manager with bounded
// parallelism, optional bearer-token authentication and progress reporting.
package downloader

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ProgressCallback is called as a download advances. downloadedBytes is the
// total read so far, totalBytes is the Content-Length (0 if unknown) and eof
// is set on the final call.
type ProgressCallback func(downloadedBytes, totalBytes int64, eof bool)

// Manager coordinates downloads. It limits the number of concurrent
// transfers with a semaphore; each Download call is itself synchronous.
type Manager struct {
	client      *http.Client
	authToken   string
	semaphore   chan struct{}
	maxParallel int
}

const defaultMaxParallel = 4

// New creates a Manager with the default parallelism limit.
func New() *Manager {
	m := &Manager{
		client: &http.Client{Timeout: 30 * time.Minute},
	}
	return m.MaxParallel(defaultMaxParallel)
}

// MaxParallel sets the maximum number of concurrent downloads.
// It returns the updated Manager, so calls can be cascaded.
func (m *Manager) MaxParallel(n int) *Manager {
	if n < 1 {
		n = 1
	}
	m.maxParallel = n
	m.semaphore = make(chan struct{}, n)
	return m
}

// WithAuthToken sets a bearer token sent with every request. Set to empty to
// disable authentication. It returns the updated Manager, so calls can be
// cascaded.
func (m *Manager) WithAuthToken(token string) *Manager {
	m.authToken = token
	return m
}

// Download fetches url into filePath, creating or truncating the file.
// It blocks until the transfer finishes or ctx is cancelled. No retries are
// attempted: the caller decides the retry policy.
func (m *Manager) Download(ctx context.Context, url, filePath string, progress ProgressCallback) error {
	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.semaphore }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "creating request for %q", url)
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}

	klog.V(1).Infof("downloading %q to %q", url, filePath)
	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetching %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetching %q: unexpected status %s", url, resp.Status)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %q", filePath)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	var downloaded int64
	buf := make([]byte, 256*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				_ = f.Close()
				return errors.Wrapf(writeErr, "writing to %q", filePath)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total, false)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = f.Close()
			return errors.Wrapf(readErr, "reading body of %q", url)
		}
	}
	if progress != nil {
		progress(downloaded, total, true)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %q", filePath)
	}
	klog.V(1).Infof("downloaded %d bytes from %q", downloaded, url)
	return nil
}

// Head checks whether url is reachable, without downloading the body.
func (m *Manager) Head(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, errors.Wrapf(err, "creating request for %q", url)
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "checking %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}
