package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/genericchat/backend/internal/domain"
)

// DiskStore keeps blobs as files under a single directory and serves them
// through the upload routes at baseURL.
type DiskStore struct {
	dir     string
	baseURL string
}

var _ Store = (*DiskStore)(nil)

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

// Upload writes the blob to disk and returns its download URL. Names with
// path separators are rejected to keep everything inside the store directory.
func (s *DiskStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	out, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create blob %s: %w", name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("write blob %s: %w", name, err)
	}
	return s.url(name), nil
}

// DownloadURL returns the URL for an existing blob, or ErrNotFound.
func (s *DiskStore) DownloadURL(ctx context.Context, name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("blob %s: %w", name, domain.ErrNotFound)
		}
		return "", fmt.Errorf("stat blob %s: %w", name, err)
	}
	return s.url(name), nil
}

// Path returns the on-disk location for serving the blob over HTTP.
func (s *DiskStore) Path(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *DiskStore) url(name string) string {
	return s.baseURL + "/" + name
}

func validName(name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid blob name %q: %w", name, domain.ErrInvalidInput)
	}
	return nil
}
