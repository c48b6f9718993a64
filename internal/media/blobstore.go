package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds persisted media under slash separated relative paths.
type BlobStore interface {
	Exists(ctx context.Context, p string) (bool, error)
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	// Put must never expose a partially written blob at p.
	Put(ctx context.Context, p string, r io.Reader) error
	URL(p string) string
}

// FSStore keeps blobs on the local filesystem.
type FSStore struct {
	root      string
	publicURL string
}

func NewFSStore(root, publicURL string) (*FSStore, error) {
	root = filepath.Clean(strings.TrimSpace(root))
	if root == "" || root == "." {
		return nil, fmt.Errorf("blob store dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob store dir: %w", err)
	}
	return &FSStore{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *FSStore) resolve(p string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(p))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob path %q", p)
	}
	return full, nil
}

func (s *FSStore) Exists(_ context.Context, p string) (bool, error) {
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

func (s *FSStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", p, ErrBlobNotFound)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Put writes to a temp file in the target directory and renames it into place.
func (s *FSStore) Put(_ context.Context, p string, r io.Reader) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(full)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	writeErr := func() error {
		if _, err := io.Copy(tmp, r); err != nil {
			_ = tmp.Close()
			return err
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write blob: %w", writeErr)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize blob: %w", err)
	}
	return nil
}

func (s *FSStore) URL(p string) string {
	return s.publicURL + "/" + strings.TrimLeft(p, "/")
}

// ContentType guesses the MIME type of a blob from its extension.
func ContentType(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
