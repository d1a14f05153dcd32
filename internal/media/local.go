package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
)

// LocalStore writes objects below a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, model.Wrap(model.ErrConfiguration, eris.New("media: local dir is empty"))
	}
	return &LocalStore{dir: dir}, nil
}

// Put writes r to dir/key and returns key. Keys may not escape dir.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", model.Wrap(model.ErrInvalidInput, eris.Errorf("media: invalid key %q", key))
	}
	full := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", eris.Wrap(err, "media: create dir")
	}

	f, err := os.Create(full)
	if err != nil {
		return "", eris.Wrap(err, "media: create file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrap(err, "media: write file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "media: close file")
	}
	return filepath.ToSlash(clean), nil
}
