package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/task"
)

var errInvalidRef = errors.New("invalid file reference")

// LocalStore keeps attachments in a directory of the local filesystem.
// References are paths relative to that directory.
type LocalStore struct {
	dir string
}

var _ task.FileStore = (*LocalStore)(nil)

// NewLocalStore creates dir if it does not exist.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving uploads directory")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads directory")
	}
	return &LocalStore{dir: abs}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	if ref == "" || filepath.IsAbs(ref) {
		return "", errInvalidRef
	}
	p := filepath.Join(s.dir, filepath.FromSlash(ref))
	if !strings.HasPrefix(p, s.dir+string(filepath.Separator)) {
		return "", errInvalidRef
	}
	return p, nil
}

func (s *LocalStore) Save(_ context.Context, name string, r io.Reader, _ string) (string, error) {
	p, err := s.path(name)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing file")
	}
	return filepath.ToSlash(name), nil
}

func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}
