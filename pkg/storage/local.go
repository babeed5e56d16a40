package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fitsstore-go/pkg/errkind"
)

// LocalStore 是以 root 为根目录的本地文件系统后端。
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地后端。
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root 返回根目录。
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func localErr(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return errkind.NotFound.New("%s", name)
	}
	return errkind.Transient.Wrap(err)
}

func (s *LocalStore) Stat(_ context.Context, name string) (ObjectInfo, error) {
	fi, err := os.Stat(s.path(name))
	if err != nil {
		return ObjectInfo{}, localErr(name, err)
	}
	if fi.IsDir() {
		return ObjectInfo{}, errkind.NotFound.New("%s is a directory", name)
	}
	return ObjectInfo{Name: name, Size: fi.Size(), LastMod: fi.ModTime().UTC()}, nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, localErr(name, err)
	}
	return f, nil
}

// Put 先写入同目录下的临时文件再 rename，读者不会看到写了一半的文件。
func (s *LocalStore) Put(_ context.Context, name string, r io.Reader, _ int64) (err error) {
	dst := s.path(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".part")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		return localErr(name, err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !strings.HasPrefix(rel, prefix) || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if !yield(ObjectInfo{Name: rel, Size: fi.Size(), LastMod: fi.ModTime().UTC()}, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(ObjectInfo{}, localErr(prefix, err))
		}
	}
}

// FetchToLocal 对本地后端无需复制。
func (s *LocalStore) FetchToLocal(_ context.Context, name, _ string) (string, error) {
	p := s.path(name)
	if _, err := os.Stat(p); err != nil {
		return "", localErr(name, err)
	}
	return p, nil
}

func (s *LocalStore) Remote() bool { return false }
