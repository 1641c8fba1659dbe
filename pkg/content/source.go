package content

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
)

// Source lists and reads raw content files. Paths are slash-separated and
// relative to the source root.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// IsContentPath reports whether a path looks like a content file.
func IsContentPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".mdx":
		return true
	}
	return false
}

type dirSource struct {
	root string
}

// NewDirSource reads content from a local directory tree.
func NewDirSource(root string) Source {
	return &dirSource{root: root}
}

func (s *dirSource) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsContentPath(name) || strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk content directory", goerr.V("root", s.root))
	}
	return paths, nil
}

func (s *dirSource) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read content file", goerr.V("path", path))
	}
	return data, nil
}

type storageSource struct {
	storage adapter.Storage
	prefix  string
}

// NewStorageSource reads content from a Cloud Storage bucket under an
// optional key prefix.
func NewStorageSource(storage adapter.Storage, prefix string) Source {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &storageSource{storage: storage, prefix: prefix}
}

func (s *storageSource) List(ctx context.Context) ([]string, error) {
	keys, err := s.storage.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, key := range keys {
		if !IsContentPath(key) {
			continue
		}
		paths = append(paths, strings.TrimPrefix(key, s.prefix))
	}
	return paths, nil
}

func (s *storageSource) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := s.storage.Get(ctx, s.prefix+path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read content object", goerr.V("path", path))
	}
	return data, nil
}
