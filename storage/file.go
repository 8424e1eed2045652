package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

type fileStore struct {
	root string
}

// NewFileStore creates a Store over CSV files under root. A dataset id is
// the slash-separated path of its file relative to root, without the .csv or
// .csv.gz suffix.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) List(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipAll
			}
			return err
		}

		if strings.HasPrefix(d.Name(), ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if id, ok := TrimExtension(filepath.ToSlash(rel)); ok {
			seen[id] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrReadFailed, s.root, err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fileStore) Stat(_ context.Context, id string) (Info, error) {
	path, fi, err := s.locate(id)
	if err != nil {
		return Info{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	defer f.Close()

	header, err := readHeader(path, f)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}

	return Info{ID: id, Columns: header, Bytes: fi.Size()}, nil
}

func (s *fileStore) Read(ctx context.Context, id string, q dataset.Query) (*dataset.Table, error) {
	path, _, err := s.locate(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	defer f.Close()

	table, err := decodeTable(id, path, &contextReader{ctx: ctx, r: f}, q)
	if err != nil {
		if errors.Is(err, dataset.ErrInvalidQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	return table, nil
}

// locate finds the file backing id, preferring the uncompressed form.
func (s *fileStore) locate(id string) (string, os.FileInfo, error) {
	if id == "" || strings.Contains(id, "..") {
		return "", nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	base := filepath.Join(s.root, filepath.FromSlash(id))
	for _, ext := range Extensions {
		fi, err := os.Stat(base + ext)
		if err == nil && !fi.IsDir() {
			return base + ext, fi, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
