package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSSink stores archives as files under a root directory.
type FSSink struct {
	root string
}

// NewFSSink returns a sink rooted at dir, creating it if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &FSSink{root: dir}, nil
}

func (s *FSSink) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes to a temp file and renames it into place.
func (s *FSSink) Put(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error) {
	dest, err := s.pathFor(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return ObjectInfo{}, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return ObjectInfo{}, fmt.Errorf("moving %s into place: %w", key, err)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}, nil
}

// Get opens the object for reading.
func (s *FSSink) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	return f, nil
}

// List walks the root for objects under prefix.
func (s *FSSink) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the object.
func (s *FSSink) Delete(ctx context.Context, key string) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}
