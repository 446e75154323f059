package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/colonysim/internal/config"
)

// ErrNotFound is returned when a sink holds no object under the key.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes an object stored in a sink.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Sink is a destination for exported archives.
type Sink interface {
	// Put writes the object, replacing any existing object under key.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// OpenSink returns the sink selected by cfg.
func OpenSink(ctx context.Context, cfg config.ExportConfig) (Sink, error) {
	switch cfg.Destination {
	case config.ExportS3:
		return NewS3Sink(ctx, cfg.S3)
	case config.ExportFS, "":
		dir := cfg.Dir
		if dir == "" {
			home, err := config.HomeDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(home, "exports")
		}
		return NewFSSink(dir)
	default:
		return nil, fmt.Errorf("unknown export destination: %s", cfg.Destination)
	}
}

// ArchiveKey returns a timestamped archive key. Keys sort by creation time.
func ArchiveKey(t time.Time) string {
	return fmt.Sprintf("colonysim-%s.archive", t.UTC().Format("20060102-150405.000"))
}

// Rotate keeps only the newest keep archives under prefix and returns the
// deleted keys. Archive keys embed their timestamp, so key order is age order.
func Rotate(ctx context.Context, sink Sink, prefix string, keep int) ([]string, error) {
	objects, err := sink.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	var archives []ObjectInfo
	for _, o := range objects {
		if strings.HasSuffix(o.Key, ".archive") {
			archives = append(archives, o)
		}
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Key > archives[j].Key })

	if len(archives) <= keep {
		return nil, nil
	}
	var deleted []string
	for _, o := range archives[keep:] {
		if err := sink.Delete(ctx, o.Key); err != nil {
			return deleted, fmt.Errorf("removing old archive %s: %w", o.Key, err)
		}
		deleted = append(deleted, o.Key)
	}
	return deleted, nil
}

// sanitizeKey rejects keys that could escape the sink root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := path.Clean(filepath.ToSlash(key))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key traversal %q", key)
	}
	return clean, nil
}
