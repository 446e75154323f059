package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/colonysim/internal/config"
)

// sinkContract exercises the behavior every Sink must share.
func sinkContract(t *testing.T, sink Sink) {
	ctx := context.Background()

	info, err := sink.Put(ctx, "runs/one.archive", strings.NewReader("payload-1"), "application/octet-stream")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len("payload-1")) {
		t.Errorf("Size = %d, want %d", info.Size, len("payload-1"))
	}
	if _, err := sink.Put(ctx, "runs/one.archive", strings.NewReader("payload-2"), ""); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	if _, err := sink.Put(ctx, "other.csv", strings.NewReader("x"), "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := sink.Get(ctx, "runs/one.archive")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "payload-2" {
		t.Errorf("Get body = %q, want payload-2", body)
	}

	if _, err := sink.Get(ctx, "missing.archive"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}

	objects, err := sink.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "runs/one.archive" {
		t.Errorf("List(runs/) = %+v", objects)
	}

	if err := sink.Delete(ctx, "runs/one.archive"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sink.Get(ctx, "runs/one.archive"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	if _, err := sink.Put(ctx, "../escape", strings.NewReader("x"), ""); err == nil {
		t.Error("expected error for traversal key")
	}
}

func TestFSSink(t *testing.T) {
	sink, err := NewFSSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}
	sinkContract(t, sink)

	if err := sink.Delete(context.Background(), "never-written"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing error = %v, want ErrNotFound", err)
	}
}

func TestS3Sink(t *testing.T) {
	sink, err := newS3Sink(context.Background(), config.S3Config{
		Bucket:          "colony",
		Prefix:          "exports",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, &http.Client{Transport: newFakeS3()})
	if err != nil {
		t.Fatalf("newS3Sink: %v", err)
	}
	sinkContract(t, sink)
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	if _, err := NewS3Sink(context.Background(), config.S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}
}

func TestOpenSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := OpenSink(context.Background(), config.ExportConfig{Destination: config.ExportFS, Dir: dir})
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	if _, ok := sink.(*FSSink); !ok {
		t.Errorf("OpenSink(fs) returned %T", sink)
	}
	if _, err := OpenSink(context.Background(), config.ExportConfig{Destination: "ftp"}); err == nil {
		t.Error("expected error for unknown destination")
	}
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	sink, err := NewFSSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var keys []string
	for i := range 4 {
		key := ArchiveKey(base.Add(time.Duration(i) * time.Hour))
		keys = append(keys, key)
		if _, err := sink.Put(ctx, key, strings.NewReader("x"), ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sink.Put(ctx, "notes.txt", strings.NewReader("keep me"), ""); err != nil {
		t.Fatal(err)
	}

	deleted, err := Rotate(ctx, sink, "", 2)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	sort.Strings(deleted)
	if len(deleted) != 2 || deleted[0] != keys[0] || deleted[1] != keys[1] {
		t.Errorf("deleted = %v, want the two oldest %v", deleted, keys[:2])
	}

	remaining, _ := sink.List(ctx, "")
	if len(remaining) != 3 {
		t.Errorf("expected 2 archives plus notes.txt, got %+v", remaining)
	}
}

func TestArchiveKeyOrdering(t *testing.T) {
	a := ArchiveKey(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	b := ArchiveKey(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	if !(a < b) {
		t.Errorf("expected %s < %s", a, b)
	}
	if !strings.HasSuffix(a, ".archive") {
		t.Errorf("unexpected key %s", a)
	}
}

// fakeS3 is an in-memory path-style S3 endpoint covering the calls S3Sink makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path-style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, []byte(b.String()), "application/xml"), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			body = decodeChunked(body)
		}
		f.objects[key] = body
		return respond(http.StatusOK, nil, ""), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, ""), nil
		}
		return respond(http.StatusOK, body, "application/octet-stream"), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, ""), nil
	}
	return respond(http.StatusNotImplemented, nil, ""), nil
}

func respond(status int, body []byte, contentType string) *http.Response {
	h := http.Header{"Content-Length": {strconv.Itoa(len(body))}}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeChunked strips aws-chunked framing: <hex>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeChunked(b []byte) []byte {
	var out []byte
	for {
		line, rest, ok := bytes.Cut(b, []byte("\r\n"))
		if !ok {
			return out
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil || size == 0 || int64(len(rest)) < size {
			return out
		}
		out = append(out, rest[:size]...)
		b = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
}
