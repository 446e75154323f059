// Package export writes simulation runs out of colonysim: CSV time series,
// JSON results, and checksummed archives uploaded to a filesystem or S3 sink.
package export

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/store"
)

// ArchiveFormat identifies colonysim archives in their header line.
const ArchiveFormat = "colonysim-archive-v1"

// ArchiveVersion is the current archive payload version.
const ArchiveVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed archive (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// ArchiveHeader is the plain-text first line of an archive.
type ArchiveHeader struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	RunCount   int       `json:"run_count"`
	Compressed bool      `json:"compressed"`
}

// Archive is the decompressed archive payload.
type Archive struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Runs      []store.RunRecord `json:"runs"`
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, result *models.SimulationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// WriteArchive writes runs as a header line followed by a gzip-compressed
// JSON payload. The header carries the SHA-256 of the compressed bytes.
func WriteArchive(w io.Writer, runs []store.RunRecord) (*ArchiveHeader, error) {
	archive := Archive{
		Version:   ArchiveVersion,
		CreatedAt: time.Now().UTC(),
		Runs:      runs,
	}
	payload, err := json.Marshal(archive)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := &ArchiveHeader{
		Format:     ArchiveFormat,
		Version:    ArchiveVersion,
		CreatedAt:  archive.CreatedAt,
		Checksum:   checksum(compressed.Bytes()),
		RunCount:   len(runs),
		Compressed: true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if _, err := w.Write(append(headerBytes, '\n')); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return nil, fmt.Errorf("writing compressed payload: %w", err)
	}
	return header, nil
}

// ReadArchiveHeader reads only the header line without decompressing.
func ReadArchiveHeader(r io.Reader) (*ArchiveHeader, error) {
	header, _, err := readHeader(bufio.NewReader(r))
	return header, err
}

// VerifyArchive checks the payload checksum without decompressing.
func VerifyArchive(r io.Reader) (*ArchiveHeader, error) {
	header, reader, err := readHeader(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	if _, err := readVerified(header, reader); err != nil {
		return nil, err
	}
	return header, nil
}

// ReadArchive verifies and decompresses an archive.
func ReadArchive(r io.Reader) (*Archive, error) {
	header, reader, err := readHeader(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	compressed, err := readVerified(header, reader)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var archive Archive
	if err := json.Unmarshal(decompressed, &archive); err != nil {
		return nil, fmt.Errorf("parsing archive data: %w", err)
	}
	if len(archive.Runs) != header.RunCount {
		return nil, fmt.Errorf("archive holds %d runs, header says %d", len(archive.Runs), header.RunCount)
	}
	return &archive, nil
}

// Collect loads the named runs, or every saved run when ids is empty.
func Collect(ctx context.Context, runs store.RunStore, ids []string) ([]store.RunRecord, error) {
	if len(ids) == 0 {
		infos, err := runs.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		for _, info := range infos {
			ids = append(ids, info.ID)
		}
	}
	records := make([]store.RunRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := runs.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Import saves every run of an archive into the store and returns how
// many were saved. Runs keep their IDs, so importing twice replaces.
func Import(ctx context.Context, runs store.RunStore, r io.Reader) (int, error) {
	archive, err := ReadArchive(r)
	if err != nil {
		return 0, err
	}
	for i, rec := range archive.Runs {
		if _, err := runs.Save(ctx, rec); err != nil {
			return i, fmt.Errorf("saving run %s: %w", rec.ID, err)
		}
	}
	return len(archive.Runs), nil
}

func readHeader(reader *bufio.Reader) (*ArchiveHeader, *bufio.Reader, error) {
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}

	var header ArchiveHeader
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Format != ArchiveFormat {
		return nil, nil, fmt.Errorf("not a colonysim archive (format %q)", header.Format)
	}
	if header.Version != ArchiveVersion {
		return nil, nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}
	return &header, reader, nil
}

func readVerified(header *ArchiveHeader, reader io.Reader) ([]byte, error) {
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return compressed, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
