package gallery

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/vector"
)

// Artifact layout, little-endian:
//
//	magic "RVGL" | format uint32 | dim uint32 | rows uint32
//	rows*dim float32
//	labels uint32 | per label: len uint32, bytes
//	version len uint32, bytes
const (
	artifactMagic   = "RVGL"
	artifactFormat  = uint32(1)
	maxStringLength = 1 << 20
	maxMatrixValues = 1 << 32
	headerSize      = len(artifactMagic) + 3*4
)

// WriteArtifact persists idx at path. The file is written to a temporary
// sibling and renamed into place so readers never see a partial artifact.
func WriteArtifact(path string, idx *Index) error {
	const op = "gallery.WriteArtifact"
	if idx.Len() == 0 {
		return errs.IO(op, errors.New("refusing to persist an empty gallery"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.IO(op, fmt.Errorf("create cache dir: %w", err))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.IO(op, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := encodeArtifact(w, idx.dim, idx.Len(), idx.data, idx.labels, idx.version); err != nil {
		tmp.Close()
		return errs.IO(op, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errs.IO(op, fmt.Errorf("flush: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.IO(op, fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return errs.IO(op, fmt.Errorf("close: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errs.IO(op, fmt.Errorf("rename: %w", err))
	}
	return nil
}

func encodeArtifact(w io.Writer, dim, rows int, data []float32, labels []string, version string) error {
	if _, err := io.WriteString(w, artifactMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	for _, v := range []uint32{artifactFormat, uint32(dim), uint32(rows)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if _, err := w.Write(vector.Float32sToBytes(data)); err != nil {
		return fmt.Errorf("write matrix: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(labels))); err != nil {
		return fmt.Errorf("write label count: %w", err)
	}
	for _, l := range labels {
		if err := writeString(w, l); err != nil {
			return fmt.Errorf("write label: %w", err)
		}
	}
	if err := writeString(w, version); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadArtifact loads and validates the artifact at path. Any failure,
// including a row count that differs from the label count, matches errs.ErrIO.
func ReadArtifact(path string) (*Index, error) {
	const op = "gallery.ReadArtifact"
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO(op, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errs.IO(op, err)
	}
	idx, err := decodeArtifact(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, errs.IO(op, fmt.Errorf("%s: %w", path, err))
	}
	return idx, nil
}

// decodeArtifact reads an artifact of size bytes. The header's matrix shape
// is checked against size before the matrix is allocated.
func decodeArtifact(r io.Reader, size int64) (*Index, error) {
	magic := make([]byte, len(artifactMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != artifactMagic {
		return nil, fmt.Errorf("not a gallery artifact")
	}
	var format, dim, rows uint32
	for _, v := range []*uint32{&format, &dim, &rows} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if format != artifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %d", format)
	}
	if dim == 0 {
		return nil, fmt.Errorf("artifact has zero dimension")
	}
	values := uint64(rows) * uint64(dim)
	if values > maxMatrixValues {
		return nil, fmt.Errorf("artifact claims %d x %d values", rows, dim)
	}
	if payload := size - int64(headerSize); payload < 0 || values*4 > uint64(payload) {
		return nil, fmt.Errorf("artifact claims %d x %d matrix but holds %d bytes", rows, dim, size)
	}

	raw := make([]byte, int(rows)*int(dim)*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	data := make([]float32, int(rows)*int(dim))
	vector.BytesToFloat32s(data, raw)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read label count: %w", err)
	}
	if count != rows {
		return nil, fmt.Errorf("matrix has %d rows but %d labels", rows, count)
	}
	labels := make([]string, count)
	for i := range labels {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read label %d: %w", i, err)
		}
		labels[i] = s
	}
	version, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	return newIndexFromMatrix(int(dim), labels, data, version)
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLength {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
