package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackaudit/pkg/errors"
)

// FileSink writes the result to a single file, replacing it atomically.
type FileSink struct {
	Path   string
	Format Format // empty: derived from the file extension
}

// NewFileSink creates a FileSink. An empty format is taken from the
// extension of path (".yaml"/".yml" → YAML, anything else → JSON).
func NewFileSink(path string, format Format) *FileSink {
	if format == "" {
		format = FormatFromPath(path)
	}
	return &FileSink{Path: path, Format: format}
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".dot", ".gv":
		return FormatDOT
	case ".svg":
		return FormatSVG
	default:
		return FormatJSON
	}
}

// Save implements Sink.
func (s *FileSink) Save(ctx context.Context, r *AnalysisResult) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, s.Format); err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "encode report")
	}
	if err := writeFileAtomic(s.Path, buf.Bytes()); err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "write report %s", s.Path)
	}
	return s.Path, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
