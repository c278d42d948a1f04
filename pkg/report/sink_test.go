package report

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackaudit/pkg/errors"
)

type recordingSink struct {
	loc   string
	err   error
	calls int
}

func (s *recordingSink) Save(context.Context, *AnalysisResult) (string, error) {
	s.calls++
	return s.loc, s.err
}

func TestMultiSink(t *testing.T) {
	failing := &recordingSink{err: stderrors.New("disk full")}
	first := &recordingSink{loc: "first"}
	second := &recordingSink{loc: "second"}

	loc, err := MultiSink{failing, nil, first, second}.Save(context.Background(), &AnalysisResult{})
	if loc != "first" {
		t.Errorf("location = %q, want first", loc)
	}
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v, want the failing sink's error", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Error("a failing sink should not stop the others")
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file   string
		prefix string
	}{
		{"out/report.json", "{"},
		{"out/report.yaml", "run_id:"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			loc, err := NewFileSink(path, "").Save(context.Background(), &AnalysisResult{RunID: "r1", Timestamp: now})
			if err != nil {
				t.Fatal(err)
			}
			if loc != path {
				t.Errorf("location = %q", loc)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(data), tt.prefix) {
				t.Errorf("content starts %q, want %q", string(data)[:min(len(data), 20)], tt.prefix)
			}
		})
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "out", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestFileSinkUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileSink(filepath.Join(blocker, "report.json"), "").Save(context.Background(), &AnalysisResult{})
	if !errors.Is(err, errors.ErrCodePersistenceFailed) {
		t.Errorf("err = %v, want PERSISTENCE_FAILED", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"r.json": FormatJSON,
		"r.YML":  FormatYAML,
		"r.yaml": FormatYAML,
		"r.dot":  FormatDOT,
		"r.gv":   FormatDOT,
		"r.svg":  FormatSVG,
		"r":      FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
