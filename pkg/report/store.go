package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/stackaudit/pkg/errors"
)

// Store is a directory of archived runs, one "<run-id>.json" per result.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

// Entry describes an archived run.
type Entry struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Requested []string  `json:"requested,omitempty"`
	Summary   Summary   `json:"summary"`
	Path      string    `json:"path"`
}

// DefaultStoreDir returns ~/.config/stackaudit/reports.
func DefaultStoreDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "stackaudit", "reports"), nil
}

// NewStore opens (and creates) the archive at baseDir.
// If baseDir is empty, [DefaultStoreDir] is used.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		dir, err := DefaultStoreDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

func (s *Store) reportPath(runID string) (string, error) {
	if !runIDPattern.MatchString(runID) {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid run id %q", runID)
	}
	return filepath.Join(s.baseDir, runID+".json"), nil
}

// Save implements Sink.
func (s *Store) Save(ctx context.Context, r *AnalysisResult) (string, error) {
	path, err := s.reportPath(r.RunID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "marshal report")
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "write report file")
	}
	return path, nil
}

// Get loads an archived run. A missing run is [errors.ErrCodeReportNotFound].
func (s *Store) Get(ctx context.Context, runID string) (*AnalysisResult, error) {
	path, err := s.reportPath(runID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeReportNotFound, "report %s not found", runID)
		}
		return nil, fmt.Errorf("read report file: %w", err)
	}

	var r AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// List returns the archived runs, newest first. Unreadable files are
// skipped.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, path := range files {
		r, err := readResult(path)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			RunID:     r.RunID,
			Timestamp: r.Timestamp,
			Requested: r.Requested,
			Summary:   r.Summary,
			Path:      path,
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.RunID, b.RunID)
	})
	return entries, nil
}

// Delete removes an archived run. Deleting a missing run is not an error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	path, err := s.reportPath(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove report file: %w", err)
	}
	return nil
}

// Cleanup removes runs older than maxAge (by report timestamp) and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		r, err := readResult(path)
		if err != nil {
			continue
		}
		if now.Sub(r.Timestamp) > maxAge {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Path returns the archive directory.
func (s *Store) Path() string {
	return s.baseDir
}

func (s *Store) files() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		out = append(out, filepath.Join(s.baseDir, entry.Name()))
	}
	return out, nil
}

func readResult(path string) (*AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

var _ Sink = (*Store)(nil)
