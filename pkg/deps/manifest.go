package deps

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ManifestParser reads root specs from a local manifest file.
type ManifestParser interface {
	// Parse returns specs in file order, deduplicated by name. Pinned
	// entries come back as "name==version", everything else as a bare name.
	Parse(r io.Reader) ([]string, error)
	// Supports reports whether this parser handles the given filename.
	Supports(filename string) bool
	// Type returns the manifest type identifier (e.g., "requirements.txt").
	Type() string
}

// DetectManifest finds a parser that supports the given file path.
// Returns an error if no parser matches.
func DetectManifest(path string, parsers ...ManifestParser) (ManifestParser, error) {
	name := filepath.Base(path)
	for _, p := range parsers {
		if p.Supports(name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unsupported manifest: %s", name)
}

// ReadManifest detects the parser for path and parses the file.
func ReadManifest(path string, parsers ...ManifestParser) ([]string, error) {
	p, err := DetectManifest(path, parsers...)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	specs, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Type(), err)
	}
	return specs, nil
}
