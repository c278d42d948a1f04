package deps

import (
	"strings"

	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/graph"
)

// Spec is a validated root package request: a bare name or an exact pin.
type Spec struct {
	Name    string // normalized project name
	Version string // pinned version, empty for "latest"
	raw     string
}

// String returns the spec as the user wrote it, trimmed.
func (s Spec) String() string { return s.raw }

// Key is the spec in the form used for cache keys.
func (s Spec) Key() string { return strings.ToLower(s.raw) }

// Pinned reports whether the spec names an exact version.
func (s Spec) Pinned() bool { return s.Version != "" }

// ParseSpec validates s and splits it into name and version.
// Anything but "name" or "name==version" is rejected with
// [errors.ErrCodeInvalidSpec].
func ParseSpec(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if err := errors.ValidateSpec(s); err != nil {
		return Spec{}, err
	}
	name, version, _ := strings.Cut(s, "==")
	return Spec{Name: graph.NormalizeName(name), Version: version, raw: s}, nil
}

// ParseSpecs validates every spec. The whole call fails on the first
// invalid entry; an empty list is an input error.
func ParseSpecs(specs []string) ([]Spec, error) {
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no packages requested")
	}
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		spec, err := ParseSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}
