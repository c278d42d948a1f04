package python

import (
	"io"
	"slices"

	"github.com/BurntSushi/toml"
)

// PoetryLock parses poetry.lock files. Every locked package that no other
// locked package depends on becomes a pinned root spec; the resolver
// recovers the rest of the closure.
type PoetryLock struct{}

func (p *PoetryLock) Type() string              { return "poetry.lock" }
func (p *PoetryLock) Supports(name string) bool { return name == "poetry.lock" }

func (p *PoetryLock) Parse(in io.Reader) ([]string, error) {
	var lock lockFile
	if _, err := toml.NewDecoder(in).Decode(&lock); err != nil {
		return nil, err
	}
	return rootSpecs(lock.Packages), nil
}

type lockFile struct {
	Packages []lockPackage `toml:"package"`
}

type lockPackage struct {
	Name         string         `toml:"name"`
	Version      string         `toml:"version"`
	Description  string         `toml:"description"`
	Category     string         `toml:"category"`
	Optional     bool           `toml:"optional"`
	Dependencies map[string]any `toml:"dependencies"`
}

func rootSpecs(packages []lockPackage) []string {
	locked := make(map[string]bool, len(packages))
	for _, pkg := range packages {
		locked[normalize(pkg.Name)] = true
	}

	incoming := make(map[string]bool)
	for _, pkg := range packages {
		for dep := range pkg.Dependencies {
			if to := normalize(dep); locked[to] && to != normalize(pkg.Name) {
				incoming[to] = true
			}
		}
	}

	// A lock file made of a single cycle has no roots; fall back to
	// every locked package.
	all := len(incoming) == len(locked)

	var specs []string
	seen := make(map[string]bool)
	for _, pkg := range packages {
		name := normalize(pkg.Name)
		if (incoming[name] && !all) || seen[name] {
			continue
		}
		seen[name] = true
		if pkg.Version == "" {
			specs = append(specs, name)
			continue
		}
		specs = append(specs, name+"=="+pkg.Version)
	}
	slices.Sort(specs)
	return specs
}
