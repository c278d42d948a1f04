package python

import (
	"github.com/matzehuels/stackaudit/pkg/deps"
	"github.com/matzehuels/stackaudit/pkg/integrations"
)

// Manifests returns the manifest parsers for Python projects.
func Manifests() []deps.ManifestParser {
	return []deps.ManifestParser{&Requirements{}, &PoetryLock{}}
}

// ReadSpecs reads root specs from a requirements file or poetry.lock.
func ReadSpecs(path string) ([]string, error) {
	return deps.ReadManifest(path, Manifests()...)
}

func normalize(name string) string {
	return integrations.NormalizePkgName(name)
}
