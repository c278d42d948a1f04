package cache

import "strings"

// Keyer builds namespaced cache keys.
type Keyer interface {
	// ResolveKey identifies one resolved root spec for a resolver backend.
	ResolveKey(backend, spec string) string
	// VulnKey identifies the vulnerability IDs affecting name@version.
	VulnKey(name, version string) string
	// VulnDetailKey identifies the full record of one vulnerability.
	VulnDetailKey(id string) string
	// HTTPKey identifies a cached API response.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer produces "kind:sha256" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ResolveKey hashes the backend name and the lower-cased, trimmed spec.
func (DefaultKeyer) ResolveKey(backend, spec string) string {
	return "resolve:" + GenerateKey(backend, "pkg:"+strings.ToLower(strings.TrimSpace(spec)))
}

// VulnKey hashes the package coordinates.
func (DefaultKeyer) VulnKey(name, version string) string {
	return hashKey("vuln", strings.ToLower(name), version)
}

// VulnDetailKey keys a vulnerability by its (case-sensitive) ID.
func (DefaultKeyer) VulnDetailKey(id string) string {
	return "vulndetail:" + id
}

// HTTPKey concatenates the namespace and key; both are caller-controlled.
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
