package cache

// ScopedKeyer wraps a Keyer with a prefix so several deployments (or a
// test run) can share one Redis or SQLite cache without colliding.
//
//	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ResolveKey generates a prefixed key for a resolved spec.
func (k *ScopedKeyer) ResolveKey(backend, spec string) string {
	return k.prefix + k.inner.ResolveKey(backend, spec)
}

// VulnKey generates a prefixed key for vulnerability IDs.
func (k *ScopedKeyer) VulnKey(name, version string) string {
	return k.prefix + k.inner.VulnKey(name, version)
}

// VulnDetailKey generates a prefixed key for a vulnerability record.
func (k *ScopedKeyer) VulnDetailKey(id string) string {
	return k.prefix + k.inner.VulnDetailKey(id)
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}
