package cache

// ScopedKeyer prefixes every key produced by an inner [Keyer]. The server
// uses it to keep its entries apart from other users of a shared redis.
//
//	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "pathmap:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// A nil inner keyer falls back to [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// TileKey implements [Keyer].
func (k *ScopedKeyer) TileKey(source string, z, x, y int) string {
	return k.prefix + k.inner.TileKey(source, z, x, y)
}

// TokenKey implements [Keyer].
func (k *ScopedKeyer) TokenKey(source string) string {
	return k.prefix + k.inner.TokenKey(source)
}
