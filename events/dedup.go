package events

import lru "github.com/hashicorp/golang-lru/v2"

// signatureCache is a bounded cache of recently seen transaction signatures.
// Signatures are inserted once and only probed afterwards, so eviction is
// strictly oldest-first once capacity is reached.
type signatureCache struct {
	inner *lru.Cache[string, struct{}]
}

func newSignatureCache(capacity int) *signatureCache {
	inner, err := lru.New[string, struct{}](capacity)
	if err != nil {
		panic(err) // capacity is a positive constant
	}
	return &signatureCache{inner: inner}
}

// seen records signature and reports whether it was already present.
func (c *signatureCache) seen(signature string) bool {
	if c.inner.Contains(signature) {
		return true
	}
	c.inner.Add(signature, struct{}{})
	return false
}
