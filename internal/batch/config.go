package batch

import (
	"strings"
	"time"
)

// Fallbacks used when a rule leaves MaxSize or Timeout unset
const (
	DefaultMaxSize = 10
	DefaultTimeout = 50 * time.Millisecond
)

// DefaultRules returns the storefront read endpoints worth coalescing.
// Rule order matters: matching is first-pattern-wins substring containment,
// so more specific patterns must be listed before broader ones.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/products/search", BatchEndpoint: "/api/batch/search", MaxSize: 5, Timeout: 100 * time.Millisecond},
		{Pattern: "/products", BatchEndpoint: "/api/batch/products", MaxSize: 10, Timeout: 50 * time.Millisecond},
		{Pattern: "/categories", BatchEndpoint: "/api/batch/categories", MaxSize: 5, Timeout: 100 * time.Millisecond},
		{Pattern: "/reviews", BatchEndpoint: "/api/batch/reviews", MaxSize: 10, Timeout: 75 * time.Millisecond},
		{Pattern: "/wishlist", BatchEndpoint: "/api/batch/wishlist", MaxSize: 5, Timeout: 100 * time.Millisecond},
	}
}

// ruleFor resolves the first rule whose pattern is contained in the
// endpoint. The bool reports whether any rule matched.
func (b *Batcher) ruleFor(endpoint string) (Rule, bool) {
	for _, r := range b.rules {
		if containsPattern(endpoint, r.Pattern) {
			return r, true
		}
	}
	return Rule{}, false
}

func containsPattern(endpoint, pattern string) bool {
	return pattern != "" && strings.Contains(endpoint, pattern)
}

// IsBatchable reports whether any configured rule matches the endpoint
func (b *Batcher) IsBatchable(endpoint string) bool {
	_, ok := b.ruleFor(endpoint)
	return ok
}

// maxSize returns the effective size trigger for a rule
func (b *Batcher) maxSize(r Rule) int {
	if r.MaxSize > 0 {
		return r.MaxSize
	}
	return b.defaultMaxSize
}

// timeout returns the effective debounce window for a rule
func (b *Batcher) timeout(r Rule) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return b.defaultTimeout
}
