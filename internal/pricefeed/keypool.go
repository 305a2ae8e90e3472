package pricefeed

import (
	"strings"
	"sync"

	"github.com/atmx/signal-monitor/internal/metrics"
)

// KeyPool is the rotating set of provider API keys. The current key stays
// in use until the provider rejects it; a rejected key is removed for the
// life of the pool and rotation moves on to the next one. The pool only
// ever shrinks.
type KeyPool struct {
	mu       sync.Mutex
	keys     []string
	idx      int
	excluded map[string]struct{}
}

// NewKeyPool builds a pool from keys, dropping blanks and duplicates while
// keeping the configured order.
func NewKeyPool(keys []string) *KeyPool {
	p := &KeyPool{excluded: make(map[string]struct{})}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		p.keys = append(p.keys, k)
	}
	metrics.APIKeysAvailable.Set(float64(len(p.keys)))
	return p
}

// ParseKeys splits a comma-separated CRYPTO_API_KEYS value.
func ParseKeys(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Current returns the key to use for the next request.
func (p *KeyPool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", ErrNoAPIKeys
	}
	if p.idx >= len(p.keys) {
		p.idx = 0
	}
	return p.keys[p.idx], nil
}

// Exclude permanently removes key from rotation. Removing the current key
// makes the following key current. Returns false if key was not in the pool.
func (p *KeyPool) Exclude(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, k := range p.keys {
		if k != key {
			continue
		}
		p.keys = append(p.keys[:i], p.keys[i+1:]...)
		p.excluded[key] = struct{}{}
		if i < p.idx {
			p.idx--
		}
		if p.idx >= len(p.keys) {
			p.idx = 0
		}
		metrics.APIKeysExcluded.Inc()
		metrics.APIKeysAvailable.Set(float64(len(p.keys)))
		return true
	}
	return false
}

// Len returns the number of keys still in rotation.
func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Excluded reports whether key has been removed from rotation.
func (p *KeyPool) Excluded(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.excluded[key]
	return ok
}
