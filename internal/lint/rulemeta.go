package lint

import (
	"sync"

	"eslintls/internal/engine"
)

// MetaCache accumulates rule metadata introspected from the engine after each
// lint run. Metadata is assumed static once a rule definition is loaded, so
// entries are first-write-wins; the cache is cleared when watched config
// files change, since plugins and their rules may have changed with them.
type MetaCache struct {
	mu     sync.Mutex
	byRule map[string]engine.RuleMeta
}

// NewMetaCache constructs an empty cache.
func NewMetaCache() *MetaCache {
	return &MetaCache{byRule: make(map[string]engine.RuleMeta)}
}

// Merge records metadata for rules not yet known.
func (c *MetaCache) Merge(meta map[string]engine.RuleMeta) {
	if len(meta) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for rule, m := range meta {
		if _, known := c.byRule[rule]; !known {
			c.byRule[rule] = m
		}
	}
}

// DocURL returns the documentation URL for a rule, if known.
func (c *MetaCache) DocURL(rule string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byRule[rule]
	if !ok || m.Docs.URL == "" {
		return "", false
	}
	return m.Docs.URL, true
}

// Type returns the rule category ("problem", "suggestion", "layout"), if known.
func (c *MetaCache) Type(rule string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byRule[rule]
	if !ok || m.Type == "" {
		return "", false
	}
	return m.Type, true
}

// Clear empties the cache.
func (c *MetaCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byRule = make(map[string]engine.RuleMeta)
}
