// Package lint turns engine output into protocol diagnostics and keeps the
// per-document record of fixable problems those diagnostics came from.
package lint

import (
	"fmt"
	"hash/fnv"
	"sync"

	"go.lsp.dev/protocol"

	"eslintls/internal/engine"
)

// Problem is one engine-reported issue bound to the exact document version it
// was computed against. A fix derived from a problem must never be applied
// once the live document has moved past DocumentVersion.
type Problem struct {
	Label           string
	DocumentVersion int32
	RuleID          string
	// Line is the 1-based source line, used for disable-comment insertion.
	Line        int
	Diagnostic  protocol.Diagnostic
	Edit        *engine.FixEdit
	Suggestions []engine.Suggestion
}

// HasFix reports whether the problem carries an autofix edit.
func (p Problem) HasFix() bool { return p.Edit != nil }

// Key derives the diagnostic identity a problem is registered under: range,
// rule id, and a hash of the message text. The hash disambiguates several
// same-rule issues on one range with different messages.
func Key(d protocol.Diagnostic) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(d.Message))
	code := ""
	if s, ok := d.Code.(string); ok {
		code = s
	}
	return fmt.Sprintf("[%d,%d,%d,%d]-%s-%x",
		d.Range.Start.Line, d.Range.Start.Character,
		d.Range.End.Line, d.Range.End.Character,
		code, h.Sum32())
}

// Registry maps document URIs to their recorded problems, keyed by diagnostic
// identity. Every successful lint pass replaces a document's entry wholesale.
type Registry struct {
	mu    sync.Mutex
	byURI map[string]map[string]Problem
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byURI: make(map[string]map[string]Problem)}
}

// Replace discards all recorded problems for uri and installs the new set.
func (r *Registry) Replace(uri string, problems []Problem) {
	entry := make(map[string]Problem, len(problems))
	for _, p := range problems {
		entry[Key(p.Diagnostic)] = p
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byURI[uri] = entry
}

// Remove drops every problem recorded for uri.
func (r *Registry) Remove(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byURI, uri)
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byURI = make(map[string]map[string]Problem)
}

// Lookup finds the problem a diagnostic came from.
func (r *Registry) Lookup(uri string, d protocol.Diagnostic) (Problem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byURI[uri][Key(d)]
	return p, ok
}

// All returns a copy of every problem recorded for uri.
func (r *Registry) All(uri string) []Problem {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.byURI[uri]
	out := make([]Problem, 0, len(entry))
	for _, p := range entry {
		out = append(out, p)
	}
	return out
}
