package fixes

import (
	"fmt"
	"sync"

	"go.lsp.dev/protocol"
)

// Commands the server advertises; code actions reference prepared edits in
// the pending registry through them.
const (
	CommandApplySingleFix   = "eslint.applySingleFix"
	CommandApplySuggestion  = "eslint.applySuggestion"
	CommandApplySameFixes   = "eslint.applySameFixes"
	CommandApplyAllFixes    = "eslint.applyAllFixes"
	CommandApplyDisableLine = "eslint.applyDisableLine"
	CommandApplyDisableFile = "eslint.applyDisableFile"
	CommandOpenRuleDoc      = "eslint.openRuleDoc"
)

// commandKey builds the composite identity an action's prepared edit is
// registered under.
func commandKey(command, rule string, seq int) string {
	if seq < 0 {
		return command + ":" + rule
	}
	return fmt.Sprintf("%s:%s:%d", command, rule, seq)
}

type pendingEdits struct {
	version int32
	entries map[string]protocol.WorkspaceEdit
}

// CommandRegistry holds the workspace edits prepared during the latest
// code-action computation, keyed per document. Each document's entries are
// tagged with the version they were built against; a computation for a newer
// snapshot of the same document replaces them, and an execute-command request
// for a stale version is refused. Computations for other documents are
// unaffected.
type CommandRegistry struct {
	mu        sync.Mutex
	documents map[string]*pendingEdits
}

// NewCommandRegistry constructs an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{documents: make(map[string]*pendingEdits)}
}

// Begin starts a computation for one document snapshot, discarding whatever
// the previous computation for that document prepared.
func (r *CommandRegistry) Begin(uri string, version int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[uri] = &pendingEdits{version: version, entries: make(map[string]protocol.WorkspaceEdit)}
}

// Put registers a prepared edit under key for the snapshot Begin declared.
func (r *CommandRegistry) Put(uri, key string, edit protocol.WorkspaceEdit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.documents[uri]; ok {
		doc.entries[key] = edit
	}
}

// Resolve returns the prepared edit for key, but only while the live document
// still matches the snapshot it was computed for.
func (r *CommandRegistry) Resolve(key, uri string, version int32) (protocol.WorkspaceEdit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[uri]
	if !ok || version != doc.version {
		return protocol.WorkspaceEdit{}, false
	}
	edit, ok := doc.entries[key]
	return edit, ok
}

// Drop forgets everything prepared for uri. Called when the document closes.
func (r *CommandRegistry) Drop(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.documents, uri)
}
