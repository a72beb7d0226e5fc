package server

import (
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"eslintls/internal/textpos"
)

// filenameOf maps a file URI to its filesystem path. Non-file schemes
// (untitled buffers) have no path.
func filenameOf(docURI string) string {
	if !strings.HasPrefix(docURI, "file://") {
		return ""
	}
	return uri.URI(docURI).Filename()
}

// Document is one open text document mirrored from the editor.
type Document struct {
	URI        string
	Path       string
	LanguageID string
	Version    int32
	Content    string
}

// DocumentStore tracks the open documents. It is safe for concurrent access;
// Get returns an immutable snapshot, never a live pointer.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*Document)}
}

// Open adds or replaces a document.
func (s *DocumentStore) Open(docURI, languageID string, version int32, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docURI] = &Document{
		URI:        docURI,
		Path:       filenameOf(docURI),
		LanguageID: languageID,
		Version:    version,
		Content:    content,
	}
}

// ContentChange is one edit from a didChange notification. The protocol
// package's change event carries a value-typed Range that cannot express
// "replace the whole document", so the wire shape is decoded into this type
// instead: a nil Range is a full replacement.
type ContentChange struct {
	Range *protocol.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

// ApplyChanges advances a document to a new version, splicing incremental
// changes in arrival order. A change without a range replaces the whole body.
func (s *DocumentStore) ApplyChanges(docURI string, version int32, changes []ContentChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docURI]
	if !ok {
		return false
	}
	content := doc.Content
	for _, change := range changes {
		if change.Range == nil {
			content = change.Text
			continue
		}
		content = textpos.ApplyChange(content, change.Range, change.Text)
	}
	doc.Content = content
	doc.Version = version
	return true
}

// Close removes a document.
func (s *DocumentStore) Close(docURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docURI)
}

// Get returns a snapshot of the document, or false when it is not open.
func (s *DocumentStore) Get(docURI string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docURI]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Version reports the live version for the staleness guard.
func (s *DocumentStore) Version(docURI string) (int32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docURI]
	if !ok {
		return 0, false
	}
	return doc.Version, true
}

// All returns snapshots of every open document.
func (s *DocumentStore) All() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	return out
}

// IsOpen reports whether any open document maps to the given filesystem path.
func (s *DocumentStore) IsOpen(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.Path == path {
			return true
		}
	}
	return false
}
