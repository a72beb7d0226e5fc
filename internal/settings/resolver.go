package settings

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"eslintls/internal/engine"
)

// Document is the slice of document identity the resolver needs.
type Document struct {
	URI        string
	Path       string
	LanguageID string
}

// ConfigFunc pulls the editor configuration for a scope URI.
type ConfigFunc func(ctx context.Context, scopeURI string) (ConfigurationSettings, error)

// Events are the resolver's outbound notifications. Either may be nil.
type Events struct {
	// ProbeFailed tells the editor to stop forwarding sync events for the URI.
	ProbeFailed func(uri string)
	// NoLibrary shows the one-time missing-library hint for the URI.
	NoLibrary func(uri string)
}

// Resolver materializes TextDocumentSettings, memoized by document URI.
// Concurrent resolutions of the same URI share one in-flight computation.
type Resolver struct {
	mu             sync.Mutex
	cache          map[string]*TextDocumentSettings
	noLibraryShown map[string]struct{}
	workspaceRoot  string
	manifest       *Manifest

	group  singleflight.Group
	config ConfigFunc
	loader *engine.Loader
	libs   *engine.Resolver
	events Events
	logger *zap.Logger
}

// NewResolver constructs a resolver.
func NewResolver(config ConfigFunc, loader *engine.Loader, libs *engine.Resolver, events Events, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cache:          make(map[string]*TextDocumentSettings),
		noLibraryShown: make(map[string]struct{}),
		config:         config,
		loader:         loader,
		libs:           libs,
		events:         events,
		logger:         logger,
	}
}

// SetWorkspaceRoot records the workspace root and loads its defaults
// manifest, if present.
func (r *Resolver) SetWorkspaceRoot(root string) {
	manifest, ok, err := LoadManifest(root)
	if err != nil {
		r.logger.Warn("workspace manifest unreadable", zap.String("root", root), zap.Error(err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaceRoot = root
	if ok {
		r.manifest = manifest
	} else {
		r.manifest = nil
	}
}

// Resolve returns the settings snapshot for a document, computing it on first
// use. The returned snapshot is shared; callers must not mutate it.
func (r *Resolver) Resolve(ctx context.Context, doc Document) (*TextDocumentSettings, error) {
	r.mu.Lock()
	if cached, ok := r.cache[doc.URI]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(doc.URI, func() (any, error) {
		r.mu.Lock()
		if cached, ok := r.cache[doc.URI]; ok {
			r.mu.Unlock()
			return cached, nil
		}
		r.mu.Unlock()

		resolved, err := r.resolve(ctx, doc)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[doc.URI] = resolved
		r.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TextDocumentSettings), nil
}

// Remove drops the cached snapshot for one document.
func (r *Resolver) Remove(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, uri)
}

// Clear drops every cached snapshot. Called on configuration and workspace
// changes.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*TextDocumentSettings)
}

// ResetHints forgets which scopes already got the missing-library hint. Called
// on watched-file changes, since an install may have fixed the situation.
func (r *Resolver) ResetHints() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noLibraryShown = make(map[string]struct{})
}

func (r *Resolver) resolve(ctx context.Context, doc Document) (*TextDocumentSettings, error) {
	cfg, err := r.config(ctx, doc.URI)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	manifest := r.manifest
	workspaceRoot := r.workspaceRoot
	r.mu.Unlock()
	manifest.ApplyTo(&cfg)
	cfg = cfg.withDefaults()

	resolved := &TextDocumentSettings{ConfigurationSettings: cfg}
	if cfg.Validate == ValidateOff {
		// Cheap path: no library resolution, no working directory work.
		return resolved, nil
	}

	resolved.WorkingDir = WorkingDirectory(doc.Path, workspaceRoot, cfg.WorkingDirectory)

	libPath, err := r.libs.Resolve(ctx, doc.Path, cfg.NodePath, cfg.PackageManager)
	if err != nil {
		if !errors.Is(err, engine.ErrNotFound) {
			r.logger.Warn("library resolution failed", zap.String("uri", doc.URI), zap.Error(err))
		}
		return r.withoutLibrary(resolved, doc, workspaceRoot), nil
	}
	resolved.LibraryPath = libPath

	eng, err := r.loader.Load(ctx, libPath, resolved.WorkingDir)
	if err != nil {
		r.logger.Warn("engine load failed",
			zap.String("uri", doc.URI), zap.String("library", libPath), zap.Error(err))
		return r.withoutLibrary(resolved, doc, workspaceRoot), nil
	}
	resolved.Engine = eng

	if cfg.Validate == ValidateProbe {
		if r.probe(ctx, doc, resolved) {
			resolved.Validate = ValidateOn
		} else {
			resolved.Validate = ValidateOff
			resolved.Engine = nil
			if r.events.ProbeFailed != nil {
				r.events.ProbeFailed(doc.URI)
			}
		}
	}
	return resolved, nil
}

// withoutLibrary pins validation off and emits the deduplicated hint.
func (r *Resolver) withoutLibrary(resolved *TextDocumentSettings, doc Document, workspaceRoot string) *TextDocumentSettings {
	resolved.Validate = ValidateOff
	resolved.Engine = nil

	scope := workspaceRoot
	if scope == "" {
		scope = doc.URI
	}
	r.mu.Lock()
	_, shown := r.noLibraryShown[scope]
	if !shown {
		r.noLibraryShown[scope] = struct{}{}
	}
	r.mu.Unlock()
	if !shown && r.events.NoLibrary != nil {
		r.events.NoLibrary(doc.URI)
	}
	return resolved
}

func (r *Resolver) probe(ctx context.Context, doc Document, resolved *TextDocumentSettings) bool {
	if _, ambiguous := probeTable[doc.LanguageID]; !ambiguous {
		return true
	}
	config, err := resolved.Engine.CalculateConfigForFile(ctx, doc.Path, resolved.EngineOptions())
	if err != nil {
		r.logger.Debug("probe config calculation failed",
			zap.String("uri", doc.URI), zap.Error(err))
		return false
	}
	return ProbeMatches(doc.LanguageID, config)
}
