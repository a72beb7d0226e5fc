package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// bridgeEngine is the subprocess-backed Engine. The api field is fixed at
// load time ("modern" for the ESLint class, "legacy" for CLIEngine) so
// downstream code never sees the difference.
type bridgeEngine struct {
	api     string
	path    string
	version string
	runner  bridgeRunner
}

func (e *bridgeEngine) Version() string { return e.version }
func (e *bridgeEngine) Path() string    { return e.path }

func (e *bridgeEngine) request(opts LintOptions) bridgeRequest {
	return bridgeRequest{
		API:        e.api,
		ModulePath: e.path,
		Rules:      opts.RuleOverrides,
		Options:    opts.Options,
	}
}

func (e *bridgeEngine) LintText(ctx context.Context, content, path string, opts LintOptions) (*Result, error) {
	req := e.request(opts)
	req.Method = "lint"
	req.Content = content
	req.Path = path
	req.Fix = opts.Fix
	raw, err := e.runner.run(ctx, opts.WorkingDir, req)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("engine: decode lint reply: %w", err)
	}
	return &result, nil
}

func (e *bridgeEngine) IsPathIgnored(ctx context.Context, path string, opts LintOptions) (bool, error) {
	req := e.request(opts)
	req.Method = "ignored"
	req.Path = path
	raw, err := e.runner.run(ctx, opts.WorkingDir, req)
	if err != nil {
		return false, err
	}
	var reply struct {
		Ignored bool `json:"ignored"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false, fmt.Errorf("engine: decode ignored reply: %w", err)
	}
	return reply.Ignored, nil
}

func (e *bridgeEngine) CalculateConfigForFile(ctx context.Context, path string, opts LintOptions) (json.RawMessage, error) {
	req := e.request(opts)
	req.Method = "config"
	req.Path = path
	raw, err := e.runner.run(ctx, opts.WorkingDir, req)
	if err != nil {
		return nil, err
	}
	var reply struct {
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("engine: decode config reply: %w", err)
	}
	return reply.Config, nil
}

// Loader loads engines and caches them by resolved package directory, so
// documents sharing a project share one Engine.
type Loader struct {
	mu      sync.Mutex
	engines map[string]Engine
	runner  bridgeRunner
}

// NewLoader constructs a loader using the given node binary (empty means
// "node" from PATH).
func NewLoader(nodeBin string) *Loader {
	return &Loader{
		engines: make(map[string]Engine),
		runner:  nodeRunner{nodeBin: nodeBin},
	}
}

// Load returns the Engine for the installation at pkgDir, probing its version
// on first use and selecting the API adapter once. workdir scopes the probe.
func (l *Loader) Load(ctx context.Context, pkgDir, workdir string) (Engine, error) {
	l.mu.Lock()
	if eng, ok := l.engines[pkgDir]; ok {
		l.mu.Unlock()
		return eng, nil
	}
	runner := l.runner
	l.mu.Unlock()

	eng, err := loadWithRunner(ctx, runner, pkgDir, workdir)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.engines[pkgDir]; ok {
		return cached, nil
	}
	l.engines[pkgDir] = eng
	return eng, nil
}

// Drop forgets the cached engine for pkgDir. Used when watched config files
// change, since plugins may have been installed or removed alongside.
func (l *Loader) Drop(pkgDir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.engines, pkgDir)
}

// Clear forgets every cached engine.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engines = make(map[string]Engine)
}

func loadWithRunner(ctx context.Context, runner bridgeRunner, pkgDir, workdir string) (Engine, error) {
	probe := &bridgeEngine{api: "modern", path: pkgDir, runner: runner}
	raw, err := runner.run(ctx, workdir, bridgeRequest{API: "modern", ModulePath: pkgDir, Method: "info"})
	if err != nil {
		// Installations old enough to predate the ESLint class only
		// answer on the legacy shape.
		legacyRaw, legacyErr := runner.run(ctx, workdir, bridgeRequest{API: "legacy", ModulePath: pkgDir, Method: "info"})
		if legacyErr != nil {
			return nil, err
		}
		probe.api = "legacy"
		raw = legacyRaw
	}
	var info struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("engine: decode info reply: %w", err)
	}
	probe.version = info.Version
	if probe.api == "modern" && apiForVersion(info.Version) == "legacy" {
		probe.api = "legacy"
	}
	return probe, nil
}

// apiForVersion picks the adapter for a reported version: the ESLint class
// exists since 7.0, everything older runs through the CLIEngine emulation.
func apiForVersion(version string) string {
	major := version
	if i := strings.IndexByte(major, '.'); i >= 0 {
		major = major[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return "modern"
	}
	if n < 7 {
		return "legacy"
	}
	return "modern"
}
