package lint

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"eslintls/internal/engine"
)

// Status is the health signal the editor chrome shows for a document.
type Status string

const (
	StatusOK    Status = "ok"
	StatusWarn  Status = "warn"
	StatusError Status = "error"
)

// ClassifierEvents are the editor-facing surfaces a classified failure is
// routed to. Nil callbacks are skipped.
type ClassifierEvents struct {
	// NoConfig tells the client a document has no lint configuration.
	NoConfig    func(uri, message string)
	ShowWarning func(message string)
	ShowInfo    func(message string)
	ShowError   func(message string)
	// IsOpen reports whether the file at path is open in the editor. An
	// open broken config file is already being shown to the user, so no
	// popup is raised over it.
	IsOpen func(path string) bool
}

var (
	reNoConfig      = regexp.MustCompile(`No ESLint configuration found|Could not find config file`)
	reConfigError   = regexp.MustCompile(`Cannot read config file:\s*(.+)`)
	reMissingPlugin = regexp.MustCompile(`Failed to load plugin '([^']+)'.*Cannot find module '([^']+)'`)
)

// Classifier sorts engine invocation failures into expected configuration
// states versus genuine faults, and deduplicates what it surfaces. The first
// matching pattern wins; unmatched failures are reported as errors verbatim.
type Classifier struct {
	mu             sync.Mutex
	noConfigShown  map[string]struct{} // by document URI
	configErrors   map[string]struct{} // by config file path
	missingPlugins map[string]struct{} // by plugin name

	events ClassifierEvents
	logger *zap.Logger
}

// NewClassifier constructs a classifier routing to events.
func NewClassifier(events ClassifierEvents, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		noConfigShown:  make(map[string]struct{}),
		configErrors:   make(map[string]struct{}),
		missingPlugins: make(map[string]struct{}),
		events:         events,
		logger:         logger,
	}
}

// Classify routes one validation failure for the document at uri/path and
// returns the health status the failure implies: warn for expected
// configuration states, error for genuine faults.
func (c *Classifier) Classify(uri, path string, err error) Status {
	var runErr *engine.RunError
	if !errors.As(err, &runErr) {
		c.surfaceError(fmt.Sprintf("ESLint: %v", err))
		return StatusError
	}
	stderr := runErr.Stderr

	switch {
	case reNoConfig.MatchString(stderr):
		c.mu.Lock()
		_, shown := c.noConfigShown[uri]
		c.noConfigShown[uri] = struct{}{}
		c.mu.Unlock()
		if shown {
			return StatusWarn
		}
		msg := fmt.Sprintf("No ESLint configuration found for %s.", filepath.Base(path))
		c.logger.Info("no lint configuration", zap.String("uri", uri))
		if c.events.NoConfig != nil {
			c.events.NoConfig(uri, msg)
		}
		return StatusWarn

	case reConfigError.MatchString(stderr):
		configPath := strings.TrimSpace(reConfigError.FindStringSubmatch(stderr)[1])
		// The engine prints the offending path followed by the parse
		// error detail; keep only the path for deduplication.
		if i := strings.IndexAny(configPath, "\r\n"); i >= 0 {
			configPath = strings.TrimSpace(configPath[:i])
		}
		c.mu.Lock()
		_, shown := c.configErrors[configPath]
		c.configErrors[configPath] = struct{}{}
		c.mu.Unlock()
		if shown {
			return StatusWarn
		}
		msg := fmt.Sprintf("ESLint cannot read its configuration file %s. Validation is suspended until the file parses again.", configPath)
		c.logger.Warn("broken lint configuration", zap.String("config", configPath))
		if c.events.ShowWarning != nil {
			c.events.ShowWarning(msg)
		}
		// A popup on top of the file the user is currently editing is
		// noise; the warning above is enough.
		if c.events.IsOpen != nil && c.events.IsOpen(configPath) {
			return StatusWarn
		}
		if c.events.ShowInfo != nil {
			c.events.ShowInfo(msg)
		}
		return StatusWarn

	case reMissingPlugin.MatchString(stderr):
		groups := reMissingPlugin.FindStringSubmatch(stderr)
		plugin, module := groups[1], groups[2]
		c.mu.Lock()
		_, shown := c.missingPlugins[plugin]
		c.missingPlugins[plugin] = struct{}{}
		c.mu.Unlock()
		if shown {
			return StatusWarn
		}
		c.logger.Warn("missing lint plugin",
			zap.String("plugin", plugin),
			zap.String("module", module),
			zap.String("hint", missingPluginHint(plugin, module)))
		if c.events.ShowWarning != nil {
			c.events.ShowWarning(fmt.Sprintf("ESLint failed to load the plugin %q: the module %q is not installed. Check the server log for remediation steps.", plugin, module))
		}
		return StatusWarn

	default:
		c.surfaceError(firstStderrLine(stderr, err))
		return StatusError
	}
}

// missingPluginHint renders the remediation text logged when a plugin module
// cannot be resolved. The two causes need different fixes, so both are named.
func missingPluginHint(plugin, module string) string {
	return strings.Join([]string{
		fmt.Sprintf("ESLint failed to load the plugin %q because the module %q could not be resolved. This usually means one of:", plugin, module),
		fmt.Sprintf("- the plugin name is misspelled in the ESLint configuration, so no package named %q exists, or", module),
		fmt.Sprintf("- %q is not installed in the package manager scope the resolved ESLint library runs under. A globally installed ESLint resolves globally installed packages only; a workspace-local ESLint needs the plugin in the workspace's node_modules.", module),
	}, "\n")
}

func (c *Classifier) surfaceError(msg string) {
	c.logger.Error("validation failed", zap.String("detail", msg))
	if c.events.ShowError != nil {
		c.events.ShowError(msg)
	}
}

// FailingConfigs lists the configuration file paths recorded as broken since
// the last Reset, in stable order.
func (c *Classifier) FailingConfigs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.configErrors))
	for path := range c.configErrors {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Reset forgets everything already surfaced. Called when watched configuration
// files change, so a fixed config followed by a re-broken one is reported
// again.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noConfigShown = make(map[string]struct{})
	c.configErrors = make(map[string]struct{})
	c.missingPlugins = make(map[string]struct{})
}

func firstStderrLine(stderr string, err error) string {
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return "ESLint: " + line
		}
	}
	return fmt.Sprintf("ESLint: %v", err)
}
