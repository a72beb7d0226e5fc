// Package settings materializes per-document configuration. Resolution is
// lazy and cached by document URI; everything expensive (library path
// resolution, engine loading, the probe decision) happens at most once per
// document until the cache is invalidated.
package settings

import (
	"encoding/json"

	"eslintls/internal/engine"
)

// Validate is the per-document validation mode.
type Validate string

const (
	ValidateOn    Validate = "on"
	ValidateOff   Validate = "off"
	ValidateProbe Validate = "probe"
)

// RunMode says when validation runs.
type RunMode string

const (
	RunOnType RunMode = "onType"
	RunOnSave RunMode = "onSave"
)

// IgnoredFilesMode is the policy for documents the engine's ignore rules exclude.
type IgnoredFilesMode string

const (
	IgnoredFilesOff   IgnoredFilesMode = "off"
	IgnoredFilesWarn  IgnoredFilesMode = "warn"
	IgnoredFilesError IgnoredFilesMode = "error"
)

// RuleCustomization overrides the engine-reported severity for matching rules.
// Rule may contain "*" wildcards.
type RuleCustomization struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
}

// CodeActionOnSave is the save-time fix policy.
type CodeActionOnSave struct {
	Enable bool   `json:"enable"`
	Mode   string `json:"mode"` // "all" or "problems"
	// Rules restricts which rules the save pass may fix; nil means all.
	Rules []string `json:"rules,omitempty"`
}

// DisableRuleComment configures the disable-comment quick fixes.
type DisableRuleComment struct {
	Enable       bool   `json:"enable"`
	Location     string `json:"location"`     // "separateLine" or "sameLine"
	CommentStyle string `json:"commentStyle"` // "line" or "block"
}

// CodeActionConfig groups the code-action toggles.
type CodeActionConfig struct {
	DisableRuleComment DisableRuleComment `json:"disableRuleComment"`
	ShowDocumentation  struct {
		Enable bool `json:"enable"`
	} `json:"showDocumentation"`
}

// ProblemsConfig shapes how reported problems are rendered.
type ProblemsConfig struct {
	// ShortenToSingleLine collapses multi-line diagnostic ranges to the end
	// of their first line.
	ShortenToSingleLine bool `json:"shortenToSingleLine"`
}

// WorkingDirectoryConfig selects how the engine's working directory is found.
// An explicit directory list wins over auto-detection.
type WorkingDirectoryConfig struct {
	Mode        string   `json:"mode"` // "auto" or "location"
	Directories []string `json:"directories,omitempty"`
}

// ConfigurationSettings is the editor-provided configuration for one scope,
// shaped after the recognized options of the integration.
type ConfigurationSettings struct {
	Validate            Validate                `json:"validate"`
	PackageManager      engine.PackageManager   `json:"packageManager"`
	Run                 RunMode                 `json:"run"`
	NodePath            string                  `json:"nodePath"`
	WorkingDirectory    *WorkingDirectoryConfig `json:"workingDirectory,omitempty"`
	Quiet               bool                    `json:"quiet"`
	OnIgnoredFiles      IgnoredFilesMode        `json:"onIgnoredFiles"`
	Options             json.RawMessage         `json:"options,omitempty"`
	RulesCustomizations []RuleCustomization     `json:"rulesCustomizations,omitempty"`
	// FixTypes restricts recorded autofixes to rules of the listed categories
	// ("problem", "suggestion", "layout", "directive"); nil means all.
	FixTypes         []string         `json:"fixTypes,omitempty"`
	CodeActionOnSave CodeActionOnSave `json:"codeActionOnSave"`
	CodeAction       CodeActionConfig `json:"codeAction"`
	Problems         ProblemsConfig   `json:"problems"`
	Format           bool             `json:"format"`
}

// withDefaults fills unset fields with the shipped defaults.
func (c ConfigurationSettings) withDefaults() ConfigurationSettings {
	if c.Validate == "" {
		c.Validate = ValidateProbe
	}
	if c.PackageManager == "" {
		c.PackageManager = engine.PackageManagerNpm
	}
	if c.Run == "" {
		c.Run = RunOnType
	}
	if c.OnIgnoredFiles == "" {
		c.OnIgnoredFiles = IgnoredFilesOff
	}
	if c.CodeActionOnSave.Mode == "" {
		c.CodeActionOnSave.Mode = "all"
	}
	if c.CodeAction.DisableRuleComment.Location == "" {
		c.CodeAction.DisableRuleComment.Location = "separateLine"
	}
	if c.CodeAction.DisableRuleComment.CommentStyle == "" {
		c.CodeAction.DisableRuleComment.CommentStyle = "line"
	}
	return c
}

// TextDocumentSettings is the resolved, cached snapshot for one document.
// Once Validate is off, no lint invocation happens for the document until the
// snapshot is invalidated.
type TextDocumentSettings struct {
	ConfigurationSettings

	// WorkingDir is the directory the engine resolves config relative to.
	WorkingDir string
	// LibraryPath is the resolved eslint package directory, empty when
	// resolution failed.
	LibraryPath string
	// Engine is the loaded engine, nil when Validate is off or the library
	// could not be resolved.
	Engine engine.Engine
}

// EngineOptions builds the invocation options this snapshot implies.
func (s *TextDocumentSettings) EngineOptions() engine.LintOptions {
	return engine.LintOptions{
		WorkingDir: s.WorkingDir,
		Options:    s.Options,
	}
}
