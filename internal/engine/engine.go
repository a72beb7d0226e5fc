// Package engine wraps an external ESLint installation behind a narrow
// capability interface. The server never talks to ESLint directly; it talks
// to an Engine, and the Engine runs the library inside a short-lived node
// child process. Locating the library on disk is the resolver's job, loading
// and API-shape selection is the loader's.
package engine

import (
	"context"
	"encoding/json"
)

// Engine is the capability surface the lint pipeline depends on. Exactly one
// implementation is selected per resolved installation at load time; callers
// never branch on the underlying API shape.
type Engine interface {
	// LintText lints content as if it were the file at path.
	LintText(ctx context.Context, content, path string, opts LintOptions) (*Result, error)
	// IsPathIgnored reports whether the installation's ignore rules exclude path.
	IsPathIgnored(ctx context.Context, path string, opts LintOptions) (bool, error)
	// CalculateConfigForFile returns the effective configuration for path.
	CalculateConfigForFile(ctx context.Context, path string, opts LintOptions) (json.RawMessage, error)

	// Version is the installation's reported semantic version.
	Version() string
	// Path is the resolved package directory the engine was loaded from.
	Path() string
}

// LintOptions carries per-invocation knobs down to the engine process.
type LintOptions struct {
	// WorkingDir is the directory config and plugin resolution happens
	// relative to. Empty means the server process directory.
	WorkingDir string
	// Fix enables the engine's native autofix pass; Result.Output then
	// holds the fully fixed text.
	Fix bool
	// RuleOverrides maps rule ids to a severity override ("off" suppresses
	// a rule for this pass). Used for the save-scoped rule partition.
	RuleOverrides map[string]string
	// Options is the user's engine-passthrough blob from the editor
	// configuration; forwarded verbatim.
	Options json.RawMessage
}

// Result is one lint pass over one document.
type Result struct {
	Messages []Message `json:"messages"`
	// Output is the fixed document text, present only for fix runs that
	// changed something.
	Output string `json:"output,omitempty"`
	// RulesMeta carries introspected metadata for every rule that fired.
	RulesMeta map[string]RuleMeta `json:"rulesMeta,omitempty"`
}

// Message is one engine-reported problem, in the engine's own coordinates:
// 1-based lines and columns, byte-offset fix ranges.
type Message struct {
	RuleID      string       `json:"ruleId"`
	Severity    int          `json:"severity"`
	Message     string       `json:"message"`
	Line        int          `json:"line"`
	Column      int          `json:"column"`
	EndLine     int          `json:"endLine,omitempty"`
	EndColumn   int          `json:"endColumn,omitempty"`
	Fix         *FixEdit     `json:"fix,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// FixEdit is a byte-offset splice into the document body.
type FixEdit struct {
	Range [2]int `json:"range"`
	Text  string `json:"text"`
}

// Suggestion is an alternative, user-picked remediation for a problem.
type Suggestion struct {
	Desc string   `json:"desc"`
	Fix  *FixEdit `json:"fix,omitempty"`
}

// RuleMeta is the static metadata the engine exposes per rule.
type RuleMeta struct {
	Type string `json:"type,omitempty"`
	Docs struct {
		URL string `json:"url,omitempty"`
	} `json:"docs"`
}
