package fixes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.lsp.dev/protocol"

	"eslintls/internal/engine"
	"eslintls/internal/lint"
	"eslintls/internal/settings"
	"eslintls/internal/textpos"
)

// FixAllMode selects the fix-selection policy for a whole-document fix pass.
type FixAllMode int

const (
	// FixAllOnSave honors the save-time policy: the cached problem set in
	// "problems" mode, a fresh engine fix run in "all" mode.
	FixAllOnSave FixAllMode = iota
	// FixAllFormat is the formatting entry point, gated by the format
	// setting.
	FixAllFormat
	// FixAllCommand is the explicit user command; it always re-runs the
	// engine and never trusts cached problems.
	FixAllCommand
)

// FixAll computes the edits that bring doc into a fully fixed state.
func (b *Builder) FixAll(ctx context.Context, doc lint.Document, s *settings.TextDocumentSettings, mode FixAllMode) ([]protocol.TextEdit, error) {
	if s == nil || s.Engine == nil {
		return nil, nil
	}
	if mode == FixAllFormat && !s.Format {
		return nil, nil
	}
	if mode == FixAllOnSave {
		if !s.CodeActionOnSave.Enable {
			return nil, nil
		}
		if s.CodeActionOnSave.Mode == "problems" {
			return b.recordedEdits(doc), nil
		}
	}

	opts := s.EngineOptions()
	opts.Fix = true
	if mode == FixAllOnSave && len(s.CodeActionOnSave.Rules) > 0 {
		overrides, err := saveRulePartition(ctx, s.Engine, doc.Path, s.EngineOptions(), s.CodeActionOnSave.Rules)
		if err != nil {
			return nil, err
		}
		opts.RuleOverrides = overrides
	}

	result, err := s.Engine.LintText(ctx, doc.Content, doc.Path, opts)
	if err != nil {
		return nil, err
	}
	if result.Output == "" || result.Output == doc.Content {
		return nil, nil
	}
	return minimalEdits(doc.Content, result.Output), nil
}

// recordedEdits bundles the registry's fixable problems for the document's
// exact version into one overlap-free edit set.
func (b *Builder) recordedEdits(doc lint.Document) []protocol.TextEdit {
	var edits []engine.FixEdit
	for _, p := range b.registry.All(doc.URI) {
		if p.HasFix() && p.DocumentVersion == doc.Version {
			edits = append(edits, *p.Edit)
		}
	}
	if len(edits) == 0 {
		return nil
	}
	return toTextEdits(textpos.NewMapper(doc.Content), SelectNonOverlapping(edits))
}

// saveRulePartition asks the engine which rules are configured for the file
// and switches off every rule the save policy does not allow to be fixed.
func saveRulePartition(ctx context.Context, eng engine.Engine, path string, opts engine.LintOptions, allowed []string) (map[string]string, error) {
	raw, err := eng.CalculateConfigForFile(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Rules map[string]json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	overrides := make(map[string]string)
	for rule := range cfg.Rules {
		permitted := false
		for _, pattern := range allowed {
			if lint.RuleMatches(pattern, rule) {
				permitted = true
				break
			}
		}
		if !permitted {
			overrides[rule] = "off"
		}
	}
	return overrides, nil
}

// minimalEdits diffs the fixed output against the original body and emits
// only the changed line runs, in document order.
func minimalEdits(original, fixed string) []protocol.TextEdit {
	a := splitLines(original)
	b := splitLines(fixed)
	matcher := difflib.NewMatcher(a, b)

	var edits []protocol.TextEdit
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		edits = append(edits, protocol.TextEdit{
			Range: protocol.Range{
				Start: protocol.Position{Line: textpos.SafeUint32(op.I1)},
				End:   protocol.Position{Line: textpos.SafeUint32(op.I2)},
			},
			NewText: strings.Join(b[op.J1:op.J2], ""),
		})
	}
	return edits
}

// splitLines splits after every newline, keeping the terminators so joining
// a run reproduces the exact text.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
