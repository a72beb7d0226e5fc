package lint

import (
	"context"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"eslintls/internal/engine"
	"eslintls/internal/settings"
	"eslintls/internal/textpos"
)

const diagnosticSource = "eslint"

// Document is the snapshot a validation pass runs against.
type Document struct {
	URI        string
	Path       string
	LanguageID string
	Version    int32
	Content    string
}

// Invoker runs lint passes and converts engine messages into diagnostics.
type Invoker struct {
	registry *Registry
	meta     *MetaCache
	logger   *zap.Logger
}

// NewInvoker wires an invoker to the shared problem registry and metadata cache.
func NewInvoker(registry *Registry, meta *MetaCache, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{registry: registry, meta: meta, logger: logger}
}

// Validate lints one document snapshot and returns the diagnostics to publish.
// Recorded problems for the document are dropped before the engine runs, so a
// failed pass never leaves fixes derived from outdated output behind. The
// returned slice is non-nil on success; publishing it clears stale
// diagnostics on the editor side.
func (v *Invoker) Validate(ctx context.Context, doc Document, s *settings.TextDocumentSettings) ([]protocol.Diagnostic, error) {
	v.registry.Remove(doc.URI)
	if s == nil || s.Engine == nil || s.Validate == settings.ValidateOff {
		return []protocol.Diagnostic{}, nil
	}
	opts := s.EngineOptions()

	ignored, err := s.Engine.IsPathIgnored(ctx, doc.Path, opts)
	if err != nil {
		return nil, err
	}
	if ignored {
		return v.ignoredFileDiagnostics(doc, s), nil
	}

	result, err := s.Engine.LintText(ctx, doc.Content, doc.Path, opts)
	if err != nil {
		return nil, err
	}
	v.meta.Merge(result.RulesMeta)

	diagnostics := make([]protocol.Diagnostic, 0, len(result.Messages))
	problems := make([]Problem, 0, len(result.Messages))
	for _, m := range result.Messages {
		d := v.toDiagnostic(m, s)
		severity, dropped := overrideSeverity(d.Severity, m.RuleID, s.RulesCustomizations)
		d.Severity = severity
		if s.Quiet && severity != protocol.DiagnosticSeverityError {
			continue
		}
		p := Problem{
			Label:           m.Message,
			DocumentVersion: doc.Version,
			RuleID:          m.RuleID,
			Line:            m.Line,
			Diagnostic:      d,
			Edit:            m.Fix,
			Suggestions:     m.Suggestions,
		}
		if p.HasFix() && !v.fixTypeAllowed(m.RuleID, s.FixTypes) {
			// The diagnostic stays; only the autofix is withheld.
			p.Edit = nil
		}
		if dropped {
			// The rule is silenced for reporting, but a fix it carries is
			// still worth applying during a fix-all pass.
			if p.HasFix() {
				problems = append(problems, p)
			}
			continue
		}
		diagnostics = append(diagnostics, d)
		problems = append(problems, p)
	}
	v.registry.Replace(doc.URI, problems)
	v.logger.Debug("validated document",
		zap.String("uri", doc.URI),
		zap.Int32("version", doc.Version),
		zap.Int("diagnostics", len(diagnostics)))
	return diagnostics, nil
}

// fixTypeAllowed checks a rule's category against the configured fix-type
// filter. An empty filter allows everything; a rule with unknown category is
// withheld when a filter is set.
func (v *Invoker) fixTypeAllowed(ruleID string, fixTypes []string) bool {
	if len(fixTypes) == 0 {
		return true
	}
	category, ok := v.meta.Type(ruleID)
	if !ok {
		return false
	}
	for _, t := range fixTypes {
		if t == category {
			return true
		}
	}
	return false
}

// toDiagnostic converts one engine message from 1-based engine coordinates.
func (v *Invoker) toDiagnostic(m engine.Message, s *settings.TextDocumentSettings) protocol.Diagnostic {
	start := protocol.Position{
		Line:      textpos.SafeUint32(m.Line - 1),
		Character: textpos.SafeUint32(m.Column - 1),
	}
	end := start
	if m.EndLine > 0 {
		end = protocol.Position{
			Line:      textpos.SafeUint32(m.EndLine - 1),
			Character: textpos.SafeUint32(m.EndColumn - 1),
		}
	}
	if s.Problems.ShortenToSingleLine && end.Line > start.Line {
		end = protocol.Position{Line: start.Line, Character: textpos.SafeUint32(int(start.Character) + 1)}
	}
	d := protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: mapSeverity(m.Severity),
		Message:  m.Message,
		Source:   diagnosticSource,
	}
	if m.RuleID != "" {
		d.Code = m.RuleID
		if url, ok := v.meta.DocURL(m.RuleID); ok {
			d.CodeDescription = &protocol.CodeDescription{Href: protocol.URI(url)}
		}
	}
	return d
}

// ignoredFileDiagnostics renders the configured policy for an ignored file.
func (v *Invoker) ignoredFileDiagnostics(doc Document, s *settings.TextDocumentSettings) []protocol.Diagnostic {
	if s.OnIgnoredFiles == settings.IgnoredFilesOff {
		return []protocol.Diagnostic{}
	}
	severity := protocol.DiagnosticSeverityWarning
	if s.OnIgnoredFiles == settings.IgnoredFilesError {
		severity = protocol.DiagnosticSeverityError
	}
	return []protocol.Diagnostic{{
		Range:    protocol.Range{},
		Severity: severity,
		Message:  "File ignored because of a matching ignore pattern. Adjust the ignore configuration or the onIgnoredFiles setting to validate it.",
		Source:   diagnosticSource,
	}}
}
