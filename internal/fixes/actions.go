package fixes

import (
	"context"
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"eslintls/internal/engine"
	"eslintls/internal/lint"
	"eslintls/internal/settings"
	"eslintls/internal/textpos"
)

// KindSourceFixAll is the action kind editors trigger for save-time fixing.
const KindSourceFixAll protocol.CodeActionKind = "source.fixAll.eslint"

// CommandArgs is the argument payload attached to every action command.
type CommandArgs struct {
	URI     string `json:"uri"`
	Version int32  `json:"version"`
	Key     string `json:"key,omitempty"`
	RuleID  string `json:"ruleId,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Builder synthesizes code actions from recorded problems.
type Builder struct {
	registry *lint.Registry
	meta     *lint.MetaCache
	pending  *CommandRegistry
	logger   *zap.Logger
}

// NewBuilder wires a builder to the shared problem state.
func NewBuilder(registry *lint.Registry, meta *lint.MetaCache, pending *CommandRegistry, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{registry: registry, meta: meta, pending: pending, logger: logger}
}

// Pending exposes the registry execute-command resolves prepared edits from.
func (b *Builder) Pending() *CommandRegistry { return b.pending }

// Request scopes one code-action computation.
type Request struct {
	Doc         lint.Document
	Settings    *settings.TextDocumentSettings
	Diagnostics []protocol.Diagnostic
	Only        []protocol.CodeActionKind
}

// Actions computes the actions available for the request. The save-time
// fix-all kind is a separate branch that computes its edit inline; quick
// fixes are served from the problem registry and prepare their edits in the
// pending-command registry for a later execute-command round trip.
func (b *Builder) Actions(ctx context.Context, req Request) ([]protocol.CodeAction, error) {
	if wantsKind(req.Only, KindSourceFixAll) && !wantsKind(req.Only, protocol.QuickFix) {
		return b.sourceFixAll(ctx, req)
	}
	if !wantsKind(req.Only, protocol.QuickFix) {
		return nil, nil
	}
	return b.quickFixes(req), nil
}

// sourceFixAll answers a save-scoped request with the full fix edit inline.
func (b *Builder) sourceFixAll(ctx context.Context, req Request) ([]protocol.CodeAction, error) {
	edits, err := b.FixAll(ctx, req.Doc, req.Settings, FixAllOnSave)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return nil, nil
	}
	edit := workspaceEdit(req.Doc.URI, edits)
	return []protocol.CodeAction{{
		Title: "Fix all auto-fixable problems",
		Kind:  KindSourceFixAll,
		Edit:  &edit,
	}}, nil
}

func (b *Builder) quickFixes(req Request) []protocol.CodeAction {
	doc, s := req.Doc, req.Settings
	b.pending.Begin(doc.URI, doc.Version)
	mapper := textpos.NewMapper(doc.Content)

	var (
		actions   []protocol.CodeAction
		seq       int
		seenRules = make(map[string]struct{})
		anyFix    bool
	)
	args := func(key, rule string) []interface{} {
		return []interface{}{CommandArgs{URI: doc.URI, Version: doc.Version, Key: key, RuleID: rule}}
	}

	for _, d := range req.Diagnostics {
		p, ok := b.registry.Lookup(doc.URI, d)
		if !ok || p.DocumentVersion != doc.Version {
			continue
		}

		if p.HasFix() {
			seq++
			key := commandKey(CommandApplySingleFix, p.RuleID, seq)
			b.pending.Put(doc.URI, key, workspaceEdit(doc.URI, toTextEdits(mapper, []engine.FixEdit{*p.Edit})))
			actions = append(actions, protocol.CodeAction{
				Title:       fmt.Sprintf("Fix this %s problem", p.RuleID),
				Kind:        protocol.QuickFix,
				Diagnostics: []protocol.Diagnostic{d},
				IsPreferred: true,
				Command: &protocol.Command{
					Title:     "Apply fix",
					Command:   CommandApplySingleFix,
					Arguments: args(key, p.RuleID),
				},
			})
		}

		for _, sg := range p.Suggestions {
			if sg.Fix == nil {
				continue
			}
			seq++
			key := commandKey(CommandApplySuggestion, p.RuleID, seq)
			b.pending.Put(doc.URI, key, workspaceEdit(doc.URI, toTextEdits(mapper, []engine.FixEdit{*sg.Fix})))
			actions = append(actions, protocol.CodeAction{
				Title:       sg.Desc,
				Kind:        protocol.QuickFix,
				Diagnostics: []protocol.Diagnostic{d},
				Command: &protocol.Command{
					Title:     "Apply suggestion",
					Command:   CommandApplySuggestion,
					Arguments: args(key, p.RuleID),
				},
			})
		}

		if p.RuleID == "" {
			continue
		}
		if _, seen := seenRules[p.RuleID]; seen {
			continue
		}
		seenRules[p.RuleID] = struct{}{}

		if s != nil && s.CodeAction.DisableRuleComment.Enable {
			actions = append(actions, b.disableActions(doc, mapper, d, p, s.CodeAction.DisableRuleComment, args)...)
		}
		if s != nil && s.CodeAction.ShowDocumentation.Enable {
			if url, ok := b.meta.DocURL(p.RuleID); ok {
				actions = append(actions, protocol.CodeAction{
					Title:       fmt.Sprintf("Show documentation for %s", p.RuleID),
					Kind:        protocol.QuickFix,
					Diagnostics: []protocol.Diagnostic{d},
					Command: &protocol.Command{
						Title:     "Open rule documentation",
						Command:   CommandOpenRuleDoc,
						Arguments: []interface{}{CommandArgs{URI: doc.URI, Version: doc.Version, RuleID: p.RuleID, URL: url}},
					},
				})
			}
		}
	}

	// Same-rule bundles draw from everything recorded for the document,
	// not only the diagnostics in scope.
	byRule := make(map[string][]engine.FixEdit)
	for _, p := range b.registry.All(doc.URI) {
		if p.DocumentVersion != doc.Version || !p.HasFix() {
			continue
		}
		anyFix = true
		if p.RuleID != "" {
			byRule[p.RuleID] = append(byRule[p.RuleID], *p.Edit)
		}
	}
	for rule := range seenRules {
		bundle := SelectNonOverlapping(byRule[rule])
		if len(bundle) < 2 {
			continue
		}
		key := commandKey(CommandApplySameFixes, rule, -1)
		b.pending.Put(doc.URI, key, workspaceEdit(doc.URI, toTextEdits(mapper, bundle)))
		actions = append(actions, protocol.CodeAction{
			Title: fmt.Sprintf("Fix all %s problems", rule),
			Kind:  protocol.QuickFix,
			Command: &protocol.Command{
				Title:     "Apply fixes",
				Command:   CommandApplySameFixes,
				Arguments: args(key, rule),
			},
		})
	}

	if anyFix {
		actions = append(actions, protocol.CodeAction{
			Title: "Fix all auto-fixable problems",
			Kind:  protocol.QuickFix,
			Command: &protocol.Command{
				Title:     "Fix all",
				Command:   CommandApplyAllFixes,
				Arguments: []interface{}{CommandArgs{URI: doc.URI, Version: doc.Version}},
			},
		})
	}
	return actions
}

func (b *Builder) disableActions(doc lint.Document, mapper *textpos.Mapper, d protocol.Diagnostic, p lint.Problem, cfg settings.DisableRuleComment, args func(key, rule string) []interface{}) []protocol.CodeAction {
	syn := syntaxFor(doc.LanguageID)

	lineKey := commandKey(CommandApplyDisableLine, p.RuleID, -1)
	b.pending.Put(doc.URI, lineKey, workspaceEdit(doc.URI, []protocol.TextEdit{disableLineEdit(mapper, p.RuleID, p.Line, cfg, syn)}))

	fileKey := commandKey(CommandApplyDisableFile, p.RuleID, -1)
	b.pending.Put(doc.URI, fileKey, workspaceEdit(doc.URI, []protocol.TextEdit{disableFileEdit(mapper, p.RuleID, syn)}))

	return []protocol.CodeAction{
		{
			Title:       fmt.Sprintf("Disable %s for this line", p.RuleID),
			Kind:        protocol.QuickFix,
			Diagnostics: []protocol.Diagnostic{d},
			Command: &protocol.Command{
				Title:     "Disable rule for line",
				Command:   CommandApplyDisableLine,
				Arguments: args(lineKey, p.RuleID),
			},
		},
		{
			Title:       fmt.Sprintf("Disable %s for the entire file", p.RuleID),
			Kind:        protocol.QuickFix,
			Diagnostics: []protocol.Diagnostic{d},
			Command: &protocol.Command{
				Title:     "Disable rule for file",
				Command:   CommandApplyDisableFile,
				Arguments: args(fileKey, p.RuleID),
			},
		},
	}
}

// wantsKind reports whether the client's kind filter admits kind. An empty
// filter admits everything.
func wantsKind(only []protocol.CodeActionKind, kind protocol.CodeActionKind) bool {
	if len(only) == 0 {
		return true
	}
	for _, k := range only {
		if k == kind || strings.HasPrefix(string(kind), string(k)+".") {
			return true
		}
	}
	return false
}

func workspaceEdit(docURI string, edits []protocol.TextEdit) protocol.WorkspaceEdit {
	return protocol.WorkspaceEdit{
		Changes: map[uri.URI][]protocol.TextEdit{uri.URI(docURI): edits},
	}
}
