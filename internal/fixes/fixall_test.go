package fixes

import (
	"context"
	"encoding/json"
	"testing"

	"go.lsp.dev/protocol"

	"eslintls/internal/engine"
	"eslintls/internal/lint"
	"eslintls/internal/settings"
)

type fixEngine struct {
	output   string
	config   json.RawMessage
	lastOpts engine.LintOptions
}

func (f *fixEngine) LintText(_ context.Context, content, _ string, opts engine.LintOptions) (*engine.Result, error) {
	f.lastOpts = opts
	return &engine.Result{Output: f.output}, nil
}

func (f *fixEngine) IsPathIgnored(context.Context, string, engine.LintOptions) (bool, error) {
	return false, nil
}

func (f *fixEngine) CalculateConfigForFile(context.Context, string, engine.LintOptions) (json.RawMessage, error) {
	return f.config, nil
}

func (f *fixEngine) Version() string { return "9.0.0" }
func (f *fixEngine) Path() string    { return "/fake/node_modules/eslint" }

func newTestBuilder() (*Builder, *lint.Registry) {
	reg := lint.NewRegistry()
	return NewBuilder(reg, lint.NewMetaCache(), NewCommandRegistry(), nil), reg
}

func fixSettings(fe engine.Engine, cfg settings.ConfigurationSettings) *settings.TextDocumentSettings {
	cfg.Validate = settings.ValidateOn
	return &settings.TextDocumentSettings{ConfigurationSettings: cfg, Engine: fe}
}

func recordProblems(reg *lint.Registry, uri string, version int32, problems ...lint.Problem) {
	for i := range problems {
		problems[i].DocumentVersion = version
	}
	reg.Replace(uri, problems)
}

func problemAt(rule string, line uint32, fix *engine.FixEdit) lint.Problem {
	return lint.Problem{
		RuleID: rule,
		Line:   int(line) + 1,
		Diagnostic: protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: 0},
				End:   protocol.Position{Line: line, Character: 3},
			},
			Code:    rule,
			Message: rule + " problem",
			Source:  "eslint",
		},
		Edit: fix,
	}
}

func TestFixAllProblemsModeUsesRegistry(t *testing.T) {
	b, reg := newTestBuilder()
	doc := lint.Document{URI: "file:///p/a.js", Path: "/p/a.js", Version: 3, Content: "var x = 1;\nvar y = 2;\n"}
	recordProblems(reg, doc.URI, 3,
		problemAt("no-var", 0, &engine.FixEdit{Range: [2]int{0, 3}, Text: "let"}),
		problemAt("no-var", 1, &engine.FixEdit{Range: [2]int{11, 14}, Text: "let"}),
	)
	s := fixSettings(&fixEngine{}, settings.ConfigurationSettings{
		CodeActionOnSave: settings.CodeActionOnSave{Enable: true, Mode: "problems"},
	})

	edits, err := b.FixAll(context.Background(), doc, s, FixAllOnSave)
	if err != nil {
		t.Fatalf("FixAll: %v", err)
	}
	if len(edits) != 2 {
		t.Fatalf("got %d edits, want 2: %+v", len(edits), edits)
	}
	if edits[0].NewText != "let" || edits[1].NewText != "let" {
		t.Errorf("edits = %+v", edits)
	}
}

func TestFixAllProblemsModeRejectsStaleVersion(t *testing.T) {
	b, reg := newTestBuilder()
	doc := lint.Document{URI: "file:///p/a.js", Path: "/p/a.js", Version: 4, Content: "var x = 1;\n"}
	recordProblems(reg, doc.URI, 3, problemAt("no-var", 0, &engine.FixEdit{Range: [2]int{0, 3}, Text: "let"}))
	s := fixSettings(&fixEngine{}, settings.ConfigurationSettings{
		CodeActionOnSave: settings.CodeActionOnSave{Enable: true, Mode: "problems"},
	})

	edits, err := b.FixAll(context.Background(), doc, s, FixAllOnSave)
	if err != nil {
		t.Fatalf("FixAll: %v", err)
	}
	if len(edits) != 0 {
		t.Fatalf("got %d edits for a stale snapshot, want 0", len(edits))
	}
}

func TestFixAllCommandModeRunsEngine(t *testing.T) {
	fe := &fixEngine{output: "let x = 1;\n"}
	b, _ := newTestBuilder()
	doc := lint.Document{URI: "file:///p/a.js", Path: "/p/a.js", Version: 1, Content: "var x = 1;\n"}

	edits, err := b.FixAll(context.Background(), doc, fixSettings(fe, settings.ConfigurationSettings{}), FixAllCommand)
	if err != nil {
		t.Fatalf("FixAll: %v", err)
	}
	if !fe.lastOpts.Fix {
		t.Error("engine not invoked in fix mode")
	}
	if len(edits) != 1 || edits[0].NewText != "let x = 1;\n" {
		t.Fatalf("edits = %+v", edits)
	}
}

func TestFixAllFormatGate(t *testing.T) {
	fe := &fixEngine{output: "let x = 1;\n"}
	b, _ := newTestBuilder()
	doc := lint.Document{URI: "file:///p/a.js", Path: "/p/a.js", Version: 1, Content: "var x = 1;\n"}

	edits, err := b.FixAll(context.Background(), doc, fixSettings(fe, settings.ConfigurationSettings{}), FixAllFormat)
	if err != nil || len(edits) != 0 {
		t.Fatalf("formatting disabled: edits=%v err=%v", edits, err)
	}

	edits, err = b.FixAll(context.Background(), doc, fixSettings(fe, settings.ConfigurationSettings{Format: true}), FixAllFormat)
	if err != nil || len(edits) != 1 {
		t.Fatalf("formatting enabled: edits=%v err=%v", edits, err)
	}
}

func TestFixAllSaveRulePartition(t *testing.T) {
	fe := &fixEngine{
		output: "fixed\n",
		config: json.RawMessage(`{"rules":{"no-console":[2],"semi":[2],"no-var":[1]}}`),
	}
	b, _ := newTestBuilder()
	doc := lint.Document{URI: "file:///p/a.js", Path: "/p/a.js", Version: 1, Content: "orig\n"}
	s := fixSettings(fe, settings.ConfigurationSettings{
		CodeActionOnSave: settings.CodeActionOnSave{Enable: true, Mode: "all", Rules: []string{"semi", "no-*"}},
	})

	if _, err := b.FixAll(context.Background(), doc, s, FixAllOnSave); err != nil {
		t.Fatalf("FixAll: %v", err)
	}
	overrides := fe.lastOpts.RuleOverrides
	if len(overrides) != 0 {
		// semi matches "semi", no-console and no-var match "no-*".
		t.Fatalf("overrides = %v, want none", overrides)
	}

	s.CodeActionOnSave.Rules = []string{"semi"}
	if _, err := b.FixAll(context.Background(), doc, s, FixAllOnSave); err != nil {
		t.Fatalf("FixAll: %v", err)
	}
	overrides = fe.lastOpts.RuleOverrides
	if overrides["no-console"] != "off" || overrides["no-var"] != "off" {
		t.Errorf("overrides = %v, want no-console and no-var off", overrides)
	}
	if _, ok := overrides["semi"]; ok {
		t.Errorf("semi suppressed: %v", overrides)
	}
}

func TestCommandRegistryVersionTag(t *testing.T) {
	r := NewCommandRegistry()
	r.Begin("file:///p/a.js", 2)
	edit := workspaceEdit("file:///p/a.js", []protocol.TextEdit{{NewText: "x"}})
	r.Put("file:///p/a.js", "k", edit)

	if _, ok := r.Resolve("k", "file:///p/a.js", 2); !ok {
		t.Fatal("matching tag refused")
	}
	if _, ok := r.Resolve("k", "file:///p/a.js", 3); ok {
		t.Fatal("stale version honored")
	}
	if _, ok := r.Resolve("k", "file:///p/b.js", 2); ok {
		t.Fatal("wrong document honored")
	}

	r.Begin("file:///p/a.js", 3)
	if _, ok := r.Resolve("k", "file:///p/a.js", 3); ok {
		t.Fatal("entry survived a new computation")
	}
}

func TestCommandRegistryKeepsOtherDocuments(t *testing.T) {
	r := NewCommandRegistry()
	edit := workspaceEdit("file:///p/a.js", []protocol.TextEdit{{NewText: "x"}})

	r.Begin("file:///p/a.js", 1)
	r.Put("file:///p/a.js", "k", edit)
	r.Begin("file:///p/b.js", 1)
	r.Put("file:///p/b.js", "k", edit)

	// A computation for one document leaves another document's actions alive.
	if _, ok := r.Resolve("k", "file:///p/a.js", 1); !ok {
		t.Fatal("entry for a.js lost after computing b.js")
	}
	if _, ok := r.Resolve("k", "file:///p/b.js", 1); !ok {
		t.Fatal("entry for b.js missing")
	}

	r.Drop("file:///p/a.js")
	if _, ok := r.Resolve("k", "file:///p/a.js", 1); ok {
		t.Fatal("dropped document still resolvable")
	}
	if _, ok := r.Resolve("k", "file:///p/b.js", 1); !ok {
		t.Fatal("drop of a.js removed b.js entries")
	}
}
