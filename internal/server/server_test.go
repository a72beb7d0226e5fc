package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"eslintls/internal/engine"
	"eslintls/internal/lint"
	"eslintls/internal/settings"
)

type sentNotification struct {
	method string
	params interface{}
}

// recordingConn captures outbound traffic instead of writing to a stream.
type recordingConn struct {
	mu            sync.Mutex
	notifications []sentNotification
}

func (c *recordingConn) Call(_ context.Context, _ string, _, _ interface{}) (jsonrpc2.ID, error) {
	return jsonrpc2.ID{}, nil
}

func (c *recordingConn) Notify(_ context.Context, method string, params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, sentNotification{method: method, params: params})
	return nil
}

func (c *recordingConn) Go(context.Context, jsonrpc2.Handler) {}
func (c *recordingConn) Close() error                         { return nil }
func (c *recordingConn) Done() <-chan struct{}                { return nil }
func (c *recordingConn) Err() error                           { return nil }

func (c *recordingConn) sent(method string) []sentNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentNotification
	for _, n := range c.notifications {
		if n.method == method {
			out = append(out, n)
		}
	}
	return out
}

type stubEngine struct {
	result *engine.Result
	err    error
}

func (e *stubEngine) LintText(context.Context, string, string, engine.LintOptions) (*engine.Result, error) {
	return e.result, e.err
}

func (e *stubEngine) IsPathIgnored(context.Context, string, engine.LintOptions) (bool, error) {
	return false, nil
}

func (e *stubEngine) CalculateConfigForFile(context.Context, string, engine.LintOptions) (json.RawMessage, error) {
	return nil, nil
}

func (e *stubEngine) Version() string { return "9.0.0" }
func (e *stubEngine) Path() string    { return "/p/node_modules/eslint" }

func newTestServer() (*Server, *recordingConn) {
	s := New("", nil)
	conn := &recordingConn{}
	s.conn = conn
	return s, conn
}

func resolvedWith(e engine.Engine) *settings.TextDocumentSettings {
	return &settings.TextDocumentSettings{
		ConfigurationSettings: settings.ConfigurationSettings{Validate: settings.ValidateOn},
		Engine:                e,
	}
}

func TestValidateResolvedPublishesDiagnostics(t *testing.T) {
	s, conn := newTestServer()
	s.documents.Open("file:///p/a.js", "javascript", 3, "console.log(1)\n")
	doc, _ := s.documents.Get("file:///p/a.js")

	eng := &stubEngine{result: &engine.Result{Messages: []engine.Message{
		{RuleID: "semi", Severity: 2, Message: "Missing semicolon.", Line: 1, Column: 15},
	}}}
	if err := s.validateResolved(context.Background(), doc, resolvedWith(eng), settings.RunOnType); err != nil {
		t.Fatalf("validateResolved: %v", err)
	}

	published := conn.sent(protocol.MethodTextDocumentPublishDiagnostics)
	if len(published) != 1 {
		t.Fatalf("published %d times, want 1", len(published))
	}
	params := published[0].params.(protocol.PublishDiagnosticsParams)
	if len(params.Diagnostics) != 1 || params.Version != 3 {
		t.Fatalf("params = %+v", params)
	}
	statuses := conn.sent(methodStatus)
	if len(statuses) != 1 || statuses[0].params.(statusParams).State != lint.StatusOK {
		t.Fatalf("statuses = %+v", statuses)
	}
}

func TestFailedValidationClearsPublishedDiagnostics(t *testing.T) {
	s, conn := newTestServer()
	s.documents.Open("file:///p/a.js", "javascript", 1, "console.log(1)\n")
	doc, _ := s.documents.Get("file:///p/a.js")

	// First pass succeeds and leaves a diagnostic on the client.
	good := &stubEngine{result: &engine.Result{Messages: []engine.Message{
		{RuleID: "semi", Severity: 2, Message: "Missing semicolon.", Line: 1, Column: 15},
	}}}
	if err := s.validateResolved(context.Background(), doc, resolvedWith(good), settings.RunOnType); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	bad := &stubEngine{err: &engine.RunError{Op: "lint", ExitCode: 2, Stderr: "TypeError: boom"}}
	if err := s.validateResolved(context.Background(), doc, resolvedWith(bad), settings.RunOnType); err == nil {
		t.Fatal("expected the failing pass to return an error")
	}

	published := conn.sent(protocol.MethodTextDocumentPublishDiagnostics)
	if len(published) != 2 {
		t.Fatalf("published %d times, want 2 (success, then the clearing publish)", len(published))
	}
	cleared := published[1].params.(protocol.PublishDiagnosticsParams)
	if len(cleared.Diagnostics) != 0 {
		t.Fatalf("failed pass left %d stale diagnostics published", len(cleared.Diagnostics))
	}
	statuses := conn.sent(methodStatus)
	if len(statuses) != 2 || statuses[1].params.(statusParams).State != lint.StatusError {
		t.Fatalf("statuses = %+v", statuses)
	}
}

func TestOnTypeTriggerSkippedInOnSaveMode(t *testing.T) {
	s, conn := newTestServer()
	s.documents.Open("file:///p/a.js", "javascript", 1, "x\n")
	doc, _ := s.documents.Get("file:///p/a.js")

	resolved := resolvedWith(&stubEngine{result: &engine.Result{}})
	resolved.Run = settings.RunOnSave
	if err := s.validateResolved(context.Background(), doc, resolved, settings.RunOnType); err != nil {
		t.Fatalf("validateResolved: %v", err)
	}
	if got := conn.sent(protocol.MethodTextDocumentPublishDiagnostics); len(got) != 0 {
		t.Fatalf("typing published %d times in onSave mode", len(got))
	}
	if err := s.validateResolved(context.Background(), doc, resolved, settings.RunOnSave); err != nil {
		t.Fatalf("save trigger: %v", err)
	}
	if got := conn.sent(protocol.MethodTextDocumentPublishDiagnostics); len(got) != 1 {
		t.Fatalf("save published %d times, want 1", len(got))
	}
}

func TestOpenDocumentUnder(t *testing.T) {
	s, _ := newTestServer()
	s.documents.Open("file:///work/app/src/a.js", "javascript", 1, "")
	s.documents.Open("file:///other/b.js", "javascript", 1, "")

	doc, ok := s.openDocumentUnder("/work/app")
	if !ok || doc.URI != "file:///work/app/src/a.js" {
		t.Fatalf("openDocumentUnder = %+v, %v", doc, ok)
	}
	if _, ok := s.openDocumentUnder("/work/application"); ok {
		t.Fatal("prefix match leaked across the directory boundary")
	}
}
