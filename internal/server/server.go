// Package server is the protocol front of the language server: one jsonrpc2
// connection, a mirrored document store, and a FIFO queue that serializes
// every state-mutating operation. Handlers decode, enqueue, and reply; the
// lint pipeline itself runs on the queue's drain goroutine.
package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"eslintls/internal/engine"
	"eslintls/internal/fixes"
	"eslintls/internal/lint"
	"eslintls/internal/queue"
	"eslintls/internal/settings"
	"eslintls/internal/version"
)

const serverName = "eslintls"

// Queue kinds.
const (
	kindValidate     queue.Kind = "validate"
	kindConfigChange queue.Kind = "configuration-change"
	kindWatchedFiles queue.Kind = "watched-files-change"
	kindFormat       queue.Kind = "format"
	kindFixAll       queue.Kind = "fix-all"
)

type validatePayload struct {
	uri     string
	trigger settings.RunMode
}

type clientCaps struct {
	configuration     bool
	watchRegistration bool
	applyEdit         bool
}

// Server owns the connection and the shared lint state.
type Server struct {
	conn   jsonrpc2.Conn
	logger *zap.Logger

	documents *DocumentStore
	queue     *queue.Queue

	loader     *engine.Loader
	libs       *engine.Resolver
	resolver   *settings.Resolver
	registry   *lint.Registry
	meta       *lint.MetaCache
	invoker    *lint.Invoker
	classifier *lint.Classifier
	builder    *fixes.Builder

	watcher *configWatcher

	mu             sync.Mutex
	caps           clientCaps
	fallbackConfig settings.ConfigurationSettings
	workspaceRoot  string
}

// New wires the full pipeline. nodeBin overrides the node executable used
// for engine processes; empty means "node" from PATH.
func New(nodeBin string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger,
		documents: NewDocumentStore(),
		loader:    engine.NewLoader(nodeBin),
		registry:  lint.NewRegistry(),
		meta:      lint.NewMetaCache(),
	}

	disk, err := engine.OpenRootCache(serverName)
	if err != nil {
		logger.Warn("global root cache unavailable", zap.Error(err))
	}
	s.libs = engine.NewResolver(disk)

	s.resolver = settings.NewResolver(s.pullConfig, s.loader, s.libs, settings.Events{
		ProbeFailed: s.sendProbeFailed,
		NoLibrary:   s.sendNoLibrary,
	}, logger.Named("settings"))

	s.invoker = lint.NewInvoker(s.registry, s.meta, logger.Named("lint"))
	s.classifier = lint.NewClassifier(lint.ClassifierEvents{
		NoConfig:    s.sendNoConfig,
		ShowWarning: func(msg string) { s.showMessage(protocol.MessageTypeWarning, msg) },
		ShowInfo:    func(msg string) { s.showMessage(protocol.MessageTypeInfo, msg) },
		ShowError:   func(msg string) { s.showMessage(protocol.MessageTypeError, msg) },
		IsOpen:      s.documents.IsOpen,
	}, logger.Named("classify"))
	s.builder = fixes.NewBuilder(s.registry, s.meta, fixes.NewCommandRegistry(), logger.Named("fixes"))

	s.queue = queue.New(s.documents.Version, logger.Named("queue"))
	s.queue.OnNotification(kindValidate, s.handleValidate)
	s.queue.OnNotification(kindConfigChange, s.handleConfigChange)
	s.queue.OnNotification(kindWatchedFiles, s.handleWatchedFiles)
	s.queue.OnRequest(kindFormat, s.handleFormatRequest)
	s.queue.OnRequest(kindFixAll, s.handleFixAllRequest)
	return s
}

// RunStdio serves the connection over stdin/stdout until it closes.
func (s *Server) RunStdio(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := jsonrpc2.NewStream(stdioReadWriteCloser{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn

	go s.queue.Run(ctx)
	conn.Go(ctx, jsonrpc2.AsyncHandler(jsonrpc2.ReplyHandler(s.handle)))

	select {
	case <-ctx.Done():
		return conn.Close()
	case <-conn.Done():
		return conn.Err()
	}
}

type stdioReadWriteCloser struct{}

func (stdioReadWriteCloser) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriteCloser) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioReadWriteCloser) Close() error                { return nil }

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case protocol.MethodInitialize:
		return s.handleInitialize(ctx, reply, req)
	case protocol.MethodInitialized:
		s.afterInitialized(ctx)
		return reply(ctx, nil, nil)
	case protocol.MethodShutdown:
		return reply(ctx, nil, nil)
	case protocol.MethodExit:
		if s.watcher != nil {
			s.watcher.stop()
		}
		return s.conn.Close()
	case protocol.MethodSetTrace:
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidOpen:
		return s.handleDidOpen(ctx, reply, req)
	case protocol.MethodTextDocumentDidChange:
		return s.handleDidChange(ctx, reply, req)
	case protocol.MethodTextDocumentDidSave:
		return s.handleDidSave(ctx, reply, req)
	case protocol.MethodTextDocumentDidClose:
		return s.handleDidClose(ctx, reply, req)

	case protocol.MethodTextDocumentCodeAction:
		return s.handleCodeAction(ctx, reply, req)
	case protocol.MethodTextDocumentFormatting:
		return s.handleFormatting(ctx, reply, req)
	case protocol.MethodWorkspaceExecuteCommand:
		return s.handleExecuteCommand(ctx, reply, req)

	case protocol.MethodWorkspaceDidChangeConfiguration:
		return s.handleDidChangeConfiguration(ctx, reply, req)
	case protocol.MethodWorkspaceDidChangeWatchedFiles:
		s.queue.Enqueue(kindWatchedFiles, nil)
		return reply(ctx, nil, nil)
	case protocol.MethodWorkspaceDidChangeWorkspaceFolders:
		s.queue.Enqueue(kindConfigChange, nil)
		return reply(ctx, nil, nil)

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	root := ""
	if len(params.WorkspaceFolders) > 0 {
		root = filenameOf(params.WorkspaceFolders[0].URI)
	} else if params.RootURI != "" {
		root = filenameOf(string(params.RootURI))
	}
	s.mu.Lock()
	s.workspaceRoot = root
	s.caps = clientCaps{
		configuration:     params.Capabilities.Workspace != nil && params.Capabilities.Workspace.Configuration,
		watchRegistration: supportsWatchRegistration(params.Capabilities.Workspace),
		applyEdit:         params.Capabilities.Workspace != nil && params.Capabilities.Workspace.ApplyEdit,
	}
	s.mu.Unlock()
	if root != "" {
		s.resolver.SetWorkspaceRoot(root)
	}
	s.logger.Info("initialize",
		zap.String("client", clientName(params.ClientInfo)),
		zap.String("root", root))

	result := protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
				Save:      &protocol.SaveOptions{},
			},
			CodeActionProvider: &protocol.CodeActionOptions{
				CodeActionKinds: []protocol.CodeActionKind{
					protocol.QuickFix,
					fixes.KindSourceFixAll,
				},
			},
			DocumentFormattingProvider: true,
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{
					fixes.CommandApplySingleFix,
					fixes.CommandApplySuggestion,
					fixes.CommandApplySameFixes,
					fixes.CommandApplyAllFixes,
					fixes.CommandApplyDisableLine,
					fixes.CommandApplyDisableFile,
					fixes.CommandOpenRuleDoc,
				},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: version.Raw,
		},
	}
	return reply(ctx, result, nil)
}

func supportsWatchRegistration(w *protocol.WorkspaceClientCapabilities) bool {
	return w != nil && w.DidChangeWatchedFiles != nil && w.DidChangeWatchedFiles.DynamicRegistration
}

// afterInitialized registers config-file watching: through the client when it
// supports dynamic registration, through a local fsnotify watcher otherwise.
func (s *Server) afterInitialized(ctx context.Context) {
	s.mu.Lock()
	caps := s.caps
	root := s.workspaceRoot
	s.mu.Unlock()

	if caps.watchRegistration {
		s.registerConfigWatch(ctx)
		return
	}
	if root == "" {
		return
	}
	w, err := newConfigWatcher(root, func() { s.queue.Enqueue(kindWatchedFiles, nil) }, s.logger.Named("watch"))
	if err != nil {
		s.logger.Warn("config watcher unavailable", zap.Error(err))
		return
	}
	s.watcher = w
}

func (s *Server) registerConfigWatch(ctx context.Context) {
	type fileSystemWatcher struct {
		GlobPattern string `json:"globPattern"`
	}
	type watchOptions struct {
		Watchers []fileSystemWatcher `json:"watchers"`
	}
	type registration struct {
		ID              string      `json:"id"`
		Method          string      `json:"method"`
		RegisterOptions interface{} `json:"registerOptions"`
	}
	type registrationParams struct {
		Registrations []registration `json:"registrations"`
	}

	watchers := make([]fileSystemWatcher, 0, len(configFileGlobs))
	for _, glob := range configFileGlobs {
		watchers = append(watchers, fileSystemWatcher{GlobPattern: glob})
	}
	params := registrationParams{Registrations: []registration{{
		ID:              "eslintls-config-watch",
		Method:          string(protocol.MethodWorkspaceDidChangeWatchedFiles),
		RegisterOptions: watchOptions{Watchers: watchers},
	}}}
	var result any
	if _, err := s.conn.Call(ctx, "client/registerCapability", params, &result); err != nil {
		s.logger.Warn("watch registration refused", zap.Error(err))
	}
}

func (s *Server) handleDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	td := params.TextDocument
	docURI := string(td.URI)
	s.documents.Open(docURI, string(td.LanguageID), td.Version, td.Text)
	s.queue.EnqueueVersioned(kindValidate, validatePayload{uri: docURI, trigger: settings.RunOnType}, docURI, td.Version)
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	// Decoded into ContentChange instead of the protocol params type so a
	// missing range survives as nil.
	var params struct {
		TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
		ContentChanges []ContentChange                          `json:"contentChanges"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	docURI := string(params.TextDocument.URI)
	if !s.documents.ApplyChanges(docURI, params.TextDocument.Version, params.ContentChanges) {
		return reply(ctx, nil, nil)
	}
	s.queue.EnqueueVersioned(kindValidate, validatePayload{uri: docURI, trigger: settings.RunOnType}, docURI, params.TextDocument.Version)
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	docURI := string(params.TextDocument.URI)
	if doc, ok := s.documents.Get(docURI); ok {
		s.queue.EnqueueVersioned(kindValidate, validatePayload{uri: docURI, trigger: settings.RunOnSave}, docURI, doc.Version)
	}
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	docURI := string(params.TextDocument.URI)
	s.documents.Close(docURI)
	s.registry.Remove(docURI)
	s.resolver.Remove(docURI)
	s.builder.Pending().Drop(docURI)
	s.clearDiagnostics(docURI)
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidChangeConfiguration(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		Settings struct {
			ESLint json.RawMessage `json:"eslint"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	// Clients without configuration pulling push their settings here; keep
	// them as the fallback the resolver reads.
	if len(params.Settings.ESLint) > 0 {
		var cfg settings.ConfigurationSettings
		if err := json.Unmarshal(params.Settings.ESLint, &cfg); err == nil {
			s.mu.Lock()
			s.fallbackConfig = cfg
			s.mu.Unlock()
		}
	}
	s.queue.Enqueue(kindConfigChange, nil)
	return reply(ctx, nil, nil)
}

// pullConfig asks the client for the configuration scoped to a document.
func (s *Server) pullConfig(ctx context.Context, scopeURI string) (settings.ConfigurationSettings, error) {
	s.mu.Lock()
	supported := s.caps.configuration
	fallback := s.fallbackConfig
	s.mu.Unlock()
	if !supported {
		return fallback, nil
	}

	type configurationItem struct {
		ScopeURI string `json:"scopeUri,omitempty"`
		Section  string `json:"section,omitempty"`
	}
	params := struct {
		Items []configurationItem `json:"items"`
	}{Items: []configurationItem{{ScopeURI: scopeURI, Section: "eslint"}}}

	var result []json.RawMessage
	if _, err := s.conn.Call(ctx, "workspace/configuration", params, &result); err != nil {
		return settings.ConfigurationSettings{}, err
	}
	var cfg settings.ConfigurationSettings
	if len(result) > 0 && string(result[0]) != "null" {
		if err := json.Unmarshal(result[0], &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// handleValidate is the queued lint pass. The queue's staleness guard already
// checked the enqueued version against the live store.
func (s *Server) handleValidate(ctx context.Context, payload any) error {
	p := payload.(validatePayload)
	doc, ok := s.documents.Get(p.uri)
	if !ok {
		return nil
	}

	resolved, err := s.resolver.Resolve(ctx, settings.Document{URI: doc.URI, Path: doc.Path, LanguageID: doc.LanguageID})
	if err != nil {
		s.failValidation(doc, err)
		return err
	}
	return s.validateResolved(ctx, doc, resolved, p.trigger)
}

func (s *Server) validateResolved(ctx context.Context, doc Document, resolved *settings.TextDocumentSettings, trigger settings.RunMode) error {
	if trigger == settings.RunOnType && resolved.Run == settings.RunOnSave {
		return nil
	}

	start := time.Now()
	diagnostics, err := s.invoker.Validate(ctx, s.lintDocument(doc), resolved)
	if err != nil {
		s.failValidation(doc, err)
		return err
	}
	s.publishDiagnostics(doc, diagnostics)
	s.sendStatus(doc.URI, lint.StatusOK, time.Since(start).Milliseconds())
	return nil
}

// failValidation clears the previous pass's published diagnostics so stale
// squiggles never sit next to an error status.
func (s *Server) failValidation(doc Document, err error) {
	s.clearDiagnostics(doc.URI)
	s.sendStatus(doc.URI, s.classifier.Classify(doc.URI, doc.Path, err), 0)
}

// handleConfigChange drops every resolved snapshot and requeues validation
// for all open documents, one item each.
func (s *Server) handleConfigChange(context.Context, any) error {
	s.resolver.Clear()
	s.resolver.ResetHints()
	s.revalidateOpen()
	return nil
}

// handleWatchedFiles reacts to config-file changes on disk: loaded engines
// and rule metadata may be invalid, and previously surfaced configuration
// errors deserve a fresh chance.
func (s *Server) handleWatchedFiles(ctx context.Context, _ any) error {
	failing := s.classifier.FailingConfigs()
	s.resolver.Clear()
	s.loader.Clear()
	s.meta.Clear()
	s.classifier.Reset()
	s.retryFailingConfigs(ctx, failing)
	s.revalidateOpen()
	return nil
}

// retryFailingConfigs dry-runs each configuration that broke an earlier pass,
// using an open document under the config's directory. A config that parses
// again is dropped silently; one that still fails is classified under the
// fresh dedup state, so its warning reappears exactly once.
func (s *Server) retryFailingConfigs(ctx context.Context, configs []string) {
	for _, configPath := range configs {
		doc, ok := s.openDocumentUnder(filepath.Dir(configPath))
		if !ok {
			continue
		}
		resolved, err := s.resolveFor(ctx, doc)
		if err != nil || resolved.Engine == nil {
			continue
		}
		if _, err := resolved.Engine.CalculateConfigForFile(ctx, doc.Path, resolved.EngineOptions()); err != nil {
			s.classifier.Classify(doc.URI, doc.Path, err)
			continue
		}
		s.logger.Info("configuration recovered", zap.String("config", configPath))
	}
}

// openDocumentUnder returns one open document whose path sits inside dir.
func (s *Server) openDocumentUnder(dir string) (Document, bool) {
	for _, doc := range s.documents.All() {
		if doc.Path != "" && strings.HasPrefix(doc.Path, dir+string(filepath.Separator)) {
			return doc, true
		}
	}
	return Document{}, false
}

func (s *Server) revalidateOpen() {
	for _, doc := range s.documents.All() {
		s.queue.EnqueueVersioned(kindValidate, validatePayload{uri: doc.URI, trigger: settings.RunOnType}, doc.URI, doc.Version)
	}
}

func replyParseError(ctx context.Context, reply jsonrpc2.Replier, err error) error {
	return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.ParseError, "invalid params: %v", err))
}

func clientName(info *protocol.ClientInfo) string {
	if info == nil {
		return "unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}
