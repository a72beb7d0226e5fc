package server

import (
	"context"
	"encoding/json"
	"fmt"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"eslintls/internal/fixes"
	"eslintls/internal/lint"
	"eslintls/internal/settings"
)

const staleFixMessage = "ESLint fixes are outdated and can't be applied to the document."

func (s *Server) lintDocument(doc Document) lint.Document {
	return lint.Document{URI: doc.URI, Path: doc.Path, LanguageID: doc.LanguageID, Version: doc.Version, Content: doc.Content}
}

func (s *Server) resolveFor(ctx context.Context, doc Document) (*settings.TextDocumentSettings, error) {
	return s.resolver.Resolve(ctx, settings.Document{URI: doc.URI, Path: doc.Path, LanguageID: doc.LanguageID})
}

// handleCodeAction serves quick fixes straight from the problem registry.
// It is read-mostly and intentionally bypasses the queue.
func (s *Server) handleCodeAction(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CodeActionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	doc, ok := s.documents.Get(string(params.TextDocument.URI))
	if !ok {
		return reply(ctx, nil, nil)
	}
	resolved, err := s.resolveFor(ctx, doc)
	if err != nil {
		return reply(ctx, nil, nil)
	}

	actions, err := s.builder.Actions(ctx, fixes.Request{
		Doc:         s.lintDocument(doc),
		Settings:    resolved,
		Diagnostics: params.Context.Diagnostics,
		Only:        params.Context.Only,
	})
	if err != nil {
		s.logger.Warn("code action computation failed", zap.String("uri", doc.URI), zap.Error(err))
		return reply(ctx, nil, nil)
	}
	if len(actions) == 0 {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, actions, nil)
}

// handleFormatting runs the format-gated fix pass through the queue so it
// serializes with validation.
func (s *Server) handleFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	docURI := string(params.TextDocument.URI)
	doc, ok := s.documents.Get(docURI)
	if !ok {
		return reply(ctx, nil, nil)
	}
	result, err := s.queue.EnqueueRequest(ctx, kindFormat, docURI, docURI, doc.Version)
	if err != nil {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, result, nil)
}

func (s *Server) handleFormatRequest(ctx context.Context, payload any) (any, error) {
	return s.fixAllEdits(ctx, payload.(string), fixes.FixAllFormat)
}

func (s *Server) handleFixAllRequest(ctx context.Context, payload any) (any, error) {
	return s.fixAllEdits(ctx, payload.(string), fixes.FixAllCommand)
}

func (s *Server) fixAllEdits(ctx context.Context, docURI string, mode fixes.FixAllMode) ([]protocol.TextEdit, error) {
	doc, ok := s.documents.Get(docURI)
	if !ok {
		return nil, nil
	}
	resolved, err := s.resolveFor(ctx, doc)
	if err != nil {
		return nil, err
	}
	return s.builder.FixAll(ctx, s.lintDocument(doc), resolved, mode)
}

func (s *Server) handleExecuteCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		Command   string            `json:"command"`
		Arguments []json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}
	var args fixes.CommandArgs
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments[0], &args); err != nil {
			return replyParseError(ctx, reply, err)
		}
	}

	switch params.Command {
	case fixes.CommandOpenRuleDoc:
		if args.URL != "" {
			s.openRuleDoc(ctx, args.URL)
		}
		return reply(ctx, nil, nil)

	case fixes.CommandApplyAllFixes:
		doc, ok := s.documents.Get(args.URI)
		if !ok {
			return reply(ctx, nil, nil)
		}
		result, err := s.queue.EnqueueRequest(ctx, kindFixAll, args.URI, args.URI, doc.Version)
		if err != nil {
			s.logger.Warn("fix-all failed", zap.String("uri", args.URI), zap.Error(err))
			return reply(ctx, nil, nil)
		}
		edits, _ := result.([]protocol.TextEdit)
		if len(edits) > 0 {
			s.applyEdit(ctx, workspaceEditFor(args.URI, edits))
		}
		return reply(ctx, nil, nil)

	case fixes.CommandApplySingleFix, fixes.CommandApplySuggestion,
		fixes.CommandApplySameFixes, fixes.CommandApplyDisableLine,
		fixes.CommandApplyDisableFile:
		live, ok := s.documents.Version(args.URI)
		if !ok {
			return reply(ctx, nil, nil)
		}
		edit, ok := s.builder.Pending().Resolve(args.Key, args.URI, live)
		if !ok {
			s.showMessage(protocol.MessageTypeWarning, staleFixMessage)
			return reply(ctx, nil, nil)
		}
		s.applyEdit(ctx, edit)
		return reply(ctx, nil, nil)

	default:
		return reply(ctx, nil, fmt.Errorf("unknown command %q", params.Command))
	}
}

func workspaceEditFor(docURI string, edits []protocol.TextEdit) protocol.WorkspaceEdit {
	return protocol.WorkspaceEdit{
		Changes: map[uri.URI][]protocol.TextEdit{uri.URI(docURI): edits},
	}
}

func (s *Server) applyEdit(ctx context.Context, edit protocol.WorkspaceEdit) {
	s.mu.Lock()
	supported := s.caps.applyEdit
	s.mu.Unlock()
	if !supported {
		s.logger.Warn("client does not support workspace/applyEdit")
		return
	}
	var result protocol.ApplyWorkspaceEditResponse
	if _, err := s.conn.Call(ctx, "workspace/applyEdit", protocol.ApplyWorkspaceEditParams{Edit: edit}, &result); err != nil {
		s.logger.Warn("applyEdit failed", zap.Error(err))
		return
	}
	if !result.Applied {
		s.logger.Warn("client refused workspace edit", zap.String("reason", result.FailureReason))
	}
}
