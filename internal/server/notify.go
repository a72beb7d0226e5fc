package server

import (
	"context"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"eslintls/internal/lint"
)

// Custom methods the server exchanges with its editor client beyond the
// standard protocol surface.
const (
	methodStatus      = "eslint/status"
	methodProbeFailed = "eslint/probeFailed"
	methodNoConfig    = "eslint/noConfig"
	methodNoLibrary   = "eslint/noLibrary"
	methodOpenDoc     = "eslint/openDoc"
)

type textDocumentRef struct {
	URI string `json:"uri"`
}

type statusParams struct {
	URI   string      `json:"uri"`
	State lint.Status `json:"state"`
	// ValidationTime is the duration of the last lint pass in milliseconds,
	// present only for successful passes.
	ValidationTime int64 `json:"validationTime,omitempty"`
}

type noConfigParams struct {
	Message  string          `json:"message"`
	Document textDocumentRef `json:"document"`
}

type probeFailedParams struct {
	TextDocument textDocumentRef `json:"textDocument"`
}

type openDocParams struct {
	URL string `json:"url"`
}

func (s *Server) notify(method string, params any) {
	if err := s.conn.Notify(context.Background(), method, params); err != nil {
		s.logger.Warn("notification failed", zap.String("method", method), zap.Error(err))
	}
}

func (s *Server) sendStatus(docURI string, state lint.Status, validationTime int64) {
	s.notify(methodStatus, statusParams{URI: docURI, State: state, ValidationTime: validationTime})
}

func (s *Server) sendProbeFailed(docURI string) {
	s.notify(methodProbeFailed, probeFailedParams{TextDocument: textDocumentRef{URI: docURI}})
}

func (s *Server) sendNoConfig(docURI, message string) {
	s.notify(methodNoConfig, noConfigParams{Message: message, Document: textDocumentRef{URI: docURI}})
}

func (s *Server) sendNoLibrary(docURI string) {
	s.notify(methodNoLibrary, probeFailedParams{TextDocument: textDocumentRef{URI: docURI}})
}

func (s *Server) showMessage(kind protocol.MessageType, message string) {
	s.notify(protocol.MethodWindowShowMessage, protocol.ShowMessageParams{Type: kind, Message: message})
}

// openRuleDoc asks the client to open a rule's documentation page.
func (s *Server) openRuleDoc(ctx context.Context, url string) {
	var result any
	if _, err := s.conn.Call(ctx, methodOpenDoc, openDocParams{URL: url}, &result); err != nil {
		s.logger.Warn("open documentation request failed", zap.Error(err))
	}
}

func (s *Server) publishDiagnostics(doc Document, diagnostics []protocol.Diagnostic) {
	s.notify(protocol.MethodTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(doc.URI),
		Version:     uint32(doc.Version),
		Diagnostics: diagnostics,
	})
}

func (s *Server) clearDiagnostics(docURI string) {
	s.notify(protocol.MethodTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(docURI),
		Diagnostics: []protocol.Diagnostic{},
	})
}
