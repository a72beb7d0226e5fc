package fixes

import (
	"regexp"
	"strings"

	"go.lsp.dev/protocol"

	"eslintls/internal/settings"
	"eslintls/internal/textpos"
)

var reIndent = regexp.MustCompile(`^[ \t]*`)

// commentSyntax is the set of comment tokens disable directives are written
// with for one language. Directive regexes are compiled from the quoted
// tokens, so tokens carrying regex metacharacters still match literally, and
// matching stays case-sensitive.
type commentSyntax struct {
	line       string
	blockStart string
	blockEnd   string

	nextLine  *regexp.Regexp
	nextBlock *regexp.Regexp
	sameLine  *regexp.Regexp
	sameBlock *regexp.Regexp
}

func newCommentSyntax(line, blockStart, blockEnd string) commentSyntax {
	c := commentSyntax{line: line, blockStart: blockStart, blockEnd: blockEnd}
	if line != "" {
		q := regexp.QuoteMeta(line)
		c.nextLine = regexp.MustCompile(q + `\s*eslint-disable-next-line(\s+[^\r\n]*)?$`)
		c.sameLine = regexp.MustCompile(q + `\s*eslint-disable-line(\s+[^\r\n]*)?$`)
	}
	if blockStart != "" {
		qs, qe := regexp.QuoteMeta(blockStart), regexp.QuoteMeta(blockEnd)
		c.nextBlock = regexp.MustCompile(qs + `\s*eslint-disable-next-line(\s.*?)?` + qe + `\s*$`)
		c.sameBlock = regexp.MustCompile(qs + `\s*eslint-disable-line(\s.*?)?` + qe + `\s*$`)
	}
	return c
}

// commentSyntaxes maps language identifiers whose comment tokens differ from
// the JavaScript defaults. Anything absent falls back to // and /* */.
var commentSyntaxes = map[string]commentSyntax{
	"yaml":     newCommentSyntax("#", "", ""),
	"html":     newCommentSyntax("", "<!--", "-->"),
	"markdown": newCommentSyntax("", "<!--", "-->"),
}

var jsSyntax = newCommentSyntax("//", "/*", "*/")

func syntaxFor(languageID string) commentSyntax {
	if c, ok := commentSyntaxes[languageID]; ok {
		return c
	}
	return jsSyntax
}

// resolveStyle maps the configured comment style onto the tokens the language
// actually has. A language without block comments writes line directives even
// when "block" is configured, and the other way around.
func (c commentSyntax) resolveStyle(requested string) string {
	if requested == "block" {
		if c.blockStart == "" {
			return "line"
		}
		return "block"
	}
	if c.line == "" {
		return "block"
	}
	return "line"
}

// comment renders a directive in the given style.
func (c commentSyntax) comment(directive, style string) string {
	if style == "block" {
		return c.blockStart + " " + directive + " " + c.blockEnd
	}
	return c.line + " " + directive
}

// lineEndPosition is the position just past the last character of a line.
func lineEndPosition(m *textpos.Mapper, line int) protocol.Position {
	return protocol.Position{
		Line:      textpos.SafeUint32(line),
		Character: textpos.SafeUint32(utf16Len(m.Line(line))),
	}
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// disableLineEdit builds the edit that silences rule on the problem's line.
// When the preceding line already carries a disable-next-line comment in the
// configured style, the rule is appended to its list instead of stacking a
// second comment.
func disableLineEdit(m *textpos.Mapper, rule string, problemLine int, cfg settings.DisableRuleComment, syn commentSyntax) protocol.TextEdit {
	if cfg.Location == "sameLine" {
		return disableSameLineEdit(m, rule, problemLine, cfg, syn)
	}
	style := syn.resolveStyle(cfg.CommentStyle)
	line := problemLine - 1
	if line > 0 {
		prev := m.Line(line - 1)
		if edit, ok := appendToExisting(prev, line-1, rule, style, syn.nextLine, syn.nextBlock, syn.blockEnd); ok {
			return edit
		}
	}
	indent := reIndent.FindString(m.Line(line))
	comment := indent + syn.comment("eslint-disable-next-line "+rule, style) + "\n"
	at := protocol.Position{Line: textpos.SafeUint32(line), Character: 0}
	return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: comment}
}

// disableSameLineEdit appends a trailing disable comment to the problem's
// own line.
func disableSameLineEdit(m *textpos.Mapper, rule string, problemLine int, cfg settings.DisableRuleComment, syn commentSyntax) protocol.TextEdit {
	style := syn.resolveStyle(cfg.CommentStyle)
	line := problemLine - 1
	text := m.Line(line)
	if edit, ok := appendToExisting(text, line, rule, style, syn.sameLine, syn.sameBlock, syn.blockEnd); ok {
		return edit
	}
	comment := " " + syn.comment("eslint-disable-line "+rule, style)
	at := lineEndPosition(m, line)
	return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: comment}
}

// appendToExisting extends a disable comment already present on lineText.
func appendToExisting(lineText string, line int, rule, style string, lineRe, blockRe *regexp.Regexp, blockEnd string) (protocol.TextEdit, bool) {
	if style == "block" {
		if blockRe == nil {
			return protocol.TextEdit{}, false
		}
		loc := blockRe.FindStringIndex(lineText)
		if loc == nil {
			return protocol.TextEdit{}, false
		}
		// Insert before the closing token of the block comment.
		closing := strings.LastIndex(lineText[loc[0]:loc[1]], blockEnd)
		at := protocol.Position{
			Line:      textpos.SafeUint32(line),
			Character: textpos.SafeUint32(utf16Len(strings.TrimRight(lineText[:loc[0]+closing], " "))),
		}
		return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: ", " + rule}, true
	}
	if lineRe == nil || !lineRe.MatchString(lineText) {
		return protocol.TextEdit{}, false
	}
	at := protocol.Position{
		Line:      textpos.SafeUint32(line),
		Character: textpos.SafeUint32(utf16Len(strings.TrimRight(lineText, " \t"))),
	}
	return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: ", " + rule}, true
}

// disableFileEdit silences rule for the whole document. The directive goes on
// the first line, or directly after a shebang when one is present.
func disableFileEdit(m *textpos.Mapper, rule string, syn commentSyntax) protocol.TextEdit {
	line := 0
	if strings.HasPrefix(m.Line(0), "#!") {
		line = 1
	}
	style := "block"
	if syn.blockStart == "" {
		style = "line"
	}
	at := protocol.Position{Line: textpos.SafeUint32(line), Character: 0}
	return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: syn.comment("eslint-disable "+rule, style) + "\n"}
}
