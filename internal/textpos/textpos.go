// Package textpos converts between byte offsets and protocol positions.
// Protocol positions count UTF-16 code units per line; engine fix ranges are
// byte offsets into the document body.
package textpos

import (
	"sort"
	"unicode/utf8"

	"fortio.org/safecast"
	"go.lsp.dev/protocol"
)

const maxUint32 = ^uint32(0)

// SafeUint32 clamps an int into uint32 range.
func SafeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return maxUint32
	}
	return v
}

// Mapper indexes one document body for position math. Build a fresh Mapper
// whenever the content changes.
type Mapper struct {
	content string
	// lineStarts[i] is the byte offset where line i begins; lineStarts[0] == 0.
	lineStarts []int
}

// NewMapper indexes content.
func NewMapper(content string) *Mapper {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Mapper{content: content, lineStarts: starts}
}

// Content returns the indexed text.
func (m *Mapper) Content() string { return m.content }

// LineCount returns the number of lines, counting a trailing fragment.
func (m *Mapper) LineCount() int { return len(m.lineStarts) }

// Line returns the text of the 0-based line without its newline.
func (m *Mapper) Line(line int) string {
	if line < 0 || line >= len(m.lineStarts) {
		return ""
	}
	start := m.lineStarts[line]
	end := len(m.content)
	if line+1 < len(m.lineStarts) {
		end = m.lineStarts[line+1] - 1
	}
	if end < start {
		end = start
	}
	return m.content[start:end]
}

// Offset converts a protocol position to a byte offset, clamping positions
// past the end of a line or the document.
func (m *Mapper) Offset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(m.lineStarts) {
		return len(m.content)
	}
	off := m.lineStarts[line]
	lineEnd := len(m.content)
	if line+1 < len(m.lineStarts) {
		lineEnd = m.lineStarts[line+1] - 1
	}
	units := uint32(0)
	for off < lineEnd {
		r, size := utf8.DecodeRuneInString(m.content[off:lineEnd])
		if r == utf8.RuneError && size == 1 {
			size = 1
		}
		need := uint32(1)
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		off += size
		if units == pos.Character {
			break
		}
	}
	return off
}

// Position converts a byte offset to a protocol position.
func (m *Mapper) Position(offset int) protocol.Position {
	if offset > len(m.content) {
		offset = len(m.content)
	}
	if offset < 0 {
		offset = 0
	}
	idx := sort.Search(len(m.lineStarts), func(i int) bool { return m.lineStarts[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	lineStart := m.lineStarts[idx]
	units := 0
	for off := lineStart; off < offset; {
		r, size := utf8.DecodeRuneInString(m.content[off:offset])
		if r == utf8.RuneError && size == 1 {
			size = 1
		}
		if off+size > offset {
			break
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		off += size
	}
	return protocol.Position{Line: SafeUint32(idx), Character: SafeUint32(units)}
}

// Range converts a byte-offset span to a protocol range.
func (m *Mapper) Range(start, end int) protocol.Range {
	return protocol.Range{Start: m.Position(start), End: m.Position(end)}
}

// ApplyChange splices an incremental content change into text. A nil rng
// means full replacement.
func ApplyChange(text string, rng *protocol.Range, newText string) string {
	if rng == nil {
		return newText
	}
	m := NewMapper(text)
	start := m.Offset(rng.Start)
	end := m.Offset(rng.End)
	if end < start {
		end = start
	}
	return text[:start] + newText + text[end:]
}
