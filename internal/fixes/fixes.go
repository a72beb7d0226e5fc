// Package fixes turns recorded problems into code actions and computes the
// edit sets behind them. Edits never leave this package overlapping: every
// bundle goes through the same deterministic ordering and greedy selection.
package fixes

import (
	"sort"

	"go.lsp.dev/protocol"

	"eslintls/internal/engine"
	"eslintls/internal/textpos"
)

// SortEdits orders edits by start offset, shorter spans first, so insertions
// at a position precede replacements starting there.
func SortEdits(edits []engine.FixEdit) {
	sort.SliceStable(edits, func(i, j int) bool {
		a, b := edits[i], edits[j]
		if a.Range[0] != b.Range[0] {
			return a.Range[0] < b.Range[0]
		}
		return a.Range[1]-a.Range[0] < b.Range[1]-b.Range[0]
	})
}

// SelectNonOverlapping sorts edits and keeps the greedy left-to-right subset
// whose spans do not intersect. Exact duplicate ranges collapse to one edit.
func SelectNonOverlapping(edits []engine.FixEdit) []engine.FixEdit {
	if len(edits) == 0 {
		return nil
	}
	sorted := make([]engine.FixEdit, len(edits))
	copy(sorted, edits)
	SortEdits(sorted)

	kept := sorted[:1]
	for _, e := range sorted[1:] {
		last := kept[len(kept)-1]
		if e.Range == last.Range {
			continue
		}
		if e.Range[0] < last.Range[1] {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// ApplyEdits splices an overlap-free, ordered edit set into content.
func ApplyEdits(content string, edits []engine.FixEdit) string {
	out := make([]byte, 0, len(content))
	last := 0
	for _, e := range edits {
		start, end := e.Range[0], e.Range[1]
		if start < last {
			continue
		}
		if end > len(content) {
			end = len(content)
		}
		if start > len(content) {
			start = len(content)
		}
		out = append(out, content[last:start]...)
		out = append(out, e.Text...)
		last = end
	}
	out = append(out, content[last:]...)
	return string(out)
}

// toTextEdits converts byte-offset edits into protocol edits against the
// document body the mapper was built from.
func toTextEdits(m *textpos.Mapper, edits []engine.FixEdit) []protocol.TextEdit {
	out := make([]protocol.TextEdit, 0, len(edits))
	for _, e := range edits {
		out = append(out, protocol.TextEdit{
			Range:   m.Range(e.Range[0], e.Range[1]),
			NewText: e.Text,
		})
	}
	return out
}
