package fixes

import (
	"testing"

	"eslintls/internal/engine"
)

func TestSelectNonOverlapping(t *testing.T) {
	edits := []engine.FixEdit{
		{Range: [2]int{3, 8}, Text: "b"},
		{Range: [2]int{8, 10}, Text: "c"},
		{Range: [2]int{0, 5}, Text: "a"},
	}
	got := SelectNonOverlapping(edits)
	if len(got) != 2 {
		t.Fatalf("kept %d edits, want 2: %+v", len(got), got)
	}
	if got[0].Range != [2]int{0, 5} || got[1].Range != [2]int{8, 10} {
		t.Errorf("kept %+v, want [0,5) and [8,10)", got)
	}
}

func TestSelectNonOverlappingDropsDuplicates(t *testing.T) {
	edits := []engine.FixEdit{
		{Range: [2]int{2, 4}, Text: "x"},
		{Range: [2]int{2, 4}, Text: "x"},
		{Range: [2]int{5, 6}, Text: "y"},
	}
	if got := SelectNonOverlapping(edits); len(got) != 2 {
		t.Fatalf("kept %d edits, want 2: %+v", len(got), got)
	}
}

func TestSortEditsZeroLengthFirst(t *testing.T) {
	edits := []engine.FixEdit{
		{Range: [2]int{4, 9}, Text: "replace"},
		{Range: [2]int{4, 4}, Text: "insert"},
		{Range: [2]int{1, 2}, Text: "early"},
	}
	SortEdits(edits)
	if edits[0].Range != [2]int{1, 2} || edits[1].Range != [2]int{4, 4} || edits[2].Range != [2]int{4, 9} {
		t.Errorf("order = %+v", edits)
	}
}

func TestApplyEdits(t *testing.T) {
	content := "var x = 1;\nvar y = 2;\n"
	edits := SelectNonOverlapping([]engine.FixEdit{
		{Range: [2]int{0, 3}, Text: "let"},
		{Range: [2]int{11, 14}, Text: "let"},
	})
	got := ApplyEdits(content, edits)
	want := "let x = 1;\nlet y = 2;\n"
	if got != want {
		t.Errorf("ApplyEdits = %q, want %q", got, want)
	}
	// A fully fixed body yields no further edits to apply.
	if again := ApplyEdits(want, nil); again != want {
		t.Errorf("reapply = %q", again)
	}
}

func TestMinimalEditsSingleLineChange(t *testing.T) {
	original := "var x = 1;\nconsole.log(x);\nvar y = 2;\n"
	fixed := "let x = 1;\nconsole.log(x);\nvar y = 2;\n"

	edits := minimalEdits(original, fixed)
	if len(edits) != 1 {
		t.Fatalf("got %d edits, want 1: %+v", len(edits), edits)
	}
	e := edits[0]
	if e.Range.Start.Line != 0 || e.Range.End.Line != 1 {
		t.Errorf("range = %v, want lines [0,1)", e.Range)
	}
	if e.NewText != "let x = 1;\n" {
		t.Errorf("newText = %q", e.NewText)
	}
}

func TestMinimalEditsDisjointRuns(t *testing.T) {
	original := "a\nb\nc\nd\ne\n"
	fixed := "A\nb\nc\nd\nE\n"

	edits := minimalEdits(original, fixed)
	if len(edits) != 2 {
		t.Fatalf("got %d edits, want 2: %+v", len(edits), edits)
	}
	if edits[0].NewText != "A\n" || edits[1].NewText != "E\n" {
		t.Errorf("edits = %+v", edits)
	}
	if edits[0].Range.Start.Line >= edits[1].Range.Start.Line {
		t.Errorf("edits out of document order: %+v", edits)
	}
}

func TestMinimalEditsIdentical(t *testing.T) {
	if edits := minimalEdits("same\n", "same\n"); len(edits) != 0 {
		t.Errorf("got %d edits, want 0", len(edits))
	}
}
