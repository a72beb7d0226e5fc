package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectStopsAtRootIndicator(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "packages", "app", "package.json"))
	doc := filepath.Join(root, "packages", "app", "src", "a.js")
	touch(t, doc)

	got := WorkingDirectory(doc, root, nil)
	want := filepath.Join(root, "packages", "app")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDetectRootIndicatorBeatsDeeperWeakIndicator(t *testing.T) {
	root := t.TempDir()
	// A lock file close to the document and a package.json higher up: the
	// walk remembers the weak match but keeps going, and the root
	// indicator found above wins.
	touch(t, filepath.Join(root, "app", "package.json"))
	touch(t, filepath.Join(root, "app", "vendor", "yarn.lock"))
	doc := filepath.Join(root, "app", "vendor", "a.js")
	touch(t, doc)

	got := WorkingDirectory(doc, root, nil)
	want := filepath.Join(root, "app")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDetectWeakIndicatorFallback(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "lib", "pnpm-lock.yaml"))
	doc := filepath.Join(root, "lib", "src", "a.js")
	touch(t, doc)

	got := WorkingDirectory(doc, root, nil)
	want := filepath.Join(root, "lib")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDetectFallsBackToDocumentDirectory(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "scratch", "a.js")
	touch(t, doc)

	got := WorkingDirectory(doc, root, nil)
	want := filepath.Join(root, "scratch")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExplicitDirectoryWins(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "pkg", "package.json"))
	doc := filepath.Join(root, "pkg", "src", "a.js")
	touch(t, doc)

	cfg := &WorkingDirectoryConfig{Mode: "location", Directories: []string{"pkg/src"}}
	got := WorkingDirectory(doc, root, cfg)
	want := filepath.Join(root, "pkg", "src")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExplicitListSkipsNonContainingEntries(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(root, "b", "a.js")
	touch(t, doc)

	cfg := &WorkingDirectoryConfig{Directories: []string{filepath.Join(root, "a")}}
	got := WorkingDirectory(doc, root, cfg)
	if got != filepath.Join(root, "b") {
		t.Fatalf("got %q, want document directory", got)
	}
}
