package settings

import (
	"os"
	"path/filepath"
	"strings"
)

// Working-directory precedence: an explicitly configured directory wins, then
// the nearest enclosing project-indicator directory, then the document's own
// directory. package.json is a root indicator and stops the upward walk;
// lock files and a node_modules directory are weak indicators that are
// remembered as a fallback while the walk continues.

var weakIndicators = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"node_modules",
}

// WorkingDirectory resolves the engine working directory for a document.
func WorkingDirectory(docPath, workspaceRoot string, cfg *WorkingDirectoryConfig) string {
	if cfg != nil && len(cfg.Directories) > 0 {
		if dir, ok := explicitDirectory(docPath, workspaceRoot, cfg.Directories); ok {
			return dir
		}
	}
	return detectWorkingDirectory(docPath, workspaceRoot)
}

// explicitDirectory picks the first configured directory containing the
// document. Relative entries are anchored at the workspace root.
func explicitDirectory(docPath, workspaceRoot string, dirs []string) (string, bool) {
	for _, dir := range dirs {
		if !filepath.IsAbs(dir) && workspaceRoot != "" {
			dir = filepath.Join(workspaceRoot, dir)
		}
		if contains(dir, docPath) {
			return dir, true
		}
	}
	return "", false
}

func detectWorkingDirectory(docPath, workspaceRoot string) string {
	docDir := filepath.Dir(docPath)
	dir := docDir
	fallback := ""
	for {
		if hasEntry(dir, "package.json") {
			return dir
		}
		if fallback == "" {
			for _, name := range weakIndicators {
				if hasEntry(dir, name) {
					fallback = dir
					break
				}
			}
		}
		if workspaceRoot != "" && sameFile(dir, workspaceRoot) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if fallback != "" {
		return fallback
	}
	return docDir
}

func hasEntry(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func sameFile(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
