package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound means no ESLint installation could be located for a document.
// The caller turns this into a one-shot "no library" hint instead of a hard
// failure.
var ErrNotFound = errors.New("engine: eslint library not found")

// PackageManager selects where the global fallback installation lives.
type PackageManager string

const (
	PackageManagerNpm  PackageManager = "npm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerPnpm PackageManager = "pnpm"
)

// globalRootArgs maps a package manager to the command that prints its global
// module root.
func globalRootArgs(pm PackageManager) []string {
	switch pm {
	case PackageManagerYarn:
		return []string{"yarn", "global", "dir"}
	case PackageManagerPnpm:
		return []string{"pnpm", "root", "-g"}
	default:
		return []string{"npm", "root", "-g"}
	}
}

// Resolver locates the eslint package directory for a document. Global roots
// are expensive to compute (a package-manager subprocess), so they are cached
// in memory per manager and persisted across server restarts.
type Resolver struct {
	mu      sync.Mutex
	globals map[PackageManager]string
	disk    *RootCache

	// lookPath and runOutput are indirection points for tests.
	lookPath  func(string) (string, error)
	runOutput func(ctx context.Context, name string, args ...string) (string, error)
}

// NewResolver constructs a resolver. disk may be nil to skip persistence.
func NewResolver(disk *RootCache) *Resolver {
	r := &Resolver{
		globals:  make(map[PackageManager]string),
		disk:     disk,
		lookPath: exec.LookPath,
		runOutput: func(ctx context.Context, name string, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, name, args...).Output()
			return string(out), err
		},
	}
	if disk != nil {
		for pm, root := range disk.All() {
			// A persisted root is only trusted while it still exists.
			if info, err := os.Stat(root); err == nil && info.IsDir() {
				r.globals[pm] = root
			}
		}
	}
	return r
}

// Resolve finds the eslint package directory for the document at docPath.
// Precedence: the configured nodePath, then the nearest node_modules walking
// up from the document, then the package manager's global root.
func (r *Resolver) Resolve(ctx context.Context, docPath, nodePath string, pm PackageManager) (string, error) {
	if nodePath != "" {
		if dir, ok := packageUnder(nodePath); ok {
			return dir, nil
		}
	}
	if docPath != "" {
		if dir, ok := walkNodeModules(filepath.Dir(docPath)); ok {
			return dir, nil
		}
	}
	root, err := r.globalRoot(ctx, pm)
	if err == nil {
		if dir, ok := eslintIn(root); ok {
			return dir, nil
		}
	}
	return "", ErrNotFound
}

// walkNodeModules walks from dir toward the filesystem root looking for an
// installed node_modules/eslint.
func walkNodeModules(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		if found, ok := eslintIn(filepath.Join(dir, "node_modules")); ok {
			return found, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// packageUnder checks a user-provided nodePath, which may point at a
// node_modules directory or its parent.
func packageUnder(nodePath string) (string, bool) {
	if dir, ok := eslintIn(nodePath); ok {
		return dir, true
	}
	return eslintIn(filepath.Join(nodePath, "node_modules"))
}

func eslintIn(modulesDir string) (string, bool) {
	candidate := filepath.Join(modulesDir, "eslint")
	manifest := filepath.Join(candidate, "package.json")
	if info, err := os.Stat(manifest); err == nil && !info.IsDir() {
		return candidate, true
	}
	return "", false
}

func (r *Resolver) globalRoot(ctx context.Context, pm PackageManager) (string, error) {
	if pm == "" {
		pm = PackageManagerNpm
	}
	r.mu.Lock()
	if root, ok := r.globals[pm]; ok {
		r.mu.Unlock()
		return root, nil
	}
	r.mu.Unlock()

	args := globalRootArgs(pm)
	if _, err := r.lookPath(args[0]); err != nil {
		return "", fmt.Errorf("engine: %s not on PATH: %w", args[0], err)
	}
	out, err := r.runOutput(ctx, args[0], args[1:]...)
	if err != nil {
		return "", fmt.Errorf("engine: %s failed: %w", strings.Join(args, " "), err)
	}
	root := strings.TrimSpace(out)
	if pm == PackageManagerYarn {
		// yarn prints the global package dir, modules live one level down.
		root = filepath.Join(root, "node_modules")
	}

	r.mu.Lock()
	r.globals[pm] = root
	r.mu.Unlock()
	if r.disk != nil {
		// Persisting is best-effort; next start recomputes on a miss.
		_ = r.disk.Put(pm, root)
	}
	return root, nil
}
