package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fakeInstall(t *testing.T, modulesDir string) string {
	t.Helper()
	pkg := filepath.Join(modulesDir, "eslint")
	if err := os.MkdirAll(pkg, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := filepath.Join(pkg, "package.json")
	if err := os.WriteFile(manifest, []byte(`{"name":"eslint","version":"9.0.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	return pkg
}

func TestResolveWalksUpToNearestNodeModules(t *testing.T) {
	root := t.TempDir()
	want := fakeInstall(t, filepath.Join(root, "node_modules"))
	docPath := filepath.Join(root, "src", "deep", "nested", "a.js")
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(nil)
	got, err := r.Resolve(context.Background(), docPath, "", PackageManagerNpm)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("resolved %q, want %q", got, want)
	}
}

func TestResolvePrefersNodePath(t *testing.T) {
	root := t.TempDir()
	fakeInstall(t, filepath.Join(root, "project", "node_modules"))
	nodePath := filepath.Join(root, "custom")
	want := fakeInstall(t, filepath.Join(nodePath, "node_modules"))
	docPath := filepath.Join(root, "project", "a.js")
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(nil)
	got, err := r.Resolve(context.Background(), docPath, nodePath, PackageManagerNpm)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("resolved %q, want %q", got, want)
	}
}

func TestResolveFallsBackToGlobalRoot(t *testing.T) {
	global := t.TempDir()
	want := fakeInstall(t, global)
	docDir := t.TempDir()

	r := NewResolver(nil)
	calls := 0
	r.lookPath = func(string) (string, error) { return "/usr/bin/npm", nil }
	r.runOutput = func(_ context.Context, name string, args ...string) (string, error) {
		calls++
		return global + "\n", nil
	}

	got, err := r.Resolve(context.Background(), filepath.Join(docDir, "a.js"), "", PackageManagerNpm)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("resolved %q, want %q", got, want)
	}

	// Second resolution must reuse the cached root.
	if _, err := r.Resolve(context.Background(), filepath.Join(docDir, "b.js"), "", PackageManagerNpm); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if calls != 1 {
		t.Fatalf("global root computed %d times, want 1", calls)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver(nil)
	r.lookPath = func(string) (string, error) { return "", errors.New("not installed") }
	_, err := r.Resolve(context.Background(), filepath.Join(t.TempDir(), "a.js"), "", PackageManagerNpm)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRootCacheRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	cache, err := OpenRootCache("eslintls-test")
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(PackageManagerNpm, "/usr/lib/node_modules"); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(PackageManagerPnpm, "/home/u/.pnpm-global"); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenRootCache("eslintls-test")
	if err != nil {
		t.Fatal(err)
	}
	roots := reopened.All()
	if roots[PackageManagerNpm] != "/usr/lib/node_modules" {
		t.Fatalf("npm root not persisted: %v", roots)
	}
	if roots[PackageManagerPnpm] != "/home/u/.pnpm-global" {
		t.Fatalf("pnpm root not persisted: %v", roots)
	}
}

func TestAPIForVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"9.12.0", "modern"},
		{"8.57.1", "modern"},
		{"7.0.0", "modern"},
		{"6.8.0", "legacy"},
		{"4.19.1", "legacy"},
		{"garbage", "modern"},
	}
	for _, tt := range tests {
		if got := apiForVersion(tt.version); got != tt.want {
			t.Errorf("apiForVersion(%q) = %q, want %q", tt.version, got, tt.want)
		}
	}
}

type fakeRunner struct {
	replies map[string]string
	fail    map[string]string
}

func (f fakeRunner) run(_ context.Context, _ string, req bridgeRequest) (json.RawMessage, error) {
	key := req.API + "/" + req.Method
	if msg, ok := f.fail[key]; ok {
		return nil, &RunError{Op: req.Method, ExitCode: 2, Stderr: msg}
	}
	reply, ok := f.replies[key]
	if !ok {
		return nil, &RunError{Op: req.Method, ExitCode: 2, Stderr: "no reply configured"}
	}
	return json.RawMessage(reply), nil
}

func TestLoaderSelectsLegacyWhenModernProbeFails(t *testing.T) {
	runner := fakeRunner{
		replies: map[string]string{"legacy/info": `{"version":"6.8.0"}`},
		fail:    map[string]string{"modern/info": "eslint module has no ESLint class"},
	}
	eng, err := loadWithRunner(context.Background(), runner, "/p/node_modules/eslint", "/p")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	be := eng.(*bridgeEngine)
	if be.api != "legacy" {
		t.Fatalf("api = %q, want legacy", be.api)
	}
	if eng.Version() != "6.8.0" {
		t.Fatalf("version = %q", eng.Version())
	}
}

func TestLoaderCachesByPath(t *testing.T) {
	runner := fakeRunner{replies: map[string]string{"modern/info": `{"version":"9.0.0"}`}}
	l := NewLoader("")
	l.runner = runner

	a, err := l.Load(context.Background(), "/p/node_modules/eslint", "/p")
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Load(context.Background(), "/p/node_modules/eslint", "/p")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("loader did not reuse cached engine")
	}
	l.Clear()
	c, err := l.Load(context.Background(), "/p/node_modules/eslint", "/p")
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Fatal("Clear did not drop cached engine")
	}
}
