package server

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// configFileGlobs are the patterns registered with clients that support
// file-watch registration.
var configFileGlobs = []string{
	"**/.eslintrc",
	"**/.eslintrc.{js,cjs,yaml,yml,json}",
	"**/eslint.config.{js,mjs,cjs}",
	"**/.eslintignore",
	"**/package.json",
}

// configFileNames is the same set as flat names, for the local fallback
// watcher.
var configFileNames = map[string]struct{}{
	".eslintrc":         {},
	".eslintrc.js":      {},
	".eslintrc.cjs":     {},
	".eslintrc.yaml":    {},
	".eslintrc.yml":     {},
	".eslintrc.json":    {},
	"eslint.config.js":  {},
	"eslint.config.mjs": {},
	"eslint.config.cjs": {},
	".eslintignore":     {},
	"package.json":      {},
}

// configWatcher watches the workspace root for lint-config changes when the
// client cannot. It only covers the root directory; nested project configs
// rely on client-side watching or an editor restart.
type configWatcher struct {
	fs     *fsnotify.Watcher
	done   chan struct{}
	logger *zap.Logger
}

func newConfigWatcher(root string, onChange func(), logger *zap.Logger) (*configWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(root); err != nil {
		_ = fs.Close()
		return nil, err
	}
	w := &configWatcher{fs: fs, done: make(chan struct{}), logger: logger}
	go w.run(onChange)
	logger.Debug("watching workspace root", zap.String("root", root))
	return w, nil
}

func (w *configWatcher) run(onChange func()) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if _, relevant := configFileNames[filepath.Base(event.Name)]; !relevant {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config file changed", zap.String("path", event.Name))
			onChange()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *configWatcher) stop() {
	close(w.done)
	_ = w.fs.Close()
}
