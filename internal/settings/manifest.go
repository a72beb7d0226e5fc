package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"eslintls/internal/engine"
)

// ManifestName is the workspace defaults file looked up at the workspace root.
const ManifestName = "eslintls.toml"

// Manifest holds workspace-level defaults that apply beneath whatever the
// editor sends per scope. Pointer fields distinguish "unset" from zero.
type Manifest struct {
	Validate           string   `toml:"validate"`
	PackageManager     string   `toml:"package_manager"`
	Run                string   `toml:"run"`
	NodePath           string   `toml:"node_path"`
	Quiet              *bool    `toml:"quiet"`
	Format             *bool    `toml:"format"`
	OnIgnoredFiles     string   `toml:"on_ignored_files"`
	WorkingDirectories []string `toml:"working_directories"`
}

// LoadManifest reads the manifest at the workspace root. ok is false when the
// file does not exist.
func LoadManifest(workspaceRoot string) (*Manifest, bool, error) {
	if workspaceRoot == "" {
		return nil, false, nil
	}
	path := filepath.Join(workspaceRoot, ManifestName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("settings: stat %q: %w", path, err)
	}
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, false, fmt.Errorf("settings: parse %q: %w", path, err)
	}
	return &m, true, nil
}

// ApplyTo fills fields the editor configuration left unset.
func (m *Manifest) ApplyTo(cfg *ConfigurationSettings) {
	if m == nil {
		return
	}
	if cfg.Validate == "" && m.Validate != "" {
		cfg.Validate = Validate(m.Validate)
	}
	if cfg.PackageManager == "" && m.PackageManager != "" {
		cfg.PackageManager = engine.PackageManager(m.PackageManager)
	}
	if cfg.Run == "" && m.Run != "" {
		cfg.Run = RunMode(m.Run)
	}
	if cfg.NodePath == "" && m.NodePath != "" {
		cfg.NodePath = m.NodePath
	}
	if cfg.OnIgnoredFiles == "" && m.OnIgnoredFiles != "" {
		cfg.OnIgnoredFiles = IgnoredFilesMode(m.OnIgnoredFiles)
	}
	if m.Quiet != nil && !cfg.Quiet {
		cfg.Quiet = *m.Quiet
	}
	if m.Format != nil && !cfg.Format {
		cfg.Format = *m.Format
	}
	if cfg.WorkingDirectory == nil && len(m.WorkingDirectories) > 0 {
		cfg.WorkingDirectory = &WorkingDirectoryConfig{
			Mode:        "location",
			Directories: m.WorkingDirectories,
		}
	}
}
