// Package repoconfig loads the bootstrap settings needed before the log can
// even be opened: which storage backend to use, and where (if anywhere) to
// write commit-scoped snapshot archives. This mirrors the reference's
// internal/config split between a file consulted at startup and the
// per-repository dynamic config store (internal/binnacle holds the latter,
// since it requires the log to already be open).
package repoconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Backend names recognized by storage.backend (spec §6).
const (
	BackendFile         = "file"
	BackendOrphanBranch = "orphan-branch"
	BackendGitNotes     = "git-notes"
)

// Bootstrap is the subset of configuration read before the backend opens.
type Bootstrap struct {
	Storage struct {
		Backend string `toml:"backend" yaml:"backend"`
	} `toml:"storage" yaml:"storage"`
	Archive struct {
		Directory string `toml:"directory" yaml:"directory"`
	} `toml:"archive" yaml:"archive"`
	SyncBranch string `toml:"sync_branch" yaml:"sync_branch"`
}

// Default returns compiled-in defaults: the file backend, archiving
// disabled.
func Default() Bootstrap {
	var b Bootstrap
	b.Storage.Backend = BackendFile
	return b
}

// Load reads .binnacle/config.toml under root, falling back to a legacy
// .binnacle/config.yaml if the TOML file is absent (the reference carried
// an equivalent config-format migration in its own history). Absence of
// both files is not an error; Default() is returned.
func Load(root string) (Bootstrap, error) {
	tomlPath := filepath.Join(root, ".binnacle", "config.toml")
	if data, err := os.ReadFile(tomlPath); err == nil { // #nosec G304 -- fixed relative path under repo root
		cfg := Default()
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Bootstrap{}, fmt.Errorf("repoconfig: parse %s: %w", tomlPath, err)
		}
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return Bootstrap{}, fmt.Errorf("repoconfig: read %s: %w", tomlPath, err)
	}

	yamlPath := filepath.Join(root, ".binnacle", "config.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil { // #nosec G304
		cfg := Default()
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Bootstrap{}, fmt.Errorf("repoconfig: parse legacy %s: %w", yamlPath, err)
		}
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return Bootstrap{}, fmt.Errorf("repoconfig: read %s: %w", yamlPath, err)
	}

	return Default(), nil
}

// Save writes the bootstrap config as TOML, the canonical format going
// forward (legacy YAML is read-only, for migration).
func Save(root string, cfg Bootstrap) error {
	dir := filepath.Join(root, ".binnacle")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("repoconfig: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "config.toml")
	tmp, err := os.CreateTemp(dir, "config.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("repoconfig: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("repoconfig: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repoconfig: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("repoconfig: rename into place: %w", err)
	}
	return nil
}

// IsValidBackend reports whether name is one of the recognized backends.
func IsValidBackend(name string) bool {
	switch name {
	case BackendFile, BackendOrphanBranch, BackendGitNotes:
		return true
	}
	return false
}
