package binnacle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/binnacle-dev/binnacle/internal/actionlog"
	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/diag"
	"github.com/binnacle-dev/binnacle/internal/gitutil"
	"github.com/binnacle-dev/binnacle/internal/repoconfig"
	"github.com/binnacle-dev/binnacle/internal/storage"
)

// Store is the open handle a consumer holds for the lifetime of one
// command invocation (spec §5: one invocation per command). It owns the
// storage backend, the derived cache, and the ambient collaborators
// (action log, git queries, diagnostics logging) the engines above it need.
type Store struct {
	Root    string
	backend storage.Backend
	Cache   *cache.Cache
	Boot    repoconfig.Bootstrap
	actions *actionlog.Logger
	git     *gitutil.Git
	log     *slog.Logger

	unlock func() error
}

// Open resolves the storage backend for root from its bootstrap config,
// replays the JSONL log into the cache, and acquires the cross-process
// mutation lock. Callers must call Close when done.
func Open(ctx context.Context, root string) (*Store, error) {
	boot, err := repoconfig.Load(root)
	if err != nil {
		return nil, wrapIO(err, "load bootstrap config")
	}

	backend, err := openBackend(root, boot)
	if err != nil {
		return nil, err
	}
	if !backend.Exists(ctx) {
		return nil, &Error{Kind: KindNotInitialized, Message: fmt.Sprintf("no binnacle store found under %s", root),
			Remediation: "run init to create one"}
	}

	c, err := cache.Open(ctx, backend)
	if err != nil {
		return nil, wrapIO(err, "open cache")
	}

	s := &Store{Root: root, backend: backend, Cache: c, Boot: boot, git: gitutil.New(root)}
	s.actions = actionlog.New(s.actionLogConfig())
	s.log = diag.New(filepath.Join(root, ".binnacle", "binnacle.log"))

	unlock, err := backend.Lock(ctx)
	if err != nil {
		return nil, wrapIO(err, "acquire storage lock")
	}
	s.unlock = unlock
	return s, nil
}

// Init creates a new store under root using the given bootstrap settings,
// writing the bootstrap file and initializing the backend.
func Init(ctx context.Context, root string, boot repoconfig.Bootstrap) (*Store, error) {
	if boot.Storage.Backend == "" {
		boot = repoconfig.Default()
	}
	if !repoconfig.IsValidBackend(boot.Storage.Backend) {
		return nil, newErr(KindInvalidInput, "unrecognized storage.backend %q", boot.Storage.Backend)
	}
	if err := repoconfig.Save(root, boot); err != nil {
		return nil, wrapIO(err, "save bootstrap config")
	}
	backend, err := openBackend(root, boot)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(ctx); err != nil {
		return nil, wrapIO(err, "init storage backend")
	}
	c, err := cache.Open(ctx, backend)
	if err != nil {
		return nil, wrapIO(err, "open cache")
	}
	s := &Store{Root: root, backend: backend, Cache: c, Boot: boot, git: gitutil.New(root)}
	s.actions = actionlog.New(s.actionLogConfig())
	s.log = diag.New(filepath.Join(root, ".binnacle", "binnacle.log"))
	unlock, err := backend.Lock(ctx)
	if err != nil {
		return nil, wrapIO(err, "acquire storage lock")
	}
	s.unlock = unlock
	return s, nil
}

func openBackend(root string, boot repoconfig.Bootstrap) (storage.Backend, error) {
	switch boot.Storage.Backend {
	case "", repoconfig.BackendFile:
		return storage.NewFileBackend(filepath.Join(root, ".binnacle")), nil
	case repoconfig.BackendOrphanBranch:
		return storage.NewOrphanBranchBackend(root, boot.SyncBranch), nil
	case repoconfig.BackendGitNotes:
		return storage.NewGitNotesBackend(root), nil
	default:
		return nil, newErr(KindInvalidInput, "unrecognized storage.backend %q", boot.Storage.Backend)
	}
}

// Close releases the mutation lock and flushes the action log.
func (s *Store) Close() error {
	var err error
	if s.actions != nil {
		err = s.actions.Close()
	}
	if s.unlock != nil {
		if uerr := s.unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// Recognized dynamic configuration keys (spec §6).
const (
	ConfigRequireCommitForClose = "require_commit_for_close"
	ConfigActionLogEnabled      = "action_log_enabled"
	ConfigActionLogSanitize     = "action_log_sanitize"
	ConfigActionLogMaxEntries   = "action_log_max_entries"
	ConfigActionLogMaxAgeDays   = "action_log_max_age_days"
	ConfigActionLogPath         = "action_log_path"
	ConfigCoAuthorEnabled       = "co-author.enabled"
	ConfigCoAuthorName          = "co-author.name"
	ConfigCoAuthorEmail         = "co-author.email"
	ConfigArchiveDirectory      = "archive.directory"
	ConfigStorageBackend        = "storage.backend"
)

// recognizedConfigKeys backs SetConfig's input validation: spec §7
// InvalidInput covers "malformed archive" and other validation failures,
// and an unrecognized key is rejected the same way rather than silently
// accepted and ignored.
var recognizedConfigKeys = map[string]bool{
	ConfigRequireCommitForClose: true,
	ConfigActionLogEnabled:      true,
	ConfigActionLogSanitize:     true,
	ConfigActionLogMaxEntries:   true,
	ConfigActionLogMaxAgeDays:   true,
	ConfigActionLogPath:         true,
	ConfigCoAuthorEnabled:       true,
	ConfigCoAuthorName:          true,
	ConfigCoAuthorEmail:         true,
	ConfigArchiveDirectory:      true,
	ConfigStorageBackend:        true,
}

// SetConfig validates key against the recognized set and appends a config
// record.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if !recognizedConfigKeys[key] {
		return newErr(KindInvalidInput, "unrecognized config key %q", key)
	}
	if err := s.Cache.SetConfig(ctx, key, value); err != nil {
		return wrapIO(err, "set config %s", key)
	}
	s.logAction("config.set", key, value)
	return nil
}

func (s *Store) configBool(key string) bool {
	v, ok := s.Cache.GetConfig(key)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func (s *Store) configInt(key string, fallback int) int {
	v, ok := s.Cache.GetConfig(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Store) configString(key, fallback string) string {
	v, ok := s.Cache.GetConfig(key)
	if !ok || v == "" {
		return fallback
	}
	return v
}

func (s *Store) actionLogConfig() actionlog.Config {
	return actionlog.Config{
		Enabled:    s.configBool(ConfigActionLogEnabled),
		Sanitize:   s.configBool(ConfigActionLogSanitize),
		Path:       s.configString(ConfigActionLogPath, filepath.Join(s.Root, ".binnacle", "action-log.jsonl")),
		MaxEntries: s.configInt(ConfigActionLogMaxEntries, 10000),
		MaxAgeDays: s.configInt(ConfigActionLogMaxAgeDays, 30),
	}
}

// RequireCommitForClose reports the close-gating config key (spec §4.4).
func (s *Store) RequireCommitForClose() bool { return s.configBool(ConfigRequireCommitForClose) }

// ArchiveDirectory reports where commit-scoped snapshot archives are
// written, or "" if archiving is disabled (spec §4.9).
func (s *Store) ArchiveDirectory() string { return s.configString(ConfigArchiveDirectory, "") }
