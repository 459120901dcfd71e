// Package storage defines the abstract backend interface for Binnacle's
// append-only JSONL streams (spec §4.2) and the file-on-disk realization.
// Two further realizations (orphan git branch, git notes) live in
// orphanbranch.go and gitnotes.go.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/binnacle-dev/binnacle/internal/lockutil"
)

// ErrNotInitialized is returned by callers that detect a missing store root
// and were not asked to auto-init (spec §7 NotInitialized).
var ErrNotInitialized = errors.New("storage: not initialized")

// defaultLockRetry bounds how long Lock will poll for an exclusive lock
// before giving up.
const defaultLockRetry = 5 * time.Second

// Backend is the abstract contract every storage realization must satisfy.
// All three realizations (file, orphan-branch, git-notes) must produce
// identical observable behavior to the engine above (spec §4.2).
type Backend interface {
	// Init creates the backend's storage root if absent.
	Init(ctx context.Context) error

	// Exists reports whether the backend has already been initialized.
	Exists(ctx context.Context) bool

	// ReadJSONL returns every non-blank line of stream `name`, in append
	// order. Blank lines are tolerated and simply omitted; RawLineCount
	// reports their presence for the health check.
	ReadJSONL(ctx context.Context, name string) ([]string, error)

	// RawLineCount returns the total number of lines (including blanks) in
	// stream `name`, for health-check diagnostics.
	RawLineCount(ctx context.Context, name string) (int, error)

	// WriteJSONL atomically replaces the entire contents of stream `name`.
	WriteJSONL(ctx context.Context, name string, lines []string) error

	// AppendJSONL appends a single line to stream `name`.
	AppendJSONL(ctx context.Context, name string, line string) error

	// Lock acquires an exclusive, best-effort lock over the storage root for
	// the duration of a mutating command (spec §5). Read-only callers may
	// skip it. Returns an unlock func.
	Lock(ctx context.Context) (unlock func() error, err error)

	// Root returns a human-readable identifier for the backend's storage
	// location, used in diagnostics and health checks.
	Root() string
}

// Streams lists the canonical JSONL stream names recognized by the file
// backend layout (spec §6). The key/value config store's stream,
// ConfigStream, is not in this list.
var Streams = []string{
	"tasks.jsonl",
	"bugs.jsonl",
	"ideas.jsonl",
	"milestones.jsonl",
	"docs.jsonl",
	"tests.jsonl",
	"queues.jsonl",
	"edges.jsonl",
	"commits.jsonl",
	"test-results.jsonl",
	"agents.jsonl",
}

// ConfigStream is the key/value config store's JSONL stream name.
const ConfigStream = "config.jsonl"

// FileBackend stores JSONL streams as loose files under a directory,
// matching the reference's registry.json atomic-write discipline
// (temp file + fsync + rename) applied uniformly to every stream.
type FileBackend struct {
	dir      string
	lockPath string
}

// NewFileBackend returns a backend rooted at dir (typically <repo>/.binnacle).
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir, lockPath: filepath.Join(dir, ".lock")}
}

func (f *FileBackend) Root() string { return f.dir }

func (f *FileBackend) Init(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("storage: create root %s: %w", f.dir, err)
	}
	return nil
}

func (f *FileBackend) Exists(ctx context.Context) bool {
	info, err := os.Stat(f.dir)
	return err == nil && info.IsDir()
}

func (f *FileBackend) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *FileBackend) ReadJSONL(ctx context.Context, name string) ([]string, error) {
	data, err := os.ReadFile(f.path(name)) // #nosec G304 -- name is always one of the fixed Streams
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

func (f *FileBackend) RawLineCount(ctx context.Context, name string) (int, error) {
	data, err := os.ReadFile(f.path(name)) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: read %s: %w", name, err)
	}
	if len(data) == 0 {
		return 0, nil
	}
	n := strings.Count(string(data), "\n")
	if data[len(data)-1] != '\n' {
		n++ // final line has no terminating newline
	}
	return n, nil
}

func (f *FileBackend) WriteJSONL(ctx context.Context, name string, lines []string) error {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("storage: create root: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if _, err := tmp.WriteString(buf.String()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, f.path(name)); err != nil {
		return fmt.Errorf("storage: rename into place %s: %w", name, err)
	}
	return nil
}

func (f *FileBackend) AppendJSONL(ctx context.Context, name string, line string) error {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("storage: create root: %w", err)
	}
	file, err := os.OpenFile(f.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // #nosec G304,G306 -- JSONL streams are shared via git
	if err != nil {
		return fmt.Errorf("storage: open %s for append: %w", name, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("storage: append %s: %w", name, err)
	}
	return file.Sync()
}

// Lock acquires an exclusive file lock over the storage root, serializing
// mutating commands the way the reference's daemon registry serializes
// read-modify-write access to registry.json.
func (f *FileBackend) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	unlock, err := lockutil.Acquire(ctx, f.lockPath, defaultLockRetry)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return unlock, nil
}
