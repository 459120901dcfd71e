package binnacle

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/binnacle-dev/binnacle/internal/snapshot"
)

// Export writes a tar+zstd archive of the store to w (spec §4.9).
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	if err := snapshot.Export(ctx, s.backend, s.Root, w); err != nil {
		return wrapIO(err, "export snapshot")
	}
	s.logAction("snapshot.export", "", "")
	return nil
}

// ImportMode selects how an archive's contents combine with the current
// store (spec §4.9).
type ImportMode = snapshot.ImportMode

const (
	ImportReplace = snapshot.ImportReplace
	ImportMerge   = snapshot.ImportMerge
)

// Import reads a tar+zstd or tar+gzip archive from r and merges or replaces
// the current store with it, remapping colliding task ids and re-linking
// their dependencies (spec §4.9).
func (s *Store) Import(ctx context.Context, r io.Reader, mode ImportMode) error {
	if err := snapshot.Import(ctx, s.Cache, s.backend, r, mode); err != nil {
		if errors.Is(err, snapshot.ErrAlreadyInitialized) {
			return remediate(KindConflict, "clear the store first, or import with merge mode instead",
				"store already contains data, refusing replace import")
		}
		return wrapIO(err, "import snapshot")
	}
	if err := s.Cache.Rebuild(ctx); err != nil {
		return wrapIO(err, "rebuild cache after import")
	}
	s.logAction("snapshot.import", "", "")
	return nil
}

// Clear wipes the storage root. It refuses without force, per spec §4.9
// ("operations that could produce lasting damage refuse without an
// explicit force"); snapshot.Clear itself performs the backup-then-wipe.
func (s *Store) Clear(ctx context.Context, force, noBackup bool) error {
	if !force {
		return remediate(KindOther, "pass force, and consider exporting a backup first",
			"clear would remove every record in this store")
	}
	if err := snapshot.Clear(ctx, s.backend, noBackup); err != nil {
		return wrapIO(err, "clear store")
	}
	if err := s.Cache.Rebuild(ctx); err != nil {
		return wrapIO(err, "rebuild cache after clear")
	}
	s.logAction("store.clear", "", "")
	return nil
}

// ArchiveOnCommit writes a read-only bn_<sha>.bng snapshot into
// ArchiveDirectory, if one is configured and writable, on a git commit
// event (spec §4.9).
func (s *Store) ArchiveOnCommit(ctx context.Context, sha string) error {
	dir := s.ArchiveDirectory()
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapIO(err, "create archive directory %s", dir)
	}

	path := filepath.Join(dir, "bn_"+sha+".bng")
	f, err := os.Create(path)
	if err != nil {
		return wrapIO(err, "create archive %s", path)
	}
	if err := snapshot.Export(ctx, s.backend, s.Root, f); err != nil {
		f.Close()
		return wrapIO(err, "write commit archive %s", path)
	}
	if err := f.Close(); err != nil {
		return wrapIO(err, "close commit archive %s", path)
	}
	if err := os.Chmod(path, 0o444); err != nil {
		return wrapIO(err, "mark commit archive %s read-only", path)
	}
	return nil
}
