// Package snapshot implements export/import of a Binnacle store to a
// single portable archive (spec §4.9): a manifest, one JSONL file per
// stream, and a SHA-256 checksum per file, tar'd and zstd-compressed.
package snapshot

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/jsonl"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// FormatVersion is bumped whenever the manifest or archive layout changes
// in a way Import must branch on.
const FormatVersion = 1

// ErrAlreadyInitialized is returned by Import when mode is ImportReplace
// and the destination store already holds data (spec §4.9 step 3: "if
// replace requested and store already initialized, reject").
var ErrAlreadyInitialized = errors.New("snapshot: store already initialized, refusing replace import")

// Manifest describes the contents of one archive.
type Manifest struct {
	Version        int               `json:"version"`
	Format         string            `json:"format"`
	ExportedAt     time.Time         `json:"exported_at"`
	SourceRepo     string            `json:"source_repo"`
	BinnacleVersion string           `json:"binnacle_version"`
	TaskCount      int               `json:"task_count"`
	TestCount      int               `json:"test_count"`
	CommitCount    int               `json:"commit_count"`
	Checksums      map[string]string `json:"checksums"`
}

// BinnacleVersion is the engine version stamped into every manifest.
const BinnacleVersion = "1.0.0"

// Export writes a tar+zstd archive of every stream in backend to w.
func Export(ctx context.Context, backend storage.Backend, sourceRepo string, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: new zstd writer: %w", err)
	}
	defer func() { _ = zw.Close() }()

	tw := tar.NewWriter(zw)
	defer func() { _ = tw.Close() }()

	checksums := map[string]string{}
	var buffers = map[string][]byte{}

	streams := append(append([]string{}, storage.Streams...), storage.ConfigStream)
	taskCount, testCount, commitCount := 0, 0, 0
	for _, name := range streams {
		lines, err := backend.ReadJSONL(ctx, name)
		if err != nil {
			return fmt.Errorf("snapshot: read %s: %w", name, err)
		}
		var buf bytes.Buffer
		for _, line := range lines {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		buffers[name] = buf.Bytes()
		sum := sha256.Sum256(buf.Bytes())
		checksums[name] = hex.EncodeToString(sum[:])

		switch name {
		case "tasks.jsonl":
			taskCount = len(lines)
		case "tests.jsonl":
			testCount = len(lines)
		case "commits.jsonl":
			commitCount = len(lines)
		}
	}

	manifest := Manifest{
		Version: FormatVersion, Format: "binnacle-store-v1", ExportedAt: time.Now(),
		SourceRepo: sourceRepo, BinnacleVersion: BinnacleVersion,
		TaskCount: taskCount, TestCount: testCount, CommitCount: commitCount,
		Checksums: checksums,
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal manifest: %w", err)
	}

	if err := writeTarEntry(tw, "manifest.json", manifestBytes); err != nil {
		return err
	}
	for name, data := range buffers {
		if err := writeTarEntry(tw, name, data); err != nil {
			return err
		}
	}
	return nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0640, ModTime: time.Now()}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("snapshot: write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("snapshot: write tar body for %s: %w", name, err)
	}
	return nil
}

// ImportMode selects how an archive's contents combine with an existing
// store.
type ImportMode int

const (
	// ImportReplace wipes the destination store before importing.
	ImportReplace ImportMode = iota
	// ImportMerge overlays the archive's entities onto the existing store,
	// remapping any id collisions and stamping imported_on.
	ImportMerge
)

// Import reads a tar+zstd (or tar+gzip, for archives produced by older
// tooling) archive from r and applies it to c/backend per mode.
func Import(ctx context.Context, c *cache.Cache, backend storage.Backend, r io.Reader, mode ImportMode) error {
	dr, err := decompressingReader(r)
	if err != nil {
		return err
	}
	tr := tar.NewReader(dr)

	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("snapshot: read tar entry: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("snapshot: read tar body for %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = data
	}

	manifestBytes, ok := files["manifest.json"]
	if !ok {
		return fmt.Errorf("snapshot: archive missing manifest.json")
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return fmt.Errorf("snapshot: parse manifest: %w", err)
	}
	if manifest.Version != FormatVersion || manifest.Format != "binnacle-store-v1" {
		return fmt.Errorf("snapshot: unsupported archive version %d format %q (supported: version %d, format %q)",
			manifest.Version, manifest.Format, FormatVersion, "binnacle-store-v1")
	}
	for name, want := range manifest.Checksums {
		data, ok := files[name]
		if !ok {
			continue
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != want {
			return fmt.Errorf("snapshot: checksum mismatch for %s", name)
		}
	}

	if mode == ImportReplace {
		if backend.Exists(ctx) && !c.IsEmpty() {
			return ErrAlreadyInitialized
		}
		if err := Clear(ctx, backend, true); err != nil {
			return err
		}
		if err := c.Rebuild(ctx); err != nil {
			return err
		}
	}

	remap := map[string]string{}
	now := time.Now()

	// First pass: insert every work item with its legacy embedded
	// depends_on cleared, remapping any id already present. The original
	// dependency lists are remembered in pendingDeps for the second pass
	// below, once remap is complete (spec §4.9 step 5a).
	var pendingDeps []pendingDependency
	for _, name := range []string{"tasks.jsonl", "bugs.jsonl", "ideas.jsonl", "milestones.jsonl", "docs.jsonl", "tests.jsonl", "queues.jsonl", "agents.jsonl"} {
		data, ok := files[name]
		if !ok {
			continue
		}
		for _, line := range splitLines(data) {
			peek, err := jsonl.DecodePeek(line)
			if err != nil {
				return fmt.Errorf("snapshot: peek %s line: %w", name, err)
			}
			newID := peek.ID
			if c.Exists(peek.ID) {
				newID = ids.GenerateUnique(ids.Prefix(peek.ID), peek.ID+now.String(), c.Exists)
				remap[peek.ID] = newID
			}
			deps, err := insertEntity(ctx, c, types.Kind(peek.Kind), line, newID, mode == ImportMerge)
			if err != nil {
				return err
			}
			if len(deps) > 0 {
				pendingDeps = append(pendingDeps, pendingDependency{id: newID, kind: types.Kind(peek.Kind), deps: deps})
			}
		}
	}

	// Second pass (spec §4.9 step 5b): rewrite each remembered dependency
	// list through remap, drop any reference to an id absent from the
	// imported+existing set, and re-apply the survivors via update.
	for _, pd := range pendingDeps {
		survivors := make([]string, 0, len(pd.deps))
		for _, dep := range pd.deps {
			if newDep, ok := remap[dep]; ok {
				dep = newDep
			}
			if _, _, ok := c.GetEntity(dep); !ok {
				continue
			}
			survivors = append(survivors, dep)
		}
		if err := applyDependencies(ctx, c, pd.id, pd.kind, survivors); err != nil {
			return err
		}
	}

	// Third pass: edges, rewriting any endpoint that collided in pass one
	// and dropping edges whose endpoint vanished; commits/test-results are
	// then appended as they are.
	if data, ok := files["edges.jsonl"]; ok {
		for _, line := range splitLines(data) {
			var e types.Edge
			if err := jsonl.Decode(line, &e); err != nil {
				return fmt.Errorf("snapshot: decode edge: %w", err)
			}
			if newID, ok := remap[e.ID]; ok {
				e.ID = newID
			} else if c.Exists(e.ID) {
				e.ID = ids.GenerateUnique(ids.PrefixEdge, e.ID+now.String(), c.Exists)
			}
			if newSrc, ok := remap[e.Source]; ok {
				e.Source = newSrc
			}
			if newTgt, ok := remap[e.Target]; ok {
				e.Target = newTgt
			}
			if _, _, ok := c.GetEntity(e.Source); !ok {
				continue
			}
			if _, _, ok := c.GetEntity(e.Target); !ok {
				continue
			}
			if err := c.PutEdge(ctx, &e); err != nil {
				return err
			}
		}
	}
	for _, raw := range []string{"commits.jsonl", "test-results.jsonl"} {
		if data, ok := files[raw]; ok {
			for _, line := range splitLines(data) {
				if err := backend.AppendJSONL(ctx, raw, line); err != nil {
					return fmt.Errorf("snapshot: append %s: %w", raw, err)
				}
			}
		}
	}

	return c.Rebuild(ctx)
}

// pendingDependency remembers one imported task/bug's original (pre-rewrite)
// legacy depends_on list so the second import pass can rewrite it through
// the id-collision remap once that map is complete (spec §4.9 step 5).
type pendingDependency struct {
	id   string
	kind types.Kind
	deps []string
}

// insertEntity decodes one JSONL line as kind, inserts it under newID with
// its legacy embedded depends_on cleared (spec §4.9: "insert all tasks
// with empty dependencies"), and returns the original dependency list for
// the caller to rewrite and re-apply in the second pass.
func insertEntity(ctx context.Context, c *cache.Cache, kind types.Kind, line, newID string, stampImported bool) ([]string, error) {
	switch kind {
	case types.KindTask:
		var t types.Task
		if err := jsonl.Decode(line, &t); err != nil {
			return nil, err
		}
		t.ID = newID
		deps := t.DependsOn
		t.DependsOn = nil
		if stampImported {
			now := time.Now()
			t.ImportedOn = &now
		}
		return deps, c.PutTask(ctx, &t)
	case types.KindBug:
		var b types.Bug
		if err := jsonl.Decode(line, &b); err != nil {
			return nil, err
		}
		b.ID = newID
		deps := b.DependsOn
		b.DependsOn = nil
		if stampImported {
			now := time.Now()
			b.ImportedOn = &now
		}
		return deps, c.PutBug(ctx, &b)
	case types.KindIdea:
		var i types.Idea
		if err := jsonl.Decode(line, &i); err != nil {
			return nil, err
		}
		i.ID = newID
		return nil, c.PutIdea(ctx, &i)
	case types.KindMilestone:
		var m types.Milestone
		if err := jsonl.Decode(line, &m); err != nil {
			return nil, err
		}
		m.ID = newID
		return nil, c.PutMilestone(ctx, &m)
	case types.KindDoc:
		var d types.Doc
		if err := jsonl.Decode(line, &d); err != nil {
			return nil, err
		}
		d.ID = newID
		return nil, c.PutDoc(ctx, &d)
	case types.KindTest:
		var tt types.Test
		if err := jsonl.Decode(line, &tt); err != nil {
			return nil, err
		}
		tt.ID = newID
		return nil, c.PutTest(ctx, &tt)
	case types.KindQueue:
		var q types.Queue
		if err := jsonl.Decode(line, &q); err != nil {
			return nil, err
		}
		q.ID = newID
		return nil, c.PutQueue(ctx, &q)
	case types.KindAgent:
		var a types.Agent
		if err := jsonl.Decode(line, &a); err != nil {
			return nil, err
		}
		a.ID = newID
		return nil, c.PutAgent(ctx, &a)
	}
	return nil, fmt.Errorf("snapshot: unknown entity kind %q during import", kind)
}

// applyDependencies re-attaches a rewritten legacy depends_on list to an
// already-inserted task or bug (spec §4.9 step 5b).
func applyDependencies(ctx context.Context, c *cache.Cache, id string, kind types.Kind, deps []string) error {
	switch kind {
	case types.KindTask:
		t, ok := c.Tasks[id]
		if !ok {
			return fmt.Errorf("snapshot: task %s vanished before dependency rewrite", id)
		}
		t.DependsOn = deps
		return c.PutTask(ctx, t)
	case types.KindBug:
		b, ok := c.Bugs[id]
		if !ok {
			return fmt.Errorf("snapshot: bug %s vanished before dependency rewrite", id)
		}
		b.DependsOn = deps
		return c.PutBug(ctx, b)
	}
	return fmt.Errorf("snapshot: unsupported kind %q for dependency rewrite", kind)
}

func splitLines(data []byte) []string {
	var out []string
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			out = append(out, string(line))
		}
	}
	return out
}

// Clear wipes every stream in backend, optionally leaving a `.bak` copy of
// each (spec §4.9 clear with backup).
func Clear(ctx context.Context, backend storage.Backend, noBackup bool) error {
	streams := append(append([]string{}, storage.Streams...), storage.ConfigStream)
	for _, name := range streams {
		if !noBackup {
			lines, err := backend.ReadJSONL(ctx, name)
			if err != nil {
				return fmt.Errorf("snapshot: read %s for backup: %w", name, err)
			}
			if err := backend.WriteJSONL(ctx, name+".bak", lines); err != nil {
				return fmt.Errorf("snapshot: write backup for %s: %w", name, err)
			}
		}
		if err := backend.WriteJSONL(ctx, name, nil); err != nil {
			return fmt.Errorf("snapshot: clear %s: %w", name, err)
		}
	}
	return nil
}
