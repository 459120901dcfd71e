package storage

import (
	"bytes"
	"context"
	"crypto/sha1" // #nosec G401 -- anchor commit identity, not a security boundary
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// NotesRef is the git notes ref Binnacle writes its JSONL blobs to.
const NotesRef = "refs/notes/binnacle"

// anchorMessage is the fixed commit message used to derive the synthetic
// anchor commit deterministically: the same repository always produces the
// same anchor, so git-notes storage is reproducible across clones.
const anchorMessage = "binnacle: anchor commit (do not edit)"

// GitNotesBackend stores JSONL blobs as git notes keyed by filename, kept
// on a deterministic synthetic anchor commit (spec §4.2, §6).
type GitNotesBackend struct {
	repoPath string
	mu       sync.Mutex
}

func NewGitNotesBackend(repoPath string) *GitNotesBackend {
	return &GitNotesBackend{repoPath: repoPath}
}

func (g *GitNotesBackend) Root() string {
	return fmt.Sprintf("git-notes:%s@%s", NotesRef, anchorFingerprint(g.repoPath))
}

func (g *GitNotesBackend) run(stdin []byte, args ...string) (string, error) {
	cmd := exec.Command("git", args...) // #nosec G204 -- args are fixed plumbing subcommands
	cmd.Dir = g.repoPath
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// anchorCommit returns the SHA of the synthetic anchor commit, creating it
// (as a root commit on the empty tree) if it doesn't exist yet. Author,
// committer and dates are pinned, so the commit depends only on the empty
// tree and its fixed message, and repeated calls across processes converge
// on the same SHA without needing to persist it anywhere.
func (g *GitNotesBackend) anchorCommit() (string, error) {
	emptyTree := "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	cmd := exec.Command("git", "commit-tree", emptyTree, "-m", anchorMessage) // #nosec G204 -- fixed plumbing subcommand
	cmd.Dir = g.repoPath
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=binnacle", "GIT_AUTHOR_EMAIL=binnacle@localhost", "GIT_AUTHOR_DATE=946684800 +0000",
		"GIT_COMMITTER_NAME=binnacle", "GIT_COMMITTER_EMAIL=binnacle@localhost", "GIT_COMMITTER_DATE=946684800 +0000")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("storage: derive anchor commit: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func (g *GitNotesBackend) Exists(ctx context.Context) bool {
	_, err := g.run(nil, "notes", "--ref", NotesRef, "list")
	return err == nil
}

func (g *GitNotesBackend) Init(ctx context.Context) error {
	anchor, err := g.anchorCommit()
	if err != nil {
		return err
	}
	// Touch the anchor with an empty note set so `notes list` succeeds even
	// before any stream has been written.
	if _, err := g.run(nil, "notes", "--ref", NotesRef, "list"); err == nil {
		return nil
	}
	_, err = g.run([]byte("{}"), "notes", "--ref", NotesRef, "add", "-f", "-F", "-", anchor)
	if err != nil {
		return fmt.Errorf("storage: init notes ref: %w", err)
	}
	return nil
}

// splitNotesSections decodes the multi-stream payload kept on the anchor
// note: Binnacle keeps a single note on the anchor commit holding one
// "### <name>\n<jsonl>\n" section per stream, so every stream can share the
// single anchor object git-notes addresses notes by.
func splitNotesSections(data []byte) map[string]string {
	sections := map[string]string{}
	var current string
	var buf strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = buf.String()
		}
		buf.Reset()
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "### ") {
			flush()
			current = strings.TrimPrefix(line, "### ")
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	flush()
	return sections
}

func joinNotesSections(sections map[string]string) string {
	var buf strings.Builder
	for name, content := range sections {
		fmt.Fprintf(&buf, "### %s\n%s", name, content)
	}
	return buf.String()
}

func (g *GitNotesBackend) readSections() (map[string]string, error) {
	anchor, err := g.anchorCommit()
	if err != nil {
		return nil, err
	}
	out, err := g.run(nil, "notes", "--ref", NotesRef, "show", anchor)
	if err != nil {
		// No note yet is not an error: treat as empty.
		return map[string]string{}, nil
	}
	return splitNotesSections([]byte(out)), nil
}

func (g *GitNotesBackend) writeSections(sections map[string]string) error {
	anchor, err := g.anchorCommit()
	if err != nil {
		return err
	}
	payload := joinNotesSections(sections)
	_, err = g.run([]byte(payload), "notes", "--ref", NotesRef, "add", "-f", "-F", "-", anchor)
	if err != nil {
		return fmt.Errorf("storage: write notes: %w", err)
	}
	return nil
}

func (g *GitNotesBackend) ReadJSONL(ctx context.Context, name string) ([]string, error) {
	sections, err := g.readSections()
	if err != nil {
		return nil, err
	}
	content, ok := sections[name]
	if !ok {
		return nil, nil
	}
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

func (g *GitNotesBackend) RawLineCount(ctx context.Context, name string) (int, error) {
	sections, err := g.readSections()
	if err != nil {
		return 0, err
	}
	content, ok := sections[name]
	if !ok || content == "" {
		return 0, nil
	}
	return strings.Count(content, "\n"), nil
}

func (g *GitNotesBackend) WriteJSONL(ctx context.Context, name string, lines []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	sections, err := g.readSections()
	if err != nil {
		return err
	}
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	sections[name] = buf.String()
	return g.writeSections(sections)
}

func (g *GitNotesBackend) AppendJSONL(ctx context.Context, name string, line string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	sections, err := g.readSections()
	if err != nil {
		return err
	}
	sections[name] = sections[name] + line + "\n"
	return g.writeSections(sections)
}

// Lock is a no-op: ordering is provided by git's ref-update atomicity on
// refs/notes/binnacle (spec §5).
func (g *GitNotesBackend) Lock(ctx context.Context) (func() error, error) {
	return func() error { return nil }, nil
}

// anchorFingerprint is exposed for diagnostics/tests that want a stable,
// short identifier for the anchor without shelling out to git.
func anchorFingerprint(repoPath string) string {
	h := sha1.Sum([]byte(repoPath + anchorMessage)) // #nosec G401
	return hex.EncodeToString(h[:])[:8]
}
