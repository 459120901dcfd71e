package storage

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// BranchRef is the orphan ref name Binnacle data lives on (spec §6).
const BranchRef = "binnacle-data"

// OrphanBranchBackend realizes Backend on a detached root git ref whose
// tree is a flat directory of JSONL blobs. It never touches the working
// tree or index: every operation is git plumbing (hash-object, mktree,
// commit-tree, update-ref), in the spirit of the reference's worktree
// manager (internal/git/worktree.go) but without materializing a worktree.
type OrphanBranchBackend struct {
	repoPath string
	branch   string
	mu       sync.Mutex
}

// NewOrphanBranchBackend returns a backend that stores JSONL blobs on
// branch (default BranchRef) inside the git repository rooted at repoPath.
func NewOrphanBranchBackend(repoPath, branch string) *OrphanBranchBackend {
	if branch == "" {
		branch = BranchRef
	}
	return &OrphanBranchBackend{repoPath: repoPath, branch: branch}
}

func (o *OrphanBranchBackend) Root() string { return "git:" + o.branch }

func (o *OrphanBranchBackend) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...) // #nosec G204 -- args are fixed plumbing subcommands
	cmd.Dir = o.repoPath
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("git %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func (o *OrphanBranchBackend) tipSHA() (string, bool) {
	sha, err := o.run("rev-parse", "refs/heads/"+o.branch)
	if err != nil {
		return "", false
	}
	return sha, true
}

func (o *OrphanBranchBackend) Exists(ctx context.Context) bool {
	_, ok := o.tipSHA()
	return ok
}

// Init creates the orphan branch with an empty tree as its sole commit, if
// it does not already exist.
func (o *OrphanBranchBackend) Init(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.tipSHA(); ok {
		return nil
	}
	emptyTree, err := o.run("hash-object", "-t", "tree", "/dev/null")
	if err != nil {
		// hash-object on /dev/null for a tree type isn't meaningful; use the
		// well-known empty tree SHA instead.
		emptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	}
	commit, err := o.commitTree(emptyTree, "", "binnacle: initialize data branch")
	if err != nil {
		return err
	}
	if _, err := o.run("update-ref", "refs/heads/"+o.branch, commit); err != nil {
		return fmt.Errorf("storage: create orphan branch: %w", err)
	}
	return nil
}

func (o *OrphanBranchBackend) commitTree(tree, parent, message string) (string, error) {
	args := []string{"commit-tree", tree, "-m", message}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	return o.run(args...)
}

// readTree returns the blob contents of every file in the branch's tip
// tree, keyed by filename (flat, no subdirectories per spec §6).
func (o *OrphanBranchBackend) readTree() (map[string][]byte, error) {
	sha, ok := o.tipSHA()
	if !ok {
		return map[string][]byte{}, nil
	}
	listing, err := o.run("ls-tree", sha)
	if err != nil {
		return nil, fmt.Errorf("storage: list tree: %w", err)
	}
	blobs := map[string][]byte{}
	for _, line := range strings.Split(listing, "\n") {
		if line == "" {
			continue
		}
		// "<mode> blob <sha>\t<name>"
		tabIdx := strings.Index(line, "\t")
		if tabIdx < 0 {
			continue
		}
		name := line[tabIdx+1:]
		fields := strings.Fields(line[:tabIdx])
		if len(fields) != 3 {
			continue
		}
		blobSHA := fields[2]
		content, err := o.run("cat-file", "blob", blobSHA)
		if err != nil {
			return nil, fmt.Errorf("storage: read blob %s: %w", name, err)
		}
		blobs[name] = []byte(content)
	}
	return blobs, nil
}

func (o *OrphanBranchBackend) ReadJSONL(ctx context.Context, name string) ([]string, error) {
	blobs, err := o.readTree()
	if err != nil {
		return nil, err
	}
	data, ok := blobs[name]
	if !ok {
		return nil, nil
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}

func (o *OrphanBranchBackend) RawLineCount(ctx context.Context, name string) (int, error) {
	blobs, err := o.readTree()
	if err != nil {
		return 0, err
	}
	data, ok := blobs[name]
	if !ok || len(data) == 0 {
		return 0, nil
	}
	return strings.Count(string(data), "\n") + 1, nil
}

// commitBlobs writes a new commit whose tree is the current tree with
// `changed` overlaid, parented on the current tip (or no parent if the
// branch doesn't exist yet).
func (o *OrphanBranchBackend) commitBlobs(message string, changed map[string][]byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	blobs, err := o.readTree()
	if err != nil {
		return err
	}
	for name, data := range changed {
		blobs[name] = data
	}

	var mktreeInput strings.Builder
	for name, data := range blobs {
		sha, err := o.hashObject(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(&mktreeInput, "100644 blob %s\t%s\n", sha, name)
	}

	cmd := exec.Command("git", "mktree")
	cmd.Dir = o.repoPath
	cmd.Stdin = strings.NewReader(mktreeInput.String())
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("storage: mktree: %w (%s)", err, stderr.String())
	}
	tree := strings.TrimSpace(out.String())

	parent, _ := o.tipSHA()
	commit, err := o.commitTree(tree, parent, message)
	if err != nil {
		return fmt.Errorf("storage: commit-tree: %w", err)
	}
	if _, err := o.run("update-ref", "refs/heads/"+o.branch, commit); err != nil {
		return fmt.Errorf("storage: update-ref: %w", err)
	}
	return nil
}

func (o *OrphanBranchBackend) hashObject(data []byte) (string, error) {
	cmd := exec.Command("git", "hash-object", "-w", "--stdin")
	cmd.Dir = o.repoPath
	cmd.Stdin = bytes.NewReader(data)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("storage: hash-object: %w (%s)", err, stderr.String())
	}
	return strings.TrimSpace(out.String()), nil
}

func (o *OrphanBranchBackend) WriteJSONL(ctx context.Context, name string, lines []string) error {
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return o.commitBlobs(fmt.Sprintf("binnacle: replace %s", name), map[string][]byte{name: []byte(buf.String())})
}

func (o *OrphanBranchBackend) AppendJSONL(ctx context.Context, name string, line string) error {
	current, err := o.ReadJSONL(ctx, name)
	if err != nil {
		return err
	}
	current = append(current, line)
	return o.WriteJSONL(ctx, name, current)
}

// Lock is a no-op for the orphan-branch backend: ordering is provided by
// git's atomic ref update (spec §5), not a filesystem lock.
func (o *OrphanBranchBackend) Lock(ctx context.Context) (func() error, error) {
	return func() error { return nil }, nil
}
